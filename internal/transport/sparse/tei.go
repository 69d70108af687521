// Package sparse provides lexical (sparse) text encoders.
package sparse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

const maxErrorBody = 512

// TEIConfig holds text-embeddings-inference connection settings.
type TEIConfig struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

// TEIEncoder calls a text-embeddings-inference server running a SPLADE model.
type TEIEncoder struct {
	client  *http.Client
	baseURL string
}

// NewTEIEncoder creates a TEI sparse encoder.
func NewTEIEncoder(cfg TEIConfig) *TEIEncoder {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &TEIEncoder{client: client, baseURL: strings.TrimRight(cfg.URL, "/")}
}

type teiRequest struct {
	Inputs   string `json:"inputs"`
	Truncate bool   `json:"truncate"`
}

type teiTerm struct {
	Index uint32  `json:"index"`
	Value float32 `json:"value"`
}

// EncodeSparse returns the term weights TEI assigns to text.
func (e *TEIEncoder) EncodeSparse(ctx context.Context, text string) (domain.SparseVector, error) {
	body, err := json.Marshal(teiRequest{Inputs: text, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshal tei request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed_sparse", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create tei request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("tei: %w", ctxErr)
		}
		return nil, fmt.Errorf("tei: %w: %w", domain.ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("tei: %w: status %d: %s",
			domain.ErrProviderUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var batches [][]teiTerm
	if err := json.NewDecoder(resp.Body).Decode(&batches); err != nil {
		return nil, fmt.Errorf("tei: %w: %w", domain.ErrMalformedProviderResponse, err)
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("tei: %w: empty response", domain.ErrMalformedProviderResponse)
	}

	out := make(domain.SparseVector, len(batches[0]))
	for _, t := range batches[0] {
		if t.Value > out[t.Index] {
			out[t.Index] = t.Value
		}
	}
	return out.Clean(), nil
}

// HealthCheck probes the TEI /health endpoint.
func (e *TEIEncoder) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create tei health request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("tei health: %w: %w", domain.ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tei health: %w: status %d", domain.ErrProviderUnavailable, resp.StatusCode)
	}
	return nil
}
