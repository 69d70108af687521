// Package llmjson decodes structured replies from language models.
// Models often wrap JSON in markdown fences or add prose around it; the
// decoder strips that envelope and then parses strictly.
package llmjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kailas-cloud/matchdex/internal/domain"
)

// infoString matches a fence language tag such as "json".
var infoString = regexp.MustCompile(`^[A-Za-z]*$`)

// Validator is implemented by reply types that carry schema constraints beyond field types.
type Validator interface {
	Validate() error
}

// Decode parses raw into T. Unknown fields, trailing data and failed
// validation all yield domain.ErrMalformedProviderResponse.
func Decode[T any](raw string) (T, error) {
	var out T
	body := Extract(raw)
	if body == "" {
		return out, fmt.Errorf("%w: empty reply", domain.ErrMalformedProviderResponse)
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("%w: %w", domain.ErrMalformedProviderResponse, err)
	}
	if dec.More() {
		return out, fmt.Errorf("%w: trailing data after JSON value", domain.ErrMalformedProviderResponse)
	}

	if v, ok := any(&out).(Validator); ok {
		if err := v.Validate(); err != nil {
			return out, fmt.Errorf("%w: %w", domain.ErrMalformedProviderResponse, err)
		}
	}
	return out, nil
}

// Extract returns the JSON body of a model reply: the content of the first
// fenced block if there is one, otherwise the span from the first opening
// brace or bracket to the matching last closing one.
func Extract(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		// The first line is an info string only when it is a bare word; a body may start on the fence line.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && infoString.MatchString(strings.TrimSpace(rest[:nl])) {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return ""
	}
	return s[start : end+1]
}

// IsMalformed reports whether err came from a reply that failed to decode.
func IsMalformed(err error) bool {
	return errors.Is(err, domain.ErrMalformedProviderResponse)
}

// Compact re-encodes a JSON body without insignificant whitespace. Used for logging replies.
func Compact(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(Extract(raw))); err != nil {
		return strings.TrimSpace(raw)
	}
	return buf.String()
}
