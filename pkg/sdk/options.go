package matchdex

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver   string // "valkey" or "redis"
	addrs    []string
	password string

	embedder  Embedder
	completer Completer

	vectorDimensions int
	hnswM            int
	hnswEFConstruct  int
	denseWeight      float64
	sparseWeight     float64
	llmTimeout       time.Duration
	refreshInterval  time.Duration

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{
		vectorDimensions: 1024,
		hnswM:            16,
		hnswEFConstruct:  200,
		denseWeight:      0.7,
		sparseWeight:     0.3,
		llmTimeout:       8 * time.Second,
		refreshInterval:  5 * time.Minute,
	}
}

// WithValkey configures the client to connect to a Valkey instance.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis configures the client to connect to a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithEmbedder sets the dense embedding provider.
// Without it every profile is indexed on the sparse terms only and feeds are random.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithCompleter sets the LLM used for query understanding and reranking.
func WithCompleter(cp Completer) Option {
	return optionFunc(func(c *clientConfig) {
		c.completer = cp
	})
}

// WithVectorDimensions sets the dense vector length. Defaults to 1024.
func WithVectorDimensions(dim int) Option {
	return optionFunc(func(c *clientConfig) {
		c.vectorDimensions = dim
	})
}

// WithHNSW configures HNSW index parameters (M and EF construction).
// Defaults: M=16, EFConstruct=200.
func WithHNSW(m, efConstruct int) Option {
	return optionFunc(func(c *clientConfig) {
		c.hnswM = m
		c.hnswEFConstruct = efConstruct
	})
}

// WithFusionWeights sets the dense and sparse weights of the hybrid score.
// Defaults: 0.7 and 0.3.
func WithFusionWeights(dense, sparse float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.denseWeight = dense
		c.sparseWeight = sparse
	})
}

// WithLLMTimeout bounds each completion call. Default: 8s.
func WithLLMTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.llmTimeout = d
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
