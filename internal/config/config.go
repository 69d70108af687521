package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the matchdex API configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	VectorIndex VectorIndexConfig `yaml:"vector_index"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Rerank      RerankConfig      `yaml:"rerank"`
	Hydration   HydrationConfig   `yaml:"hydration"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds key-value store connection settings.
type DatabaseConfig struct {
	Driver           string        `yaml:"driver"` // valkey, redis (default: valkey)
	Addrs            []string      `yaml:"addrs"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	ReadinessTimeout int           `yaml:"readiness_timeout_sec"`
	ConnectAttempts  int           `yaml:"connect_attempts"`
	ConnectBaseDelay time.Duration `yaml:"connect_base_delay"`
	ConnectMaxDelay  time.Duration `yaml:"connect_max_delay"`
}

// VectorIndexConfig selects and tunes the hybrid vector index.
type VectorIndexConfig struct {
	Backend string       `yaml:"backend"` // valkey, qdrant (default: valkey)
	Qdrant  QdrantConfig `yaml:"qdrant"`

	DenseWeight  float64 `yaml:"dense_weight"`
	SparseWeight float64 `yaml:"sparse_weight"`

	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
	HNSWEFRuntime   int `yaml:"hnsw_ef_runtime"`

	// MaxPushdownExcludes caps the exclusion list sent to the index; longer lists are post-filtered.
	MaxPushdownExcludes int `yaml:"max_pushdown_excludes"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// EmbeddingConfig holds dense and sparse embedding settings.
type EmbeddingConfig struct {
	Provider            string        `yaml:"provider"` // label for metrics and budget keys
	BaseURL             string        `yaml:"base_url"`
	APIKey              string        `yaml:"api_key"`
	Model               string        `yaml:"model"`
	Dimensions          int           `yaml:"dimensions"`
	DocumentInstruction string        `yaml:"document_instruction"`
	QueryInstruction    string        `yaml:"query_instruction"`
	Timeout             time.Duration `yaml:"timeout"`
	Cache               bool          `yaml:"cache"`
	Budget              BudgetConfig  `yaml:"budget"`
	Sparse              SparseConfig  `yaml:"sparse"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// SparseConfig selects the sparse (lexical) encoder.
type SparseConfig struct {
	Provider string `yaml:"provider"` // tei, hashing (default: hashing)
	URL      string `yaml:"url"`      // text-embeddings-inference base URL
	// VocabBits sizes the hashing encoder's term id space (2^bits).
	VocabBits int `yaml:"vocab_bits"`
}

// LLMConfig holds chat-completion provider settings.
type LLMConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	Temperature   float32       `yaml:"temperature"`
	MaxTokens     int           `yaml:"max_tokens"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxQueryChars int           `yaml:"max_query_chars"`
	Breaker       BreakerConfig `yaml:"breaker"`
}

// BreakerConfig holds circuit breaker settings for the LLM provider.
type BreakerConfig struct {
	MaxRequests         uint32        `yaml:"max_requests"` // half-open probes
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"` // open -> half-open
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
}

// RetrievalConfig holds candidate retrieval settings.
type RetrievalConfig struct {
	Breadths     []int `yaml:"breadths"`
	Target       int   `yaml:"target"`
	DefaultLimit int   `yaml:"default_limit"`
	MaxLimit     int   `yaml:"max_limit"`
}

// RerankConfig holds LLM reranking settings.
type RerankConfig struct {
	MaxCandidates int `yaml:"max_candidates"`
	TopN          int `yaml:"top_n"`
}

// HydrationConfig holds profile snapshot settings.
type HydrationConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	c.applyHTTPDefaults()
	c.applyStoreDefaults()
	c.applyEmbeddingDefaults()
	c.applyLLMDefaults()
	c.applyPipelineDefaults()
}

func (c *Config) applyHTTPDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
}

func (c *Config) applyStoreDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "valkey"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.ConnectAttempts <= 0 {
		c.Database.ConnectAttempts = 5
	}
	if c.Database.ConnectBaseDelay <= 0 {
		c.Database.ConnectBaseDelay = 500 * time.Millisecond
	}
	if c.Database.ConnectMaxDelay <= 0 {
		c.Database.ConnectMaxDelay = 10 * time.Second
	}

	vi := &c.VectorIndex
	if vi.Backend == "" {
		vi.Backend = "valkey"
	}
	if vi.DenseWeight == 0 && vi.SparseWeight == 0 {
		vi.DenseWeight, vi.SparseWeight = 0.7, 0.3
	}
	if vi.HNSWM <= 0 {
		vi.HNSWM = 16
	}
	if vi.HNSWEFConstruct <= 0 {
		vi.HNSWEFConstruct = 200
	}
	if vi.Qdrant.Port <= 0 {
		vi.Qdrant.Port = 6334
	}
	if vi.Qdrant.Collection == "" {
		vi.Qdrant.Collection = "matchdex_profiles"
	}
}

func (c *Config) applyEmbeddingDefaults() {
	e := &c.Embedding
	if e.Provider == "" {
		e.Provider = "openai"
	}
	if e.Dimensions <= 0 {
		e.Dimensions = 1024
	}
	if e.Timeout <= 0 {
		e.Timeout = 5 * time.Second
	}
	if e.Sparse.Provider == "" {
		e.Sparse.Provider = "hashing"
	}
	if e.Sparse.VocabBits <= 0 {
		e.Sparse.VocabBits = 18
	}
}

func (c *Config) applyLLMDefaults() {
	l := &c.LLM
	if l.Temperature == 0 {
		l.Temperature = 0.2
	}
	if l.MaxTokens <= 0 {
		l.MaxTokens = 512
	}
	if l.Timeout <= 0 {
		l.Timeout = 10 * time.Second
	}
	if l.MaxQueryChars <= 0 {
		l.MaxQueryChars = 100
	}
	if l.Breaker.MaxRequests == 0 {
		l.Breaker.MaxRequests = 1
	}
	if l.Breaker.Interval <= 0 {
		l.Breaker.Interval = time.Minute
	}
	if l.Breaker.Timeout <= 0 {
		l.Breaker.Timeout = 30 * time.Second
	}
	if l.Breaker.ConsecutiveFailures == 0 {
		l.Breaker.ConsecutiveFailures = 5
	}
}

func (c *Config) applyPipelineDefaults() {
	if len(c.Retrieval.Breadths) == 0 {
		c.Retrieval.Breadths = []int{50, 150, 300}
	}
	if c.Retrieval.Target <= 0 {
		c.Retrieval.Target = 20
	}
	if c.Retrieval.DefaultLimit <= 0 {
		c.Retrieval.DefaultLimit = 20
	}
	if c.Retrieval.MaxLimit <= 0 {
		c.Retrieval.MaxLimit = 50
	}
	if c.Rerank.MaxCandidates <= 0 {
		c.Rerank.MaxCandidates = 10
	}
	if c.Rerank.TopN <= 0 {
		c.Rerank.TopN = 5
	}
	if c.Hydration.RefreshInterval <= 0 {
		c.Hydration.RefreshInterval = 5 * time.Minute
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return errors.New("database.addrs is required")
	}
	switch c.Database.Driver {
	case "valkey", "redis":
	default:
		return fmt.Errorf("database.driver must be \"valkey\" or \"redis\", got %q", c.Database.Driver)
	}
	if err := c.validateVectorIndex(); err != nil {
		return err
	}
	if err := c.validateEmbedding(); err != nil {
		return err
	}
	return c.validatePipeline()
}

func (c *Config) validateVectorIndex() error {
	vi := c.VectorIndex
	switch vi.Backend {
	case "valkey":
	case "qdrant":
		if vi.Qdrant.Host == "" {
			return errors.New("vector_index.qdrant.host is required for the qdrant backend")
		}
	default:
		return fmt.Errorf("vector_index.backend must be \"valkey\" or \"qdrant\", got %q", vi.Backend)
	}
	if vi.DenseWeight < 0 || vi.SparseWeight < 0 {
		return errors.New("vector_index weights must be non-negative")
	}
	if vi.MaxPushdownExcludes < 0 {
		return errors.New("vector_index.max_pushdown_excludes must be non-negative")
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	e := c.Embedding
	switch e.Budget.Action {
	case "", "warn", "reject":
	default:
		return fmt.Errorf("embedding.budget.action must be \"warn\" or \"reject\", got %q", e.Budget.Action)
	}
	switch e.Sparse.Provider {
	case "hashing":
	case "tei":
		if e.Sparse.URL == "" {
			return errors.New("embedding.sparse.url is required for the tei provider")
		}
	default:
		return fmt.Errorf("embedding.sparse.provider must be \"tei\" or \"hashing\", got %q", e.Sparse.Provider)
	}
	if e.Sparse.VocabBits > 31 {
		return fmt.Errorf("embedding.sparse.vocab_bits must be at most 31, got %d", e.Sparse.VocabBits)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	prev := 0
	for _, b := range c.Retrieval.Breadths {
		if b <= prev {
			return fmt.Errorf("retrieval.breadths must be positive and strictly ascending, got %v", c.Retrieval.Breadths)
		}
		prev = b
	}
	if c.Retrieval.DefaultLimit > c.Retrieval.MaxLimit {
		return fmt.Errorf("retrieval.default_limit %d exceeds max_limit %d",
			c.Retrieval.DefaultLimit, c.Retrieval.MaxLimit)
	}
	if c.Rerank.TopN > c.Rerank.MaxCandidates {
		return fmt.Errorf("rerank.top_n %d exceeds max_candidates %d", c.Rerank.TopN, c.Rerank.MaxCandidates)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2], got %g", c.LLM.Temperature)
	}
	return nil
}

// Configured reports whether the LLM provider has enough settings to be called.
func (l LLMConfig) Configured() bool {
	return strings.TrimSpace(l.BaseURL) != "" && strings.TrimSpace(l.Model) != ""
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
