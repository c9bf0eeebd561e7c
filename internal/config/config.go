// Package config loads the YAML service configuration with ${VAR} expansion.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the needle API configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Cache   CacheConfig   `yaml:"cache"`
	Encoder EncoderConfig `yaml:"encoder"`
	Reader  ReaderConfig  `yaml:"reader"`
	Index   IndexConfig   `yaml:"index"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
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

// CacheConfig holds the optional embedding cache connection settings.
// No addresses means the cache (and budget persistence) is disabled.
type CacheConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig holds vector index and embedding pass settings.
type IndexConfig struct {
	Metric         string `yaml:"metric"`    // dot_product, cosine, euclidean
	Retriever      string `yaml:"retriever"` // dense, lexical, hybrid
	EmbedBatchSize int    `yaml:"embed_batch_size"`
	EncodeShards   int    `yaml:"encode_shards"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// EncoderConfig holds the dual encoder provider settings.
type EncoderConfig struct {
	Provider           string       `yaml:"provider"`
	APIKey             string       `yaml:"api_key"`
	BaseURL            string       `yaml:"base_url"`
	QueryModel         string       `yaml:"query_model"`
	PassageModel       string       `yaml:"passage_model"`
	Dimensions         int          `yaml:"dimensions"`
	MaxInputRunes      int          `yaml:"max_input_runes"`
	QueryInstruction   string       `yaml:"query_instruction"`
	PassageInstruction string       `yaml:"passage_instruction"`
	Budget             BudgetConfig `yaml:"budget"`
}

// ReaderConfig holds the extractive reader provider settings.
type ReaderConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Ask fans out reader calls; give them room.
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Index.Metric == "" {
		c.Index.Metric = "dot_product"
	}
	if c.Index.Retriever == "" {
		c.Index.Retriever = "dense"
	}
	if c.Index.EmbedBatchSize <= 0 {
		c.Index.EmbedBatchSize = 32
	}
	if c.Index.EncodeShards <= 0 {
		c.Index.EncodeShards = 1
	}
	if c.Encoder.MaxInputRunes <= 0 {
		c.Encoder.MaxInputRunes = 8192
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Encoder.QueryModel == "" {
		return fmt.Errorf("encoder.query_model is required")
	}
	if c.Encoder.Dimensions <= 0 {
		return fmt.Errorf("encoder.dimensions must be positive, got %d", c.Encoder.Dimensions)
	}
	if c.Reader.Model == "" {
		return fmt.Errorf("reader.model is required")
	}
	switch c.Index.Metric {
	case "dot_product", "cosine", "euclidean":
	default:
		return fmt.Errorf("index.metric must be dot_product, cosine or euclidean, got %q", c.Index.Metric)
	}
	switch c.Index.Retriever {
	case "dense", "lexical", "hybrid":
	default:
		return fmt.Errorf("index.retriever must be dense, lexical or hybrid, got %q", c.Index.Retriever)
	}
	switch c.Encoder.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf(
			"encoder.budget.action must be \"warn\" or \"reject\", got %q",
			c.Encoder.Budget.Action,
		)
	}
	return nil
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
