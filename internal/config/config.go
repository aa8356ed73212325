package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	Version   string                    `mapstructure:"version"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Models    map[string]ModelConfig    `mapstructure:"models"`
	Embedding EmbeddingConfig           `mapstructure:"embedding"`
	Index     IndexConfig               `mapstructure:"index"`
	Sandbox   SandboxConfig             `mapstructure:"sandbox"`
	Repair    RepairConfig              `mapstructure:"repair"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Server    ServerConfig              `mapstructure:"server"`
}

// ProviderConfig represents reasoning-service provider configuration such as OpenAI, Ollama, or custom gateways.
type ProviderConfig struct {
	Type      string        `mapstructure:"type"`       // openai, openrouter, ollama, vllm, lmstudio, custom
	Model     string        `mapstructure:"model"`      // default model for the provider
	BaseURL   string        `mapstructure:"base_url"`   // API base URL
	APIKey    string        `mapstructure:"api_key"`    // optional API key
	Timeout   time.Duration `mapstructure:"timeout"`    // request timeout
	MaxTokens int           `mapstructure:"max_tokens"` // optional provider-level token cap
}

// ModelConfig binds a logical model name to a provider entry and model parameters.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Default     bool    `mapstructure:"default"`
}

// EmbeddingConfig controls the embedding service client and document aggregation.
type EmbeddingConfig struct {
	BaseURL        string        `mapstructure:"base_url"`        // OpenAI-compatible embeddings endpoint
	APIKey         string        `mapstructure:"api_key"`         // API key for the embedding service
	Model          string        `mapstructure:"model"`           // embedding model id
	Dimensions     int           `mapstructure:"dimensions"`      // expected vector dimensionality
	ChunkTokens    int           `mapstructure:"chunk_tokens"`    // per-chunk token budget
	MaxRetries     int           `mapstructure:"max_retries"`     // retry ceiling per embed call
	InitialBackoff time.Duration `mapstructure:"initial_backoff"` // first backoff delay, doubled per retry
}

// IndexConfig controls the similarity index and workspace document collection.
type IndexConfig struct {
	TopK         int      `mapstructure:"top_k"`          // default result count for queries
	Workspace    string   `mapstructure:"workspace"`      // directory indexed when no documents are submitted
	Extensions   []string `mapstructure:"extensions"`     // file extensions included in workspace walks
	MaxFiles     int      `mapstructure:"max_files"`      // workspace walk cap when indexing a directory
	MaxFileBytes int      `mapstructure:"max_file_bytes"` // per-file size cap when indexing a directory
}

// SandboxConfig controls the isolated runtime used for generated code and installs.
type SandboxConfig struct {
	PythonBin             string `mapstructure:"python_bin"`
	PipBin                string `mapstructure:"pip_bin"`
	TestTimeoutSeconds    int    `mapstructure:"test_timeout_seconds"`
	InstallTimeoutSeconds int    `mapstructure:"install_timeout_seconds"`
	WorkDir               string `mapstructure:"work_dir"` // directory for scratch files; empty = system temp
}

// RepairConfig describes repair-loop runtime parameters.
type RepairConfig struct {
	MaxAttempts int     `mapstructure:"max_attempts"`
	Model       string  `mapstructure:"model"` // logical model name; empty = registry default
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes daemon settings.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	Transport      string `mapstructure:"transport"` // connect or ndjson
}

// Load reads configuration from the provided path or defaults to configs/config.yaml.
// Environment variables override file values (prefix: AGENTFIX_, dots replaced with underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENTFIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			v.SetConfigName("config.example")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.chunk_tokens", 8191)
	v.SetDefault("embedding.max_retries", 5)
	v.SetDefault("embedding.initial_backoff", 500*time.Millisecond)

	v.SetDefault("index.top_k", 3)
	v.SetDefault("index.workspace", ".")
	v.SetDefault("index.extensions", []string{".py"})
	v.SetDefault("index.max_files", 500)
	v.SetDefault("index.max_file_bytes", 131072)

	v.SetDefault("sandbox.python_bin", "python3")
	v.SetDefault("sandbox.pip_bin", "pip3")
	v.SetDefault("sandbox.test_timeout_seconds", 10)
	v.SetDefault("sandbox.install_timeout_seconds", 30)

	v.SetDefault("repair.max_attempts", 5)
	v.SetDefault("repair.max_tokens", 4096)
	v.SetDefault("repair.temperature", 0.2)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.transport", "connect")
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be defined")
	}

	var defaultFound bool
	for name, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("provider %q must define type", name)
		}
	}

	for name, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %q must reference provider", name)
		}

		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", name, m.Provider)
		}

		if m.Temperature < 0 || m.Temperature > 2 {
			return fmt.Errorf("model %q temperature must be within [0,2]", name)
		}

		if m.MaxTokens < 0 {
			return fmt.Errorf("model %q max_tokens cannot be negative", name)
		}

		if m.Default {
			defaultFound = true
		}
	}

	if !defaultFound {
		return errors.New("at least one model should be marked as default")
	}

	if c.Embedding.Dimensions <= 0 {
		return errors.New("embedding.dimensions must be > 0")
	}
	if c.Embedding.ChunkTokens <= 0 {
		return errors.New("embedding.chunk_tokens must be > 0")
	}
	if c.Embedding.MaxRetries < 0 {
		return errors.New("embedding.max_retries must be >= 0")
	}
	if c.Embedding.InitialBackoff < 0 {
		return errors.New("embedding.initial_backoff must be >= 0")
	}

	if c.Index.TopK <= 0 {
		return errors.New("index.top_k must be > 0")
	}
	if c.Index.MaxFiles <= 0 {
		return errors.New("index.max_files must be > 0")
	}

	if strings.TrimSpace(c.Sandbox.PythonBin) == "" {
		return errors.New("sandbox.python_bin must be set")
	}
	if strings.TrimSpace(c.Sandbox.PipBin) == "" {
		return errors.New("sandbox.pip_bin must be set")
	}
	if c.Sandbox.TestTimeoutSeconds <= 0 {
		return errors.New("sandbox.test_timeout_seconds must be > 0")
	}
	if c.Sandbox.InstallTimeoutSeconds <= 0 {
		return errors.New("sandbox.install_timeout_seconds must be > 0")
	}

	if c.Repair.MaxAttempts <= 0 {
		return errors.New("repair.max_attempts must be > 0")
	}
	if c.Repair.Temperature < 0 || c.Repair.Temperature > 2 {
		return errors.New("repair.temperature must be within [0,2]")
	}
	if repairModel := strings.TrimSpace(c.Repair.Model); repairModel != "" {
		if _, ok := c.Models[repairModel]; !ok {
			return fmt.Errorf("repair.model references unknown model %q", repairModel)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "", "connect", "ndjson":
	default:
		return errors.New("server.transport must be one of connect, ndjson")
	}

	return nil
}
