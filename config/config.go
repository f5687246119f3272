package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	llmclient "consortium-core/llm-client"
)

// Config holds process-wide settings read from the environment.
type Config struct {
	// Provider credentials
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	CohereAPIKey    string `envconfig:"COHERE_API_KEY"`
	MistralAPIKey   string `envconfig:"MISTRAL_API_KEY"`

	// Worker calls
	WorkerTimeout  time.Duration `envconfig:"CONSORTIUM_WORKER_TIMEOUT" default:"120s"`
	MaxConcurrency int           `envconfig:"CONSORTIUM_MAX_CONCURRENCY" default:"16"`
	MaxTokens      int           `envconfig:"CONSORTIUM_MAX_TOKENS" default:"4096"`
	DefaultArbiter string        `envconfig:"CONSORTIUM_DEFAULT_ARBITER" default:"gemini-2.0-flash"`

	// Files
	StorePath       string `envconfig:"CONSORTIUM_STORE_PATH"`
	ResponseLogPath string `envconfig:"CONSORTIUM_RESPONSE_LOG"`
	TemplatesDir    string `envconfig:"CONSORTIUM_TEMPLATES_DIR"`
	TemplatePack    string `envconfig:"CONSORTIUM_TEMPLATE_PACK"`

	// Server
	HTTPPort       int           `envconfig:"CONSORTIUM_HTTP_PORT" default:"8080"`
	GRPCHealthPort int           `envconfig:"CONSORTIUM_GRPC_HEALTH_PORT" default:"0"`
	CORSOrigins    []string      `envconfig:"CONSORTIUM_CORS_ORIGINS" default:"*"`
	RunTTL         time.Duration `envconfig:"CONSORTIUM_RUN_TTL" default:"1h"`

	// Observability
	LogLevel  string `envconfig:"CONSORTIUM_LOG_LEVEL" default:"warn"`
	LogPretty bool   `envconfig:"CONSORTIUM_LOG_PRETTY" default:"true"`
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that envconfig cannot express.
func (c *Config) Validate() error {
	if c.WorkerTimeout <= 0 {
		return fmt.Errorf("CONSORTIUM_WORKER_TIMEOUT must be positive, got %s", c.WorkerTimeout)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("CONSORTIUM_MAX_CONCURRENCY must be at least 1, got %d", c.MaxConcurrency)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("CONSORTIUM_HTTP_PORT out of range: %d", c.HTTPPort)
	}
	if c.GRPCHealthPort < 0 || c.GRPCHealthPort > 65535 {
		return fmt.Errorf("CONSORTIUM_GRPC_HEALTH_PORT out of range: %d", c.GRPCHealthPort)
	}
	return nil
}

// Credentials returns the provider key map used by the llm client router.
func (c *Config) Credentials() llmclient.Credentials {
	return llmclient.Credentials{
		llmclient.ProviderOpenAI:    c.OpenAIAPIKey,
		llmclient.ProviderAnthropic: c.AnthropicAPIKey,
		llmclient.ProviderGoogle:    c.GeminiAPIKey,
		llmclient.ProviderCohere:    c.CohereAPIKey,
		llmclient.ProviderMistral:   c.MistralAPIKey,
	}
}
