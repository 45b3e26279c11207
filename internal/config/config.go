// Package config holds the service configuration: one struct per concern,
// defaults, and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
	"github.com/facturaIA/invoice-integrity-service/internal/duplication"
	"github.com/facturaIA/invoice-integrity-service/internal/logging"
)

// AI provider names
const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Config is the root configuration
type Config struct {
	Server      ServerConfig       `mapstructure:"server" yaml:"server"`
	Log         logging.LogConfig  `mapstructure:"log" yaml:"log"`
	Database    DatabaseConfig     `mapstructure:"database" yaml:"database"`
	Redis       RedisConfig        `mapstructure:"redis" yaml:"redis"`
	Kafka       KafkaConfig        `mapstructure:"kafka" yaml:"kafka"`
	Storage     StorageConfig      `mapstructure:"storage" yaml:"storage"`
	Auth        AuthConfig         `mapstructure:"auth" yaml:"auth"`
	AI          AIConfig           `mapstructure:"ai" yaml:"ai"`
	Validation  ValidationConfig   `mapstructure:"validation" yaml:"validation"`
	Duplication duplication.Config `mapstructure:"duplication" yaml:"duplication"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// RateLimit is requests per second per client; 0 disables limiting
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// Addr returns host:port for http.Server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	// URL is a postgres connection string. Empty runs without a database.
	URL             string        `mapstructure:"url" yaml:"url"`
	MaxConns        int32         `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time" yaml:"max_conn_idle_time"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start" yaml:"migrate_on_start"`
}

// Enabled reports whether a database is configured
func (d DatabaseConfig) Enabled() bool { return d.URL != "" }

type RedisConfig struct {
	Addr      string        `mapstructure:"addr" yaml:"addr"`
	Password  string        `mapstructure:"password" yaml:"password"`
	DB        int           `mapstructure:"db" yaml:"db"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// Enabled reports whether the candidate cache is configured
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type KafkaConfig struct {
	Brokers          []string      `mapstructure:"brokers" yaml:"brokers"`
	ValidationTopic  string        `mapstructure:"validation_topic" yaml:"validation_topic"`
	DuplicationTopic string        `mapstructure:"duplication_topic" yaml:"duplication_topic"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// Enabled reports whether events are published
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type StorageConfig struct {
	Endpoint      string        `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey     string        `mapstructure:"access_key" yaml:"access_key"`
	SecretKey     string        `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket        string        `mapstructure:"bucket" yaml:"bucket"`
	UseSSL        bool          `mapstructure:"use_ssl" yaml:"use_ssl"`
	PresignExpiry time.Duration `mapstructure:"presign_expiry" yaml:"presign_expiry"`
}

// Enabled reports whether report archiving is configured
func (s StorageConfig) Enabled() bool { return s.Endpoint != "" }

type AuthConfig struct {
	// JWTSecret signs and verifies tokens. Empty disables authentication.
	JWTSecret string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer" yaml:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// Enabled reports whether the API requires a bearer token
func (a AuthConfig) Enabled() bool { return a.JWTSecret != "" }

type AIConfig struct {
	Provider      string        `mapstructure:"provider" yaml:"provider"`
	OpenAIAPIKey  string        `mapstructure:"openai_api_key" yaml:"openai_api_key"`
	OpenAIBaseURL string        `mapstructure:"openai_base_url" yaml:"openai_base_url"`
	OpenAIModel   string        `mapstructure:"openai_model" yaml:"openai_model"`
	GeminiAPIKey  string        `mapstructure:"gemini_api_key" yaml:"gemini_api_key"`
	GeminiModel   string        `mapstructure:"gemini_model" yaml:"gemini_model"`
	OllamaBaseURL string        `mapstructure:"ollama_base_url" yaml:"ollama_base_url"`
	OllamaModel   string        `mapstructure:"ollama_model" yaml:"ollama_model"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type ValidationConfig struct {
	// Tolerance overrides every rule's tolerance when positive
	Tolerance float64 `mapstructure:"tolerance" yaml:"tolerance"`
	// RulesFile replaces the embedded rule catalog when set
	RulesFile string `mapstructure:"rules_file" yaml:"rules_file"`
}

// Default returns a Config with every default filled in
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8081
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 20
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if len(cfg.Log.OutputPaths) == 0 {
		cfg.Log.OutputPaths = []string{"stdout"}
	}

	// pool sizing tuned for PgBouncer
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 2
	}
	if cfg.Database.MaxConnLifetime == 0 {
		cfg.Database.MaxConnLifetime = time.Hour
	}
	if cfg.Database.MaxConnIdleTime == 0 {
		cfg.Database.MaxConnIdleTime = 30 * time.Minute
	}

	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 5 * time.Minute
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "invoice:candidates:"
	}

	if cfg.Kafka.ValidationTopic == "" {
		cfg.Kafka.ValidationTopic = "invoice.validated"
	}
	if cfg.Kafka.DuplicationTopic == "" {
		cfg.Kafka.DuplicationTopic = "invoice.duplication"
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 10 * time.Second
	}

	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "invoice-reports"
	}
	if cfg.Storage.PresignExpiry == 0 {
		cfg.Storage.PresignExpiry = 24 * time.Hour
	}

	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "invoice-integrity-service"
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = ProviderNone
	}
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	if cfg.AI.OpenAIModel == "" {
		cfg.AI.OpenAIModel = "gpt-4o-mini"
	}
	if cfg.AI.GeminiModel == "" {
		cfg.AI.GeminiModel = "gemini-1.5-flash"
	}
	if cfg.AI.OllamaBaseURL == "" {
		cfg.AI.OllamaBaseURL = "http://localhost:11434/v1"
	}
	if cfg.AI.OllamaModel == "" {
		cfg.AI.OllamaModel = "llama3.2"
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 30 * time.Second
	}

	applyDuplicationDefaults(&cfg.Duplication)
}

// applyDuplicationDefaults fills each zero section from duplication.DefaultConfig.
// Sections are replaced whole so a partially set section is left to Validate.
func applyDuplicationDefaults(d *duplication.Config) {
	def := duplication.DefaultConfig()
	if d.Thresholds == (duplication.Thresholds{}) {
		d.Thresholds = def.Thresholds
	}
	if d.Scenarios == (duplication.ScenarioConfig{}) {
		d.Scenarios = def.Scenarios
	}
	if d.Filters == (duplication.Filters{}) {
		d.Filters = def.Filters
	}
	if d.Weights.Edit == 0 && d.Weights.Name == 0 && d.Weights.Token == 0 {
		d.Weights = def.Weights
	}
	if d.Workers == 0 {
		d.Workers = def.Workers
	}
	if d.RetrievalTimeout == 0 {
		d.RetrievalTimeout = def.RetrievalTimeout
	}
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server.rate_limit must not be negative")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "fatal":
	default:
		errs = append(errs, fmt.Sprintf("log.level unknown: %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or console, got %q", c.Log.Format))
	}

	if c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, "database.min_conns exceeds database.max_conns")
	}

	if c.Kafka.Enabled() && (c.Kafka.ValidationTopic == "" || c.Kafka.DuplicationTopic == "") {
		errs = append(errs, "kafka topics must be set when brokers are configured")
	}

	if c.Storage.Enabled() && (c.Storage.AccessKey == "" || c.Storage.SecretKey == "") {
		errs = append(errs, "storage.access_key and storage.secret_key are required with storage.endpoint")
	}

	switch c.AI.Provider {
	case ProviderNone, ProviderOllama:
	case ProviderOpenAI:
		if c.AI.OpenAIAPIKey == "" {
			errs = append(errs, "ai.openai_api_key is required for the openai provider")
		}
	case ProviderGemini:
		if c.AI.GeminiAPIKey == "" {
			errs = append(errs, "ai.gemini_api_key is required for the gemini provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("ai.provider unknown: %q", c.AI.Provider))
	}

	if c.Validation.Tolerance < 0 {
		errs = append(errs, "validation.tolerance must not be negative")
	}

	if err := c.Duplication.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return apperrors.New(apperrors.CodeConfigInvalid, strings.Join(errs, "; "))
	}
	return nil
}
