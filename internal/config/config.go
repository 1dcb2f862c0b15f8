// Package config provides configuration management for the citation alert service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/helixir/citation-alert-service/internal/domain"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

var cycleKeyPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Config holds all configuration for the citation alert service.
type Config struct {
	// Server contains HTTP admin server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Pipeline contains run parameters: metric mode, threshold, search window.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	// Dictionaries contains paths to the keyword and impact-factor tables.
	Dictionaries DictionariesConfig `mapstructure:"dictionaries"`
	// PubMed contains PubMed E-utilities client settings.
	PubMed SourceConfig `mapstructure:"pubmed"`
	// OpenCitations contains OpenCitations COCI client settings.
	OpenCitations SourceConfig `mapstructure:"opencitations"`
	// Summarizer contains summarization provider settings.
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	// Notifier contains notification sink settings.
	Notifier NotifierConfig `mapstructure:"notifier"`
}

// ServerConfig holds admin server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (loaded from CITEWATCH_DATABASE_PASSWORD).
	Password string `mapstructure:"-"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum idle time before a connection is closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between idle-connection health checks.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files.
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// PipelineConfig holds the citation pipeline run parameters.
type PipelineConfig struct {
	// Mode is the citation metric the threshold applies to (spike, total).
	Mode string `mapstructure:"mode"`
	// Threshold is the inclusive citation threshold: metric >= threshold qualifies.
	Threshold int `mapstructure:"threshold"`
	// Keywords are the operator-facing keywords translated into search queries.
	Keywords []string `mapstructure:"keywords"`
	// WindowStartMonths is how many months before now the search window opens.
	WindowStartMonths int `mapstructure:"window_start_months"`
	// WindowEndMonths is how many months before now the search window closes.
	WindowEndMonths int `mapstructure:"window_end_months"`
	// ArticleTypes filters fetched papers by publication type. Empty means no filter.
	ArticleTypes []string `mapstructure:"article_types"`
	// MaxResults caps the number of papers fetched per run.
	MaxResults int `mapstructure:"max_results"`
	// CycleKey overrides the de-duplication cycle key. Empty means the run month.
	CycleKey string `mapstructure:"cycle_key"`
	// TargetLanguage is the language summaries are written in.
	TargetLanguage string `mapstructure:"target_language"`
}

// DictionariesConfig holds lookup table file paths.
type DictionariesConfig struct {
	// KeywordsPath is the keyword-to-query dictionary YAML file.
	KeywordsPath string `mapstructure:"keywords_path"`
	// ImpactFactorsPath is the journal impact-factor table YAML file.
	ImpactFactorsPath string `mapstructure:"impact_factors_path"`
}

// SourceConfig holds configuration for an external data source API.
type SourceConfig struct {
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// APIKey is the API key, loaded from the environment only.
	APIKey string `mapstructure:"-"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// MinInterval is the rate-limit floor: successive requests are spaced at
	// least this far apart.
	MinInterval time.Duration `mapstructure:"min_interval"`
	// MaxRetries is the maximum number of retries for transient failures.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// SummarizerConfig holds summarization provider settings.
type SummarizerConfig struct {
	// Provider is the summarization provider (gemini, anthropic).
	Provider string `mapstructure:"provider"`
	// Model is the provider model name.
	Model string `mapstructure:"model"`
	// BaseURL is the provider API base URL.
	BaseURL string `mapstructure:"base_url"`
	// APIKey is the provider API key, loaded from the environment only.
	APIKey string `mapstructure:"-"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// MinInterval is the rate-limit floor between summarizer calls.
	MinInterval time.Duration `mapstructure:"min_interval"`
	// MaxRetries is the maximum number of retries for transient failures.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base delay between retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// NotifierConfig holds notification sink settings.
type NotifierConfig struct {
	// Sink selects the delivery channel (log, email, kafka).
	Sink string `mapstructure:"sink"`
	// Email contains SMTP delivery settings.
	Email EmailConfig `mapstructure:"email"`
	// Kafka contains Kafka event publishing settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	// Host is the SMTP server hostname.
	Host string `mapstructure:"host"`
	// Port is the SMTP server port.
	Port int `mapstructure:"port"`
	// Username is the SMTP username.
	Username string `mapstructure:"username"`
	// Password is the SMTP password (loaded from CITEWATCH_NOTIFIER_EMAIL_PASSWORD).
	Password string `mapstructure:"-"`
	// From is the sender address.
	From string `mapstructure:"from"`
	// To is the list of recipient addresses.
	To []string `mapstructure:"to"`
	// SubjectPrefix is prepended to every subject line.
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// KafkaConfig holds Kafka publisher settings.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the topic notification events are published to.
	Topic string `mapstructure:"topic"`
	// BatchTimeout is the maximum time to wait before flushing a batch.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CITEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/citation-alert-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine, env vars and defaults cover everything
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secrets are tagged mapstructure:"-" so they never load from files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Database.Password = os.Getenv("CITEWATCH_DATABASE_PASSWORD")
	cfg.PubMed.APIKey = os.Getenv("CITEWATCH_PUBMED_API_KEY")
	cfg.OpenCitations.APIKey = os.Getenv("CITEWATCH_OPENCITATIONS_API_KEY")
	cfg.Summarizer.APIKey = os.Getenv("CITEWATCH_SUMMARIZER_API_KEY")
	cfg.Notifier.Email.Password = os.Getenv("CITEWATCH_NOTIFIER_EMAIL_PASSWORD")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "citewatch")
	v.SetDefault("database.name", "citation_alert_service")
	// "require" by default; CITEWATCH_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Pipeline defaults
	v.SetDefault("pipeline.mode", "spike")
	v.SetDefault("pipeline.threshold", 10)
	v.SetDefault("pipeline.keywords", []string{})
	v.SetDefault("pipeline.window_start_months", 14)
	v.SetDefault("pipeline.window_end_months", 2)
	v.SetDefault("pipeline.article_types", []string{"Journal Article"})
	v.SetDefault("pipeline.max_results", 500)
	v.SetDefault("pipeline.cycle_key", "")
	v.SetDefault("pipeline.target_language", "English")

	// Dictionaries defaults
	v.SetDefault("dictionaries.keywords_path", "dictionaries/keywords.yaml")
	v.SetDefault("dictionaries.impact_factors_path", "dictionaries/impact_factors.yaml")

	// PubMed defaults. NCBI asks for at most 3 req/sec without an API key.
	v.SetDefault("pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("pubmed.timeout", "30s")
	v.SetDefault("pubmed.min_interval", "334ms")
	v.SetDefault("pubmed.max_retries", 3)
	v.SetDefault("pubmed.retry_delay", "2s")

	// OpenCitations defaults
	v.SetDefault("opencitations.base_url", "https://opencitations.net/index/coci/api/v1")
	v.SetDefault("opencitations.timeout", "30s")
	v.SetDefault("opencitations.min_interval", "1s")
	v.SetDefault("opencitations.max_retries", 3)
	v.SetDefault("opencitations.retry_delay", "2s")

	// Summarizer defaults
	v.SetDefault("summarizer.provider", "gemini")
	v.SetDefault("summarizer.model", "gemini-2.0-flash")
	v.SetDefault("summarizer.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("summarizer.timeout", "60s")
	v.SetDefault("summarizer.min_interval", "4s")
	v.SetDefault("summarizer.max_retries", 3)
	v.SetDefault("summarizer.retry_delay", "2s")

	// Notifier defaults
	v.SetDefault("notifier.sink", "log")
	v.SetDefault("notifier.email.host", "smtp.gmail.com")
	v.SetDefault("notifier.email.port", 587)
	v.SetDefault("notifier.email.username", "")
	v.SetDefault("notifier.email.from", "")
	v.SetDefault("notifier.email.to", []string{})
	v.SetDefault("notifier.email.subject_prefix", "[Citation Alert]")
	v.SetDefault("notifier.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("notifier.kafka.topic", "events.citation_alerts")
	v.SetDefault("notifier.kafka.batch_timeout", "10ms")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if !domain.MetricMode(c.Pipeline.Mode).Valid() {
		return fmt.Errorf("invalid pipeline mode: %q (want spike or total)", c.Pipeline.Mode)
	}
	if c.Pipeline.Threshold < 0 {
		return fmt.Errorf("pipeline threshold must be non-negative")
	}
	if c.Pipeline.WindowStartMonths < c.Pipeline.WindowEndMonths {
		return fmt.Errorf("pipeline window_start_months (%d) must be >= window_end_months (%d)",
			c.Pipeline.WindowStartMonths, c.Pipeline.WindowEndMonths)
	}
	if c.Pipeline.MaxResults <= 0 {
		return fmt.Errorf("pipeline max_results must be positive")
	}
	if c.Pipeline.CycleKey != "" && !cycleKeyPattern.MatchString(c.Pipeline.CycleKey) {
		return fmt.Errorf("invalid pipeline cycle_key: %q (want YYYY-MM)", c.Pipeline.CycleKey)
	}

	if c.Dictionaries.KeywordsPath == "" {
		return fmt.Errorf("dictionaries keywords_path is required")
	}
	if c.Dictionaries.ImpactFactorsPath == "" {
		return fmt.Errorf("dictionaries impact_factors_path is required")
	}

	switch strings.ToLower(c.Summarizer.Provider) {
	case "gemini", "anthropic":
		if c.Summarizer.APIKey == "" {
			return fmt.Errorf("summarizer provider %q requires CITEWATCH_SUMMARIZER_API_KEY to be set", c.Summarizer.Provider)
		}
	default:
		return fmt.Errorf("invalid summarizer provider: %q (want gemini or anthropic)", c.Summarizer.Provider)
	}

	switch strings.ToLower(c.Notifier.Sink) {
	case "log":
	case "email":
		if c.Notifier.Email.Host == "" {
			return fmt.Errorf("notifier email host is required")
		}
		if c.Notifier.Email.From == "" {
			return fmt.Errorf("notifier email from address is required")
		}
		if len(c.Notifier.Email.To) == 0 {
			return fmt.Errorf("notifier email needs at least one recipient")
		}
	case "kafka":
		if len(c.Notifier.Kafka.Brokers) == 0 {
			return fmt.Errorf("notifier kafka needs at least one broker")
		}
		if c.Notifier.Kafka.Topic == "" {
			return fmt.Errorf("notifier kafka topic is required")
		}
	default:
		return fmt.Errorf("invalid notifier sink: %q (want log, email, or kafka)", c.Notifier.Sink)
	}

	return nil
}
