// Package config provides configuration management for the keyword research service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/helixir/keyword-hunter/internal/domain"
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

// envPrefix prefixes every environment variable read by Load.
const envPrefix = "KEYHUNTER"

// Config holds all configuration for the keyword research service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Keyso contains the phrase-analytics API client settings.
	Keyso KeysoConfig `mapstructure:"keyso"`
	// Research contains the default research parameters for runs.
	Research ResearchConfig `mapstructure:"research"`
	// Cache contains the Redis suggestion cache settings.
	Cache CacheConfig `mapstructure:"cache"`
	// Kafka contains run request and lifecycle event topic settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Temporal contains Temporal workflow orchestration settings.
	Temporal TemporalConfig `mapstructure:"temporal"`
	// APIRateLimit throttles inbound REST requests per client.
	APIRateLimit APIRateLimitConfig `mapstructure:"api_rate_limit"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
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
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 20).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 2).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console, pretty).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, discard).
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
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
}

// KeysoConfig holds the phrase-analytics API client settings.
type KeysoConfig struct {
	// BaseURL is the API root.
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// Token is the API credential (loaded from KEYHUNTER_KEYSO_API_TOKEN).
	Token string `mapstructure:"-"`
	// TokenHeader is the header the token travels in.
	TokenHeader string `mapstructure:"token_header" validate:"required"`
	// Timeout is the per-attempt HTTP timeout.
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// MaxRequests and Window bound the client-side sliding-window quota.
	MaxRequests int           `mapstructure:"max_requests" validate:"gte=1"`
	Window      time.Duration `mapstructure:"window" validate:"gt=0"`
	// MaxAttempts is the physical attempt budget per logical request.
	MaxAttempts int `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	// AcceptedPause is the wait after a 202 response.
	AcceptedPause time.Duration `mapstructure:"accepted_pause" validate:"gte=0"`
	// QuotaWait is the wait after a 429 without Retry-After.
	QuotaWait time.Duration `mapstructure:"quota_wait" validate:"gte=0"`
	// PollInterval is the pause between expansion job state polls.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	// MaxWait is the ceiling on waiting for an expansion job.
	MaxWait time.Duration `mapstructure:"max_wait" validate:"gt=0"`
	// PageSize is the number of results requested per page.
	PageSize int `mapstructure:"page_size" validate:"gte=1,lte=1000"`
	// MaxPages caps pagination. Zero means no limit.
	MaxPages int `mapstructure:"max_pages" validate:"gte=0"`
}

// ResearchConfig holds the default research parameters.
type ResearchConfig struct {
	// Niche is the 1-3 sentence niche description seeds are generated from.
	Niche string `mapstructure:"niche"`
	// Base is the market dataset; "multi" covers every catalogued region.
	Base string `mapstructure:"base" validate:"required"`
	// RegionID is the suggestion region for single-base runs.
	RegionID int `mapstructure:"region_id" validate:"gte=0"`
	// SeedTargets are caller-chosen seeds placed ahead of generated ones.
	SeedTargets []string `mapstructure:"seed_targets"`
	// SeedCount is the number of seeds generated.
	SeedCount int `mapstructure:"seed_count" validate:"gte=1"`
	// WSKThreshold is the maximum exact frequency kept.
	WSKThreshold int `mapstructure:"wsk_threshold" validate:"gte=0"`
	// WSThreshold is the maximum broad frequency kept; zero disables it.
	WSThreshold int `mapstructure:"ws_threshold" validate:"gte=0"`
	// MinNumWords is the minimum number of words per phrase.
	MinNumWords int `mapstructure:"min_num_words"`
	// StopWords exclude any phrase that contains them.
	StopWords []string `mapstructure:"stop_words"`
	// ReturnTop is how many candidates the report lists.
	ReturnTop int `mapstructure:"return_top" validate:"gte=1"`
	// MaxResults caps the final candidate set.
	MaxResults int `mapstructure:"max_results" validate:"gte=1"`
	// AdFilters is appended verbatim to the service-side filter.
	AdFilters string `mapstructure:"ad_filters"`
	// SafeFilters excludes adult content.
	SafeFilters bool `mapstructure:"safe_filters"`
	// Offline skips the API and emits the seeds as candidates.
	Offline bool `mapstructure:"offline"`
	// SampleSize is how many final candidates are re-checked.
	SampleSize int `mapstructure:"sample_size" validate:"gte=0"`
	// OutputDir is where export files are written.
	OutputDir string `mapstructure:"output_dir"`
	// Format selects csv, json or both.
	Format string `mapstructure:"format" validate:"oneof=csv json both"`
}

// CacheConfig holds the Redis suggestion cache settings.
type CacheConfig struct {
	// Enabled turns the cache on.
	Enabled bool `mapstructure:"enabled"`
	// Addr is the Redis host:port.
	Addr string `mapstructure:"addr" validate:"required_if=Enabled true"`
	// Password is loaded from KEYHUNTER_CACHE_PASSWORD.
	Password string `mapstructure:"-"`
	// DB is the Redis logical database.
	DB int `mapstructure:"db" validate:"gte=0"`
	// TTL is how long suggestions are kept.
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0"`
	// KeyPrefix namespaces cache keys.
	KeyPrefix string `mapstructure:"key_prefix"`
}

// KafkaConfig holds run request and lifecycle event settings.
type KafkaConfig struct {
	// Enabled controls whether Kafka is used for events and run dispatch.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers" validate:"required_if=Enabled true"`
	// EventsTopic receives run lifecycle events.
	EventsTopic string `mapstructure:"events_topic" validate:"required_if=Enabled true"`
	// RequestsTopic carries run.requested events consumed by the worker.
	RequestsTopic string `mapstructure:"requests_topic" validate:"required_if=Enabled true"`
	// GroupID is the worker consumer group.
	GroupID string `mapstructure:"group_id"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// TemporalConfig holds Temporal workflow configuration.
type TemporalConfig struct {
	// Enabled runs keyword runs as Temporal workflows.
	Enabled bool `mapstructure:"enabled"`
	// HostPort is the Temporal server address.
	HostPort string `mapstructure:"host_port" validate:"required_if=Enabled true"`
	// Namespace is the Temporal namespace.
	Namespace string `mapstructure:"namespace" validate:"required_if=Enabled true"`
	// TaskQueue is the task queue name for keyword run workflows.
	TaskQueue string `mapstructure:"task_queue" validate:"required_if=Enabled true"`
}

// APIRateLimitConfig throttles inbound REST requests per client.
type APIRateLimitConfig struct {
	// Enabled turns throttling on.
	Enabled bool `mapstructure:"enabled"`
	// RequestsPerSecond is the sustained rate per client.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	// Burst is the bucket size per client.
	Burst int `mapstructure:"burst" validate:"gte=0"`
	// IdleTTL evicts limiters for clients not seen for this long.
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
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

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration like Load, reading path instead of searching
// the default locations when path is not empty.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/keyword-hunter")
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	cfg.Keyso.Token = os.Getenv(envPrefix + "_KEYSO_API_TOKEN")
	cfg.Cache.Password = os.Getenv(envPrefix + "_CACHE_PASSWORD")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "keyhunter")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "keyword_hunter")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
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
	v.SetDefault("metrics.namespace", "keyhunter")

	// Keyso defaults
	v.SetDefault("keyso.base_url", "https://api.keys.so")
	v.SetDefault("keyso.token_header", "X-Keyso-TOKEN")
	v.SetDefault("keyso.timeout", "30s")
	v.SetDefault("keyso.max_requests", 10)
	v.SetDefault("keyso.window", "10s")
	v.SetDefault("keyso.max_attempts", 3)
	v.SetDefault("keyso.accepted_pause", "2s")
	v.SetDefault("keyso.quota_wait", "15s")
	v.SetDefault("keyso.poll_interval", "3s")
	v.SetDefault("keyso.max_wait", "60s")
	v.SetDefault("keyso.page_size", 100)
	v.SetDefault("keyso.max_pages", 0)

	// Research defaults
	v.SetDefault("research.niche", "")
	v.SetDefault("research.base", "msk")
	v.SetDefault("research.region_id", 213)
	v.SetDefault("research.seed_targets", []string{})
	v.SetDefault("research.seed_count", 100)
	v.SetDefault("research.wsk_threshold", 80)
	v.SetDefault("research.ws_threshold", 1000)
	v.SetDefault("research.min_num_words", 3)
	v.SetDefault("research.stop_words", []string{"бесплатно", "видео", "скачать", "реферат", "вакансии"})
	v.SetDefault("research.return_top", 50)
	v.SetDefault("research.max_results", 1000)
	v.SetDefault("research.ad_filters", "")
	v.SetDefault("research.safe_filters", true)
	v.SetDefault("research.offline", false)
	v.SetDefault("research.sample_size", 5)
	v.SetDefault("research.output_dir", ".")
	v.SetDefault("research.format", "both")

	// Cache defaults
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", "86400s")
	v.SetDefault("cache.key_prefix", "keyhunter")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.events_topic", "events.keyword_hunter.runs")
	v.SetDefault("kafka.requests_topic", "requests.keyword_hunter.runs")
	v.SetDefault("kafka.group_id", "keyword-hunter-worker")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")

	// Temporal defaults
	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "keyword-hunter")
	v.SetDefault("temporal.task_queue", "keyword-hunter-runs")

	// Inbound API throttling defaults
	v.SetDefault("api_rate_limit.enabled", true)
	v.SetDefault("api_rate_limit.requests_per_second", 5.0)
	v.SetDefault("api_rate_limit.burst", 10)
	v.SetDefault("api_rate_limit.idle_ttl", "15m")
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	// Validate database config
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

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Struct tag rules for the research, client, cache and Kafka sections.
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: failed %q rule", fe.Namespace(), fe.Tag())
		}
		return err
	}

	return nil
}

// Validate applies the per-run rules checked before any network activity:
// a niche is always required, the token is required unless the run is
// offline, and phrases must have at least one word.
func (r *ResearchConfig) Validate(token string) error {
	if !r.Offline && strings.TrimSpace(token) == "" {
		return domain.NewConfigError("api_token", "KEYHUNTER_KEYSO_API_TOKEN is required unless running offline")
	}
	if strings.TrimSpace(r.Niche) == "" {
		return domain.NewConfigError("niche", "niche is required")
	}
	if r.MinNumWords < 1 {
		return domain.NewConfigError("min_num_words", "min_num_words must be >= 1")
	}
	return nil
}

// RunConfiguration converts the research defaults into a run configuration.
func (r *ResearchConfig) RunConfiguration() domain.RunConfiguration {
	return domain.RunConfiguration{
		WSKThreshold: r.WSKThreshold,
		WSThreshold:  r.WSThreshold,
		MinNumWords:  r.MinNumWords,
		StopWords:    r.StopWords,
		SafeFilters:  r.SafeFilters,
		RawFilter:    r.AdFilters,
		MaxResults:   r.MaxResults,
		SeedCount:    r.SeedCount,
		SeedTargets:  r.SeedTargets,
	}
}

// RunSpec builds the spec for a run over the configured niche and base.
// The region id is independent of the base; a multi base ignores it.
func (r *ResearchConfig) RunSpec() domain.RunSpec {
	spec := domain.RunSpec{
		Niche:         r.Niche,
		Base:          r.Base,
		Region:        r.RegionID,
		Configuration: r.RunConfiguration(),
	}
	if r.Offline {
		spec.Mode = domain.RunModeOffline
	}
	return spec
}
