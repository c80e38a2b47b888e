package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/obsidianstack/sentinel/agent/internal/schedule"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultScrapeTimeout   = 10 * time.Second
	DefaultDispatchWorkers = 4
	DefaultDispatchQueue   = 256
	DefaultDispatchTimeout = 30 * time.Second
	DefaultStoreBackend    = "memory"
	DefaultKeyPrefix       = "sentinel:incident:"
	DefaultListen          = ":8080"
	DefaultAPIKeyHeader    = "x-api-key"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultLogMaxSizeMB    = 100
	DefaultLogMaxBackups   = 3
	DefaultLogMaxAgeDays   = 28
	DefaultElasticIndex    = "sentinel-alerts"
	DefaultSMTPPort        = 587
)

// Config is the top-level configuration of the agent.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	Alerting AlertingConfig `yaml:"alerting"`
	API      APIConfig      `yaml:"api"`
}

// AgentConfig holds process-wide settings.
type AgentConfig struct {
	// Application is the name checks are matched against. Only checks whose
	// application equals it are evaluated.
	Application string `yaml:"application"`

	Log LogConfig `yaml:"log"`

	// ScrapeTimeout bounds one scrape of one source.
	ScrapeTimeout time.Duration `yaml:"scrape_timeout"`

	// Sources are the metric endpoints merged into every tick's snapshot.
	Sources []Source `yaml:"sources"`
}

// LogConfig configures the process logger. An empty File logs to stdout.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Source describes one Prometheus text exposition endpoint.
type Source struct {
	// ID is a unique, human-readable identifier for this source.
	ID string `yaml:"id"`

	// Endpoint is the full URL of the metrics endpoint.
	Endpoint string `yaml:"endpoint"`

	// Prefix is prepended to every series name scraped from this source.
	Prefix string `yaml:"prefix"`

	// Auth configures how the agent authenticates to this source.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for a source.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the HTTP header the API key is sent in (Mode == "apikey").
	Header string `yaml:"header"`
	// KeyEnv names the environment variable holding the API key.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username is the literal basic-auth username.
	Username string `yaml:"username"`
	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string { return env(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string { return env(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return env(a.PasswordEnv) }

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`

	// CheckCert exposes the days left on the endpoint's certificate as a
	// gauge so checks can alert on expiry.
	CheckCert bool `yaml:"check_cert"`
}

// AlertingConfig holds everything the alerting engine consumes.
type AlertingConfig struct {
	// Schedule is a Go duration ("60s") or a cron expression.
	Schedule string `yaml:"schedule"`

	// Muted suppresses every notification, including the log sink.
	Muted bool `yaml:"muted"`

	Dispatch      DispatchConfig       `yaml:"dispatch"`
	Store         StoreConfig          `yaml:"store"`
	Checks        []CheckConfig        `yaml:"checks"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Alerters      AlertersConfig       `yaml:"alerters"`
}

// DispatchConfig sizes the delivery worker pool.
type DispatchConfig struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// StoreConfig selects the incident store backend.
type StoreConfig struct {
	// Backend is one of: memory | postgres | redis.
	Backend string `yaml:"backend"`

	// DSNEnv names the environment variable holding the Postgres DSN.
	DSNEnv string `yaml:"dsn_env"`

	RedisAddr        string `yaml:"redis_addr"`
	RedisPasswordEnv string `yaml:"redis_password_env"`
	KeyPrefix        string `yaml:"key_prefix"`
}

// DSN returns the Postgres connection string resolved from the environment.
func (s StoreConfig) DSN() string { return env(s.DSNEnv) }

// RedisPassword returns the Redis password resolved from the environment.
func (s StoreConfig) RedisPassword() string { return env(s.RedisPasswordEnv) }

// CheckConfig is one threshold check as written in the file.
type CheckConfig struct {
	Name string `yaml:"name"`

	// Application defaults to agent.application.
	Application string `yaml:"application"`

	// Target is a regular expression that must match a series name in full.
	Target   string `yaml:"target"`
	Category string `yaml:"category"`
	Field    string `yaml:"field"`

	// Active defaults to true.
	Active *bool `yaml:"active"`

	AlertAfterFailures int `yaml:"alert_after_failures"`

	Warn     []ThresholdConfig `yaml:"warn"`
	Error    []ThresholdConfig `yaml:"error"`
	Critical []ThresholdConfig `yaml:"critical"`
}

// ThresholdConfig is one comparison, e.g. {operator: ">", value: 200}.
type ThresholdConfig struct {
	Operator string  `yaml:"operator"`
	Value    float64 `yaml:"value"`
}

// SubscriptionConfig routes incidents to one alerter target.
type SubscriptionConfig struct {
	ID      string   `yaml:"id"`
	Alerter string   `yaml:"alerter"`
	Target  string   `yaml:"target"`
	On      OnConfig `yaml:"on"`
}

// OnConfig selects the statuses a subscription is notified for.
type OnConfig struct {
	BackToOK bool `yaml:"back_to_ok"`
	Warn     bool `yaml:"warn"`
	Error    bool `yaml:"error"`
	Critical bool `yaml:"critical"`
}

// AlertersConfig holds the per-channel settings. Webhook flavours need no
// settings; their URL is the subscription target.
type AlertersConfig struct {
	Email         EmailConfig         `yaml:"email"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Pushbullet    PushbulletConfig    `yaml:"pushbullet"`
}

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	From        string `yaml:"from"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Password returns the SMTP password resolved from the environment.
func (e EmailConfig) Password() string { return env(e.PasswordEnv) }

// ElasticsearchConfig holds the search index endpoint.
type ElasticsearchConfig struct {
	URL       string `yaml:"url"`
	Index     string `yaml:"index"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// APIKey returns the Elasticsearch API key resolved from the environment.
func (e ElasticsearchConfig) APIKey() string { return env(e.APIKeyEnv) }

// PushbulletConfig holds the Pushbullet access token reference.
type PushbulletConfig struct {
	TokenEnv string `yaml:"token_env"`
}

// Token returns the Pushbullet token resolved from the environment.
func (p PushbulletConfig) Token() string { return env(p.TokenEnv) }

// APIConfig configures the admin HTTP API and the incident stream.
type APIConfig struct {
	// Listen is the HTTP listen address. Empty disables the API.
	Listen string        `yaml:"listen"`
	Auth   APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig configures REST API authentication.
type APIAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable holding the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header carries the key; defaults to x-api-key.
	Header string `yaml:"header"`
}

// Key returns the API key resolved from the environment.
func (a APIAuthConfig) Key() string { return env(a.KeyEnv) }

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			ScrapeTimeout: DefaultScrapeTimeout,
			Log: LogConfig{
				Level:      DefaultLogLevel,
				Format:     DefaultLogFormat,
				MaxSizeMB:  DefaultLogMaxSizeMB,
				MaxBackups: DefaultLogMaxBackups,
				MaxAgeDays: DefaultLogMaxAgeDays,
			},
		},
		Alerting: AlertingConfig{
			Schedule: schedule.DefaultInterval.String(),
			Dispatch: DispatchConfig{
				Workers:   DefaultDispatchWorkers,
				QueueSize: DefaultDispatchQueue,
				Timeout:   DefaultDispatchTimeout,
			},
			Store: StoreConfig{
				Backend:   DefaultStoreBackend,
				KeyPrefix: DefaultKeyPrefix,
			},
			Alerters: AlertersConfig{
				Email:         EmailConfig{Port: DefaultSMTPPort},
				Elasticsearch: ElasticsearchConfig{Index: DefaultElasticIndex},
			},
		},
		API: APIConfig{
			Listen: DefaultListen,
			Auth:   APIAuthConfig{Mode: "none", Header: DefaultAPIKeyHeader},
		},
	}
}

// validate checks required fields and structural constraints. Individual
// checks and subscriptions are validated by Runtime, where a bad entry is
// skipped instead of rejecting the whole file.
func validate(cfg *Config) error {
	if cfg.Agent.Application == "" {
		return fmt.Errorf("agent.application is required")
	}
	if cfg.Agent.ScrapeTimeout <= 0 {
		return fmt.Errorf("agent.scrape_timeout must be positive")
	}
	switch cfg.Agent.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("agent.log.level: unknown level %q", cfg.Agent.Log.Level)
	}
	switch cfg.Agent.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("agent.log.format: unknown format %q", cfg.Agent.Log.Format)
	}

	seen := make(map[string]bool, len(cfg.Agent.Sources))
	for i, src := range cfg.Agent.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true
		if src.Endpoint == "" {
			return fmt.Errorf("sources[%d] %q: endpoint is required", i, src.ID)
		}
		switch src.Auth.Mode {
		case "mtls", "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("sources[%d] %q: unknown auth mode %q", i, src.ID, src.Auth.Mode)
		}
	}

	if _, err := schedule.Parse(cfg.Alerting.Schedule); err != nil {
		return fmt.Errorf("alerting.schedule: %w", err)
	}
	if cfg.Alerting.Dispatch.Workers <= 0 {
		return fmt.Errorf("alerting.dispatch.workers must be positive")
	}
	if cfg.Alerting.Dispatch.QueueSize <= 0 {
		return fmt.Errorf("alerting.dispatch.queue_size must be positive")
	}
	if cfg.Alerting.Dispatch.Timeout <= 0 {
		return fmt.Errorf("alerting.dispatch.timeout must be positive")
	}
	switch cfg.Alerting.Store.Backend {
	case "memory":
	case "postgres":
		if cfg.Alerting.Store.DSNEnv == "" {
			return fmt.Errorf("alerting.store.dsn_env is required for postgres")
		}
	case "redis":
		if cfg.Alerting.Store.RedisAddr == "" {
			return fmt.Errorf("alerting.store.redis_addr is required for redis")
		}
	default:
		return fmt.Errorf("alerting.store.backend: unknown backend %q", cfg.Alerting.Store.Backend)
	}

	switch cfg.API.Auth.Mode {
	case "none", "":
	case "apikey":
		if cfg.API.Auth.KeyEnv == "" {
			return fmt.Errorf("api.auth.key_env is required for apikey mode")
		}
	default:
		return fmt.Errorf("api.auth: unknown mode %q", cfg.API.Auth.Mode)
	}
	return nil
}
