// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends understood by StorageConfig.Backend.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Email     EmailConfig     `mapstructure:"email"`
	Phone     PhoneConfig     `mapstructure:"phone"`
	DNS       DNSConfig       `mapstructure:"dns"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// BatchConfig is shared by the email and phone pipelines.
type BatchConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	ItemTimeout  time.Duration `mapstructure:"item_timeout"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Workers      int           `mapstructure:"workers"`
}

// EmailConfig tunes email jobs.
type EmailConfig struct {
	BatchConfig `mapstructure:",squash"`
}

// PhoneConfig tunes phone jobs.
type PhoneConfig struct {
	BatchConfig `mapstructure:",squash"`
	// DefaultRegion is tried first when a number has no leading '+'.
	DefaultRegion string `mapstructure:"default_region"`
}

// DNSConfig bounds resolver queries.
type DNSConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// SMTPConfig drives the SMTP probe.
type SMTPConfig struct {
	Port           int           `mapstructure:"port"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	DialogTimeout  time.Duration `mapstructure:"dialog_timeout"`
	HeloDomain     string        `mapstructure:"helo_domain"`
	MailFrom       string        `mapstructure:"mail_from"`
	HostRPS        float64       `mapstructure:"host_rps"`
	HostBurst      int           `mapstructure:"host_burst"`
}

// JobsConfig bounds job-level concurrency and admission.
type JobsConfig struct {
	// MaxConcurrent is the governor capacity.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// MaxActive is the admission queue depth.
	MaxActive int `mapstructure:"max_active"`
	// Runners is the number of queue consumers. The server starts at least
	// MaxConcurrent of them.
	Runners    int           `mapstructure:"runners"`
	BatchPause time.Duration `mapstructure:"batch_pause"`
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

// ProgressConfig controls the tracker and the event hub.
type ProgressConfig struct {
	Retention     time.Duration       `mapstructure:"retention"`
	BufferSize    int                 `mapstructure:"buffer_size"`
	Batch         ProgressBatchConfig `mapstructure:"batch"`
	SinkTimeoutMs int                 `mapstructure:"sink_timeout_ms"`
	LogEnabled    bool                `mapstructure:"log_enabled"`
}

// ProgressBatchConfig controls hub batching.
type ProgressBatchConfig struct {
	MaxEvents int `mapstructure:"max_events"`
	MaxWaitMs int `mapstructure:"max_wait_ms"`
}

// RateLimitConfig throttles job submission per client.
type RateLimitConfig struct {
	SubmitPerMinute int `mapstructure:"submit_per_minute"`
}

// StorageConfig selects where verdict batches are archived.
type StorageConfig struct {
	Backend string             `mapstructure:"backend"`
	Bucket  string             `mapstructure:"bucket"`
	Prefix  string             `mapstructure:"prefix"`
	Local   LocalStorageConfig `mapstructure:"local"`
}

// LocalStorageConfig configures the filesystem backend.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// DatabaseConfig controls the Postgres job store. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// PubSubConfig holds metadata for completion notifications. An empty project
// keeps notifications in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VALIDATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default returns the configuration produced by an empty environment.
func Default() Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")

	v.SetDefault("email.batch_size", 50)
	v.SetDefault("email.item_timeout", 10*time.Second)
	v.SetDefault("email.batch_timeout", 15*time.Second)
	v.SetDefault("email.workers", 100)
	v.SetDefault("phone.batch_size", 100)
	v.SetDefault("phone.item_timeout", 3*time.Second)
	v.SetDefault("phone.batch_timeout", 8*time.Second)
	v.SetDefault("phone.workers", 150)
	v.SetDefault("phone.default_region", "")

	v.SetDefault("dns.timeout", 800*time.Millisecond)
	v.SetDefault("smtp.port", 25)
	v.SetDefault("smtp.connect_timeout", time.Second)
	v.SetDefault("smtp.dialog_timeout", 2*time.Second)
	v.SetDefault("smtp.helo_domain", "validator.com")
	v.SetDefault("smtp.mail_from", "test@validator.com")
	v.SetDefault("smtp.host_rps", 5.0)
	v.SetDefault("smtp.host_burst", 5)

	v.SetDefault("jobs.max_concurrent", 200)
	v.SetDefault("jobs.max_active", 500)
	v.SetDefault("jobs.runners", 16)
	v.SetDefault("jobs.batch_pause", 25*time.Millisecond)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.max_entries", 100000)

	v.SetDefault("progress.retention", time.Hour)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.batch.max_events", 256)
	v.SetDefault("progress.batch.max_wait_ms", 250)
	v.SetDefault("progress.sink_timeout_ms", 5000)
	v.SetDefault("progress.log_enabled", true)

	v.SetDefault("ratelimit.submit_per_minute", 120)

	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "results")
	v.SetDefault("storage.local.base_dir", "")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("database.migrate", true)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := c.Email.validate("email"); err != nil {
		return err
	}
	if err := c.Phone.validate("phone"); err != nil {
		return err
	}
	if c.DNS.Timeout <= 0 {
		return fmt.Errorf("dns.timeout must be > 0")
	}
	if c.SMTP.Port <= 0 || c.SMTP.ConnectTimeout <= 0 || c.SMTP.DialogTimeout <= 0 {
		return fmt.Errorf("smtp.port, smtp.connect_timeout and smtp.dialog_timeout must be > 0")
	}
	if c.SMTP.HostRPS <= 0 || c.SMTP.HostBurst <= 0 {
		return fmt.Errorf("smtp.host_rps and smtp.host_burst must be > 0")
	}
	if c.Jobs.MaxConcurrent <= 0 {
		return fmt.Errorf("jobs.max_concurrent must be > 0")
	}
	if c.Jobs.MaxActive <= 0 || c.Jobs.Runners <= 0 {
		return fmt.Errorf("jobs.max_active and jobs.runners must be > 0")
	}
	if c.Jobs.BatchPause < 0 {
		return fmt.Errorf("jobs.batch_pause must be >= 0")
	}
	if c.Cache.Enabled && (c.Cache.TTL <= 0 || c.Cache.MaxEntries <= 0) {
		return fmt.Errorf("cache.ttl and cache.max_entries must be > 0 when cache is enabled")
	}
	if c.RateLimit.SubmitPerMinute <= 0 {
		return fmt.Errorf("ratelimit.submit_per_minute must be > 0")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	return nil
}

func (b BatchConfig) validate(prefix string) error {
	if b.BatchSize <= 0 {
		return fmt.Errorf("%s.batch_size must be > 0", prefix)
	}
	if b.Workers <= 0 {
		return fmt.Errorf("%s.workers must be > 0", prefix)
	}
	if b.ItemTimeout <= 0 || b.BatchTimeout <= 0 {
		return fmt.Errorf("%s.item_timeout and %s.batch_timeout must be > 0", prefix, prefix)
	}
	if b.BatchTimeout < b.ItemTimeout {
		return fmt.Errorf("%s.batch_timeout (%s) must be >= %s.item_timeout (%s)",
			prefix, b.BatchTimeout, prefix, b.ItemTimeout)
	}
	return nil
}

// SinkTimeout converts the configured sink timeout into a duration.
func (p ProgressConfig) SinkTimeout() time.Duration {
	return time.Duration(p.SinkTimeoutMs) * time.Millisecond
}

// MaxWait converts the configured batch wait into a duration.
func (p ProgressConfig) MaxWait() time.Duration {
	return time.Duration(p.Batch.MaxWaitMs) * time.Millisecond
}
