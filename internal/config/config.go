package config

import (
	"encoding/json"
	"time"
)

// Store kinds
const (
	StoreS3    = "s3"
	StoreLocal = "local"
)

// Config represents the toolserver configuration
type Config struct {
	Server  ServerConfig  `json:"server" mapstructure:"server"`
	Store   StoreConfig   `json:"store" mapstructure:"store"`
	Sync    SyncConfig    `json:"sync" mapstructure:"sync"`
	Auth    AuthConfig    `json:"auth" mapstructure:"auth"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`
	Audit   AuditConfig   `json:"audit" mapstructure:"audit"`
	Scripts ScriptsConfig `json:"scripts" mapstructure:"scripts"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Host               string        `json:"host" mapstructure:"host"`
	Port               int           `json:"port" mapstructure:"port"`
	// RequestTimeout bounds a tool request; 0 disables it. A script still
	// running at the deadline is abandoned, not stopped, and its tool stays
	// busy until the script returns.
	RequestTimeout     time.Duration `json:"request_timeout" mapstructure:"request_timeout"`
	RateLimitPerMinute int           `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	ShutdownTimeout    time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// StoreConfig selects and configures the object store scripts are pulled from
type StoreConfig struct {
	Kind      string `json:"kind" mapstructure:"kind"` // s3, local
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	Prefix    string `json:"prefix" mapstructure:"prefix"`
	Extension string `json:"extension" mapstructure:"extension"`
	PageSize  int    `json:"page_size" mapstructure:"page_size"`

	// S3
	Region          string `json:"region" mapstructure:"region"`
	Endpoint        string `json:"endpoint" mapstructure:"endpoint"`
	UsePathStyle    bool   `json:"use_path_style" mapstructure:"use_path_style"`
	AccessKeyID     string `json:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" mapstructure:"secret_access_key"`

	// Local
	LocalDir string `json:"local_dir" mapstructure:"local_dir"`
	Watch    bool   `json:"watch" mapstructure:"watch"`
}

// SyncConfig holds the periodic synchronization settings
type SyncConfig struct {
	Enabled          bool          `json:"enabled" mapstructure:"enabled"`
	Interval         time.Duration `json:"interval" mapstructure:"interval"`
	Schedule         string        `json:"schedule" mapstructure:"schedule"` // cron expression, overrides interval
	RunOnStart       bool          `json:"run_on_start" mapstructure:"run_on_start"`
	FetchConcurrency int           `json:"fetch_concurrency" mapstructure:"fetch_concurrency"`
}

// AuthConfig holds bearer token validation settings
type AuthConfig struct {
	SecretHex string `json:"secret_hex" mapstructure:"secret_hex"`
	Required  bool   `json:"required" mapstructure:"required"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// AuditConfig holds the audit log location
type AuditConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// ScriptsConfig controls the scripts shipped with the binary
type ScriptsConfig struct {
	Bundled bool `json:"bundled" mapstructure:"bundled"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			RateLimitPerMinute: 600,
			ShutdownTimeout:    10 * time.Second,
		},
		Store: StoreConfig{
			Kind:      StoreS3,
			Prefix:    "tools/",
			Extension: ".go",
			Region:    "us-east-1",
		},
		Sync: SyncConfig{
			Enabled:          true,
			Interval:         time.Hour,
			RunOnStart:       true,
			FetchConcurrency: 4,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			ServiceName: "toolserver",
			SampleRatio: 1.0,
		},
		Scripts: ScriptsConfig{
			Bundled: true,
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Auth.SecretHex != "" {
		masked.Auth.SecretHex = "***"
	}
	if masked.Store.SecretAccessKey != "" {
		masked.Store.SecretAccessKey = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	errs := NewValidator().ValidateConfig(c)
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}
