package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError collects every problem found in a config
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual problems to errors.Is and errors.As
func (e *ValidationError) Unwrap() []error {
	return e.Errors
}

// ErrInvalidValue marks a single rejected setting
var ErrInvalidValue = errors.New("invalid value")

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%w: server.port must be between 0 and 65535, got %d", ErrInvalidValue, port)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("%w: log level %s (must be one of: %s)", ErrInvalidValue, level, strings.Join(validLevels, ", "))
}

// ValidateStore validates the object store section
func (v *Validator) ValidateStore(store StoreConfig) []error {
	var errs []error

	switch store.Kind {
	case StoreS3:
		if store.Bucket == "" {
			errs = append(errs, fmt.Errorf("%w: store.bucket is required for the s3 store", ErrInvalidValue))
		}
		if (store.AccessKeyID == "") != (store.SecretAccessKey == "") {
			errs = append(errs, fmt.Errorf("%w: store.access_key_id and store.secret_access_key must be set together", ErrInvalidValue))
		}
	case StoreLocal:
		if store.LocalDir == "" {
			errs = append(errs, fmt.Errorf("%w: store.local_dir is required for the local store", ErrInvalidValue))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: store.kind %q (must be one of: s3, local)", ErrInvalidValue, store.Kind))
	}

	if !strings.HasPrefix(store.Extension, ".") || len(store.Extension) < 2 {
		errs = append(errs, fmt.Errorf("%w: store.extension %q must start with a dot", ErrInvalidValue, store.Extension))
	}
	if store.PageSize < 0 {
		errs = append(errs, fmt.Errorf("%w: store.page_size must be >= 0", ErrInvalidValue))
	}
	if store.Watch && store.Kind != StoreLocal {
		errs = append(errs, fmt.Errorf("%w: store.watch only applies to the local store", ErrInvalidValue))
	}
	return errs
}

// ValidateSync validates the synchronization schedule
func (v *Validator) ValidateSync(sync SyncConfig) []error {
	var errs []error
	if !sync.Enabled {
		return nil
	}

	if sync.Schedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(sync.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("%w: sync.schedule: %v", ErrInvalidValue, err))
		}
	} else if sync.Interval <= 0 {
		errs = append(errs, fmt.Errorf("%w: sync.interval must be positive", ErrInvalidValue))
	}
	if sync.FetchConcurrency < 0 {
		errs = append(errs, fmt.Errorf("%w: sync.fetch_concurrency must be >= 0", ErrInvalidValue))
	}
	return errs
}

// ValidateSecret validates a hex encoded HMAC secret
func (v *Validator) ValidateSecret(secretHex string, required bool) error {
	if secretHex == "" {
		if required {
			return fmt.Errorf("%w: auth.secret_hex is required when auth.required is set", ErrInvalidValue)
		}
		return nil
	}
	if _, err := hex.DecodeString(secretHex); err != nil {
		return fmt.Errorf("%w: auth.secret_hex is not valid hex", ErrInvalidValue)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errs = append(errs, err)
	}
	if cfg.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: server.request_timeout must be >= 0", ErrInvalidValue))
	}
	if cfg.Server.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("%w: server.rate_limit_per_minute must be >= 0", ErrInvalidValue))
	}

	errs = append(errs, v.ValidateStore(cfg.Store)...)
	errs = append(errs, v.ValidateSync(cfg.Sync)...)

	if err := v.ValidateSecret(cfg.Auth.SecretHex, cfg.Auth.Required); err != nil {
		errs = append(errs, err)
	}
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("%w: tracing.sample_ratio must be between 0 and 1", ErrInvalidValue))
	}

	return errs
}
