package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TOOLSERVER_SERVER_PORT
const EnvPrefix = "TOOLSERVER"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file, then applies environment overrides.
// A missing file is not an error: defaults and environment are used.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only sees keys viper already knows about
	if err := setDefaults(v, DefaultConfig()); err != nil {
		return nil, err
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set data directory if not specified
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".toolserver")
	}

	if cfg.Audit.Path == "" {
		cfg.Audit.Path = filepath.Join(cfg.DataDir, "audit.log")
	}
	if cfg.Store.Kind == StoreLocal && cfg.Store.LocalDir == "" {
		cfg.Store.LocalDir = filepath.Join(cfg.DataDir, "scripts")
	}

	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("server", cfg.Server)
	v.Set("store", cfg.Store)
	v.Set("sync", cfg.Sync)
	v.Set("auth", cfg.Auth)
	v.Set("logging", cfg.Logging)
	v.Set("tracing", cfg.Tracing)
	v.Set("audit", cfg.Audit)
	v.Set("scripts", cfg.Scripts)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".toolserver", "toolserver.json")
}

// setDefaults registers every leaf of cfg as a viper default, keyed by its
// dotted json path.
func setDefaults(v *viper.Viper, cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to decode defaults: %w", err)
	}

	var walk func(prefix string, node map[string]interface{})
	walk = func(prefix string, node map[string]interface{}) {
		for key, value := range node {
			path := key
			if prefix != "" {
				path = prefix + "." + key
			}
			if child, ok := value.(map[string]interface{}); ok {
				walk(path, child)
				continue
			}
			v.SetDefault(path, value)
		}
	}
	walk("", tree)
	return nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
