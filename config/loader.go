package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/ebogdum/cleanlog/core/log/record"
)

// EnvPrefix prefixes environment variables read by the loader. A double
// underscore separates nesting levels, e.g. CLEANLOG_LOG__LEVEL=debug.
const EnvPrefix = "CLEANLOG_"

// LoadConfig loads configuration from multiple sources with strict priority:
// 1. Environment variables (highest priority)
// 2. Config file (config.yaml, config.yml or config.json)
// 3. Defaults (lowest priority)
func LoadConfig() (AppConfig, error) {
	return LoadConfigFromFile("")
}

// LoadConfigFromFile loads configuration from multiple sources with a specific config file:
// 1. Environment variables (highest priority)
// 2. Specified config file or default config files
// 3. Defaults (lowest priority)
func LoadConfigFromFile(configFilePath string) (AppConfig, error) {
	k := koanf.New(".")

	// Load default configuration first
	defaultCfg := DefaultAppConfig()
	if err := k.Load(structs.Provider(defaultCfg, "koanf"), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load default config: %w", err)
	}

	// Load from config file
	if configFilePath != "" {
		if _, err := os.Stat(configFilePath); err != nil {
			return AppConfig{}, fmt.Errorf("specified config file %s not found: %w", configFilePath, err)
		}
		if err := loadFile(k, configFilePath); err != nil {
			return AppConfig{}, err
		}
	} else {
		for _, configFile := range []string{"config.yaml", "config.yml", "config.json"} {
			if _, err := os.Stat(configFile); err == nil {
				if err := loadFile(k, configFile); err != nil {
					return AppConfig{}, err
				}
				break
			}
		}
	}

	// Load environment variables with CLEANLOG_ prefix
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal into config struct
	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	parser, err := parserFor(path)
	if err != nil {
		return err
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return yaml.Parser(), nil
	case strings.HasSuffix(path, ".json"):
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", path)
	}
}

// envKey maps CLEANLOG_LOG__ERROR_OUTPUT to log.error_output.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// validateConfig validates that required configuration fields are set
func validateConfig(cfg *AppConfig) error {
	if _, err := record.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	if len(cfg.Log.Outputs) == 0 {
		return fmt.Errorf("log.outputs must contain at least one output")
	}
	for _, out := range cfg.Log.Outputs {
		if strings.TrimSpace(out) == "" {
			return fmt.Errorf("log.outputs must not contain empty entries")
		}
	}

	if cfg.Log.ErrorRateLimit < 0 {
		return fmt.Errorf("log.error_rate_limit must not be negative")
	}

	for i, o := range cfg.Log.Overrides {
		if o.Prefix == "" {
			return fmt.Errorf("log.overrides[%d].prefix is required", i)
		}
		if _, err := record.ParseLevel(o.Level); err != nil {
			return fmt.Errorf("log.overrides[%d].level: %w", i, err)
		}
	}

	if _, err := record.ParseRedactionMode(cfg.Log.Redaction.Mode); err != nil {
		return fmt.Errorf("log.redaction.mode: %w", err)
	}

	if cfg.Locks.DefaultConcurrency <= 0 {
		return fmt.Errorf("locks.default_concurrency must be positive")
	}

	return nil
}

// Validate reports whether cfg is usable.
func (cfg AppConfig) Validate() error {
	return validateConfig(&cfg)
}
