// Package config provides configuration management for cleanlog.
// It handles loading and validating configuration from YAML or JSON files and environment variables.
package config

// AppConfig represents the complete application configuration
type AppConfig struct {
	Log   LogConfig  `koanf:"log"`
	Locks LockConfig `koanf:"locks"`
}

// LogConfig holds logging pipeline configuration
type LogConfig struct {
	Level          string          `koanf:"level"`            // Minimum level: debug, info, warn, error, fatal
	Outputs        []string        `koanf:"outputs"`          // zap sink URLs: stdout, stderr, file paths, zstd://, redis://
	ErrorOutput    string          `koanf:"error_output"`     // Where dropped-record diagnostics go; empty disables them
	ErrorRateLimit float64         `koanf:"error_rate_limit"` // Diagnostics per second
	Environment    string          `koanf:"environment"`      // Emitted as EnvironmentName
	Overrides      []LevelOverride `koanf:"overrides"`
	Redaction      RedactionConfig `koanf:"redaction"`
}

// LevelOverride sets the minimum level for loggers whose name starts with Prefix
type LevelOverride struct {
	Prefix string `koanf:"prefix"`
	Level  string `koanf:"level"`
}

// RedactionConfig holds sensitive property handling configuration
type RedactionConfig struct {
	Mode string   `koanf:"mode"` // production, development, debug or off
	Keys []string `koanf:"keys"` // Property names matched case-insensitively
}

// LockConfig holds local lock provider configuration
type LockConfig struct {
	DefaultConcurrency int `koanf:"default_concurrency"`
}
