package config

// DefaultAppConfig returns an AppConfig struct with sensible default values
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Log: LogConfig{
			Level:          "info",
			Outputs:        []string{"stdout"},
			ErrorOutput:    "", // Drops are only counted unless an error output is set
			ErrorRateLimit: 1,
			Environment:    "Production",
			Redaction: RedactionConfig{
				Mode: "production", // Hash sensitive values by default
				Keys: []string{"password", "token", "secret", "authorization", "apiKey"},
			},
		},
		Locks: LockConfig{
			DefaultConcurrency: 1,
		},
	}
}
