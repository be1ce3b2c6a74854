package logging

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level     zapcore.Level   `koanf:"level"`
	Format    string          `koanf:"format"`
	Caller    CallerConfig    `koanf:"caller"`
	Redaction RedactionConfig `koanf:"redaction"`
}

// CallerConfig controls caller information in logs.
type CallerConfig struct {
	Enabled bool `koanf:"enabled"`
	Skip    int  `koanf:"skip"`
}

// RedactionConfig controls sensitive data redaction. Home-directory
// rewriting keeps the user's login name out of every emitted path.
type RedactionConfig struct {
	Enabled   bool     `koanf:"enabled"`
	Fields    []string `koanf:"fields"`
	HomePaths bool     `koanf:"home_paths"`
}

// NewDefaultConfig returns config with production-ready defaults. Logs go
// to stderr so they never interleave with protocol output on stdout.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Caller: CallerConfig{
			Enabled: false,
			Skip:    1,
		},
		Redaction: RedactionConfig{
			Enabled:   true,
			Fields:    []string{"password", "secret", "token", "api_key", "credential"},
			HomePaths: true,
		},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if c.Caller.Enabled && c.Caller.Skip < 0 {
		return fmt.Errorf("caller skip must be >= 0, got %d", c.Caller.Skip)
	}
	return nil
}
