// Package config loads the tool's own settings: the memento store root
// and logging options.
//
// Precedence, highest first: AIDA_* environment variables, the YAML file
// at ~/.config/aida/config.yaml, hardcoded defaults. The config file is
// subject to the same hygiene as every other record: allowed location,
// owner-only permissions, bounded size.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"

	"github.com/oakensoul/aida/internal/logging"
	"github.com/oakensoul/aida/internal/memento"
	"github.com/oakensoul/aida/internal/pathsec"
)

const (
	// envPrefix namespaces the tool's environment variables.
	envPrefix = "AIDA_"

	// maxFileSize bounds the config file like any other parsed document.
	maxFileSize = 1 << 20
)

// ErrInsecurePermissions indicates the config file is readable by other
// users.
var ErrInsecurePermissions = errors.New("insecure config file permissions")

// Config is the tool configuration.
type Config struct {
	// MementoRoot overrides the memento store location. Empty means the
	// conventional ~/.claude/memento; the override applies to every
	// surface of the tool, the protocol commands included.
	MementoRoot string `koanf:"memento_root"`

	// Log controls log level and format.
	Log LogConfig `koanf:"log"`
}

// LogConfig is the user-facing slice of logging configuration. The rest
// (redaction, caller) keeps its defaults.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DefaultPath returns the standard config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "aida", "config.yaml"), nil
}

// Load reads configuration from configPath (or the default location when
// empty), then overrides with AIDA_* environment variables. A missing
// file is not an error; an insecure or oversized one is.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		var err error
		configPath, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	resolved, err := pathsec.Resolve(configPath, pathsec.ResolveOptions{})
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}

	// Open once and validate through the descriptor so the checked file
	// is the parsed file.
	f, err := os.Open(resolved)
	switch {
	case err == nil:
		defer f.Close()
		content, err := readValidated(f)
		if err != nil {
			return nil, fmt.Errorf("config file %s: %w", logging.Path(resolved), err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", logging.Path(resolved), err)
		}
	case os.IsNotExist(err):
		// Defaults and environment only.
	default:
		return nil, fmt.Errorf("opening config file: %w", err)
	}

	// AIDA_MEMENTO_ROOT -> memento_root, AIDA_LOG_LEVEL -> log.level.
	if err := k.Load(env.Provider(envPrefix, ".", transformEnv), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// transformEnv maps AIDA_* variables onto config keys. Known section
// prefixes become dotted paths; everything else stays a flat key.
func transformEnv(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if rest, ok := strings.CutPrefix(key, "log_"); ok {
		return "log." + rest
	}
	return key
}

// readValidated checks permissions and size on the open descriptor before
// reading it.
func readValidated(f *os.File) ([]byte, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	if runtime.GOOS != "windows" {
		if perm := info.Mode().Perm(); perm != 0o600 && perm != 0o400 {
			return nil, fmt.Errorf("%w: %v (want 0600 or 0400)", ErrInsecurePermissions, perm)
		}
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	return io.ReadAll(f)
}

// applyDefaults fills unset fields. MementoRoot stays empty so callers
// can tell an explicit override from the conventional location.
func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate checks field values.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log format must be 'json' or 'console', got %q", c.Log.Format)
	}
	return nil
}

// StoreRoot returns the memento store location: the configured override
// when set, the conventional location under home otherwise.
func (c *Config) StoreRoot(home string) string {
	if c.MementoRoot != "" {
		return c.MementoRoot
	}
	return memento.DefaultRoot(home)
}

// LoggingConfig builds the logging configuration this tool config
// selects, keeping redaction defaults intact.
func (c *Config) LoggingConfig() *logging.Config {
	lc := logging.NewDefaultConfig()
	if level, err := zapcore.ParseLevel(c.Log.Level); err == nil {
		lc.Level = level
	}
	lc.Format = c.Log.Format
	return lc
}

// EnsureConfigDir creates ~/.config/aida with owner-only permissions.
func EnsureConfigDir() error {
	path, err := DefaultPath()
	if err != nil {
		return err
	}
	if err := pathsec.EnsureWritableDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return nil
}
