// Package projectctx stores the per-project configuration record at
// .claude/aida-project-context.yml under the project root.
//
// The record is created once per project and mutated in place as facts
// are re-detected and preferences answered; it is never archived.
package projectctx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/oakensoul/aida/internal/atomicfile"
	"github.com/oakensoul/aida/internal/logging"
	"github.com/oakensoul/aida/internal/pathsec"
	"github.com/oakensoul/aida/internal/record"
)

// Fixed layout under the project root.
const (
	ConfigDir  = ".claude"
	ConfigFile = "aida-project-context.yml"
)

// ErrNotFound indicates the project has no config record yet.
var ErrNotFound = errors.New("project config not found")

// Store reads and writes project config records.
type Store struct {
	logger *logging.Logger
}

// NewStore creates a project config store.
func NewStore(logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{logger: logger.Named("projectctx")}
}

// Path returns the config record location for a project root.
func Path(projectRoot string) string {
	return filepath.Join(projectRoot, ConfigDir, ConfigFile)
}

// Load reads and validates the project's config record.
func (s *Store) Load(ctx context.Context, projectRoot string) (*record.ProjectConfig, error) {
	path, err := s.resolve(projectRoot, true)
	if err != nil {
		if errors.Is(err, pathsec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, logging.Path(Path(projectRoot)))
		}
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, logging.Path(path))
		}
		return nil, fmt.Errorf("reading project config: %w", err)
	}

	// Bound the document before trusting it.
	if _, err := record.ParseBounded(data, record.DefaultLimits); err != nil {
		return nil, err
	}

	var cfg record.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", record.ErrMalformed, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrInit returns the existing record or a fresh one when the project
// has none.
func (s *Store) LoadOrInit(ctx context.Context, projectRoot string) (*record.ProjectConfig, error) {
	cfg, err := s.Load(ctx, projectRoot)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, ErrNotFound) {
		return record.NewProjectConfig(), nil
	}
	return nil, err
}

// Save validates and atomically writes the config record, creating the
// .claude directory when missing.
func (s *Store) Save(ctx context.Context, projectRoot string, cfg *record.ProjectConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	root, err := pathsec.Resolve(projectRoot, pathsec.ResolveOptions{MustExist: true})
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}
	if err := pathsec.EnsureWritableDir(filepath.Join(root, ConfigDir)); err != nil {
		return fmt.Errorf("preparing config directory: %w", err)
	}

	path, err := pathsec.Resolve(Path(root), pathsec.ResolveOptions{AllowedBase: root})
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling project config: %w", err)
	}
	if err := atomicfile.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing project config: %w", err)
	}

	s.logger.Info(ctx, "project config saved", zap.String("path", path))
	return nil
}

// resolve returns the canonical config path for projectRoot, contained
// within it.
func (s *Store) resolve(projectRoot string, mustExist bool) (string, error) {
	root, err := pathsec.Resolve(projectRoot, pathsec.ResolveOptions{MustExist: true})
	if err != nil {
		return "", fmt.Errorf("resolving project root: %w", err)
	}
	return pathsec.Resolve(Path(root), pathsec.ResolveOptions{
		MustExist:   mustExist,
		AllowedBase: root,
	})
}
