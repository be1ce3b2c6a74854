// Package memento implements the project-namespaced session-snapshot
// store.
//
// Records live as {project}--{slug}.md files under a single root
// directory, with completed records relocated to a .completed/ archive.
// The store owns the on-disk representation exclusively: every path is
// containment-checked against the root, every parse is bounded, and every
// write goes through the atomic temp-file-then-rename discipline.
package memento

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oakensoul/aida/internal/atomicfile"
	"github.com/oakensoul/aida/internal/logging"
	"github.com/oakensoul/aida/internal/pathsec"
	"github.com/oakensoul/aida/internal/record"
)

// ArchiveDir is the sub-directory holding completed mementos.
const ArchiveDir = ".completed"

// DefaultRoot returns the conventional store location under a home
// directory.
func DefaultRoot(home string) string {
	return filepath.Join(home, ".claude", "memento")
}

// staleTempAge bounds how long an abandoned scratch file may linger
// before the opportunistic sweep reclaims it.
const staleTempAge = 24 * time.Hour

// Store errors.
var (
	// ErrConflict indicates a memento with the same key already exists.
	ErrConflict = errors.New("memento already exists")

	// ErrNotFound indicates no memento exists for the key.
	ErrNotFound = errors.New("memento not found")

	// ErrCompleted indicates a mutation was attempted on an archived
	// memento, which is immutable except for explicit removal.
	ErrCompleted = errors.New("completed memento is immutable")
)

// StatusFilter selects records by lifecycle state in List.
type StatusFilter string

const (
	FilterActive    StatusFilter = "active"
	FilterCompleted StatusFilter = "completed"
	FilterAll       StatusFilter = "all"
)

// ListOptions configures List.
type ListOptions struct {
	// Status filters by lifecycle state. Default: active only.
	Status StatusFilter

	// Project scopes results to one project namespace. Required unless
	// AllProjects is set, so cross-project records never leak into a
	// default listing.
	Project string

	// AllProjects disables the project filter explicitly.
	AllProjects bool

	// IncludeArchive also enumerates the .completed/ directory.
	IncludeArchive bool
}

// Patch describes an update to an existing memento. Header fields are
// replaced whole when non-nil; Append content is appended to the named
// body sections.
type Patch struct {
	Description *string
	Issue       *string
	PR          *string
	Append      []record.Section
}

// Store is a filesystem-backed memento collection rooted at a single
// directory.
type Store struct {
	root    string
	archive string
	logger  *logging.Logger
	now     func() time.Time
}

// NewStore opens (creating if needed) a memento store rooted at root.
// The root and archive directories are created with owner-only
// permissions; symlinked components are refused.
func NewStore(root string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := pathsec.EnsureWritableDir(root); err != nil {
		return nil, fmt.Errorf("preparing store root: %w", err)
	}
	canonical, err := pathsec.Resolve(root, pathsec.ResolveOptions{MustExist: true})
	if err != nil {
		return nil, fmt.Errorf("resolving store root: %w", err)
	}

	archive := filepath.Join(canonical, ArchiveDir)
	if err := pathsec.EnsureWritableDir(archive); err != nil {
		return nil, fmt.Errorf("preparing archive: %w", err)
	}

	return &Store{
		root:    canonical,
		archive: archive,
		logger:  logger.Named("memento"),
		now:     time.Now,
	}, nil
}

// Root returns the store's canonical root directory.
func (s *Store) Root() string {
	return s.root
}

// PathOf returns the location key maps to under the active store, without
// resolving or checking existence.
func (s *Store) PathOf(key record.Key) string {
	return filepath.Join(s.root, key.Filename())
}

// Create persists a new memento. The composite key must not already
// exist; the existence check runs after path resolution so an aliased
// path cannot sneak past it.
func (s *Store) Create(ctx context.Context, m *record.Memento) error {
	if m.Status == "" {
		m.Status = record.StatusActive
	}
	now := s.now().UTC()
	if m.Created.IsZero() {
		m.Created = now
	}
	m.Updated = now

	if err := m.Validate(); err != nil {
		return err
	}

	path, err := s.pathFor(s.root, m.Key())
	if err != nil {
		return err
	}

	data, err := record.MarshalMemento(m)
	if err != nil {
		return err
	}

	if err := atomicfile.WriteFileExcl(path, data, 0o600); err != nil {
		if errors.Is(err, atomicfile.ErrExists) {
			return fmt.Errorf("%w: %s", ErrConflict, m.Key())
		}
		return fmt.Errorf("writing memento: %w", err)
	}

	s.logger.Info(ctx, "memento created",
		zap.String("key", m.Key().String()),
		zap.String("path", path))
	return nil
}

// Read returns the memento for key, looking in the active store first and
// falling back to the archive.
func (s *Store) Read(ctx context.Context, key record.Key) (*record.Memento, error) {
	m, err := s.readFrom(s.root, key)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.readFrom(s.archive, key)
}

// List enumerates mementos matching opts, ordered by Updated descending.
// Unreadable entries are skipped with a warning rather than failing the
// whole listing. Abandoned scratch files are swept opportunistically.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*record.Memento, error) {
	if opts.Status == "" {
		opts.Status = FilterActive
	}
	if opts.Project == "" && !opts.AllProjects {
		return nil, errors.New("project filter required unless AllProjects is set")
	}
	if opts.Project != "" {
		if err := record.ValidateProjectName(opts.Project); err != nil {
			return nil, err
		}
	}

	if n := atomicfile.SweepStale(s.root, staleTempAge); n > 0 {
		s.logger.Debug(ctx, "swept stale temp files", zap.Int("count", n))
	}

	dirs := []string{s.root}
	if opts.IncludeArchive {
		dirs = append(dirs, s.archive)
	}

	var results []*record.Memento
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading store directory: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
				continue
			}
			m, err := s.readFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				s.logger.Warn(ctx, "skipping unreadable memento",
					zap.String("file", entry.Name()),
					zap.Error(err))
				continue
			}
			if !matches(m, opts) {
				continue
			}
			results = append(results, m)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Updated.After(results[j].Updated)
	})
	return results, nil
}

// Update applies patch to an active memento and rewrites it atomically.
// Archived mementos are immutable; patching one fails with ErrCompleted.
func (s *Store) Update(ctx context.Context, key record.Key, patch Patch) (*record.Memento, error) {
	m, err := s.readFrom(s.root, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if _, archErr := s.readFrom(s.archive, key); archErr == nil {
				return nil, fmt.Errorf("%w: %s", ErrCompleted, key)
			}
		}
		return nil, err
	}

	if patch.Description != nil {
		m.Description = *patch.Description
	}
	if patch.Issue != nil {
		m.Issue = *patch.Issue
	}
	if patch.PR != nil {
		m.PR = *patch.PR
	}
	for _, sec := range patch.Append {
		m.AppendSection(sec.Title, sec.Body)
	}
	m.Updated = s.now().UTC()

	if err := s.write(s.root, m); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "memento updated", zap.String("key", key.String()))
	return m, nil
}

// Complete marks the memento completed and relocates it to the archive.
// The active file is deleted only after the archive write has succeeded,
// so an archive failure never loses the record.
func (s *Store) Complete(ctx context.Context, key record.Key) error {
	m, err := s.readFrom(s.root, key)
	if err != nil {
		return err
	}

	m.Status = record.StatusCompleted
	m.Updated = s.now().UTC()

	archivePath, err := s.pathFor(s.archive, key)
	if err != nil {
		return err
	}
	data, err := record.MarshalMemento(m)
	if err != nil {
		return err
	}
	if err := atomicfile.WriteFileExcl(archivePath, data, 0o600); err != nil {
		if errors.Is(err, atomicfile.ErrExists) {
			return fmt.Errorf("%w: already archived: %s", ErrConflict, key)
		}
		return fmt.Errorf("archiving memento: %w", err)
	}

	activePath, err := s.pathFor(s.root, key)
	if err != nil {
		return err
	}
	if err := os.Remove(activePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing active memento after archive: %w", err)
	}

	s.logger.Info(ctx, "memento completed",
		zap.String("key", key.String()),
		zap.String("archive", archivePath))
	return nil
}

// Remove deletes the memento file. Already-absent is success, not error.
// The archive is only touched when includeArchive is set.
func (s *Store) Remove(ctx context.Context, key record.Key, includeArchive bool) error {
	if err := key.Validate(); err != nil {
		return err
	}

	dirs := []string{s.root}
	if includeArchive {
		dirs = append(dirs, s.archive)
	}

	removed := false
	for _, dir := range dirs {
		path, err := s.pathFor(dir, key)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("removing memento: %w", err)
		}
		removed = true
	}

	if removed {
		s.logger.Info(ctx, "memento removed", zap.String("key", key.String()))
	}
	return nil
}

// pathFor resolves the key's file path inside dir, containment-checked
// against the store root.
func (s *Store) pathFor(dir string, key record.Key) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	return pathsec.Resolve(filepath.Join(dir, key.Filename()), pathsec.ResolveOptions{
		AllowedBase: s.root,
	})
}

// readFrom loads and parses the key's record from dir.
func (s *Store) readFrom(dir string, key record.Key) (*record.Memento, error) {
	path, err := s.pathFor(dir, key)
	if err != nil {
		return nil, err
	}
	m, err := s.readFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	return m, nil
}

// readFile reads and bounds-parses a memento file.
func (s *Store) readFile(path string) (*record.Memento, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := record.UnmarshalMemento(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// write serializes and atomically replaces the memento in dir.
func (s *Store) write(dir string, m *record.Memento) error {
	path, err := s.pathFor(dir, m.Key())
	if err != nil {
		return err
	}
	data, err := record.MarshalMemento(m)
	if err != nil {
		return err
	}
	if err := atomicfile.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing memento: %w", err)
	}
	return nil
}

// matches applies the list filters to a record.
func matches(m *record.Memento, opts ListOptions) bool {
	switch opts.Status {
	case FilterActive:
		if m.Status != record.StatusActive {
			return false
		}
	case FilterCompleted:
		if m.Status != record.StatusCompleted {
			return false
		}
	}
	if !opts.AllProjects && m.Project.Name != opts.Project {
		return false
	}
	return true
}
