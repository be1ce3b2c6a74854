// Package pathsec provides path canonicalization and containment validation.
//
// Every filesystem location used by the record stores passes through
// Resolve before any read or write. Containment is checked structurally on
// canonical (symlink-resolved) paths, never by raw string prefix, so that
// `..` segments and planted symlinks cannot escape an allowed base.
package pathsec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Validation errors for path security checks.
var (
	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrNullByte indicates the path contains a null byte.
	ErrNullByte = errors.New("path contains null byte")

	// ErrPathEscape indicates a path resolves outside its allowed base.
	ErrPathEscape = errors.New("path escapes allowed base")

	// ErrNotFound indicates a required path does not exist.
	ErrNotFound = errors.New("path not found")

	// ErrSymlinkComponent indicates a write target is, or passes through,
	// a symbolic link.
	ErrSymlinkComponent = errors.New("path contains symlink component")
)

// ResolveOptions controls Resolve behavior.
type ResolveOptions struct {
	// MustExist requires the resolved path to exist on disk.
	MustExist bool

	// AllowedBase, when non-empty, requires the canonical result to be
	// equal to or a descendant of the canonical base.
	AllowedBase string
}

// Resolve validates raw and returns its absolute, canonical form.
//
// The input is rejected if empty or containing null bytes. A leading "~"
// is expanded to the user's home directory. Symlinks are resolved; for
// paths that do not exist yet, the deepest existing ancestor is
// canonicalized and the remaining components are re-joined, so a
// containment check still sees through symlinked parents.
func Resolve(raw string, opts ResolveOptions) (string, error) {
	if raw == "" {
		return "", ErrEmptyPath
	}
	if strings.ContainsRune(raw, 0) {
		return "", ErrNullByte
	}

	expanded, err := ExpandHome(raw)
	if err != nil {
		return "", err
	}

	abs, err := filepath.Abs(filepath.Clean(expanded))
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", raw, err)
	}

	canonical, exists, err := canonicalize(abs)
	if err != nil {
		return "", err
	}

	if opts.MustExist && !exists {
		return "", fmt.Errorf("%w: %s", ErrNotFound, Redact(abs))
	}

	if opts.AllowedBase != "" {
		base, err := canonicalBase(opts.AllowedBase)
		if err != nil {
			return "", err
		}
		if !contains(base, canonical) {
			return "", fmt.Errorf("%w: %s not under %s", ErrPathEscape, Redact(canonical), Redact(base))
		}
	}

	return canonical, nil
}

// EnsureWritableDir validates path as a write-target directory and creates
// it (and missing parents) with owner-only permissions.
//
// Unlike Resolve, existing components must not be symlinks at all: a
// symlinked ancestor would let a planted link redirect record writes
// outside the store. Created directories use mode 0700.
func EnsureWritableDir(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if strings.ContainsRune(path, 0) {
		return ErrNullByte
	}

	expanded, err := ExpandHome(path)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(filepath.Clean(expanded))
	if err != nil {
		return fmt.Errorf("resolving %q: %w", path, err)
	}

	// Walk from the root down, refusing any existing symlink component.
	components := splitComponents(abs)
	current := string(filepath.Separator)
	for _, c := range components {
		current = filepath.Join(current, c)
		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				// Remaining components will be created below.
				break
			}
			return fmt.Errorf("inspecting %s: %w", Redact(current), err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s", ErrSymlinkComponent, Redact(current))
		}
	}

	if err := os.MkdirAll(abs, 0o700); err != nil {
		return fmt.Errorf("creating directory %s: %w", Redact(abs), err)
	}
	return nil
}

// ExpandHome replaces a leading "~" or "~/" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~"+string(filepath.Separator)) && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

// Redact presents a path with the home directory replaced by "~" so that
// error messages and logs never leak the user's login name.
func Redact(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" || home == "/" {
		return path
	}
	if path == home {
		return "~"
	}
	if rel, err := filepath.Rel(home, path); err == nil && !strings.HasPrefix(rel, "..") && rel != "." {
		return filepath.Join("~", rel)
	}
	return path
}

// canonicalize resolves symlinks in abs. When the full path does not
// exist, the deepest existing ancestor is resolved and the remainder
// re-joined. Returns the canonical path and whether the full path exists.
func canonicalize(abs string) (string, bool, error) {
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, true, nil
	}
	if !os.IsNotExist(err) {
		return "", false, fmt.Errorf("canonicalizing %s: %w", Redact(abs), err)
	}

	// Find the deepest existing ancestor.
	ancestor := abs
	var remainder []string
	for {
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			break
		}
		remainder = append([]string{filepath.Base(ancestor)}, remainder...)
		ancestor = parent
		if _, err := os.Lstat(ancestor); err == nil {
			break
		}
	}

	resolvedAncestor, err := filepath.EvalSymlinks(ancestor)
	if err != nil {
		if os.IsNotExist(err) {
			resolvedAncestor = ancestor
		} else {
			return "", false, fmt.Errorf("canonicalizing %s: %w", Redact(ancestor), err)
		}
	}

	joined := filepath.Join(append([]string{resolvedAncestor}, remainder...)...)
	// Clean during join must not have reintroduced an escape. Only a
	// whole ".." component counts; names merely containing dots are fine.
	for _, c := range splitComponents(joined) {
		if c == ".." {
			return "", false, fmt.Errorf("%w: unresolvable traversal in %s", ErrPathEscape, Redact(abs))
		}
	}
	return joined, false, nil
}

// canonicalBase resolves an allowed base directory to canonical form.
func canonicalBase(base string) (string, error) {
	expanded, err := ExpandHome(base)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(filepath.Clean(expanded))
	if err != nil {
		return "", fmt.Errorf("resolving base %q: %w", base, err)
	}
	canonical, _, err := canonicalize(abs)
	if err != nil {
		return "", err
	}
	return canonical, nil
}

// contains reports whether target equals base or lies beneath it,
// compared on canonicalized path components.
func contains(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// splitComponents splits an absolute path into its components.
func splitComponents(abs string) []string {
	trimmed := strings.Trim(abs, string(filepath.Separator))
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, string(filepath.Separator))
}
