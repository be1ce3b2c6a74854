// Package detect derives project identity facts from a working directory.
//
// The stores never consult ambient state; callers run detection once and
// pass the resulting facts in explicitly. Only identity facts live here
// (root, name, remote, branch) — language and tooling heuristics belong
// to the orchestration layer above.
package detect

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"

	"github.com/oakensoul/aida/internal/pathsec"
	"github.com/oakensoul/aida/internal/record"
)

// Facts holds detected project identity.
type Facts struct {
	// Name is the sanitized project namespace component.
	Name string `json:"name"`

	// Root is the project root: the git toplevel when inside a
	// repository, otherwise the working directory itself.
	Root string `json:"root"`

	// Repo is the origin remote URL, empty outside a repository.
	Repo string `json:"repo,omitempty"`

	// Branch is the current branch, empty when detached or absent.
	Branch string `json:"branch,omitempty"`
}

// Project detects identity facts for workDir.
func Project(workDir string) (*Facts, error) {
	root, err := pathsec.Resolve(workDir, pathsec.ResolveOptions{MustExist: true})
	if err != nil {
		return nil, fmt.Errorf("resolving working directory: %w", err)
	}

	facts := &Facts{Root: root}

	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err == nil {
		if wt, err := repo.Worktree(); err == nil {
			facts.Root = wt.Filesystem.Root()
		}
		if remote, err := repo.Remote("origin"); err == nil {
			if urls := remote.Config().URLs; len(urls) > 0 {
				facts.Repo = urls[0]
			}
		}
		facts.Branch = currentBranch(repo)
	}

	facts.Name = SanitizeProjectName(filepath.Base(facts.Root))
	if err := record.ValidateProjectName(facts.Name); err != nil {
		return nil, fmt.Errorf("deriving project name from %s: %w", filepath.Base(facts.Root), err)
	}
	return facts, nil
}

// currentBranch returns the checked-out branch, or empty when HEAD is
// detached or unreadable.
func currentBranch(repo *git.Repository) string {
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	if head.Name().IsBranch() {
		return head.Name().Short()
	}
	return ""
}

// SanitizeProjectName maps an arbitrary directory name onto the project
// namespace alphabet: lowercase alphanumerics and single hyphens. Runs of
// invalid characters collapse to one hyphen so the separator "--" can
// never appear in the result.
func SanitizeProjectName(name string) string {
	lower := strings.ToLower(name)

	var b strings.Builder
	b.Grow(len(lower))
	lastHyphen := true // suppress leading hyphens
	for _, r := range lower {
		valid := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if valid {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteRune('-')
			lastHyphen = true
		}
	}

	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "project"
	}
	if len(out) > record.MaxProjectNameLength {
		out = strings.Trim(out[:record.MaxProjectNameLength], "-")
	}
	return out
}
