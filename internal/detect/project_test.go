package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakensoul/aida/internal/record"
)

func TestSanitizeProjectName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already clean", "demo", "demo"},
		{"uppercase", "MyProject", "myproject"},
		{"spaces and punctuation", "My Project!", "my-project"},
		{"double hyphen collapses", "a--b", "a-b"},
		{"dots collapse", "github.com", "github-com"},
		{"leading trailing junk", "__demo__", "demo"},
		{"all junk", "!!!", "project"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeProjectName(tt.in)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, record.ValidateProjectName(got))
		})
	}
}

func TestProjectOutsideRepo(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "My Project")
	require.NoError(t, os.Mkdir(dir, 0o700))

	facts, err := Project(dir)
	require.NoError(t, err)
	assert.Equal(t, "my-project", facts.Name)
	assert.Empty(t, facts.Repo)
	assert.Empty(t, facts.Branch)
}

func TestProjectInsideRepo(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "demo")
	require.NoError(t, os.Mkdir(dir, 0o700))

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{"git@github.com:user/demo.git"},
	})
	require.NoError(t, err)

	// Subdirectories resolve to the repository toplevel.
	sub := filepath.Join(dir, "internal", "pkg")
	require.NoError(t, os.MkdirAll(sub, 0o700))

	facts, err := Project(sub)
	require.NoError(t, err)
	assert.Equal(t, "demo", facts.Name)
	assert.Equal(t, "git@github.com:user/demo.git", facts.Repo)

	canonical, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, canonical, facts.Root)
}
