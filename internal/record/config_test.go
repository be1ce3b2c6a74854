package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopkg.in/yaml.v3"
)

func TestNewProjectConfig(t *testing.T) {
	c := NewProjectConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, ConfigVersion, c.Version)
	assert.False(t, c.ConfigComplete)
}

func TestProjectConfigValidate(t *testing.T) {
	c := NewProjectConfig()
	c.Version = "not-a-version"
	assert.ErrorIs(t, c.Validate(), ErrInvalidVersion)
}

func TestProjectConfigAnswer(t *testing.T) {
	c := NewProjectConfig()
	c.Preferences = map[string]*string{"commit_style": nil, "test_runner": nil}

	assert.ElementsMatch(t, []string{"commit_style", "test_runner"}, c.Unanswered())

	c.Answer("commit_style", "conventional")
	assert.False(t, c.ConfigComplete)
	assert.ElementsMatch(t, []string{"test_runner"}, c.Unanswered())

	c.Answer("test_runner", "gotestsum")
	assert.True(t, c.ConfigComplete)
	assert.Empty(t, c.Unanswered())
}

func TestProjectConfigMergeInferred(t *testing.T) {
	c := NewProjectConfig()
	answered := "conventional"
	c.Preferences = map[string]*string{"commit_style": &answered}

	c.MergeInferred(
		VCSInfo{Type: "git", Repo: "git@github.com:user/demo.git", Branch: "main"},
		map[string]bool{"README.md": true},
		[]string{"go"},
		[]string{"make"},
		map[string]any{"module": "github.com/user/demo"},
	)

	assert.Equal(t, "git", c.VCS.Type)
	assert.Equal(t, []string{"go"}, c.Languages)
	// Re-detection never un-answers a preference.
	require.NotNil(t, c.Preferences["commit_style"])
	assert.Equal(t, "conventional", *c.Preferences["commit_style"])
}

func TestProjectConfigYAMLNullPreferences(t *testing.T) {
	c := NewProjectConfig()
	c.Preferences = map[string]*string{"commit_style": nil}

	data, err := yaml.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), "commit_style: null")

	var back ProjectConfig
	require.NoError(t, yaml.Unmarshal(data, &back))
	_, present := back.Preferences["commit_style"]
	assert.True(t, present)
	assert.Nil(t, back.Preferences["commit_style"])
}
