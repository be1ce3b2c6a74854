package record

import (
	"errors"
	"fmt"
	"regexp"
)

// ConfigVersion is the schema version written into new project config
// records.
const ConfigVersion = "1.0.0"

// ErrInvalidVersion indicates a config record carries a malformed version.
var ErrInvalidVersion = errors.New("invalid config version")

// semverPattern matches the version strings accepted in config records.
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// VCSInfo captures version-control facts detected for a project.
type VCSInfo struct {
	Type   string `yaml:"type,omitempty" json:"type,omitempty"`
	Repo   string `yaml:"repo,omitempty" json:"repo,omitempty"`
	Branch string `yaml:"branch,omitempty" json:"branch,omitempty"`
}

// ProjectConfig is the per-project configuration record stored at
// .claude/aida-project-context.yml. Preference values stay null until the
// user answers the corresponding question.
type ProjectConfig struct {
	Version        string             `yaml:"version" json:"version"`
	ConfigComplete bool               `yaml:"config_complete" json:"config_complete"`
	VCS            VCSInfo            `yaml:"vcs,omitempty" json:"vcs,omitempty"`
	Files          map[string]bool    `yaml:"files,omitempty" json:"files,omitempty"`
	Languages      []string           `yaml:"languages,omitempty" json:"languages,omitempty"`
	Tools          []string           `yaml:"tools,omitempty" json:"tools,omitempty"`
	Inferred       map[string]any     `yaml:"inferred,omitempty" json:"inferred,omitempty"`
	Preferences    map[string]*string `yaml:"preferences" json:"preferences"`
}

// NewProjectConfig returns an empty config record at the current schema
// version.
func NewProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Version:     ConfigVersion,
		Preferences: map[string]*string{},
	}
}

// Validate checks the config record's structural invariants.
func (c *ProjectConfig) Validate() error {
	if !semverPattern.MatchString(c.Version) {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, c.Version)
	}
	return nil
}

// Unanswered returns the preference keys whose values are still null.
func (c *ProjectConfig) Unanswered() []string {
	var keys []string
	for k, v := range c.Preferences {
		if v == nil {
			keys = append(keys, k)
		}
	}
	return keys
}

// MergeInferred overwrites detected-fact fields with newly inferred
// values, leaving answered preferences untouched. Preference keys present
// in prefs replace the stored value whole; detection never un-answers a
// preference.
func (c *ProjectConfig) MergeInferred(vcs VCSInfo, files map[string]bool, languages, tools []string, inferred map[string]any) {
	c.VCS = vcs
	if files != nil {
		c.Files = files
	}
	if languages != nil {
		c.Languages = languages
	}
	if tools != nil {
		c.Tools = tools
	}
	if inferred != nil {
		if c.Inferred == nil {
			c.Inferred = map[string]any{}
		}
		for k, v := range inferred {
			c.Inferred[k] = v
		}
	}
}

// Answer records a preference value and refreshes completion state.
func (c *ProjectConfig) Answer(key, value string) {
	if c.Preferences == nil {
		c.Preferences = map[string]*string{}
	}
	v := value
	c.Preferences[key] = &v
	c.ConfigComplete = len(c.Unanswered()) == 0
}
