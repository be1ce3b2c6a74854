package record

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Status values for a memento's lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Validation limits for memento identity fields.
const (
	MaxSlugLength        = 50
	MaxProjectNameLength = 100
	MaxDescriptionLength = 500
)

// KeySeparator joins project and slug in the on-disk filename. It is
// forbidden inside either component so the composite key stays
// string-representable and collision-checkable by existence test.
const KeySeparator = "--"

// Validation errors for memento fields.
var (
	ErrInvalidSlug        = errors.New("invalid slug")
	ErrInvalidProjectName = errors.New("invalid project name")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrMissingDescription = errors.New("description is required")
	ErrMissingFrontmatter = errors.New("missing frontmatter header")
)

// slugPattern matches kebab-case identifiers: lowercase alphanumeric with
// hyphens, starting with an alphanumeric.
var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Recognized body section titles, in canonical order.
var KnownSections = []string{
	"Context",
	"Progress",
	"Next Steps",
	"Decisions",
	"Blockers",
	"Files Modified",
}

// sectionAliases maps variant headings seen in the wild to canonical
// titles.
var sectionAliases = map[string]string{
	"current state":            "Progress",
	"current state / progress": "Progress",
	"progress":                 "Progress",
	"context":                  "Context",
	"next steps":               "Next Steps",
	"decisions":                "Decisions",
	"blockers":                 "Blockers",
	"files modified":           "Files Modified",
}

// ProjectInfo identifies the codebase a memento belongs to.
type ProjectInfo struct {
	Name   string `yaml:"name" json:"name"`
	Path   string `yaml:"path" json:"path"`
	Repo   string `yaml:"repo,omitempty" json:"repo,omitempty"`
	Branch string `yaml:"branch,omitempty" json:"branch,omitempty"`
}

// Section is a free-form body block under a "## Title" heading.
type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Memento is a session snapshot record. It is identified by the composite
// key (project, slug) and stored as {project}--{slug}.md.
type Memento struct {
	Slug        string      `json:"slug"`
	Description string      `json:"description"`
	Status      Status      `json:"status"`
	Created     time.Time   `json:"created"`
	Updated     time.Time   `json:"updated"`
	Project     ProjectInfo `json:"project"`
	Issue       string      `json:"issue,omitempty"`
	PR          string      `json:"pr,omitempty"`
	Sections    []Section   `json:"sections,omitempty"`
}

// frontmatter is the YAML header block of the on-disk format.
type frontmatter struct {
	Slug        string      `yaml:"slug"`
	Description string      `yaml:"description"`
	Status      Status      `yaml:"status"`
	Created     time.Time   `yaml:"created"`
	Updated     time.Time   `yaml:"updated"`
	Project     ProjectInfo `yaml:"project"`
	Issue       string      `yaml:"issue,omitempty"`
	PR          string      `yaml:"pr,omitempty"`
}

// Key is the composite identity of a memento.
type Key struct {
	Project string `json:"project"`
	Slug    string `json:"slug"`
}

// Validate checks both key components.
func (k Key) Validate() error {
	if err := ValidateProjectName(k.Project); err != nil {
		return err
	}
	return ValidateSlug(k.Slug)
}

// Filename returns the on-disk name {project}--{slug}.md.
func (k Key) Filename() string {
	return k.Project + KeySeparator + k.Slug + ".md"
}

func (k Key) String() string {
	return k.Project + KeySeparator + k.Slug
}

// Key returns the memento's composite identity.
func (m *Memento) Key() Key {
	return Key{Project: m.Project.Name, Slug: m.Slug}
}

// Validate checks the memento against its schema invariants.
func (m *Memento) Validate() error {
	if err := ValidateSlug(m.Slug); err != nil {
		return err
	}
	if err := ValidateProjectName(m.Project.Name); err != nil {
		return err
	}
	if strings.TrimSpace(m.Description) == "" {
		return ErrMissingDescription
	}
	if len(m.Description) > MaxDescriptionLength {
		return fmt.Errorf("description exceeds %d characters", MaxDescriptionLength)
	}
	if m.Status != StatusActive && m.Status != StatusCompleted {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, m.Status)
	}
	return nil
}

// ValidateSlug checks a memento slug: kebab-case, lowercase alphanumeric,
// at most MaxSlugLength characters.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSlug)
	}
	if len(slug) > MaxSlugLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidSlug, MaxSlugLength)
	}
	if strings.Contains(slug, KeySeparator) {
		return fmt.Errorf("%w: contains %q", ErrInvalidSlug, KeySeparator)
	}
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: must match %s", ErrInvalidSlug, slugPattern.String())
	}
	return nil
}

// ValidateProjectName checks a project namespace component. The rules are
// the slug rules plus a length allowance for long repository names; the
// separator and path characters are rejected so the name can never alias
// another key or escape the store directory.
func ValidateProjectName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidProjectName)
	}
	if len(name) > MaxProjectNameLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidProjectName, MaxProjectNameLength)
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return fmt.Errorf("%w: contains path traversal characters", ErrInvalidProjectName)
	}
	if strings.Contains(name, KeySeparator) {
		return fmt.Errorf("%w: contains %q", ErrInvalidProjectName, KeySeparator)
	}
	if !slugPattern.MatchString(name) {
		return fmt.Errorf("%w: must match %s", ErrInvalidProjectName, slugPattern.String())
	}
	return nil
}

// NormalizeSection maps a heading to its canonical title, or returns the
// input trimmed when unrecognized.
func NormalizeSection(title string) string {
	trimmed := strings.TrimSpace(title)
	if canonical, ok := sectionAliases[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return trimmed
}

// MarshalMemento renders a memento in its on-disk form: a YAML
// frontmatter block between "---" markers followed by "## Title" body
// sections.
func MarshalMemento(m *Memento) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	fm := frontmatter{
		Slug:        m.Slug,
		Description: m.Description,
		Status:      m.Status,
		Created:     m.Created.UTC(),
		Updated:     m.Updated.UTC(),
		Project:     m.Project,
		Issue:       m.Issue,
		PR:          m.PR,
	}

	header, err := yaml.Marshal(&fm)
	if err != nil {
		return nil, fmt.Errorf("marshaling frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n")
	for _, s := range m.Sections {
		buf.WriteString("\n## ")
		buf.WriteString(s.Title)
		buf.WriteString("\n\n")
		buf.WriteString(strings.TrimRight(s.Body, "\n"))
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// UnmarshalMemento parses the on-disk form back into a Memento. The
// frontmatter passes through the bounded parser before unmarshaling so
// oversized or absurdly nested headers are rejected with field-level
// errors.
func UnmarshalMemento(data []byte) (*Memento, error) {
	if len(data) > MementoLimits.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), MementoLimits.MaxBytes)
	}

	header, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	// Bound the header structure before trusting it.
	if _, err := ParseBounded(header, MementoLimits); err != nil {
		return nil, err
	}

	var fm frontmatter
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	m := &Memento{
		Slug:        fm.Slug,
		Description: fm.Description,
		Status:      fm.Status,
		Created:     fm.Created,
		Updated:     fm.Updated,
		Project:     fm.Project,
		Issue:       fm.Issue,
		PR:          fm.PR,
		Sections:    parseSections(body),
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// splitFrontmatter separates the "---" delimited YAML header from the
// markdown body.
func splitFrontmatter(data []byte) (header, body []byte, err error) {
	const marker = "---\n"
	if !bytes.HasPrefix(data, []byte(marker)) {
		return nil, nil, ErrMissingFrontmatter
	}
	rest := data[len(marker):]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, nil, fmt.Errorf("%w: unterminated", ErrMissingFrontmatter)
	}
	header = rest[:end+1]
	body = rest[end+len("\n---"):]
	body = bytes.TrimPrefix(body, []byte("\n"))
	return header, body, nil
}

// parseSections splits the body on "## " headings.
func parseSections(body []byte) []Section {
	var sections []Section
	var current *Section

	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, "## ") {
			if current != nil {
				current.Body = strings.TrimSpace(current.Body)
				sections = append(sections, *current)
			}
			current = &Section{Title: NormalizeSection(strings.TrimPrefix(line, "## "))}
			continue
		}
		if current != nil {
			current.Body += line + "\n"
		}
	}
	if current != nil {
		current.Body = strings.TrimSpace(current.Body)
		sections = append(sections, *current)
	}
	return sections
}

// AppendSection appends content to the named section, creating it at the
// end when absent. Titles are normalized before matching.
func (m *Memento) AppendSection(title, content string) {
	canonical := NormalizeSection(title)
	content = strings.TrimSpace(content)
	for i := range m.Sections {
		if m.Sections[i].Title == canonical {
			if m.Sections[i].Body == "" {
				m.Sections[i].Body = content
			} else {
				m.Sections[i].Body += "\n\n" + content
			}
			return
		}
	}
	m.Sections = append(m.Sections, Section{Title: canonical, Body: content})
}

// Section returns the body of the named section and whether it exists.
func (m *Memento) Section(title string) (string, bool) {
	canonical := NormalizeSection(title)
	for _, s := range m.Sections {
		if s.Title == canonical {
			return s.Body, true
		}
	}
	return "", false
}
