package phase

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/oakensoul/aida/internal/detect"
	"github.com/oakensoul/aida/internal/logging"
	"github.com/oakensoul/aida/internal/memento"
	"github.com/oakensoul/aida/internal/record"
)

// Response fields MementoCreate accepts. Anything else is rejected
// before validation so typos fail loudly instead of silently dropping
// data.
var mementoCreateFields = []string{
	"slug", "description", "issue", "pr",
	"context", "progress", "next_steps",
}

// MementoCreate captures a new session memento. Infer detects project
// identity and suggests a slug; execute validates the merged record and
// performs the single store create.
type MementoCreate struct {
	deps   Deps
	logger *logging.Logger
}

// NewMementoCreate builds the memento-create operation.
func NewMementoCreate(deps Deps) *MementoCreate {
	return &MementoCreate{deps: deps, logger: deps.logger().Named("memento-create")}
}

func (h *MementoCreate) Name() string { return "memento-create" }

// Infer detects project identity facts and lists the fields the user
// must still supply.
func (h *MementoCreate) Infer(ctx context.Context, pc Context) (*Inference, error) {
	if err := pc.validate(); err != nil {
		return nil, err
	}

	facts, err := h.projectFacts(pc)
	if err != nil {
		return nil, err
	}

	inf := &Inference{
		Inferred: map[string]any{
			"project":      facts.Name,
			"project_root": facts.Root,
			"repo":         facts.Repo,
			"branch":       facts.Branch,
		},
		Questions: []Question{
			{Key: "slug", Prompt: "Short kebab-case identifier for this memento"},
			{Key: "description", Prompt: "One-line summary of the session"},
			{Key: "context", Prompt: "What were you working on? (optional)"},
			{Key: "progress", Prompt: "Where did you leave off? (optional)"},
			{Key: "next_steps", Prompt: "What comes next? (optional)"},
		},
	}

	// Surface existing active mementos for this project so the caller can
	// warn about near-duplicate slugs before the user picks one. Opening
	// the store creates its layout, so only look when it already exists.
	root := h.deps.storeRoot(pc)
	if !dirExists(root) || !dirExists(filepath.Join(root, memento.ArchiveDir)) {
		return inf, nil
	}
	if store, err := h.deps.mementoStore(pc, h.logger); err == nil {
		existing, err := store.List(ctx, memento.ListOptions{
			Status:  memento.FilterActive,
			Project: facts.Name,
		})
		if err == nil {
			for _, m := range existing {
				inf.Validation = append(inf.Validation,
					fmt.Sprintf("active memento exists: %s", m.Key()))
			}
		}
	}

	return inf, nil
}

// Execute builds the memento from merged inferred facts and responses
// and creates it. Validation runs entirely before the write.
func (h *MementoCreate) Execute(ctx context.Context, pc Context, inferred map[string]any, responses Responses) *Result {
	if err := pc.validate(); err != nil {
		return failure(ctx, pc, err)
	}
	if err := checkResponses(responses, mementoCreateFields...); err != nil {
		return failure(ctx, pc, err)
	}

	project := pc.Project
	if project == "" {
		project = stringFact(inferred, "project")
	}

	store, err := h.deps.mementoStore(pc, h.logger)
	if err != nil {
		return failure(ctx, pc, err)
	}

	m := &record.Memento{
		Slug:        responses["slug"],
		Description: responses["description"],
		Status:      record.StatusActive,
		Project: record.ProjectInfo{
			Name:   project,
			Path:   stringFact(inferred, "project_root"),
			Repo:   stringFact(inferred, "repo"),
			Branch: stringFact(inferred, "branch"),
		},
		Issue: responses["issue"],
		PR:    responses["pr"],
	}
	if body := responses["context"]; body != "" {
		m.AppendSection("Context", body)
	}
	if body := responses["progress"]; body != "" {
		m.AppendSection("Progress", body)
	}
	if body := responses["next_steps"]; body != "" {
		m.AppendSection("Next Steps", body)
	}

	if err := store.Create(ctx, m); err != nil {
		return failure(ctx, pc, err)
	}

	h.logger.Info(ctx, "memento created", zap.String("key", m.Key().String()))
	return success(ctx, pc, fmt.Sprintf("memento %s created", m.Key()),
		store.PathOf(m.Key()))
}

// projectFacts resolves project identity, honoring explicit overrides in
// the protocol context.
func (h *MementoCreate) projectFacts(pc Context) (*detect.Facts, error) {
	dir := pc.WorkDir
	if pc.ProjectRoot != "" {
		dir = pc.ProjectRoot
	}
	facts, err := detect.Project(dir)
	if err != nil {
		return nil, err
	}
	if pc.Project != "" {
		if err := record.ValidateProjectName(pc.Project); err != nil {
			return nil, err
		}
		facts.Name = pc.Project
	}
	return facts, nil
}
