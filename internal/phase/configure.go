package phase

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/oakensoul/aida/internal/detect"
	"github.com/oakensoul/aida/internal/logging"
	"github.com/oakensoul/aida/internal/projectctx"
	"github.com/oakensoul/aida/internal/record"
)

// preferenceKeys is the closed set of user preferences the config record
// tracks. New keys are added here, never invented by callers.
var preferenceKeys = map[string]Question{
	"commit_style": {
		Key:     "commit_style",
		Prompt:  "Commit message style",
		Options: []string{"conventional", "freeform"},
	},
	"test_before_commit": {
		Key:     "test_before_commit",
		Prompt:  "Run tests before committing?",
		Options: []string{"yes", "no"},
	},
	"verbosity": {
		Key:     "verbosity",
		Prompt:  "Assistant verbosity",
		Options: []string{"terse", "normal", "detailed"},
	},
}

// Configure manages the per-project config record. Infer detects VCS
// facts and reports unanswered preferences; execute merges facts, records
// answers, and saves the record in place.
type Configure struct {
	logger *logging.Logger
}

// NewConfigure builds the configure operation.
func NewConfigure(deps Deps) *Configure {
	return &Configure{logger: deps.logger().Named("configure")}
}

func (h *Configure) Name() string { return "configure" }

// Infer detects VCS facts and returns the preference questions still
// unanswered in the project's config record.
func (h *Configure) Infer(ctx context.Context, pc Context) (*Inference, error) {
	if err := pc.validate(); err != nil {
		return nil, err
	}

	facts, err := h.projectFacts(pc)
	if err != nil {
		return nil, err
	}

	store := projectctx.NewStore(h.logger)
	cfg, err := store.LoadOrInit(ctx, facts.Root)
	if err != nil {
		return nil, err
	}

	inf := &Inference{
		Inferred: map[string]any{
			"project":      facts.Name,
			"project_root": facts.Root,
			"vcs_type":     vcsType(facts),
			"repo":         facts.Repo,
			"branch":       facts.Branch,
		},
	}

	// Unanswered known preferences become questions; answered ones stay
	// settled across re-runs.
	for key, q := range preferenceKeys {
		if v, ok := cfg.Preferences[key]; !ok || v == nil {
			inf.Questions = append(inf.Questions, q)
		}
	}
	sort.Slice(inf.Questions, func(i, j int) bool {
		return inf.Questions[i].Key < inf.Questions[j].Key
	})

	if cfg.ConfigComplete {
		inf.Validation = append(inf.Validation, "configuration already complete")
	}
	return inf, nil
}

// Execute merges detected facts into the config record, applies the
// answered preferences, and saves it.
func (h *Configure) Execute(ctx context.Context, pc Context, inferred map[string]any, responses Responses) *Result {
	if err := pc.validate(); err != nil {
		return failure(ctx, pc, err)
	}

	allowed := make([]string, 0, len(preferenceKeys))
	for key := range preferenceKeys {
		allowed = append(allowed, key)
	}
	if err := checkResponses(responses, allowed...); err != nil {
		return failure(ctx, pc, err)
	}

	root := pc.ProjectRoot
	if root == "" {
		root = stringFact(inferred, "project_root")
	}
	if root == "" {
		facts, err := h.projectFacts(pc)
		if err != nil {
			return failure(ctx, pc, err)
		}
		root = facts.Root
	}

	store := projectctx.NewStore(h.logger)
	cfg, err := store.LoadOrInit(ctx, root)
	if err != nil {
		return failure(ctx, pc, err)
	}

	cfg.MergeInferred(record.VCSInfo{
		Type:   stringFact(inferred, "vcs_type"),
		Repo:   stringFact(inferred, "repo"),
		Branch: stringFact(inferred, "branch"),
	}, nil, nil, nil, nil)

	// Every known preference must exist in the record, null until
	// answered, so completion state reflects the full question set.
	for key := range preferenceKeys {
		if _, ok := cfg.Preferences[key]; !ok {
			cfg.Preferences[key] = nil
		}
	}
	for key, value := range responses {
		cfg.Answer(key, value)
	}
	cfg.ConfigComplete = len(cfg.Unanswered()) == 0

	if err := store.Save(ctx, root, cfg); err != nil {
		return failure(ctx, pc, err)
	}

	h.logger.Info(ctx, "project configured",
		zap.String("root", logging.Path(root)),
		zap.Bool("complete", cfg.ConfigComplete))

	msg := "project configuration saved"
	if remaining := cfg.Unanswered(); len(remaining) > 0 {
		sort.Strings(remaining)
		msg = fmt.Sprintf("project configuration saved (%d preferences unanswered: %v)",
			len(remaining), remaining)
	}
	return success(ctx, pc, msg, projectctx.Path(root))
}

func (h *Configure) projectFacts(pc Context) (*detect.Facts, error) {
	dir := pc.WorkDir
	if pc.ProjectRoot != "" {
		dir = pc.ProjectRoot
	}
	return detect.Project(dir)
}

// vcsType reports "git" when detection found repository facts.
func vcsType(facts *detect.Facts) string {
	if facts.Repo != "" || facts.Branch != "" {
		return "git"
	}
	return ""
}
