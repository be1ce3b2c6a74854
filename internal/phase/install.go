package phase

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/oakensoul/aida/internal/logging"
	"github.com/oakensoul/aida/internal/memento"
)

// Install creates the per-user record layout under ~/.claude: the memento
// store root and its archive. Re-running against an existing layout is a
// no-op success.
type Install struct {
	deps   Deps
	logger *logging.Logger
}

// NewInstall builds the install operation.
func NewInstall(deps Deps) *Install {
	return &Install{deps: deps, logger: deps.logger().Named("install")}
}

func (h *Install) Name() string { return "install" }

// Infer reports which pieces of the layout already exist. It creates
// nothing.
func (h *Install) Infer(ctx context.Context, pc Context) (*Inference, error) {
	if err := pc.validate(); err != nil {
		return nil, err
	}

	root := h.deps.storeRoot(pc)
	archive := filepath.Join(root, memento.ArchiveDir)

	inf := &Inference{
		Inferred: map[string]any{
			"memento_root": root,
			"archive":      archive,
		},
	}
	if dirExists(root) {
		inf.Validation = append(inf.Validation, "memento store already present")
	}
	if dirExists(archive) {
		inf.Validation = append(inf.Validation, "archive already present")
	}
	return inf, nil
}

// Execute creates the layout with owner-only permissions.
func (h *Install) Execute(ctx context.Context, pc Context, inferred map[string]any, responses Responses) *Result {
	if err := pc.validate(); err != nil {
		return failure(ctx, pc, err)
	}
	if err := checkResponses(responses); err != nil {
		return failure(ctx, pc, err)
	}

	// NewStore performs the actual creation: both directories, 0700,
	// symlinked components refused.
	store, err := h.deps.mementoStore(pc, h.logger)
	if err != nil {
		return failure(ctx, pc, err)
	}

	root := store.Root()
	archive := filepath.Join(root, memento.ArchiveDir)
	h.logger.Info(ctx, "record layout installed",
		zap.String("root", logging.Path(root)))
	return success(ctx, pc, "record layout installed", root, archive)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
