package phase

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/oakensoul/aida/internal/logging"
	"github.com/oakensoul/aida/internal/memento"
)

// Record permissions enforced by the permissions operation.
const (
	dirMode  = os.FileMode(0o700)
	fileMode = os.FileMode(0o600)
)

// Permissions audits and tightens modes on the record tree: directories
// to 0700, record files to 0600. Infer reports offenders; execute fixes
// them.
type Permissions struct {
	deps   Deps
	logger *logging.Logger
}

// NewPermissions builds the permissions operation.
func NewPermissions(deps Deps) *Permissions {
	return &Permissions{deps: deps, logger: deps.logger().Named("permissions")}
}

func (h *Permissions) Name() string { return "permissions" }

// Infer walks the record tree and lists entries whose modes are looser
// than the policy. Nothing is modified.
func (h *Permissions) Infer(ctx context.Context, pc Context) (*Inference, error) {
	if err := pc.validate(); err != nil {
		return nil, err
	}

	root := h.deps.storeRoot(pc)
	inf := &Inference{Inferred: map[string]any{"memento_root": root}}

	offenders, err := auditTree(root)
	if err != nil {
		return nil, err
	}
	for _, o := range offenders {
		inf.Validation = append(inf.Validation,
			fmt.Sprintf("%s has mode %s, want %s",
				logging.Path(o.path), o.mode, o.want))
	}
	return inf, nil
}

// Execute chmods every offending entry. Missing layout is a not-found
// failure rather than a silent no-op, since an audit against nothing is
// meaningless.
func (h *Permissions) Execute(ctx context.Context, pc Context, inferred map[string]any, responses Responses) *Result {
	if err := pc.validate(); err != nil {
		return failure(ctx, pc, err)
	}
	if err := checkResponses(responses); err != nil {
		return failure(ctx, pc, err)
	}

	root := h.deps.storeRoot(pc)
	if !dirExists(root) {
		return failure(ctx, pc, fmt.Errorf("record layout missing at %s: %w",
			logging.Path(root), memento.ErrNotFound))
	}

	offenders, err := auditTree(root)
	if err != nil {
		return failure(ctx, pc, err)
	}

	var fixed []string
	for _, o := range offenders {
		if err := os.Chmod(o.path, o.want); err != nil {
			return failure(ctx, pc, fmt.Errorf("tightening %s: %w", logging.Path(o.path), err))
		}
		fixed = append(fixed, o.path)
	}

	h.logger.Info(ctx, "permissions tightened",
		zap.String("root", logging.Path(root)),
		zap.Int("fixed", len(fixed)))
	if len(fixed) == 0 {
		return success(ctx, pc, "permissions already correct")
	}
	return success(ctx, pc, fmt.Sprintf("tightened %d entries", len(fixed)), fixed...)
}

type permOffender struct {
	path string
	mode os.FileMode
	want os.FileMode
}

// auditTree lists entries under root whose permission bits exceed the
// policy. Symlinks are reported as-is and never followed.
func auditTree(root string) ([]permOffender, error) {
	var offenders []permOffender
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		want := fileMode
		if d.IsDir() {
			want = dirMode
		}
		if perm := info.Mode().Perm(); perm&^want != 0 {
			offenders = append(offenders, permOffender{path: path, mode: perm, want: want})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("auditing record tree: %w", err)
	}
	return offenders, nil
}
