package phase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakensoul/aida/internal/memento"
	"github.com/oakensoul/aida/internal/pathsec"
	"github.com/oakensoul/aida/internal/projectctx"
	"github.com/oakensoul/aida/internal/record"
)

func testContext(t *testing.T) Context {
	t.Helper()
	home := t.TempDir()
	work := filepath.Join(t.TempDir(), "demo")
	require.NoError(t, os.Mkdir(work, 0o700))
	return Context{Home: home, WorkDir: work}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Deps{})
	assert.Equal(t, []string{"configure", "install", "memento-create", "permissions"}, r.Names())

	h, err := r.Lookup("install")
	require.NoError(t, err)
	assert.Equal(t, "install", h.Name())

	_, err = r.Lookup("bogus")
	require.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", memento.ErrNotFound, KindNotFound},
		{"config not found", projectctx.ErrNotFound, KindNotFound},
		{"conflict", fmt.Errorf("create: %w", memento.ErrConflict), KindConflict},
		{"escape", pathsec.ErrPathEscape, KindPath},
		{"symlink", pathsec.ErrSymlinkComponent, KindPath},
		{"bad slug", record.ErrInvalidSlug, KindValidation},
		{"too deep", record.ErrTooDeep, KindValidation},
		{"immutable", memento.ErrCompleted, KindValidation},
		{"plain", errors.New("disk on fire"), KindIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestCheckResponses(t *testing.T) {
	require.NoError(t, checkResponses(Responses{"slug": "x"}, "slug", "description"))

	err := checkResponses(Responses{"slugg": "x"}, "slug")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slugg")
}

func TestInstall(t *testing.T) {
	ctx := context.Background()
	pc := testContext(t)
	h := NewInstall(Deps{})

	inf, err := h.Infer(ctx, pc)
	require.NoError(t, err)
	assert.Empty(t, inf.Validation)
	assert.Equal(t, memento.DefaultRoot(pc.Home), inf.Inferred["memento_root"])

	res := h.Execute(ctx, pc, inf.Inferred, nil)
	require.True(t, res.Success, res.Message)
	assert.DirExists(t, memento.DefaultRoot(pc.Home))
	assert.DirExists(t, filepath.Join(memento.DefaultRoot(pc.Home), memento.ArchiveDir))

	// Re-running reports the existing layout and still succeeds.
	inf, err = h.Infer(ctx, pc)
	require.NoError(t, err)
	assert.NotEmpty(t, inf.Validation)

	res = h.Execute(ctx, pc, inf.Inferred, nil)
	assert.True(t, res.Success)
}

func TestInstallRejectsUnknownResponses(t *testing.T) {
	pc := testContext(t)
	res := NewInstall(Deps{}).Execute(context.Background(), pc, nil, Responses{"force": "yes"})
	require.False(t, res.Success)
	assert.Equal(t, KindValidation, res.ErrorKind)
}

func TestMementoCreate(t *testing.T) {
	ctx := context.Background()
	pc := testContext(t)
	h := NewMementoCreate(Deps{})

	inf, err := h.Infer(ctx, pc)
	require.NoError(t, err)
	assert.Equal(t, "demo", inf.Inferred["project"])
	require.NotEmpty(t, inf.Questions)
	assert.Equal(t, "slug", inf.Questions[0].Key)

	res := h.Execute(ctx, pc, inf.Inferred, Responses{
		"slug":        "fix-auth-bug",
		"description": "Track the auth fix",
		"context":     "JWT validation rejects valid tokens",
	})
	require.True(t, res.Success, res.Message)

	store, err := memento.NewStore(memento.DefaultRoot(pc.Home), nil)
	require.NoError(t, err)
	m, err := store.Read(ctx, record.Key{Project: "demo", Slug: "fix-auth-bug"})
	require.NoError(t, err)
	assert.Equal(t, record.StatusActive, m.Status)
	body, ok := m.Section("Context")
	require.True(t, ok)
	assert.Equal(t, "JWT validation rejects valid tokens", body)

	// Same key again is a conflict, not an overwrite.
	res = h.Execute(ctx, pc, inf.Inferred, Responses{
		"slug":        "fix-auth-bug",
		"description": "Duplicate",
	})
	require.False(t, res.Success)
	assert.Equal(t, KindConflict, res.ErrorKind)
}

func TestMementoCreateValidation(t *testing.T) {
	ctx := context.Background()
	pc := testContext(t)
	h := NewMementoCreate(Deps{})
	inferred := map[string]any{"project": "demo"}

	res := h.Execute(ctx, pc, inferred, Responses{"slug": "../etc", "description": "x"})
	require.False(t, res.Success)
	assert.Equal(t, KindValidation, res.ErrorKind)

	res = h.Execute(ctx, pc, inferred, Responses{"slug": "ok-slug", "description": "x", "bogus": "y"})
	require.False(t, res.Success)
	assert.Equal(t, KindValidation, res.ErrorKind)

	// Nothing was written by the failed attempts.
	store, err := memento.NewStore(memento.DefaultRoot(pc.Home), nil)
	require.NoError(t, err)
	all, err := store.List(ctx, memento.ListOptions{AllProjects: true, Status: memento.FilterAll})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestConfigure(t *testing.T) {
	ctx := context.Background()
	pc := testContext(t)
	h := NewConfigure(Deps{})

	inf, err := h.Infer(ctx, pc)
	require.NoError(t, err)
	assert.Len(t, inf.Questions, len(preferenceKeys))

	res := h.Execute(ctx, pc, inf.Inferred, Responses{"commit_style": "conventional"})
	require.True(t, res.Success, res.Message)
	assert.Contains(t, res.Message, "unanswered")

	cfg, err := projectctx.NewStore(nil).Load(ctx, pc.WorkDir)
	require.NoError(t, err)
	require.NotNil(t, cfg.Preferences["commit_style"])
	assert.Equal(t, "conventional", *cfg.Preferences["commit_style"])
	assert.False(t, cfg.ConfigComplete)

	// Unanswered preferences exist as explicit nulls.
	v, ok := cfg.Preferences["verbosity"]
	assert.True(t, ok)
	assert.Nil(t, v)

	// Second infer only asks what is still open.
	inf, err = h.Infer(ctx, pc)
	require.NoError(t, err)
	assert.Len(t, inf.Questions, len(preferenceKeys)-1)

	res = h.Execute(ctx, pc, inf.Inferred, Responses{
		"test_before_commit": "yes",
		"verbosity":          "terse",
	})
	require.True(t, res.Success, res.Message)

	cfg, err = projectctx.NewStore(nil).Load(ctx, pc.WorkDir)
	require.NoError(t, err)
	assert.True(t, cfg.ConfigComplete)
}

func TestConfigureRejectsUnknownPreference(t *testing.T) {
	pc := testContext(t)
	res := NewConfigure(Deps{}).Execute(context.Background(), pc, nil, Responses{"favorite_color": "blue"})
	require.False(t, res.Success)
	assert.Equal(t, KindValidation, res.ErrorKind)
}

func TestPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	ctx := context.Background()
	pc := testContext(t)
	h := NewPermissions(Deps{})

	// Missing layout fails execute.
	res := h.Execute(ctx, pc, nil, nil)
	require.False(t, res.Success)
	assert.Equal(t, KindNotFound, res.ErrorKind)

	root := memento.DefaultRoot(pc.Home)
	store, err := memento.NewStore(root, nil)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, &record.Memento{
		Slug:        "loose",
		Description: "permissions fixture",
		Project:     record.ProjectInfo{Name: "demo"},
	}))

	loose := filepath.Join(root, "demo--loose.md")
	require.NoError(t, os.Chmod(loose, 0o644))
	require.NoError(t, os.Chmod(root, 0o755))

	inf, err := h.Infer(ctx, pc)
	require.NoError(t, err)
	assert.Len(t, inf.Validation, 2)

	res = h.Execute(ctx, pc, nil, nil)
	require.True(t, res.Success, res.Message)
	assert.Len(t, res.Paths, 2)

	info, err := os.Stat(loose)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	info, err = os.Stat(root)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	// Clean tree is a no-op success.
	res = h.Execute(ctx, pc, nil, nil)
	require.True(t, res.Success)
	assert.Empty(t, res.Paths)
}

func TestNewRequestContext(t *testing.T) {
	ctx, id := NewRequestContext(context.Background(), "install")
	assert.NotEmpty(t, id)

	res := failure(ctx, Context{}, errors.New("boom"))
	assert.Equal(t, id, res.RequestID)
	assert.Equal(t, KindIO, res.ErrorKind)
}

func TestHandlersConstructWithEmptyDeps(t *testing.T) {
	// Bare construction must not require a logger.
	assert.NotPanics(t, func() {
		NewMementoCreate(Deps{})
		NewConfigure(Deps{})
		NewInstall(Deps{})
		NewPermissions(Deps{})
	})
}

func TestFailureRedactsHomePaths(t *testing.T) {
	ctx := context.Background()
	pc := testContext(t)

	// A file where the layout directory belongs makes every store open
	// fail with an os error that carries the absolute path.
	require.NoError(t, os.WriteFile(filepath.Join(pc.Home, ".claude"), []byte("x"), 0o600))

	res := NewInstall(Deps{}).Execute(ctx, pc, nil, nil)
	require.False(t, res.Success)
	assert.NotContains(t, res.Message, pc.Home)
	assert.Contains(t, res.Message, "~")

	res = NewMementoCreate(Deps{}).Execute(ctx, pc, map[string]any{"project": "demo"}, Responses{
		"slug":        "fix-auth-bug",
		"description": "Track the auth fix",
	})
	require.False(t, res.Success)
	assert.NotContains(t, res.Message, pc.Home)
}

func TestStoreRootOverride(t *testing.T) {
	ctx := context.Background()
	pc := testContext(t)
	custom := filepath.Join(t.TempDir(), "records")
	deps := Deps{MementoRoot: custom}

	res := NewInstall(deps).Execute(ctx, pc, nil, nil)
	require.True(t, res.Success, res.Message)
	assert.DirExists(t, custom)
	assert.DirExists(t, filepath.Join(custom, memento.ArchiveDir))
	assert.NoDirExists(t, memento.DefaultRoot(pc.Home))

	res = NewMementoCreate(deps).Execute(ctx, pc, map[string]any{"project": "demo"}, Responses{
		"slug":        "fix-auth-bug",
		"description": "Track the auth fix",
	})
	require.True(t, res.Success, res.Message)

	store, err := memento.NewStore(custom, nil)
	require.NoError(t, err)
	_, err = store.Read(ctx, record.Key{Project: "demo", Slug: "fix-auth-bug"})
	require.NoError(t, err)
}
