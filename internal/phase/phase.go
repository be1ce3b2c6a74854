// Package phase implements the two-phase request protocol every
// higher-level operation follows: a read-only infer pass that gathers
// facts and outstanding questions, then a single execute pass that
// validates the merged input and performs exactly one store mutation.
//
// The calling orchestrator cannot hold state between process
// invocations, so everything execute needs is round-tripped explicitly
// through Context, the inferred map, and the responses. Both phases are
// pure functions of their inputs.
package phase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/oakensoul/aida/internal/atomicfile"
	"github.com/oakensoul/aida/internal/logging"
	"github.com/oakensoul/aida/internal/memento"
	"github.com/oakensoul/aida/internal/pathsec"
	"github.com/oakensoul/aida/internal/projectctx"
	"github.com/oakensoul/aida/internal/record"
)

// Error kinds reported in Result. The orchestrator branches on these, so
// the set is fixed.
const (
	KindPath       = "path"
	KindValidation = "validation"
	KindNotFound   = "not_found"
	KindConflict   = "conflict"
	KindIO         = "io"
)

// Context carries the explicit roots an operation works against. No
// handler reads ambient global state; everything comes through here.
type Context struct {
	// Home is the user's home directory.
	Home string `json:"home"`

	// WorkDir is the caller's current working directory.
	WorkDir string `json:"work_dir"`

	// ProjectRoot overrides detection of the project root (optional).
	ProjectRoot string `json:"project_root,omitempty"`

	// Project overrides the detected project namespace (optional).
	Project string `json:"project,omitempty"`
}

// Question is a field the orchestrator still needs the user to answer.
type Question struct {
	Key     string   `json:"key"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
}

// Inference is the infer-phase payload.
type Inference struct {
	Questions  []Question     `json:"questions"`
	Inferred   map[string]any `json:"inferred"`
	Validation []string       `json:"validation,omitempty"`
}

// Responses are the user-supplied answers fed into execute.
type Responses map[string]string

// Result is the execute-phase payload. Execute always returns one; no
// failure inside a handler surfaces as an unhandled fault.
type Result struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	ErrorKind string   `json:"error_kind,omitempty"`
	Paths     []string `json:"paths,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// Handler is one logical operation exposed through the two-phase
// protocol.
type Handler interface {
	// Name identifies the operation in the protocol and the registry.
	Name() string

	// Infer gathers facts and outstanding questions. It performs no
	// writes and may be called any number of times.
	Infer(ctx context.Context, pc Context) (*Inference, error)

	// Execute merges inferred facts with responses, validates, and
	// performs at most one store mutation.
	Execute(ctx context.Context, pc Context, inferred map[string]any, responses Responses) *Result
}

// Deps bundles the collaborators handlers share.
type Deps struct {
	Logger *logging.Logger

	// MementoRoot overrides the store location. Empty means the
	// conventional location under the request context's home.
	MementoRoot string
}

// logger returns the configured logger, or a nop logger so handlers can
// be constructed bare.
func (d Deps) logger() *logging.Logger {
	if d.Logger == nil {
		return logging.NewNop()
	}
	return d.Logger
}

// storeRoot returns the memento store location for a request.
func (d Deps) storeRoot(pc Context) string {
	if d.MementoRoot != "" {
		return d.MementoRoot
	}
	return memento.DefaultRoot(pc.Home)
}

// mementoStore opens (creating if needed) the memento store for a
// request.
func (d Deps) mementoStore(pc Context, logger *logging.Logger) (*memento.Store, error) {
	return memento.NewStore(d.storeRoot(pc), logger)
}

// Registry holds the available operations.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds the standard operation set.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{handlers: map[string]Handler{}}
	r.register(NewMementoCreate(deps))
	r.register(NewConfigure(deps))
	r.register(NewInstall(deps))
	r.register(NewPermissions(deps))
	return r
}

func (r *Registry) register(h Handler) {
	r.handlers[h.Name()] = h
}

// Lookup returns the named handler.
func (r *Registry) Lookup(name string) (Handler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("unknown operation %q (available: %v)", name, r.Names())
	}
	return h, nil
}

// Names lists registered operations, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewRequestContext attaches a fresh request ID and the operation name to
// ctx for log correlation, returning the ID.
func NewRequestContext(ctx context.Context, op string) (context.Context, string) {
	id := uuid.NewString()
	ctx = logging.WithRequestID(ctx, id)
	ctx = logging.WithOperation(ctx, op)
	return ctx, id
}

// errInvalidInput marks malformed protocol input: missing context fields
// or response keys outside an operation's field set.
var errInvalidInput = errors.New("invalid request input")

// validate checks a protocol context's required fields.
func (pc Context) validate() error {
	if pc.Home == "" {
		return fmt.Errorf("%w: context.home is required", errInvalidInput)
	}
	if pc.WorkDir == "" {
		return fmt.Errorf("%w: context.work_dir is required", errInvalidInput)
	}
	return nil
}

// failure builds a failed Result from err, classifying it into the fixed
// error-kind set and rewriting the home directory to "~" in the message.
// Wrapped os errors carry raw absolute paths, so the whole rendered chain
// is scrubbed, not just the outer wrap.
func failure(ctx context.Context, pc Context, err error) *Result {
	return &Result{
		Success:   false,
		Message:   redactHome(err.Error(), pc.Home),
		ErrorKind: classify(err),
		RequestID: logging.RequestIDFromContext(ctx),
	}
}

// success builds a successful Result.
func success(ctx context.Context, pc Context, message string, paths ...string) *Result {
	redacted := make([]string, len(paths))
	for i, p := range paths {
		redacted[i] = redactHome(logging.Path(p), pc.Home)
	}
	return &Result{
		Success:   true,
		Message:   redactHome(message, pc.Home),
		Paths:     redacted,
		RequestID: logging.RequestIDFromContext(ctx),
	}
}

// redactHome rewrites occurrences of the request's home directory, and
// the process owner's, to "~" anywhere in s.
func redactHome(s, home string) string {
	if home != "" && home != "/" {
		s = strings.ReplaceAll(s, home, "~")
	}
	if sys, err := os.UserHomeDir(); err == nil && sys != "" && sys != "/" && sys != home {
		s = strings.ReplaceAll(s, sys, "~")
	}
	return s
}

// classify maps an error chain onto the protocol's error kinds.
func classify(err error) string {
	switch {
	case errors.Is(err, memento.ErrNotFound),
		errors.Is(err, projectctx.ErrNotFound),
		errors.Is(err, pathsec.ErrNotFound):
		return KindNotFound
	case errors.Is(err, memento.ErrConflict),
		errors.Is(err, atomicfile.ErrExists):
		return KindConflict
	case errors.Is(err, pathsec.ErrPathEscape),
		errors.Is(err, pathsec.ErrSymlinkComponent),
		errors.Is(err, pathsec.ErrNullByte),
		errors.Is(err, pathsec.ErrEmptyPath):
		return KindPath
	case errors.Is(err, errInvalidInput),
		errors.Is(err, record.ErrInvalidSlug),
		errors.Is(err, record.ErrInvalidProjectName),
		errors.Is(err, record.ErrInvalidStatus),
		errors.Is(err, record.ErrInvalidVersion),
		errors.Is(err, record.ErrMissingDescription),
		errors.Is(err, record.ErrMissingFrontmatter),
		errors.Is(err, record.ErrTooLarge),
		errors.Is(err, record.ErrTooDeep),
		errors.Is(err, record.ErrMalformed),
		errors.Is(err, memento.ErrCompleted):
		return KindValidation
	default:
		return KindIO
	}
}

// checkResponses rejects response keys outside the operation's closed
// field set, catching malformed input at the boundary instead of deep
// inside a merge.
func checkResponses(responses Responses, allowed ...string) error {
	set := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		set[k] = true
	}
	for k := range responses {
		if !set[k] {
			return fmt.Errorf("%w: unknown response field %q", errInvalidInput, k)
		}
	}
	return nil
}

// stringFact reads a string fact from the inferred map, tolerating
// absence.
func stringFact(inferred map[string]any, key string) string {
	if v, ok := inferred[key].(string); ok {
		return v
	}
	return ""
}

