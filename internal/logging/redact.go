package logging

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// RedactingEncoder wraps a zapcore.Encoder to redact sensitive field
// values and rewrite absolute home-directory paths to "~" so log output
// never carries the user's login name.
type RedactingEncoder struct {
	zapcore.Encoder
	redactFields map[string]bool
	home         string
}

// NewRedactingEncoder wraps an encoder with the given redaction rules.
func NewRedactingEncoder(base zapcore.Encoder, cfg RedactionConfig) *RedactingEncoder {
	fields := make(map[string]bool, len(cfg.Fields))
	for _, f := range cfg.Fields {
		fields[strings.ToLower(f)] = true
	}

	home := ""
	if cfg.HomePaths {
		if h, err := os.UserHomeDir(); err == nil && h != "" && h != "/" {
			home = h
		}
	}

	return &RedactingEncoder{
		Encoder:      base,
		redactFields: fields,
		home:         home,
	}
}

func (e *RedactingEncoder) shouldRedactKey(key string) bool {
	return e.redactFields[strings.ToLower(key)]
}

// rewriteHome replaces any occurrence of the home directory with "~".
func (e *RedactingEncoder) rewriteHome(val string) string {
	if e.home == "" || !strings.Contains(val, e.home) {
		return val
	}
	return strings.ReplaceAll(val, e.home, "~")
}

// AddString redacts sensitive field names and rewrites home paths.
func (e *RedactingEncoder) AddString(key, val string) {
	if e.shouldRedactKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return
	}
	e.Encoder.AddString(key, e.rewriteHome(val))
}

// AddByteString redacts sensitive field names.
func (e *RedactingEncoder) AddByteString(key string, val []byte) {
	if e.shouldRedactKey(key) {
		e.Encoder.AddByteString(key, []byte("[REDACTED]"))
		return
	}
	e.Encoder.AddByteString(key, []byte(e.rewriteHome(string(val))))
}

// AddReflected redacts sensitive field names whole.
func (e *RedactingEncoder) AddReflected(key string, val interface{}) error {
	if e.shouldRedactKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

// AddArray redacts sensitive field names whole.
func (e *RedactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.shouldRedactKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

// AddObject redacts sensitive field names whole.
func (e *RedactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.shouldRedactKey(key) {
		e.Encoder.AddString(key, "[REDACTED]")
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

// EncodeEntry routes per-entry fields through the redacting overrides.
// The embedded encoder's EncodeEntry would otherwise encode fields with
// its own Add methods and bypass redaction.
func (e *RedactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	clone := e.Clone().(*RedactingEncoder)
	for _, f := range fields {
		f.AddTo(clone)
	}
	return clone.Encoder.EncodeEntry(ent, nil)
}

// Clone creates a copy of the encoder.
func (e *RedactingEncoder) Clone() zapcore.Encoder {
	return &RedactingEncoder{
		Encoder:      e.Encoder.Clone(),
		redactFields: e.redactFields,
		home:         e.home,
	}
}

// Path returns a zap-friendly representation of path with the home
// directory collapsed to "~". Useful for fields built outside the
// encoder, e.g. error messages assembled before logging.
func Path(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" || home == "/" {
		return path
	}
	if path == home {
		return "~"
	}
	if rel, err := filepath.Rel(home, path); err == nil && !strings.HasPrefix(rel, "..") && rel != "." {
		return filepath.Join("~", rel)
	}
	return path
}
