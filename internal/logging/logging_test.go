package logging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewLoggerInvalidFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg)
	require.Error(t, err)
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ContextFields(ctx))

	ctx = WithRequestID(ctx, "req-123")
	ctx = WithOperation(ctx, "memento.create")

	fields := ContextFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "request.id", fields[0].Key)
	assert.Equal(t, "req-123", fields[0].String)
	assert.Equal(t, "operation", fields[1].Key)
}

func TestFromContextFallback(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)

	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}

func TestRedactingEncoderFields(t *testing.T) {
	enc := NewRedactingEncoder(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		RedactionConfig{Enabled: true, Fields: []string{"token"}, HomePaths: true},
	)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "m"}, []zapcore.Field{
		zap.String("token", "super-secret"),
		zap.String("path", "/etc/hosts"),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "super-secret")
	assert.Contains(t, out, "/etc/hosts")
}

func TestRedactingEncoderHomePaths(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	enc := NewRedactingEncoder(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		RedactionConfig{Enabled: true, HomePaths: true},
	)

	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "m"}, []zapcore.Field{
		zap.String("path", filepath.Join(home, ".claude", "memento")),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, home)
	assert.Contains(t, out, "~/.claude/memento")
}

func TestPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, "~", Path(home))
	assert.Equal(t, "~/x", Path(filepath.Join(home, "x")))
	assert.Equal(t, "/etc/hosts", Path("/etc/hosts"))
}
