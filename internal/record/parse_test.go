package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBounded(t *testing.T) {
	got, err := ParseBounded([]byte("a: 1\nb:\n  c: two\n"), DefaultLimits)
	require.NoError(t, err)
	assert.Equal(t, 1, got["a"])
	assert.Equal(t, map[string]any{"c": "two"}, got["b"])
}

func TestParseBoundedSizeLimit(t *testing.T) {
	limits := Limits{MaxBytes: 64, MaxDepth: 10}

	// Exactly at the limit parses.
	at := []byte("key: " + strings.Repeat("a", 64-len("key: \n")) + "\n")
	require.Len(t, at, 64)
	_, err := ParseBounded(at, limits)
	require.NoError(t, err)

	// One byte over is rejected before parsing (the payload is not even
	// valid YAML, and the error must still be the size error).
	over := append([]byte("{{{{"), make([]byte, 61)...)
	_, err = ParseBounded(over, limits)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestParseBoundedDepthLimit(t *testing.T) {
	nested := func(depth int) []byte {
		var sb strings.Builder
		for i := 0; i < depth; i++ {
			sb.WriteString(strings.Repeat("  ", i))
			sb.WriteString("k:\n")
		}
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString("leaf: 1\n")
		return []byte(sb.String())
	}

	// depth containers = depth maps + innermost map = depth+1 levels.
	limits := Limits{MaxBytes: 1 << 20, MaxDepth: 10}

	_, err := ParseBounded(nested(9), limits)
	require.NoError(t, err)

	_, err = ParseBounded(nested(10), limits)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTooDeep)
}

func TestParseBoundedMalformed(t *testing.T) {
	_, err := ParseBounded([]byte("key: [unclosed\n"), DefaultLimits)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDepthOf(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int
	}{
		{"scalar", "x", 0},
		{"flat map", map[string]any{"a": 1}, 1},
		{"nested map", map[string]any{"a": map[string]any{"b": 1}}, 2},
		{"sequence of maps", []any{map[string]any{"a": 1}}, 2},
		{"empty map", map[string]any{}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, depthOf(tt.in))
		})
	}
}
