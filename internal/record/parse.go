// Package record defines the stored record types and their bounded codec.
//
// All structured text entering the system passes through ParseBounded,
// which enforces byte and nesting limits before any caller-visible
// unmarshaling. Parsing never executes code, resolves anchors into
// external references, or follows includes.
package record

import (
	"errors"
	"fmt"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Limits bounds the size and nesting of parsed structured data.
type Limits struct {
	// MaxBytes is checked against the raw input before parsing.
	MaxBytes int

	// MaxDepth is the maximum nesting of maps and sequences, checked by
	// walking the parsed tree. A flat document has depth 1; each level of
	// map or sequence nesting adds one.
	MaxDepth int
}

// Default limits per payload class. Mementos are deliberately lightweight.
var (
	DefaultLimits = Limits{MaxBytes: 1 << 20, MaxDepth: 10}
	MementoLimits = Limits{MaxBytes: 100 << 10, MaxDepth: 10}
)

// Validation errors reported by the bounded parser.
var (
	// ErrTooLarge indicates the input exceeds the byte limit.
	ErrTooLarge = errors.New("input exceeds size limit")

	// ErrTooDeep indicates the parsed structure exceeds the depth limit.
	ErrTooDeep = errors.New("structure exceeds depth limit")

	// ErrMalformed indicates the input is not valid structured text.
	ErrMalformed = errors.New("malformed structured data")
)

// ParseBounded parses YAML input into a map after enforcing limits.
//
// The size check runs before the parser ever sees the input; the depth
// check walks the resulting tree. Errors name the violated constraint so
// callers can report it field-level rather than surfacing raw parser
// exceptions.
func ParseBounded(data []byte, limits Limits) (map[string]any, error) {
	if limits.MaxBytes > 0 && len(data) > limits.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), limits.MaxBytes)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), kyaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	tree := k.Raw()

	if limits.MaxDepth > 0 {
		if d := depthOf(tree); d > limits.MaxDepth {
			return nil, fmt.Errorf("%w: depth %d (max %d)", ErrTooDeep, d, limits.MaxDepth)
		}
	}
	return tree, nil
}

// depthOf measures container nesting. Scalars contribute no depth; each
// enclosing map or sequence adds one level.
func depthOf(v any) int {
	var children []any
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			children = append(children, child)
		}
	case []any:
		children = t
	default:
		return 0
	}

	max := 0
	for _, child := range children {
		if d := depthOf(child); d > max {
			max = d
		}
	}
	return max + 1
}
