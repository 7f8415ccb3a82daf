package query

import (
	"fmt"

	"github.com/spf13/cast"
)

// convertResult normalizes scalar results to the method's declared shape.
// Engines report counts and flags in whatever type their driver produces;
// callers always see int64 and bool.
func convertResult(kind ReturnKind, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch kind {
	case ReturnsCount:
		n, err := cast.ToInt64E(value)
		if err != nil {
			return nil, fmt.Errorf("converting result %v to a count: %w", value, err)
		}
		return n, nil
	case ReturnsBool:
		b, err := cast.ToBoolE(value)
		if err != nil {
			return nil, fmt.Errorf("converting result %v to a boolean: %w", value, err)
		}
		return b, nil
	default:
		return value, nil
	}
}
