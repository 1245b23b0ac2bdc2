package tracking

import (
	"fmt"
)

// Operator names a filter comparison.
type Operator string

// Exported constants.
const (
	OpIs    Operator = "is"
	OpIsNot Operator = "is_not"
	OpIn    Operator = "in"
)

// Filter is one condition of a Find query. Multiple filters are AND-ed.
// Field may be a dotted deep path such as "sg_sequence.Sequence.assets".
type Filter struct {
	Field string
	Op    Operator
	Value any
}

// Is builds an equality filter.
func Is(field string, value any) Filter {
	return Filter{Field: field, Op: OpIs, Value: value}
}

// IsNot builds an inequality filter.
func IsNot(field string, value any) Filter {
	return Filter{Field: field, Op: OpIsNot, Value: value}
}

// In builds a membership filter.
func In[T any](field string, values ...T) Filter {
	items := make([]any, len(values))
	for i, v := range values {
		items[i] = v
	}

	return Filter{Field: field, Op: OpIn, Value: items}
}

// matches evaluates the filter against an already-resolved field value.
// A list-valued field matches when any element matches.
func (f Filter) matches(fieldValue any) (bool, error) {
	switch f.Op {
	case OpIs:
		return anyElement(fieldValue, func(v any) bool { return valuesEqual(v, f.Value) }), nil
	case OpIsNot:
		return !anyElement(fieldValue, func(v any) bool { return valuesEqual(v, f.Value) }), nil
	case OpIn:
		candidates, ok := f.Value.([]any)
		if !ok {
			return false, fmt.Errorf("filter %q: %s needs a list value", f.Field, f.Op) //nolint:err113 // Query construction error
		}

		return anyElement(fieldValue, func(v any) bool {
			for _, candidate := range candidates {
				if valuesEqual(v, candidate) {
					return true
				}
			}

			return false
		}), nil
	default:
		return false, fmt.Errorf("filter %q: unknown operator %q", f.Field, f.Op) //nolint:err113 // Query construction error
	}
}

func anyElement(value any, pred func(any) bool) bool {
	switch list := value.(type) {
	case []any:
		for _, item := range list {
			if pred(item) {
				return true
			}
		}

		return false
	case []Link:
		for _, item := range list {
			if pred(item) {
				return true
			}
		}

		return false
	default:
		return pred(value)
	}
}
