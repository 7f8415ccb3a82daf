package criteria

import (
	"reflect"

	"github.com/ekaya-inc/repoquery/pkg/binding"
)

// Instantiated is a criteria template paired with the prepared bind values
// of one invocation. Equality comparisons against nil arguments are
// rewritten into IS [NOT] NULL restrictions, so Where may differ from the
// template's predicate.
type Instantiated struct {
	Template *Query
	Where    Predicate
	Values   map[string]any
}

// Instantiate applies the invocation's arguments to the template: values
// are prepared per placeholder, and equality placeholders receiving nil
// turn into null restrictions instead of binding.
func (q *Query) Instantiate(accessor *binding.Accessor) (*Instantiated, error) {
	values := make(map[string]any, len(q.Metadata))
	var nulls map[*ParameterMetadata]bool

	for _, m := range q.Metadata {
		value := accessor.Value(m.Parameter)
		if isNilValue(value) {
			value = nil
		}
		if m.IsNullEquality(value) {
			if nulls == nil {
				nulls = make(map[*ParameterMetadata]bool)
			}
			nulls[m] = true
			continue
		}
		values[m.Name] = m.Prepare(value)
	}

	where := q.Where
	if len(nulls) > 0 {
		where = rewriteNullEqualities(where, nulls)
	}
	return &Instantiated{Template: q, Where: where, Values: values}, nil
}

// rewriteNullEqualities clones the predicate tree, replacing comparisons
// whose placeholder received nil with null restrictions.
func rewriteNullEqualities(p Predicate, nulls map[*ParameterMetadata]bool) Predicate {
	switch t := p.(type) {
	case *Comparison:
		if t.Value != nil && nulls[t.Value.Metadata] {
			return &Null{Path: t.Path, Negated: t.Op == OpNotEqual}
		}
		return t
	case *And:
		out := make([]Predicate, len(t.Predicates))
		for i, child := range t.Predicates {
			out[i] = rewriteNullEqualities(child, nulls)
		}
		return &And{Predicates: out}
	case *Or:
		out := make([]Predicate, len(t.Predicates))
		for i, child := range t.Predicates {
			out[i] = rewriteNullEqualities(child, nulls)
		}
		return &Or{Predicates: out}
	default:
		return p
	}
}

// isNilValue reports nil including typed nil pointers, slices and maps.
func isNilValue(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}
