package binding

import (
	"fmt"
	"reflect"

	"github.com/ekaya-inc/repoquery/pkg/domain"
)

// Accessor pairs a declared parameter list with the values of one
// invocation. It answers both value lookups by parameter and the special
// Sort and Pageable arguments.
type Accessor struct {
	params *Parameters
	values []any
}

// NewAccessor validates the invocation values against the declaration.
func NewAccessor(params *Parameters, values []any) (*Accessor, error) {
	if len(values) != params.Len() {
		return nil, fmt.Errorf("expected %d arguments, got %d", params.Len(), len(values))
	}
	return &Accessor{params: params, values: values}, nil
}

// Parameters returns the declaration the accessor was built for.
func (a *Accessor) Parameters() *Parameters { return a.params }

// Value returns the invocation value for the given parameter.
func (a *Accessor) Value(p *Parameter) any {
	return a.values[p.Index]
}

// Values returns all invocation values in declaration order.
func (a *Accessor) Values() []any { return a.values }

// Pageable returns the Pageable argument, or an unpaged request when the
// method declares none. A declared Sort argument is folded in so callers
// see one consolidated request.
func (a *Accessor) Pageable() domain.Pageable {
	if i := a.params.PageableIndex(); i >= 0 {
		if p, ok := a.values[i].(domain.Pageable); ok {
			return p
		}
	}
	return domain.UnpagedRequest(a.Sort())
}

// Sort returns the effective sort of this invocation: the Sort argument if
// declared, otherwise the sort carried by the Pageable.
func (a *Accessor) Sort() domain.Sort {
	if i := a.params.SortIndex(); i >= 0 {
		if s, ok := a.values[i].(domain.Sort); ok {
			return s
		}
	}
	if i := a.params.PageableIndex(); i >= 0 {
		if p, ok := a.values[i].(domain.Pageable); ok {
			return p.Sort
		}
	}
	return domain.Unsorted()
}

// ProjectionType returns the dynamic projection argument, or nil.
func (a *Accessor) ProjectionType() reflect.Type {
	if i := a.params.DynamicProjectionIndex(); i >= 0 {
		if t, ok := a.values[i].(reflect.Type); ok {
			return t
		}
	}
	return nil
}

// BindableValues returns the values of bindable parameters in declaration
// order.
func (a *Accessor) BindableValues() []any {
	out := make([]any, 0, a.params.NumberOfBindable())
	for _, p := range a.params.Bindable() {
		out = append(out, a.values[p.Index])
	}
	return out
}

// ValueIterator walks bindable values one at a time, the order derived
// query parts consume them in.
type ValueIterator struct {
	accessor *Accessor
	next     int
}

// Iterator returns a fresh bindable value iterator.
func (a *Accessor) Iterator() *ValueIterator {
	return &ValueIterator{accessor: a}
}

// HasNext reports whether another bindable value remains.
func (it *ValueIterator) HasNext() bool {
	return it.next < it.accessor.params.NumberOfBindable()
}

// Next returns the next bindable value.
func (it *ValueIterator) Next() (any, error) {
	if !it.HasNext() {
		return nil, fmt.Errorf("no more bindable values, already consumed %d", it.next)
	}
	p := it.accessor.params.Bindable()[it.next]
	it.next++
	return it.accessor.values[p.Index], nil
}
