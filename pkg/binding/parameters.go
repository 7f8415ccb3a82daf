package binding

import (
	"fmt"
	"reflect"

	"github.com/ekaya-inc/repoquery/pkg/domain"
)

// Parameter declares one parameter of a repository query method. Index is
// the zero-based position within the method's parameter list; Name is the
// declared bind name, if any. Special parameters (Sort and Pageable) shape
// the query but never bind into it.
type Parameter struct {
	Name     string
	Index    int
	Type     reflect.Type
	Temporal domain.TemporalType

	// DynamicProjection marks a parameter that selects the result type at
	// invocation time instead of binding into the query.
	DynamicProjection bool
}

var (
	sortType     = reflect.TypeOf(domain.Sort{})
	pageableType = reflect.TypeOf(domain.Pageable{})
)

// IsSpecial reports whether the parameter influences query shape rather
// than binding a value.
func (p *Parameter) IsSpecial() bool {
	return p.Type == sortType || p.Type == pageableType || p.DynamicProjection
}

// IsBindable reports whether the parameter's value is bound into the query.
func (p *Parameter) IsBindable() bool {
	return !p.IsSpecial()
}

// IsNamed reports whether the parameter declares an explicit bind name.
func (p *Parameter) IsNamed() bool {
	return p.Name != ""
}

// IsTemporal reports whether a temporal precision hint applies.
func (p *Parameter) IsTemporal() bool {
	return p.Temporal != domain.TemporalNone
}

func (p *Parameter) String() string {
	if p.IsNamed() {
		return fmt.Sprintf("%s at index %d", p.Name, p.Index)
	}
	return fmt.Sprintf("parameter at index %d", p.Index)
}

// Parameters is the declared parameter list of a query method.
type Parameters struct {
	parameters []*Parameter
	bindable   []*Parameter

	sortIndex     int
	pageableIndex int
	dynamicIndex  int
}

// NewParameters validates and indexes a declared parameter list. At most
// one Sort, one Pageable and one dynamic projection parameter are allowed.
func NewParameters(parameters ...*Parameter) (*Parameters, error) {
	ps := &Parameters{
		parameters:    parameters,
		sortIndex:     -1,
		pageableIndex: -1,
		dynamicIndex:  -1,
	}
	for i, p := range parameters {
		if p.Index != i {
			return nil, fmt.Errorf("parameter %s declared at list position %d", p, i)
		}
		switch {
		case p.Type == sortType:
			if ps.sortIndex >= 0 {
				return nil, fmt.Errorf("method must not declare more than one Sort parameter")
			}
			ps.sortIndex = i
		case p.Type == pageableType:
			if ps.pageableIndex >= 0 {
				return nil, fmt.Errorf("method must not declare more than one Pageable parameter")
			}
			ps.pageableIndex = i
		case p.DynamicProjection:
			if ps.dynamicIndex >= 0 {
				return nil, fmt.Errorf("method must not declare more than one dynamic projection parameter")
			}
			ps.dynamicIndex = i
		default:
			ps.bindable = append(ps.bindable, p)
		}
	}
	return ps, nil
}

// Len returns the number of declared parameters.
func (ps *Parameters) Len() int { return len(ps.parameters) }

// At returns the parameter at the given index.
func (ps *Parameters) At(index int) *Parameter { return ps.parameters[index] }

// Bindable returns the parameters whose values bind into the query, in
// declaration order.
func (ps *Parameters) Bindable() []*Parameter { return ps.bindable }

// NumberOfBindable returns the count of value-binding parameters.
func (ps *Parameters) NumberOfBindable() int { return len(ps.bindable) }

// BindablePosition returns the 1-based positional marker a bindable
// parameter answers to, or 0 when the parameter is special.
func (ps *Parameters) BindablePosition(p *Parameter) int {
	for i, b := range ps.bindable {
		if b == p {
			return i + 1
		}
	}
	return 0
}

// HasSort reports a declared Sort parameter.
func (ps *Parameters) HasSort() bool { return ps.sortIndex >= 0 }

// HasPageable reports a declared Pageable parameter.
func (ps *Parameters) HasPageable() bool { return ps.pageableIndex >= 0 }

// HasDynamicProjection reports a declared dynamic projection parameter.
func (ps *Parameters) HasDynamicProjection() bool { return ps.dynamicIndex >= 0 }

// SortIndex returns the index of the Sort parameter, or -1.
func (ps *Parameters) SortIndex() int { return ps.sortIndex }

// PageableIndex returns the index of the Pageable parameter, or -1.
func (ps *Parameters) PageableIndex() int { return ps.pageableIndex }

// DynamicProjectionIndex returns the index of the dynamic projection
// parameter, or -1.
func (ps *Parameters) DynamicProjectionIndex() int { return ps.dynamicIndex }

// ByName returns the bindable parameter with the given declared name.
func (ps *Parameters) ByName(name string) (*Parameter, bool) {
	for _, p := range ps.bindable {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}
