// Package domain holds the value types shared across the query pipeline:
// sort specifications, page requests and the page/slice result shapes.
package domain

import "strings"

// Direction is the sort direction of an Order.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// String returns the SQL keyword for the direction.
func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// Order is a single sort key: a property path (or select-list alias) plus
// direction and case handling.
type Order struct {
	Property   string
	Direction  Direction
	IgnoreCase bool

	// unsafe marks the order as explicitly trusted by the caller, bypassing
	// the safe-identifier validation applied to sort keys.
	unsafe bool
}

// OrderBy creates an ascending Order for the given property.
func OrderBy(property string) Order {
	return Order{Property: property, Direction: Asc}
}

// Descending returns a copy of the order with descending direction.
func (o Order) Descending() Order {
	o.Direction = Desc
	return o
}

// Ascending returns a copy of the order with ascending direction.
func (o Order) Ascending() Order {
	o.Direction = Asc
	return o
}

// IgnoringCase returns a copy of the order with case-insensitive comparison.
func (o Order) IgnoringCase() Order {
	o.IgnoreCase = true
	return o
}

// Unsafe returns a copy of the order marked as trusted. Unsafe orders skip
// the identifier-charset validation, so the property may contain arbitrary
// expressions such as function calls.
func (o Order) Unsafe() Order {
	o.unsafe = true
	return o
}

// IsUnsafe reports whether the order was explicitly marked trusted.
func (o Order) IsUnsafe() bool {
	return o.unsafe
}

// IsDescending reports whether the order sorts descending.
func (o Order) IsDescending() bool {
	return o.Direction == Desc
}

// Sort is an ordered list of sort keys. The zero value is unsorted.
type Sort struct {
	Orders []Order
}

// Unsorted returns the empty sort specification.
func Unsorted() Sort {
	return Sort{}
}

// SortBy creates a Sort from ascending orders on the given properties.
func SortBy(properties ...string) Sort {
	orders := make([]Order, 0, len(properties))
	for _, p := range properties {
		orders = append(orders, OrderBy(p))
	}
	return Sort{Orders: orders}
}

// NewSort creates a Sort from the given orders.
func NewSort(orders ...Order) Sort {
	return Sort{Orders: orders}
}

// IsSorted reports whether the sort carries at least one order.
func (s Sort) IsSorted() bool {
	return len(s.Orders) > 0
}

// And concatenates two sort specifications.
func (s Sort) And(other Sort) Sort {
	combined := make([]Order, 0, len(s.Orders)+len(other.Orders))
	combined = append(combined, s.Orders...)
	combined = append(combined, other.Orders...)
	return Sort{Orders: combined}
}

// String renders the sort in "property: direction" form for diagnostics.
func (s Sort) String() string {
	if !s.IsSorted() {
		return "unsorted"
	}
	parts := make([]string, 0, len(s.Orders))
	for _, o := range s.Orders {
		parts = append(parts, o.Property+": "+o.Direction.String())
	}
	return strings.Join(parts, ", ")
}
