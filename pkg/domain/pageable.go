package domain

// Pageable describes the page of data a query invocation should return.
// The zero value is not meaningful; use PageRequest or UnpagedRequest.
type Pageable struct {
	Number int
	Size   int
	Sort   Sort

	paged bool
}

// PageRequest creates a paged request for the zero-based page number.
func PageRequest(number, size int) Pageable {
	return Pageable{Number: number, Size: size, paged: true}
}

// PageRequestWith creates a paged request carrying a sort specification.
func PageRequestWith(number, size int, sort Sort) Pageable {
	return Pageable{Number: number, Size: size, Sort: sort, paged: true}
}

// UnpagedRequest returns a request for the full, unpaged result. A sort may
// still be supplied.
func UnpagedRequest(sort Sort) Pageable {
	return Pageable{Sort: sort}
}

// IsPaged reports whether the request restricts the result to a page.
func (p Pageable) IsPaged() bool {
	return p.paged
}

// Offset returns the number of rows to skip.
func (p Pageable) Offset() int {
	if !p.paged {
		return 0
	}
	return p.Number * p.Size
}
