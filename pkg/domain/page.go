package domain

// Slice is a page-like result that knows whether more data follows but does
// not carry a total element count. It is produced by the lookahead execution:
// the query fetches one row beyond the page size instead of running a count
// query.
type Slice struct {
	Content  []any
	Pageable Pageable
	HasNext  bool
}

// Size returns the number of elements in the slice content.
func (s Slice) Size() int {
	return len(s.Content)
}

// Page is a slice plus the total number of matching elements, obtained from
// a separate count query.
type Page struct {
	Slice
	Total int64
}

// TotalSupplier computes a total count on demand. PageOf invokes it only
// when the content alone cannot prove the total.
type TotalSupplier func() (int64, error)

// PageOf assembles a Page from query content, the page request, and a total
// supplier. When the fetched content already determines the total - an
// unpaged request, or a first/short page that ends the data set - the
// supplier is not invoked. The returned total is identical either way; the
// skip is purely an optimization.
func PageOf(content []any, pageable Pageable, total TotalSupplier) (Page, error) {
	if !pageable.IsPaged() {
		return newPage(content, pageable, int64(len(content))), nil
	}

	if len(content) < pageable.Size && (pageable.Number == 0 || len(content) > 0) {
		return newPage(content, pageable, int64(pageable.Offset()+len(content))), nil
	}

	n, err := total()
	if err != nil {
		return Page{}, err
	}
	return newPage(content, pageable, n), nil
}

func newPage(content []any, pageable Pageable, total int64) Page {
	hasNext := pageable.IsPaged() && int64(pageable.Offset()+len(content)) < total
	return Page{
		Slice: Slice{Content: content, Pageable: pageable, HasNext: hasNext},
		Total: total,
	}
}
