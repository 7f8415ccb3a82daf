// Package sqlparse provides the text-level query machinery of the pipeline:
// quotation tracking, tokenizing, alias detection, bind-marker extraction,
// count-query derivation and string-level sort application. It understands
// just enough of the query language to rewrite bind markers and projections
// safely; everything else is passed through to the engine untouched.
package sqlparse

import "fmt"

// quotedRange is a closed, inclusive character range lying inside a quoted
// literal, including the quote characters themselves.
type quotedRange struct {
	start, end int
}

// QuotationMap records which character ranges of a query string are inside
// single- or double-quoted literals. Every later text rewrite consults it to
// avoid corrupting literals.
type QuotationMap struct {
	ranges []quotedRange
}

// NewQuotationMap scans the string once and records all quoted ranges. An
// unterminated quotation is a configuration error and fails immediately,
// naming the offending start index.
func NewQuotationMap(s string) (*QuotationMap, error) {
	qm := &QuotationMap{}

	inQuotation := false
	var quoteChar byte
	start := -1

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\'' && c != '"' {
			continue
		}
		if !inQuotation {
			inQuotation = true
			quoteChar = c
			start = i
			continue
		}
		if c == quoteChar {
			inQuotation = false
			qm.ranges = append(qm.ranges, quotedRange{start: start, end: i})
		}
	}

	if inQuotation {
		return nil, fmt.Errorf("unterminated quotation starting at index %d in %q", start, s)
	}
	return qm, nil
}

// IsQuoted reports whether the given index lies inside a quoted literal.
func (q *QuotationMap) IsQuoted(index int) bool {
	for _, r := range q.ranges {
		if index >= r.start && index <= r.end {
			return true
		}
	}
	return false
}
