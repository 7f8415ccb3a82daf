package parttree

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ekaya-inc/repoquery/pkg/domain"
)

// subjectPattern matches the query subject up to the first "By": the verb,
// then optional modifiers such as Distinct and First/Top with an optional
// row limit.
var subjectPattern = regexp.MustCompile(
	`^(find|read|get|query|search|stream|count|exists|delete|remove)(\p{Lu}.*?)??(By)`)

var limitPattern = regexp.MustCompile(`(First|Top)(\d*)`)

// OrGroup is a sequence of And-ed parts.
type OrGroup struct {
	Parts []Part
}

// PartTree is the parsed form of a derived-query method name: Or-separated
// groups of And-ed parts plus the subject modifiers and order-by clause.
type PartTree struct {
	Groups []OrGroup
	Sort   domain.Sort

	Distinct         bool
	Delete           bool
	CountProjection  bool
	ExistsProjection bool

	// MaxResults is the Top/First row limit, 0 when unlimited.
	MaxResults int
}

// New parses the given method name into a PartTree. The name must start with
// one of the query verbs (find, read, get, query, search, stream, count,
// exists, delete, remove); everything after "By" forms the predicate.
func New(method string) (*PartTree, error) {
	if method == "" {
		return nil, fmt.Errorf("method name must not be empty")
	}

	tree := &PartTree{}
	predicate := ""

	if m := subjectPattern.FindStringSubmatch(method); m != nil {
		subject := m[2]
		tree.Delete = m[1] == "delete" || m[1] == "remove"
		tree.CountProjection = m[1] == "count"
		tree.ExistsProjection = m[1] == "exists"
		tree.Distinct = strings.Contains(subject, "Distinct")

		if lm := limitPattern.FindStringSubmatch(subject); lm != nil {
			if lm[2] == "" {
				tree.MaxResults = 1
			} else {
				n, err := strconv.Atoi(lm[2])
				if err != nil || n <= 0 {
					return nil, fmt.Errorf("invalid row limit in method name %q", method)
				}
				tree.MaxResults = n
			}
		}

		predicate = method[len(m[0]):]
	} else {
		return nil, fmt.Errorf(
			"method name %q does not follow the derived-query naming scheme (verbBy...)", method)
	}

	if err := tree.parsePredicate(predicate, method); err != nil {
		return nil, err
	}
	return tree, nil
}

// parsePredicate splits the text after "By" into the Or/And part groups and
// the trailing OrderBy clause.
func (t *PartTree) parsePredicate(predicate, method string) error {
	parts, orderBy, err := splitOrderBy(predicate)
	if err != nil {
		return fmt.Errorf("method %s: %w", method, err)
	}

	alwaysIgnoreCase := false
	if trimmed, ok := cutKeywordSuffix(parts, "AllIgnoreCase"); ok {
		parts, alwaysIgnoreCase = trimmed, true
	} else if trimmed, ok := cutKeywordSuffix(parts, "AllIgnoringCase"); ok {
		parts, alwaysIgnoreCase = trimmed, true
	}

	if parts != "" {
		for _, orChunk := range splitKeyword(parts, "Or") {
			group := OrGroup{}
			for _, andChunk := range splitKeyword(orChunk, "And") {
				if andChunk == "" {
					return fmt.Errorf("method %s: empty criterion in predicate %q", method, predicate)
				}
				group.Parts = append(group.Parts, newPart(andChunk, alwaysIgnoreCase))
			}
			t.Groups = append(t.Groups, group)
		}
	}

	if orderBy != "" {
		sort, err := parseOrderBy(orderBy)
		if err != nil {
			return fmt.Errorf("method %s: %w", method, err)
		}
		t.Sort = sort
	}
	return nil
}

// NumberOfArguments returns the total count of bound arguments implied by
// all parts of the tree.
func (t *PartTree) NumberOfArguments() int {
	n := 0
	for _, g := range t.Groups {
		for _, p := range g.Parts {
			n += p.NumberOfArguments()
		}
	}
	return n
}

// Parts iterates all parts in declaration order.
func (t *PartTree) Parts() []Part {
	var all []Part
	for _, g := range t.Groups {
		all = append(all, g.Parts...)
	}
	return all
}

// HasPredicate reports whether the tree carries at least one condition part.
func (t *PartTree) HasPredicate() bool {
	return len(t.Groups) > 0
}

// IsLimiting reports whether the tree restricts the number of rows.
func (t *PartTree) IsLimiting() bool {
	return t.MaxResults > 0
}

// splitOrderBy cuts the predicate at the first "OrderBy" hump. A second
// occurrence is a configuration error.
func splitOrderBy(predicate string) (parts, orderBy string, err error) {
	if rest, ok := strings.CutPrefix(predicate, "OrderBy"); ok && rest != "" && isUpperAt(rest, 0) {
		// no condition parts, the whole predicate is the order clause
		if len(splitKeyword(rest, "OrderBy")) > 1 {
			return "", "", fmt.Errorf("OrderBy must not be used more than once in a method name")
		}
		return "", rest, nil
	}
	chunks := splitKeyword(predicate, "OrderBy")
	switch len(chunks) {
	case 1:
		return chunks[0], "", nil
	case 2:
		return chunks[0], chunks[1], nil
	default:
		return "", "", fmt.Errorf("OrderBy must not be used more than once in a method name")
	}
}

// parseOrderBy parses "LastnameAscFirstnameDesc"-style clauses into a Sort.
// A property without a trailing direction keyword sorts ascending.
func parseOrderBy(clause string) (domain.Sort, error) {
	var orders []domain.Order
	remaining := clause

	for remaining != "" {
		property, direction, rest := nextOrderChunk(remaining)
		if property == "" {
			return domain.Sort{}, fmt.Errorf("invalid order-by clause %q", clause)
		}
		order := domain.OrderBy(propertySource(property))
		if ignored, ok := cutKeywordSuffix(property, "IgnoreCase"); ok {
			order = domain.OrderBy(propertySource(ignored)).IgnoringCase()
		}
		if direction == "Desc" {
			order = order.Descending()
		}
		orders = append(orders, order)
		remaining = rest
	}

	return domain.NewSort(orders...), nil
}

// nextOrderChunk finds the first Asc/Desc hump and returns the property
// before it, the direction, and the remaining clause. Without a direction
// keyword the whole remainder is one ascending property.
func nextOrderChunk(clause string) (property, direction, rest string) {
	for i := 1; i < len(clause); i++ {
		for _, dir := range []string{"Desc", "Asc"} {
			if !strings.HasPrefix(clause[i:], dir) {
				continue
			}
			end := i + len(dir)
			if end < len(clause) && !isUpperAt(clause, end) {
				continue // part of a longer word, e.g. "Ascent"
			}
			return clause[:i], dir, clause[end:]
		}
	}
	return clause, "", ""
}

// splitKeyword splits source on the given camel-hump keyword: the keyword
// only separates when followed by an upper-case letter, so a property named
// "order" survives an "Or" split.
func splitKeyword(source, keyword string) []string {
	var result []string
	start := 0
	for i := 1; i+len(keyword) <= len(source); i++ {
		if !strings.HasPrefix(source[i:], keyword) {
			continue
		}
		next := i + len(keyword)
		if next >= len(source) || !isUpperAt(source, next) {
			continue
		}
		if !isUpperAt(source, i) {
			continue
		}
		result = append(result, source[start:i])
		start = next
		i = next - 1
	}
	result = append(result, source[start:])
	return result
}

// isUpperAt reports whether the rune starting at byte offset i is an
// upper-case letter. Keywords are ASCII, so matched offsets always sit on
// rune boundaries.
func isUpperAt(s string, i int) bool {
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsUpper(r)
}
