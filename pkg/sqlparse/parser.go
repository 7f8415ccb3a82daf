package sqlparse

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ekaya-inc/repoquery/pkg/parttree"
)

// SyntheticParameterPrefix marks parameter names synthesized for expression
// placeholders in queries that otherwise use named parameters.
const SyntheticParameterPrefix = "__synthetic_"

// ParseResult is the outcome of scanning a declared query for bind markers:
// the cleaned query text (wildcarded LIKE literals replaced by bare markers)
// and the ordered binding list.
type ParseResult struct {
	Query    string
	Bindings []*ParameterBinding

	// UsesJDBCStyleParameters reports bare '?' markers without an index.
	UsesJDBCStyleParameters bool
}

// HasNamedParameter reports whether any binding is identified by name.
func (r *ParseResult) HasNamedParameter() bool {
	for _, b := range r.Bindings {
		if b.HasName() {
			return true
		}
	}
	return false
}

// ParseBindings scans a query string once and extracts all parameter
// bindings: positional (?N), named (:name), expression (:#{...} / ?#{...}),
// optionally prefixed by a LIKE or IN keyword and, for LIKE, wrapped in
// '%' wildcard literals. Markers inside quoted literals are ignored. The
// returned query has wildcarded markers replaced by clean ones; wildcards
// are applied at bind time instead.
func ParseBindings(query string) (*ParseResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if _, err := NewQuotationMap(query); err != nil {
		return nil, err
	}

	greatest := greatestParameterIndex(query)
	positional := greatest >= 0

	// Prefer positional numbering when only expression parameters exist but
	// use the JDBC-style '?' prefix.
	if !positional && strings.Contains(query, "?#{") {
		positional = true
		greatest = 0
	}

	expanded, expressions, err := extractExpressions(query, positional, greatest)
	if err != nil {
		return nil, err
	}

	p := &bindingScanner{
		query:       expanded,
		expressions: expressions,
		likes:       make(map[string][]*ParameterBinding),
	}
	if p.quotes, err = NewQuotationMap(expanded); err != nil {
		return nil, err
	}
	if err := p.scan(); err != nil {
		return nil, err
	}

	result := &ParseResult{
		Query:                   p.rewritten(),
		Bindings:                p.bindings,
		UsesJDBCStyleParameters: p.usesJDBC,
	}

	if p.usesJDBC && (len(p.bindings) > 0) {
		return nil, fmt.Errorf("mixing of ? parameters and other forms like ?1 or :name is not supported")
	}
	return result, nil
}

// greatestParameterIndex returns the highest explicit ?N index in the query,
// or -1 when no indexed marker exists.
func greatestParameterIndex(query string) int {
	greatest := -1
	qm, err := NewQuotationMap(query)
	if err != nil {
		return greatest
	}
	for i := 0; i < len(query); i++ {
		if query[i] != '?' || qm.IsQuoted(i) {
			continue
		}
		j := i + 1
		for j < len(query) && isDigit(query[j]) {
			j++
		}
		if j == i+1 {
			continue
		}
		if n, err := strconv.Atoi(query[i+1 : j]); err == nil && n > greatest {
			greatest = n
		}
	}
	return greatest
}

// extractExpressions replaces every :#{...} / ?#{...} placeholder with a
// synthetic bind marker and records the expression body under the marker's
// identity. Positional queries number synthetic markers after the greatest
// explicit index; named queries use the synthetic name prefix.
func extractExpressions(query string, positional bool, greatest int) (string, map[string]string, error) {
	expressions := make(map[string]string)
	var out strings.Builder
	seq := 0
	i := 0

	qm, err := NewQuotationMap(query)
	if err != nil {
		return "", nil, err
	}

	for i < len(query) {
		c := query[i]
		if (c == ':' || c == '?') && !qm.IsQuoted(i) && strings.HasPrefix(query[i+1:], "#{") {
			end, err := matchBraces(query, i+3)
			if err != nil {
				return "", nil, err
			}
			expr := query[i+3 : end]
			seq++

			var marker, key string
			if positional {
				key = strconv.Itoa(greatest + seq)
				marker = "?" + key
			} else {
				key = SyntheticParameterPrefix + strconv.Itoa(seq)
				marker = ":" + key
			}
			expressions[key] = expr
			out.WriteString(marker)
			i = end + 1
			continue
		}
		out.WriteByte(c)
		i++
	}
	return out.String(), expressions, nil
}

// matchBraces returns the index of the brace closing the expression opened
// just before start, honoring nested braces and quoted sections inside the
// expression.
func matchBraces(s string, start int) (int, error) {
	depth := 1
	var quote byte
	for i := start; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unclosed expression placeholder starting at index %d", start)
}

// bindingScanner walks the expanded query, registering a binding for each
// marker and collecting text rewrites for wildcarded LIKE markers.
type bindingScanner struct {
	query       string
	quotes      *QuotationMap
	expressions map[string]string

	bindings []*ParameterBinding
	likes    map[string][]*ParameterBinding
	usesJDBC bool

	rewrites []rewrite
}

type rewrite struct {
	start, end  int
	replacement string
}

func (p *bindingScanner) scan() error {
	for i := 0; i < len(p.query); i++ {
		if p.quotes.IsQuoted(i) {
			continue
		}
		switch p.query[i] {
		case '?':
			end := i + 1
			for end < len(p.query) && isDigit(p.query[end]) {
				end++
			}
			if end == i+1 {
				// a bare '?' is a JDBC-style marker unless part of an operator
				if i == 0 || !isNameRune(rune(p.query[i-1])) {
					p.usesJDBC = true
				}
				continue
			}
			position, _ := strconv.Atoi(p.query[i+1 : end])
			if err := p.marker(i, end, "", position); err != nil {
				return err
			}
			i = end - 1
		case ':':
			if i > 0 && (p.query[i-1] == ':' || p.query[i-1] == '\\') {
				continue // escaped colon or a :: cast, not a named marker
			}
			if i+1 < len(p.query) && p.query[i+1] == ':' {
				continue
			}
			end := scanName(p.query, i+1)
			if end == i+1 {
				continue
			}
			if err := p.marker(i, end, p.query[i+1:end], 0); err != nil {
				return err
			}
			i = end - 1
		}
	}
	return nil
}

// marker processes one bind marker spanning [start, end) with the given
// identity (name or 1-based position).
func (p *bindingScanner) marker(start, end int, name string, position int) error {
	kind := p.precedingKeyword(start)

	key := name
	if name == "" {
		key = strconv.Itoa(position)
	}
	expression := p.expressions[key]

	binding := &ParameterBinding{
		Name:       name,
		Position:   position,
		Expression: expression,
		Kind:       kind,
	}

	switch kind {
	case BindLike:
		leading := start > 0 && p.query[start-1] == '%'
		trailing := end < len(p.query) && p.query[end] == '%'
		binding.LikeType = likeTypeFrom(leading, trailing)

		replacement := p.query[start:end]
		if name != "" {
			resolved := p.likeBindingFor(name, binding.LikeType, expression)
			binding = resolved
			replacement = ":" + resolved.Name
		}

		rstart, rend := start, end
		if leading {
			rstart--
		}
		if trailing {
			rend++
		}
		p.rewrites = append(p.rewrites, rewrite{start: rstart, end: rend, replacement: replacement})
	case BindIn:
		// value flattening happens at bind time; no text rewrite
	}

	return p.register(binding)
}

// likeBindingFor reuses an existing named LIKE binding with the same
// wildcard placement or derives a fresh name when the same parameter is
// used with a different placement.
func (p *bindingScanner) likeBindingFor(name string, likeType parttree.Type, expression string) *ParameterBinding {
	// expressions create unique parameter names, so only method-argument
	// bindings are candidates for reuse
	if expression == "" {
		for _, existing := range p.likes[name] {
			if existing.LikeType == likeType {
				return existing
			}
		}
	}

	finalName := name
	if n := len(p.likes[name]); n > 0 {
		finalName = fmt.Sprintf("%s_%d", name, n)
	}
	binding := &ParameterBinding{
		Name:       finalName,
		Expression: expression,
		Kind:       BindLike,
		LikeType:   likeType,
	}
	p.likes[name] = append(p.likes[name], binding)
	return binding
}

// register enforces the consistency invariant: two occurrences of the same
// marker must carry identical binding kind and expression.
func (p *bindingScanner) register(binding *ParameterBinding) error {
	for _, existing := range p.bindings {
		if !existing.BindsTo(binding) {
			continue
		}
		if !existing.Equals(binding) {
			return fmt.Errorf(
				"already found parameter binding with same identifier but differing binding type; already have: %s, found %s; if you bind a parameter multiple times make sure they use the same binding",
				existing, binding)
		}
		return nil
	}
	p.bindings = append(p.bindings, binding)
	return nil
}

// precedingKeyword inspects the text before a marker for a LIKE or IN
// keyword, skipping an optional wildcard, parenthesis and whitespace.
func (p *bindingScanner) precedingKeyword(markerStart int) BindingKind {
	j := markerStart - 1
	if j >= 0 && p.query[j] == '%' {
		j--
	}
	if j >= 0 && p.query[j] == '(' {
		j--
	}
	for j >= 0 && (p.query[j] == ' ' || p.query[j] == '\t' || p.query[j] == '\n') {
		j--
	}
	wordEnd := j + 1
	for j >= 0 && isNameRune(rune(p.query[j])) {
		j--
	}
	word := strings.ToLower(p.query[j+1 : wordEnd])
	switch word {
	case "like":
		return BindLike
	case "in":
		return BindIn
	default:
		return BindAsIs
	}
}

// rewritten applies the collected rewrites to the query text.
func (p *bindingScanner) rewritten() string {
	if len(p.rewrites) == 0 {
		return p.query
	}
	var out strings.Builder
	last := 0
	for _, r := range p.rewrites {
		out.WriteString(p.query[last:r.start])
		out.WriteString(r.replacement)
		last = r.end
	}
	out.WriteString(p.query[last:])
	return out.String()
}

func likeTypeFrom(leading, trailing bool) parttree.Type {
	switch {
	case leading && trailing:
		return parttree.Containing
	case leading:
		return parttree.EndingWith
	case trailing:
		return parttree.StartingWith
	default:
		return parttree.Like
	}
}

// scanName reads a parameter name: Unicode letters, digits, '_' and '$',
// without dots.
func scanName(s string, start int) int {
	i := start
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isNameRune(r) {
			break
		}
		i += size
	}
	return i
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$'
}
