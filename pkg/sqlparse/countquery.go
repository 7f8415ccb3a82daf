package sqlparse

import (
	"fmt"
	"strings"
)

// CreateCountQuery derives a count query from a selection query. When a
// projection override is given it is used verbatim inside count(...);
// otherwise the replacement is derived structurally: a simple projection is
// counted directly, a complex one falls back to the detected alias, and a
// native select * counts the alias or the literal 1. A trailing top level
// ORDER BY clause is dropped since it has no effect on the count.
func CreateCountQuery(query, alias, countProjection string, native bool) (string, error) {
	tokens := Tokenize(query)

	fromPos := -1
	for i, t := range tokens {
		if t.Depth == 0 && t.IsKeyword("from") {
			fromPos = i
			break
		}
	}
	if fromPos < 0 {
		return "", fmt.Errorf("query %q has no from clause to derive a count query from", query)
	}

	body := query[tokens[fromPos].Pos:]
	body = stripOrderBy(body)

	replacement := countProjection
	if replacement == "" {
		replacement = countReplacement(query, alias, native)
		if HasDistinct(query) {
			replacement = "distinct " + replacement
		}
	}

	return fmt.Sprintf("select count(%s) %s", replacement, strings.TrimSpace(body)), nil
}

// countReplacement picks the expression to count when no explicit count
// projection was declared.
func countReplacement(query, alias string, native bool) string {
	projection := strings.TrimSpace(Projection(query))

	switch {
	case projection == "", projection == "*":
		if alias != "" {
			return alias
		}
		if native {
			return "1"
		}
		return "*"
	case isSimpleProjection(projection):
		return projection
	case alias != "":
		return alias
	default:
		return "1"
	}
}

// isSimpleProjection reports whether the projection is a single identifier
// or dotted path, with no constructor expression, aggregate or column list.
func isSimpleProjection(projection string) bool {
	tokens := Tokenize(projection)
	if len(tokens) != 1 {
		return false
	}
	t := tokens[0]
	return t.Kind == TokenIdent && !t.IsKeyword("new")
}

// stripOrderBy removes a top level ORDER BY clause from the end of the
// query fragment. ORDER BY inside subqueries or window functions is kept.
func stripOrderBy(fragment string) string {
	tokens := Tokenize(fragment)
	for i := 0; i+1 < len(tokens); i++ {
		if tokens[i].Depth == 0 && tokens[i].IsKeyword("order") && tokens[i+1].IsKeyword("by") {
			return strings.TrimRight(fragment[:tokens[i].Pos], " \t\n")
		}
	}
	return fragment
}
