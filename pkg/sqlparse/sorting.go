package sqlparse

import (
	"fmt"
	"regexp"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/repoquery/pkg/apperrors"
	"github.com/ekaya-inc/repoquery/pkg/domain"
)

// identifierExpression matches property references that are safe to splice
// into an ORDER BY clause without further inspection: identifiers and
// dotted paths, optionally wrapped in parentheses.
var identifierExpression = regexp.MustCompile(`^[\p{L}\p{N}._$]+$|^\(\s*[\p{L}\p{N}._$]+\s*\)$`)

// ApplySorting appends an ORDER BY clause for the given sort to the query,
// or extends an existing top level one. Properties that name an alias
// introduced by the query itself (joins, functions, selection fields) are
// referenced directly; everything else is qualified with the primary alias.
func ApplySorting(query string, sort domain.Sort, alias string) (string, error) {
	if !sort.IsSorted() {
		return query, nil
	}

	var builder strings.Builder
	builder.WriteString(query)
	if HasOrderBy(query) {
		builder.WriteString(", ")
	} else {
		builder.WriteString(" order by ")
	}

	joinAliases := OuterJoinAliases(query)
	functionAliases := FunctionAliases(query)
	fieldAliases := FieldAliases(query)

	for i, order := range sort.Orders {
		if i > 0 {
			builder.WriteString(", ")
		}
		clause, err := orderClause(order, alias, joinAliases, functionAliases, fieldAliases)
		if err != nil {
			return "", err
		}
		builder.WriteString(clause)
	}
	return builder.String(), nil
}

func orderClause(order domain.Order, alias string, joins, functions, fields map[string]bool) (string, error) {
	property := order.Property

	if err := checkSortExpression(order); err != nil {
		return "", err
	}

	reference := property
	qualify := alias != "" &&
		!strings.HasPrefix(property, alias+".") &&
		!strings.Contains(property, "(") &&
		!functions[property] && !fields[property] &&
		!referencesJoinAlias(property, joins)
	if qualify {
		reference = alias + "." + property
	}

	wrapped := reference
	if order.IgnoreCase {
		wrapped = fmt.Sprintf("lower(%s)", reference)
	}
	return wrapped + " " + order.Direction.String(), nil
}

// checkSortExpression rejects sort properties that are not plain property
// references. Orders explicitly marked unsafe may carry arbitrary
// expressions but still must not look like an injection attempt.
func checkSortExpression(order domain.Order) error {
	if identifierExpression.MatchString(order.Property) {
		return nil
	}
	if !order.IsUnsafe() {
		return fmt.Errorf("sort expression %q must only contain property references or aliases used in the select clause; if you really want to use something other than that for sorting, please use an unsafe sort order: %w",
			order.Property, apperrors.ErrUnsafeSort)
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(order.Property); isSQLi {
		return fmt.Errorf("sort expression %q matches injection fingerprint %s: %w",
			order.Property, string(fingerprint), apperrors.ErrUnsafeSort)
	}
	return nil
}

// referencesJoinAlias reports whether the property's first path segment is
// an alias introduced by a join in the query.
func referencesJoinAlias(property string, joins map[string]bool) bool {
	head, _, _ := strings.Cut(property, ".")
	return joins[head]
}
