package sqlparse

import (
	"fmt"
	"strings"
)

// DeclaredQuery is a manually declared query string together with everything
// the parser learned about it: parameter bindings, the primary selection
// alias and structural properties needed for count-query derivation and
// dynamic sorting.
type DeclaredQuery struct {
	raw      string
	query    string
	bindings []*ParameterBinding

	alias                    string
	usesJDBCStyleParameters  bool
	hasConstructorExpression bool
	native                   bool
}

// NewDeclaredQuery parses the given query string. Native queries skip
// constructor-expression detection but share the binding grammar.
func NewDeclaredQuery(query string, native bool) (*DeclaredQuery, error) {
	result, err := ParseBindings(query)
	if err != nil {
		return nil, fmt.Errorf("parsing query %q: %w", query, err)
	}

	dq := &DeclaredQuery{
		raw:                     query,
		query:                   result.Query,
		bindings:                result.Bindings,
		alias:                   DetectAlias(result.Query),
		usesJDBCStyleParameters: result.UsesJDBCStyleParameters,
		native:                  native,
	}
	if !native {
		dq.hasConstructorExpression = HasConstructorExpression(result.Query)
	}
	return dq, nil
}

// Query returns the cleaned query string with wildcarded LIKE markers
// replaced by plain ones.
func (q *DeclaredQuery) Query() string { return q.query }

// Bindings returns the parameter bindings in the order they first appeared.
func (q *DeclaredQuery) Bindings() []*ParameterBinding { return q.bindings }

// Alias returns the primary selection alias, or "" when none was detected.
func (q *DeclaredQuery) Alias() string { return q.alias }

// IsNative reports whether the query is written against the database's SQL
// dialect rather than the entity model.
func (q *DeclaredQuery) IsNative() bool { return q.native }

// HasConstructorExpression reports a select ... new Type(...) projection.
func (q *DeclaredQuery) HasConstructorExpression() bool { return q.hasConstructorExpression }

// HasNamedParameter reports whether any binding is identified by name.
func (q *DeclaredQuery) HasNamedParameter() bool {
	for _, b := range q.bindings {
		if b.HasName() {
			return true
		}
	}
	return false
}

// UsesJDBCStyleParameters reports bare '?' markers.
func (q *DeclaredQuery) UsesJDBCStyleParameters() bool { return q.usesJDBCStyleParameters }

// BindingFor returns the binding a method parameter with the given name or
// position resolves to, preferring the exact identity and falling back to a
// rename produced for wildcarded LIKE parameters.
func (q *DeclaredQuery) BindingFor(name string, position int) *ParameterBinding {
	for _, b := range q.bindings {
		if name != "" && b.Name == name {
			return b
		}
		if name == "" && position > 0 && b.Position == position {
			return b
		}
	}
	if name != "" {
		prefix := name + "_"
		for _, b := range q.bindings {
			if strings.HasPrefix(b.Name, prefix) {
				return b
			}
		}
	}
	return nil
}

// HasDefaultProjection reports whether the query selects the primary alias
// itself (or everything), which makes a derived count query safe to wrap
// around the original selection.
func (q *DeclaredQuery) HasDefaultProjection() bool {
	projection := strings.TrimSpace(Projection(q.query))
	if projection == "" {
		return true
	}
	if q.native && projection == "*" {
		return true
	}
	return strings.EqualFold(projection, q.alias)
}

// DeriveCountQuery builds a count query for this query, either from an
// explicit projection override or structurally from the query itself.
func (q *DeclaredQuery) DeriveCountQuery(countProjection string) (*DeclaredQuery, error) {
	counted, err := CreateCountQuery(q.query, q.alias, countProjection, q.native)
	if err != nil {
		return nil, err
	}
	derived, err := NewDeclaredQuery(counted, q.native)
	if err != nil {
		return nil, err
	}
	// the original scan already renamed wildcarded LIKE bindings; reuse them
	// so both queries bind identically
	derived.bindings = q.bindings
	return derived, nil
}
