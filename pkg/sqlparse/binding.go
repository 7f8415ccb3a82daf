package sqlparse

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/ekaya-inc/repoquery/pkg/parttree"
)

// BindingKind discriminates how a bind marker's value is prepared before it
// reaches the engine.
type BindingKind int

const (
	// BindAsIs passes the argument through unmodified.
	BindAsIs BindingKind = iota
	// BindLike escapes the argument and applies the wildcard placement
	// inferred from the query text.
	BindLike
	// BindIn flattens the argument into a collection regardless of whether
	// the caller passed a slice, an array or a scalar.
	BindIn
)

func (k BindingKind) String() string {
	switch k {
	case BindLike:
		return "LIKE"
	case BindIn:
		return "IN"
	default:
		return "AS_IS"
	}
}

// DefaultEscapeCharacter escapes LIKE wildcards in bound pattern values.
const DefaultEscapeCharacter = '\\'

// ParameterBinding identifies one bind marker found in a declared query, by
// either a 1-based position or a name (exactly one of the two is set). A
// binding may additionally carry the expression string it was synthesized
// from and a LIKE wildcard-placement type.
type ParameterBinding struct {
	Name     string
	Position int

	// Expression is the expression body for synthetic markers derived from
	// :#{...} / ?#{...} placeholders.
	Expression string

	Kind     BindingKind
	LikeType parttree.Type
}

// HasName reports whether the binding is identified by name.
func (b *ParameterBinding) HasName() bool {
	return b.Name != ""
}

// IsExpression reports whether the binding's value is computed by evaluating
// an expression rather than read from a method argument.
func (b *ParameterBinding) IsExpression() bool {
	return b.Expression != ""
}

// Identifier renders the marker identity for error messages.
func (b *ParameterBinding) Identifier() string {
	if b.HasName() {
		return fmt.Sprintf("name %q", b.Name)
	}
	return fmt.Sprintf("position %d", b.Position)
}

// BindsTo reports whether both bindings refer to the same marker.
func (b *ParameterBinding) BindsTo(other *ParameterBinding) bool {
	if b.HasName() || other.HasName() {
		return b.Name == other.Name
	}
	return b.Position == other.Position
}

// Equals reports whether the bindings are fully interchangeable: same
// marker, same kind, same wildcard placement, same expression.
func (b *ParameterBinding) Equals(other *ParameterBinding) bool {
	return b.Name == other.Name &&
		b.Position == other.Position &&
		b.Kind == other.Kind &&
		b.LikeType == other.LikeType &&
		b.Expression == other.Expression
}

func (b *ParameterBinding) String() string {
	desc := fmt.Sprintf("%s binding at %s", b.Kind, b.Identifier())
	if b.Kind == BindLike {
		desc += fmt.Sprintf(" (%s)", b.LikeType)
	}
	if b.IsExpression() {
		desc += fmt.Sprintf(" from expression %q", b.Expression)
	}
	return desc
}

// Prepare transforms a resolved argument value according to the binding
// kind: LIKE bindings get wildcard-wrapped, IN bindings are flattened to a
// collection. Nil values pass through so the setter can decide how to bind
// an absent value.
func (b *ParameterBinding) Prepare(value any) any {
	return b.PrepareWithEscape(value, DefaultEscapeCharacter)
}

// PrepareWithEscape is Prepare with an explicit LIKE escape character.
func (b *ParameterBinding) PrepareWithEscape(value any, escape rune) any {
	if value == nil {
		return nil
	}
	switch b.Kind {
	case BindLike:
		s := EscapeLikeWildcards(fmt.Sprint(value), escape)
		switch b.LikeType {
		case parttree.StartingWith:
			return s + "%"
		case parttree.EndingWith:
			return "%" + s
		case parttree.Containing:
			return "%" + s + "%"
		default:
			// LIKE as-is: the caller supplied the wildcards
			return fmt.Sprint(value)
		}
	case BindIn:
		return FlattenToSlice(value)
	default:
		return value
	}
}

// EscapeLikeWildcards escapes %, _ and the escape character itself so a
// caller-supplied value cannot smuggle wildcards into the pattern.
func EscapeLikeWildcards(s string, escape rune) string {
	if escape == 0 {
		return s
	}
	e := string(escape)
	r := strings.NewReplacer(e, e+e, "%", e+"%", "_", e+"_")
	return r.Replace(s)
}

// FlattenToSlice converts the value into a []any: slices and arrays are
// copied element-wise, anything else becomes a single-element slice. Empty
// input flattens to nil.
func FlattenToSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		if v.Len() == 0 {
			return nil
		}
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			out[i] = v.Index(i).Interface()
		}
		return out
	}
	return []any{value}
}
