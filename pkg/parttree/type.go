// Package parttree parses derived-query method names such as
// FindByNameStartingWithAndAgeLessThan into a predicate tree: Or-separated
// groups of And-ed condition parts, plus subject modifiers (distinct,
// delete, exists, count, top-N) and a trailing order-by specification.
package parttree

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Type is the comparison operator of a single condition part.
type Type int

const (
	SimpleProperty Type = iota
	NegatingSimpleProperty
	Between
	IsNotNull
	IsNull
	LessThan
	LessThanEqual
	GreaterThan
	GreaterThanEqual
	Before
	After
	NotLike
	Like
	StartingWith
	EndingWith
	IsNotEmpty
	IsEmpty
	NotContaining
	Containing
	NotIn
	In
	True
	False
)

// typeInfo carries the method-name keywords that select an operator and the
// number of bound arguments it consumes. Keyword order matters twice: types
// with longer keywords must be probed before their substrings (LessThanEqual
// before LessThan, NotLike before Like), and within a type longer spellings
// come first.
type typeInfo struct {
	typ      Type
	keywords []string
	numArgs  int
}

// orderedTypes is probed front to back when extracting the operator keyword
// from the tail of a part. SimpleProperty is the fallback and consumes one
// argument.
var orderedTypes = []typeInfo{
	{Between, []string{"IsBetween", "Between"}, 2},
	{IsNotNull, []string{"IsNotNull", "NotNull"}, 0},
	{IsNull, []string{"IsNull", "Null"}, 0},
	{LessThanEqual, []string{"IsLessThanEqual", "LessThanEqual"}, 1},
	{LessThan, []string{"IsLessThan", "LessThan"}, 1},
	{GreaterThanEqual, []string{"IsGreaterThanEqual", "GreaterThanEqual"}, 1},
	{GreaterThan, []string{"IsGreaterThan", "GreaterThan"}, 1},
	{Before, []string{"IsBefore", "Before"}, 1},
	{After, []string{"IsAfter", "After"}, 1},
	{NotLike, []string{"IsNotLike", "NotLike"}, 1},
	{Like, []string{"IsLike", "Like"}, 1},
	{StartingWith, []string{"IsStartingWith", "StartingWith", "StartsWith"}, 1},
	{EndingWith, []string{"IsEndingWith", "EndingWith", "EndsWith"}, 1},
	{IsNotEmpty, []string{"IsNotEmpty", "NotEmpty"}, 0},
	{IsEmpty, []string{"IsEmpty", "Empty"}, 0},
	{NotContaining, []string{"IsNotContaining", "NotContaining", "NotContains"}, 1},
	{Containing, []string{"IsContaining", "Containing", "Contains"}, 1},
	{NotIn, []string{"IsNotIn", "NotIn"}, 1},
	{In, []string{"IsIn", "In"}, 1},
	{True, []string{"IsTrue", "True"}, 0},
	{False, []string{"IsFalse", "False"}, 0},
	{NegatingSimpleProperty, []string{"IsNot", "Not"}, 1},
	{SimpleProperty, []string{"Is", "Equals"}, 1},
}

// NumberOfArguments returns how many bound method arguments the operator
// consumes (0, 1 or 2).
func (t Type) NumberOfArguments() int {
	for _, info := range orderedTypes {
		if info.typ == t {
			return info.numArgs
		}
	}
	return 1
}

// IsLikeType reports whether the operator belongs to the LIKE family, i.e.
// binds a pattern value.
func (t Type) IsLikeType() bool {
	switch t {
	case Like, NotLike, StartingWith, EndingWith, Containing, NotContaining:
		return true
	}
	return false
}

// IsCollectionArgumentType reports whether the operator requires a
// collection-valued argument.
func (t Type) IsCollectionArgumentType() bool {
	return t == In || t == NotIn
}

func (t Type) String() string {
	for _, info := range orderedTypes {
		if info.typ == t {
			return strings.ToUpper(camelToSnake(info.keywords[0]))
		}
	}
	return "SIMPLE_PROPERTY"
}

func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// extractType finds the operator keyword terminating the given part source
// and returns the operator plus the remaining property source. Falls back to
// SimpleProperty when no keyword matches.
func extractType(source string) (Type, string) {
	for _, info := range orderedTypes {
		for _, kw := range info.keywords {
			if property, ok := cutKeywordSuffix(source, kw); ok {
				return info.typ, property
			}
		}
	}
	return SimpleProperty, source
}

// cutKeywordSuffix strips kw from the tail of source, requiring a non-empty
// property to remain. A keyword only counts when it starts a camel-case hump,
// so "Shin" does not lose a trailing "In".
func cutKeywordSuffix(source, kw string) (string, bool) {
	if !strings.HasSuffix(source, kw) {
		return "", false
	}
	property := source[:len(source)-len(kw)]
	if property == "" {
		return "", false
	}
	last, _ := utf8.DecodeLastRuneInString(property)
	if unicode.IsUpper(last) {
		// the keyword must not split an upper-case run (e.g. "SSN" + "ull")
		return "", false
	}
	return property, true
}
