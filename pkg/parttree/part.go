package parttree

import (
	"strings"
	"unicode"
)

// IgnoreCaseType is the case-sensitivity policy of a part.
type IgnoreCaseType int

const (
	// CaseSensitive performs the comparison as-is.
	CaseSensitive IgnoreCaseType = iota
	// IgnoreCaseAlways mandates a case-insensitive comparison; it fails at
	// query-creation time when the property is not string-typed.
	IgnoreCaseAlways
	// IgnoreCaseWhenPossible applies case-insensitivity for string-typed
	// properties and silently skips it otherwise.
	IgnoreCaseWhenPossible
)

// Part is one atomic predicate extracted from a method name: a property
// source, an operator, and a case-sensitivity policy. Immutable; created once
// per method at bootstrap.
type Part struct {
	// Property is the dot-navigable property source, e.g. "name" or
	// "address.zipCode". Explicit "_" separators in the method name become
	// dots; undelimited nested paths are resolved later against the entity
	// metamodel.
	Property string
	Type     Type
	Ignoring IgnoreCaseType
}

// newPart parses one condition chunk of a method-name predicate, e.g.
// "NameStartingWith" or "LastnameIgnoreCaseLike".
func newPart(source string, alwaysIgnoreCase bool) Part {
	typ, property := extractType(source)

	ignoring := CaseSensitive
	if alwaysIgnoreCase {
		ignoring = IgnoreCaseWhenPossible
	}
	for _, marker := range []string{"IgnoringCase", "IgnoreCase"} {
		if trimmed, ok := cutKeywordSuffix(property, marker); ok {
			property = trimmed
			ignoring = IgnoreCaseAlways
			break
		}
	}

	return Part{Property: propertySource(property), Type: typ, Ignoring: ignoring}
}

// NumberOfArguments returns how many bound arguments the part consumes.
func (p Part) NumberOfArguments() int {
	return p.Type.NumberOfArguments()
}

// propertySource normalizes a camel-case property chunk into its source
// form: explicit "_" separators become dots and every segment is
// decapitalized, so "Address_ZipCode" becomes "address.zipCode".
func propertySource(s string) string {
	segments := strings.Split(s, "_")
	for i, seg := range segments {
		segments[i] = decapitalize(seg)
	}
	return strings.Join(segments, ".")
}

func decapitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	// leave all-upper prefixes alone ("URL" stays "URL", "UrlPath" -> "urlPath")
	if len(r) > 1 && unicode.IsUpper(r[0]) && unicode.IsUpper(r[1]) {
		return s
	}
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
