package metamodel

import (
	"fmt"
	"strings"
	"unicode"
)

// PropertyPath is a resolved chain of attribute navigations starting at an
// entity root, e.g. address -> zipCode.
type PropertyPath struct {
	Owner    *EntityType
	Segments []*Attribute
}

// Leaf returns the final attribute of the path.
func (p *PropertyPath) Leaf() *Attribute {
	return p.Segments[len(p.Segments)-1]
}

// String renders the path in dot notation.
func (p *PropertyPath) String() string {
	names := make([]string, len(p.Segments))
	for i, a := range p.Segments {
		names[i] = a.Name
	}
	return strings.Join(names, ".")
}

// ResolvePath resolves a property source string against an entity. Sources
// may use explicit dots ("address.zipCode") or undelimited camel case
// ("addressZipCode"); undelimited sources are resolved greedily, preferring
// the longest attribute name and backtracking at camel humps when the greedy
// match does not resolve.
func (m *Metamodel) ResolvePath(entity *EntityType, source string) (*PropertyPath, error) {
	if source == "" {
		return nil, fmt.Errorf("empty property path for entity %s", entity.Name)
	}

	var segments []*Attribute
	current := entity
	dotted := strings.Split(source, ".")

	for i, chunk := range dotted {
		if current == nil {
			return nil, fmt.Errorf(
				"property %q of entity %s: cannot navigate into non-entity attribute", source, entity.Name)
		}
		resolved, next, err := m.resolveChunk(current, chunk)
		if err != nil {
			return nil, fmt.Errorf("entity %s, property %q: %w", entity.Name, source, err)
		}
		segments = append(segments, resolved...)
		if i < len(dotted)-1 {
			current = next
		}
	}

	return &PropertyPath{Owner: entity, Segments: segments}, nil
}

// resolveChunk resolves one dot-free chunk, which may still span several
// attributes ("addressZipCode"). Returns the attribute chain and the entity
// type the final attribute navigates to (nil for basic leaves).
func (m *Metamodel) resolveChunk(owner *EntityType, chunk string) ([]*Attribute, *EntityType, error) {
	if attr := owner.Attribute(decapitalize(chunk)); attr != nil {
		return []*Attribute{attr}, m.target(attr), nil
	}

	// backtrack over camel humps, longest head first
	for i := len(chunk) - 1; i > 0; i-- {
		if !unicode.IsUpper(rune(chunk[i])) {
			continue
		}
		head := owner.Attribute(decapitalize(chunk[:i]))
		if head == nil {
			continue
		}
		next := m.target(head)
		if next == nil {
			continue
		}
		rest, leafOwner, err := m.resolveChunk(next, chunk[i:])
		if err != nil {
			continue
		}
		return append([]*Attribute{head}, rest...), leafOwner, nil
	}

	return nil, nil, fmt.Errorf("no attribute %q on entity %s", decapitalize(chunk), owner.Name)
}

// target returns the entity type an attribute navigates into, or nil for
// basic and scalar-collection attributes.
func (m *Metamodel) target(attr *Attribute) *EntityType {
	if attr.TargetType == nil {
		return nil
	}
	if attr.Kind == Embedded || attr.IsAssociation() {
		return m.byType[attr.TargetType]
	}
	return nil
}
