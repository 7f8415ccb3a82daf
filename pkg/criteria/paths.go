package criteria

import (
	"fmt"

	"github.com/ekaya-inc/repoquery/pkg/metamodel"
)

// navigator turns property paths into criteria expressions, creating joins
// on the way and reusing joins already present on the source.
type navigator struct {
	mm   *metamodel.Metamodel
	root *Root
}

// expression navigates a resolved property path from the root, joining
// associations as needed. forSelection forces the leaf association itself
// to be joined so it can be selected or ordered on; in a restriction a
// to-one leaf stays unjoined and compares the reference.
func (n *navigator) expression(path *metamodel.PropertyPath, forSelection bool) (*Path, error) {
	return n.walk(n.root, nil, path.Segments, forSelection)
}

// walk consumes the segment list. prefix accumulates embedded steps awaiting
// either a basic leaf (they become path segments) or an association (they
// become part of the join's navigation).
func (n *navigator) walk(source From, prefix, segments []*metamodel.Attribute, forSelection bool) (*Path, error) {
	if len(segments) == 0 {
		return &Path{source: source, segments: prefix}, nil
	}
	head := segments[0]
	isLeaf := len(segments) == 1

	switch {
	case head.Kind == metamodel.Embedded:
		return n.walk(source, append(prefix, head), segments[1:], forSelection)

	case !head.IsAssociation():
		if !isLeaf {
			return nil, fmt.Errorf("cannot navigate through basic attribute %s on %s",
				head.Name, source.EntityType().Name)
		}
		return &Path{source: source, segments: append(prefix, head)}, nil

	case isLeaf && !requiresJoin(head, forSelection):
		// a to-one leaf in a restriction compares the reference itself,
		// no join needed
		return &Path{source: source, segments: append(prefix, head)}, nil

	default:
		join, err := n.getOrCreateJoin(source, prefix, head, requiresOuterJoin(head, isLeaf, forSelection))
		if err != nil {
			return nil, err
		}
		if isLeaf {
			return &Path{source: join}, nil
		}
		return n.walk(join, nil, segments[1:], forSelection)
	}
}

// collectionPath navigates to a plural leaf without joining it, for
// membership and emptiness tests that operate on the collection itself.
func (n *navigator) collectionPath(path *metamodel.PropertyPath) (*Path, error) {
	segments := path.Segments
	parent, err := n.walk(n.root, nil, segments[:len(segments)-1], false)
	if err != nil {
		return nil, err
	}
	return &Path{source: parent.source, segments: append(parent.segments, segments[len(segments)-1])}, nil
}

// requiresJoin decides whether a leaf association must be joined at all.
// A to-one leaf in a restriction compares the reference itself and stays
// unjoined; collections and selected leaves always join.
func requiresJoin(attr *metamodel.Attribute, forSelection bool) bool {
	return forSelection || !attr.Kind.IsToOne()
}

// requiresOuterJoin decides between inner and left join for an association
// step. Collections always join outer, as does any step whose absence must
// not drop the parent row: optional to-one associations and the inverse
// side of a one-to-one. A leaf joined only for selection or ordering also
// must not filter.
func requiresOuterJoin(attr *metamodel.Attribute, isLeaf, forSelection bool) bool {
	if attr.IsCollection() {
		return true
	}
	if isLeaf && forSelection {
		return true
	}
	if attr.Optional {
		return true
	}
	// inverse one-to-one: the row may simply not exist on the owning side
	if attr.Kind == metamodel.OneToOne && attr.MappedBy != "" {
		return true
	}
	return false
}

// getOrCreateJoin reuses an existing join of the source for the same
// attribute, otherwise creates one. Reuse matches on the attribute alone:
// the first use of an association fixes the join type, a later use with a
// different outer request shares the same join rather than adding a second
// one over the association.
func (n *navigator) getOrCreateJoin(source From, prefix []*metamodel.Attribute, attr *metamodel.Attribute, outer bool) (*Join, error) {
	for _, j := range source.Joins() {
		if j.attribute == attr {
			return j, nil
		}
	}

	target := n.mm.Entity(attr.TargetType)
	if target == nil {
		return nil, fmt.Errorf("association %s on %s navigates to unmanaged type %s",
			attr.Name, source.EntityType().Name, attr.TargetType)
	}

	join := &Join{
		parent:    source,
		prefix:    prefix,
		attribute: attr,
		target:    target,
		alias:     n.root.nextAlias(attr.Name),
		outer:     outer,
	}
	switch s := source.(type) {
	case *Root:
		s.joins = append(s.joins, join)
	case *Join:
		s.joins = append(s.joins, join)
	}
	return join, nil
}
