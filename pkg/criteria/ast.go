package criteria

import (
	"strconv"
	"strings"

	"github.com/ekaya-inc/repoquery/pkg/metamodel"
)

// From is a query source attribute paths can navigate from: the root entity
// or a join hanging off it.
type From interface {
	Alias() string
	EntityType() *metamodel.EntityType
	Joins() []*Join
}

// Root is the entity a criteria query selects from.
type Root struct {
	entity *metamodel.EntityType
	alias  string
	joins  []*Join

	aliases map[string]int
}

// NewRoot creates a root over the given entity with a derived alias.
func NewRoot(entity *metamodel.EntityType) *Root {
	r := &Root{entity: entity, aliases: make(map[string]int)}
	r.alias = r.nextAlias(strings.ToLower(entity.Name[:1]))
	return r
}

func (r *Root) Alias() string                     { return r.alias }
func (r *Root) EntityType() *metamodel.EntityType { return r.entity }
func (r *Root) Joins() []*Join                    { return r.joins }

// nextAlias derives a unique alias from a base name.
func (r *Root) nextAlias(base string) string {
	n := r.aliases[base]
	r.aliases[base] = n + 1
	if n == 0 {
		return base
	}
	return base + "_" + strconv.Itoa(n)
}

// Join is a navigation from a parent source into an association. For an
// association nested inside embedded attributes, prefix holds the embedded
// steps between the parent and the association.
type Join struct {
	parent    From
	prefix    []*metamodel.Attribute
	attribute *metamodel.Attribute
	target    *metamodel.EntityType
	alias     string
	outer     bool
	joins     []*Join
}

func (j *Join) Alias() string                     { return j.alias }
func (j *Join) EntityType() *metamodel.EntityType { return j.target }
func (j *Join) Joins() []*Join                    { return j.joins }

// Parent returns the source the join navigates from.
func (j *Join) Parent() From { return j.parent }

// Attribute returns the association the join navigates.
func (j *Join) Attribute() *metamodel.Attribute { return j.attribute }

// PathFromParent renders the navigation from the parent alias to the
// association, including any embedded steps.
func (j *Join) PathFromParent() string {
	var b strings.Builder
	b.WriteString(j.parent.Alias())
	for _, p := range j.prefix {
		b.WriteByte('.')
		b.WriteString(p.Name)
	}
	b.WriteByte('.')
	b.WriteString(j.attribute.Name)
	return b.String()
}

// IsOuter reports whether the join preserves parent rows without a match.
func (j *Join) IsOuter() bool { return j.outer }

// Path is an attribute reference: a source plus the attribute segments that
// remain after join navigation. An empty segment list references the source
// itself.
type Path struct {
	source   From
	segments []*metamodel.Attribute
}

// Source returns the from the path hangs off.
func (p *Path) Source() From { return p.source }

// Segments returns the attribute chain below the source.
func (p *Path) Segments() []*metamodel.Attribute { return p.segments }

// Leaf returns the final attribute, or nil when the path references the
// source itself.
func (p *Path) Leaf() *metamodel.Attribute {
	if len(p.segments) == 0 {
		return nil
	}
	return p.segments[len(p.segments)-1]
}

// IsString reports whether the path resolves to a string-valued attribute.
func (p *Path) IsString() bool {
	leaf := p.Leaf()
	return leaf != nil && leaf.IsString()
}

func (p *Path) String() string {
	var b strings.Builder
	b.WriteString(p.source.Alias())
	for _, s := range p.segments {
		b.WriteByte('.')
		b.WriteString(s.Name)
	}
	return b.String()
}

// ParameterExpr is a bind placeholder inside a predicate.
type ParameterExpr struct {
	Metadata *ParameterMetadata
}

// CompareOp is a binary comparison operator.
type CompareOp int

const (
	OpEqual CompareOp = iota
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
)

func (op CompareOp) String() string {
	switch op {
	case OpNotEqual:
		return "<>"
	case OpLess:
		return "<"
	case OpLessEqual:
		return "<="
	case OpGreater:
		return ">"
	case OpGreaterEqual:
		return ">="
	default:
		return "="
	}
}

// Predicate is a boolean expression in the where clause.
type Predicate interface {
	isPredicate()
}

// Comparison compares a path against a bound value.
type Comparison struct {
	Op         CompareOp
	Path       *Path
	Value      *ParameterExpr
	IgnoreCase bool
}

// Between restricts a path to an inclusive range.
type Between struct {
	Path  *Path
	Lower *ParameterExpr
	Upper *ParameterExpr
}

// Null tests a path for SQL null.
type Null struct {
	Path    *Path
	Negated bool
}

// Empty tests a collection path for emptiness.
type Empty struct {
	Path    *Path
	Negated bool
}

// Like matches a path against a wildcard pattern bound at runtime.
type Like struct {
	Path       *Path
	Value      *ParameterExpr
	Negated    bool
	IgnoreCase bool
	Escape     rune
}

// In tests a path for membership in a bound collection.
type In struct {
	Path       *Path
	Value      *ParameterExpr
	Negated    bool
	IgnoreCase bool
}

// Member tests a bound value for membership in a collection path.
type Member struct {
	Path    *Path
	Value   *ParameterExpr
	Negated bool
}

// IsTrue tests a boolean path.
type IsTrue struct {
	Path  *Path
	Value bool
}

// And combines predicates conjunctively.
type And struct {
	Predicates []Predicate
}

// Or combines predicates disjunctively.
type Or struct {
	Predicates []Predicate
}

func (*Comparison) isPredicate() {}
func (*Between) isPredicate()    {}
func (*Null) isPredicate()       {}
func (*Empty) isPredicate()      {}
func (*Like) isPredicate()       {}
func (*In) isPredicate()         {}
func (*Member) isPredicate()     {}
func (*IsTrue) isPredicate()     {}
func (*And) isPredicate()        {}
func (*Or) isPredicate()         {}

// OrderSpec is one ordering criterion of the query.
type OrderSpec struct {
	Path       *Path
	Descending bool
	IgnoreCase bool
}

// SelectionKind discriminates what the query returns per row.
type SelectionKind int

const (
	// SelectEntity returns the root entity.
	SelectEntity SelectionKind = iota
	// SelectCount returns the row count.
	SelectCount
	// SelectIDs returns the root's identifier attributes.
	SelectIDs
)

// Query is an immutable criteria query template. Bind placeholders are
// described by Metadata; Instantiate pairs them with invocation values.
type Query struct {
	Root      *Root
	Selection SelectionKind
	Distinct  bool
	Delete    bool
	Where     Predicate
	Orders    []OrderSpec
	Metadata  []*ParameterMetadata

	// MaxResults caps the result size for limiting queries, 0 means no cap.
	MaxResults int
}
