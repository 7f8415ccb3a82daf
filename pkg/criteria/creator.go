package criteria

import (
	"fmt"

	"github.com/ekaya-inc/repoquery/pkg/binding"
	"github.com/ekaya-inc/repoquery/pkg/metamodel"
	"github.com/ekaya-inc/repoquery/pkg/parttree"
)

// Creator builds an immutable criteria query template from a parsed method
// name. The template is created once per method; invocation values are
// applied later via Instantiate.
type Creator struct {
	mm     *metamodel.Metamodel
	entity *metamodel.EntityType
	tree   *parttree.PartTree

	provider *MetadataProvider
	nav      *navigator
}

// NewCreator prepares a creator for the given entity and method tree.
func NewCreator(mm *metamodel.Metamodel, entity *metamodel.EntityType, tree *parttree.PartTree, params *binding.Parameters) *Creator {
	return &Creator{
		mm:       mm,
		entity:   entity,
		tree:     tree,
		provider: NewMetadataProvider(params),
	}
}

// Create builds the criteria query.
func (c *Creator) Create() (*Query, error) {
	root := NewRoot(c.entity)
	c.nav = &navigator{mm: c.mm, root: root}

	q := &Query{
		Root:       root,
		Distinct:   c.tree.Distinct,
		Delete:     c.tree.Delete,
		MaxResults: c.tree.MaxResults,
	}

	switch {
	case c.tree.Delete:
		// deletion selects the matching entities so they can be removed and
		// returned
	case c.tree.CountProjection:
		q.Selection = SelectCount
	case c.tree.ExistsProjection:
		q.Selection = SelectIDs
	}

	where, err := c.predicate()
	if err != nil {
		return nil, err
	}
	q.Where = where

	orders, err := c.orders()
	if err != nil {
		return nil, err
	}
	q.Orders = orders

	q.Metadata = c.provider.Metadata()
	return q, nil
}

// predicate combines the tree's or-groups into one predicate, or nil when
// the method has no criteria at all ("findAll" style subjects).
func (c *Creator) predicate() (Predicate, error) {
	if !c.tree.HasPredicate() {
		return nil, nil
	}

	var groups []Predicate
	for _, group := range c.tree.Groups {
		var parts []Predicate
		for _, part := range group.Parts {
			p, err := c.toPredicate(part)
			if err != nil {
				return nil, err
			}
			parts = append(parts, p)
		}
		if len(parts) == 1 {
			groups = append(groups, parts[0])
		} else {
			groups = append(groups, &And{Predicates: parts})
		}
	}
	if len(groups) == 1 {
		return groups[0], nil
	}
	return &Or{Predicates: groups}, nil
}

// toPredicate builds the predicate for a single part.
func (c *Creator) toPredicate(part parttree.Part) (Predicate, error) {
	propertyPath, err := c.mm.ResolvePath(c.entity, part.Property)
	if err != nil {
		return nil, fmt.Errorf("resolving %q on %s: %w", part.Property, c.entity.Name, err)
	}
	leaf := propertyPath.Leaf()

	ignoreCase, err := effectiveIgnoreCase(part, leaf)
	if err != nil {
		return nil, err
	}

	switch part.Type {
	case parttree.Between:
		path, err := c.nav.expression(propertyPath, false)
		if err != nil {
			return nil, err
		}
		lower, err := c.provider.Next(&part, false, ignoreCase)
		if err != nil {
			return nil, err
		}
		upper, err := c.provider.Next(&part, false, ignoreCase)
		if err != nil {
			return nil, err
		}
		return &Between{Path: path, Lower: &ParameterExpr{lower}, Upper: &ParameterExpr{upper}}, nil

	case parttree.LessThan, parttree.LessThanEqual, parttree.GreaterThan, parttree.GreaterThanEqual,
		parttree.Before, parttree.After:
		return c.comparison(propertyPath, part, compareOpFor(part.Type), ignoreCase)

	case parttree.IsNull, parttree.IsNotNull:
		path, err := c.nav.expression(propertyPath, false)
		if err != nil {
			return nil, err
		}
		return &Null{Path: path, Negated: part.Type == parttree.IsNotNull}, nil

	case parttree.In, parttree.NotIn:
		path, err := c.nav.expression(propertyPath, false)
		if err != nil {
			return nil, err
		}
		m, err := c.provider.Next(&part, false, ignoreCase)
		if err != nil {
			return nil, err
		}
		return &In{Path: path, Value: &ParameterExpr{m}, Negated: part.Type == parttree.NotIn, IgnoreCase: ignoreCase}, nil

	case parttree.StartingWith, parttree.EndingWith, parttree.Containing, parttree.NotContaining:
		if leaf.IsCollection() {
			if part.Type == parttree.StartingWith || part.Type == parttree.EndingWith {
				return nil, fmt.Errorf("%s is not supported for collection property %q", part.Type, part.Property)
			}
			return c.member(propertyPath, part)
		}
		return c.like(propertyPath, part, ignoreCase)

	case parttree.Like, parttree.NotLike:
		return c.like(propertyPath, part, ignoreCase)

	case parttree.True, parttree.False:
		path, err := c.nav.expression(propertyPath, false)
		if err != nil {
			return nil, err
		}
		return &IsTrue{Path: path, Value: part.Type == parttree.True}, nil

	case parttree.IsEmpty, parttree.IsNotEmpty:
		if !leaf.IsCollection() {
			return nil, fmt.Errorf("IsEmpty and IsNotEmpty require a collection property, %q is %s",
				part.Property, leaf.Kind)
		}
		path, err := c.nav.collectionPath(propertyPath)
		if err != nil {
			return nil, err
		}
		return &Empty{Path: path, Negated: part.Type == parttree.IsNotEmpty}, nil

	case parttree.NegatingSimpleProperty:
		return c.comparison(propertyPath, part, OpNotEqual, ignoreCase)

	default: // SimpleProperty
		return c.comparison(propertyPath, part, OpEqual, ignoreCase)
	}
}

func (c *Creator) comparison(propertyPath *metamodel.PropertyPath, part parttree.Part, op CompareOp, ignoreCase bool) (Predicate, error) {
	path, err := c.nav.expression(propertyPath, false)
	if err != nil {
		return nil, err
	}
	m, err := c.provider.Next(&part, false, ignoreCase)
	if err != nil {
		return nil, err
	}
	return &Comparison{Op: op, Path: path, Value: &ParameterExpr{m}, IgnoreCase: ignoreCase}, nil
}

func (c *Creator) like(propertyPath *metamodel.PropertyPath, part parttree.Part, ignoreCase bool) (Predicate, error) {
	path, err := c.nav.expression(propertyPath, false)
	if err != nil {
		return nil, err
	}
	m, err := c.provider.Next(&part, false, ignoreCase)
	if err != nil {
		return nil, err
	}
	negated := part.Type == parttree.NotLike || part.Type == parttree.NotContaining
	return &Like{Path: path, Value: &ParameterExpr{m}, Negated: negated, IgnoreCase: ignoreCase, Escape: m.Escape}, nil
}

func (c *Creator) member(propertyPath *metamodel.PropertyPath, part parttree.Part) (Predicate, error) {
	path, err := c.nav.collectionPath(propertyPath)
	if err != nil {
		return nil, err
	}
	m, err := c.provider.Next(&part, true, false)
	if err != nil {
		return nil, err
	}
	return &Member{Path: path, Value: &ParameterExpr{m}, Negated: part.Type == parttree.NotContaining}, nil
}

// orders resolves the tree's order-by clause into order specs, joining
// association paths as needed.
func (c *Creator) orders() ([]OrderSpec, error) {
	if !c.tree.Sort.IsSorted() {
		return nil, nil
	}
	var out []OrderSpec
	for _, order := range c.tree.Sort.Orders {
		propertyPath, err := c.mm.ResolvePath(c.entity, order.Property)
		if err != nil {
			return nil, fmt.Errorf("resolving order property %q on %s: %w", order.Property, c.entity.Name, err)
		}
		path, err := c.nav.expression(propertyPath, true)
		if err != nil {
			return nil, err
		}
		out = append(out, OrderSpec{
			Path:       path,
			Descending: order.IsDescending(),
			IgnoreCase: order.IgnoreCase,
		})
	}
	return out, nil
}

// effectiveIgnoreCase decides the case handling for a part's leaf property.
// IgnoreCaseAlways on a non-string property is an error; IgnoreCaseWhenPossible
// silently degrades to a case-sensitive comparison.
func effectiveIgnoreCase(part parttree.Part, leaf *metamodel.Attribute) (bool, error) {
	switch part.Ignoring {
	case parttree.IgnoreCaseAlways:
		if !leaf.IsString() {
			return false, fmt.Errorf("unable to ignore case of %s type %s, the property %q must reference a string",
				leaf.Type, part.Type, part.Property)
		}
		return true, nil
	case parttree.IgnoreCaseWhenPossible:
		return leaf.IsString(), nil
	default:
		return false, nil
	}
}

func compareOpFor(t parttree.Type) CompareOp {
	switch t {
	case parttree.LessThan, parttree.Before:
		return OpLess
	case parttree.LessThanEqual:
		return OpLessEqual
	case parttree.GreaterThan, parttree.After:
		return OpGreater
	case parttree.GreaterThanEqual:
		return OpGreaterEqual
	default:
		return OpEqual
	}
}
