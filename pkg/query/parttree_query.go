package query

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/repoquery/pkg/binding"
	"github.com/ekaya-inc/repoquery/pkg/criteria"
	"github.com/ekaya-inc/repoquery/pkg/domain"
	"github.com/ekaya-inc/repoquery/pkg/engine"
	"github.com/ekaya-inc/repoquery/pkg/metamodel"
	"github.com/ekaya-inc/repoquery/pkg/parttree"
	"github.com/ekaya-inc/repoquery/pkg/sqlparse"
)

// PartTreeQuery derives its query from the method name. The criteria
// template is built once at construction; invocations instantiate it with
// their arguments and render fresh query text.
type PartTreeQuery struct {
	decl   *Method
	engine engine.Engine
	logger *zap.Logger

	tree          *parttree.PartTree
	entity        *metamodel.EntityType
	template      *criteria.Query
	countTemplate *criteria.Query
	exec          execution
}

// NewPartTreeQuery parses the method name into a part tree, validates the
// declared parameters against it and builds the criteria template.
func NewPartTreeQuery(m *Method, eng engine.Engine, logger *zap.Logger) (*PartTreeQuery, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	if m.Query != "" {
		return nil, fmt.Errorf("method %s: declared queries are not derived from the method name", m.Name)
	}

	tree, err := parttree.New(m.Name)
	if err != nil {
		return nil, fmt.Errorf("deriving query from method %s: %w", m.Name, err)
	}
	if want, have := tree.NumberOfArguments(), m.Params.NumberOfBindable(); want != have {
		return nil, fmt.Errorf("method %s: derived query needs %d argument(s) but the method declares %d bindable parameter(s)",
			m.Name, want, have)
	}
	if err := validateSubject(m, tree); err != nil {
		return nil, err
	}

	entity := eng.Metamodel().EntityOf(m.Entity)
	if entity == nil {
		return nil, fmt.Errorf("method %s: %T is not a managed entity", m.Name, m.Entity)
	}

	template, err := criteria.NewCreator(eng.Metamodel(), entity, tree, m.Params).Create()
	if err != nil {
		return nil, fmt.Errorf("building criteria for method %s: %w", m.Name, err)
	}

	q := &PartTreeQuery{
		decl:     m,
		engine:   eng,
		logger:   logger,
		tree:     tree,
		entity:   entity,
		template: template,
		exec:     executionFor(m, tree.Delete, tree.ExistsProjection),
	}
	if m.Returns == ReturnsPage {
		q.countTemplate = countVariant(template)
	}
	return q, nil
}

// validateSubject checks that the method's declared return shape matches
// the subject keywords parsed from its name.
func validateSubject(m *Method, tree *parttree.PartTree) error {
	if tree.Delete {
		switch m.Returns {
		case ReturnsMany, ReturnsCount, ReturnsNone:
		default:
			return fmt.Errorf("method %s: delete queries return the removed entities or their number, not %s",
				m.Name, m.Returns)
		}
	}
	if tree.CountProjection && m.Returns != ReturnsCount {
		return fmt.Errorf("method %s: count queries must return a count, not %s", m.Name, m.Returns)
	}
	if tree.ExistsProjection && m.Returns != ReturnsBool {
		return fmt.Errorf("method %s: exists queries must return a boolean, not %s", m.Name, m.Returns)
	}
	return nil
}

// countVariant turns an entity-selecting template into its count
// counterpart. Root, predicate and metadata are shared; both templates are
// immutable.
func countVariant(template *criteria.Query) *criteria.Query {
	count := *template
	count.Selection = criteria.SelectCount
	count.Orders = nil
	count.MaxResults = 0
	return &count
}

func (q *PartTreeQuery) Method() *Method { return q.decl }

func (q *PartTreeQuery) Execute(ctx context.Context, args ...any) (any, error) {
	accessor, err := binding.NewAccessor(q.decl.Params, args)
	if err != nil {
		return nil, fmt.Errorf("method %s: %w", q.decl.Name, err)
	}
	result, err := q.exec.execute(ctx, q, accessor)
	if err != nil {
		return nil, err
	}
	return convertResult(q.decl.Returns, result)
}

func (q *PartTreeQuery) method() *Method    { return q.decl }
func (q *PartTreeQuery) eng() engine.Engine { return q.engine }

func (q *PartTreeQuery) createQuery(ctx context.Context, accessor *binding.Accessor) (engine.Query, error) {
	inst, err := q.template.Instantiate(accessor)
	if err != nil {
		return nil, fmt.Errorf("method %s: %w", q.decl.Name, err)
	}
	text, err := criteria.Render(q.template, inst.Where)
	if err != nil {
		return nil, fmt.Errorf("rendering query for method %s: %w", q.decl.Name, err)
	}

	if sort := accessor.Sort(); sort.IsSorted() {
		if err := q.validateSort(sort); err != nil {
			return nil, err
		}
		text, err = sqlparse.ApplySorting(text, sort, q.template.Root.Alias())
		if err != nil {
			return nil, fmt.Errorf("applying sort to method %s: %w", q.decl.Name, err)
		}
	}

	q.logger.Debug("executing derived query",
		zap.String("method", q.decl.Name),
		zap.String("query", text))

	query, err := q.engine.CreateQuery(text, q.resultEntity())
	if err != nil {
		return nil, err
	}
	if err := bindInstantiated(query, q.template, inst); err != nil {
		return nil, fmt.Errorf("binding method %s: %w", q.decl.Name, err)
	}
	if q.tree.IsLimiting() {
		query.SetMaxResults(q.tree.MaxResults)
	}
	if len(q.decl.FetchGraph) > 0 {
		if err := query.ApplyFetchGraph(q.decl.FetchGraph); err != nil {
			return nil, fmt.Errorf("applying fetch graph to method %s: %w", q.decl.Name, err)
		}
	}
	return query, nil
}

func (q *PartTreeQuery) createCountQuery(ctx context.Context, accessor *binding.Accessor) (engine.Query, error) {
	if q.countTemplate == nil {
		return nil, fmt.Errorf("method %s does not use a count query", q.decl.Name)
	}
	inst, err := q.countTemplate.Instantiate(accessor)
	if err != nil {
		return nil, fmt.Errorf("method %s: %w", q.decl.Name, err)
	}
	text, err := criteria.Render(q.countTemplate, inst.Where)
	if err != nil {
		return nil, fmt.Errorf("rendering count query for method %s: %w", q.decl.Name, err)
	}
	query, err := q.engine.CreateQuery(text, nil)
	if err != nil {
		return nil, err
	}
	if err := bindInstantiated(query, q.countTemplate, inst); err != nil {
		return nil, fmt.Errorf("binding count query for method %s: %w", q.decl.Name, err)
	}
	return query, nil
}

// resultEntity is the entity the engine should materialize rows as, nil
// for scalar selections.
func (q *PartTreeQuery) resultEntity() *metamodel.EntityType {
	if q.template.Selection == criteria.SelectEntity {
		return q.entity
	}
	return nil
}

// validateSort resolves each sort property against the metamodel so typos
// fail before the engine sees the query. Unsafe orders skip resolution;
// they are checked textually when the order clause is appended.
func (q *PartTreeQuery) validateSort(sort domain.Sort) error {
	for _, order := range sort.Orders {
		if order.IsUnsafe() {
			continue
		}
		if _, err := q.engine.Metamodel().ResolvePath(q.entity, order.Property); err != nil {
			return fmt.Errorf("method %s: cannot sort by %q: %w", q.decl.Name, order.Property, err)
		}
	}
	return nil
}

// bindInstantiated sets the prepared values on the engine query. Null
// equalities were rewritten into restrictions and carry no value.
func bindInstantiated(query engine.Query, template *criteria.Query, inst *criteria.Instantiated) error {
	for _, m := range template.Metadata {
		value, ok := inst.Values[m.Name]
		if !ok {
			continue
		}
		if err := query.SetNamed(m.Name, value, m.Parameter.Temporal); err != nil {
			return err
		}
	}
	return nil
}
