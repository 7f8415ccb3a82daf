package query

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/repoquery/pkg/binding"
	"github.com/ekaya-inc/repoquery/pkg/engine"
	"github.com/ekaya-inc/repoquery/pkg/metamodel"
	"github.com/ekaya-inc/repoquery/pkg/sqlparse"
)

// StringQuery runs a manually declared query. The query text is parsed
// once at construction; bindings, the count query and the execution
// strategy are all resolved before the first invocation.
type StringQuery struct {
	decl   *Method
	engine engine.Engine
	logger *zap.Logger

	declared    *sqlparse.DeclaredQuery
	binder      *binding.Binder
	countQuery  *sqlparse.DeclaredQuery
	countBinder *binding.Binder
	entity      *metamodel.EntityType
	exec        execution
}

// NewStringQuery parses the declared query text and resolves every
// placeholder against the method's parameters.
func NewStringQuery(m *Method, eng engine.Engine, evaluator binding.Evaluator, logger *zap.Logger) (*StringQuery, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	if m.Query == "" {
		return nil, fmt.Errorf("method %s: no query declared", m.Name)
	}

	declared, err := sqlparse.NewDeclaredQuery(m.Query, m.Native)
	if err != nil {
		return nil, fmt.Errorf("parsing query for method %s: %w", m.Name, err)
	}
	if declared.UsesJDBCStyleParameters() && !m.Native {
		return nil, fmt.Errorf("method %s: plain ? placeholders are only supported in native queries", m.Name)
	}

	binder, err := binding.NewBinder(m.Params, declared.Bindings(), evaluator)
	if err != nil {
		return nil, fmt.Errorf("method %s: %w", m.Name, err)
	}

	entity := eng.Metamodel().EntityOf(m.Entity)
	if entity == nil {
		return nil, fmt.Errorf("method %s: %T is not a managed entity", m.Name, m.Entity)
	}

	q := &StringQuery{
		decl:     m,
		engine:   eng,
		logger:   logger,
		declared: declared,
		binder:   binder,
		entity:   entity,
		exec:     executionFor(m, false, false),
	}

	if m.Returns == ReturnsPage {
		if err := q.resolveCountQuery(evaluator); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// resolveCountQuery prefers an explicitly declared count query, then the
// count projection, then derivation from the main query.
func (q *StringQuery) resolveCountQuery(evaluator binding.Evaluator) error {
	var err error
	if q.decl.CountQuery != "" {
		q.countQuery, err = sqlparse.NewDeclaredQuery(q.decl.CountQuery, q.decl.Native)
	} else {
		q.countQuery, err = q.declared.DeriveCountQuery(q.decl.CountProjection)
	}
	if err != nil {
		return fmt.Errorf("resolving count query for method %s: %w", q.decl.Name, err)
	}
	q.countBinder, err = binding.NewBinder(q.decl.Params, q.countQuery.Bindings(), evaluator)
	if err != nil {
		return fmt.Errorf("method %s: %w", q.decl.Name, err)
	}
	return nil
}

func (q *StringQuery) Method() *Method { return q.decl }

func (q *StringQuery) Execute(ctx context.Context, args ...any) (any, error) {
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

func (q *StringQuery) method() *Method    { return q.decl }
func (q *StringQuery) eng() engine.Engine { return q.engine }

func (q *StringQuery) createQuery(ctx context.Context, accessor *binding.Accessor) (engine.Query, error) {
	text := q.declared.Query()

	if sort := accessor.Sort(); sort.IsSorted() && !q.decl.Modifying {
		var err error
		text, err = sqlparse.ApplySorting(text, sort, q.declared.Alias())
		if err != nil {
			return nil, fmt.Errorf("applying sort to method %s: %w", q.decl.Name, err)
		}
	}

	q.logger.Debug("executing declared query",
		zap.String("method", q.decl.Name),
		zap.String("query", text))

	query, err := q.create(text, q.resultEntity())
	if err != nil {
		return nil, err
	}
	if err := q.bind(query, accessor, q.binder, q.declared, binding.Strict); err != nil {
		return nil, fmt.Errorf("binding method %s: %w", q.decl.Name, err)
	}
	if len(q.decl.FetchGraph) > 0 {
		if err := query.ApplyFetchGraph(q.decl.FetchGraph); err != nil {
			return nil, fmt.Errorf("applying fetch graph to method %s: %w", q.decl.Name, err)
		}
	}
	return query, nil
}

// createCountQuery binds leniently: a derived or declared count query may
// use fewer placeholders than the main query declares.
func (q *StringQuery) createCountQuery(ctx context.Context, accessor *binding.Accessor) (engine.Query, error) {
	if q.countQuery == nil {
		return nil, fmt.Errorf("method %s does not use a count query", q.decl.Name)
	}
	query, err := q.create(q.countQuery.Query(), nil)
	if err != nil {
		return nil, err
	}
	if err := q.bind(query, accessor, q.countBinder, q.countQuery, binding.Lenient); err != nil {
		return nil, fmt.Errorf("binding count query for method %s: %w", q.decl.Name, err)
	}
	return query, nil
}

func (q *StringQuery) create(text string, entity *metamodel.EntityType) (engine.Query, error) {
	if q.decl.Native {
		return q.engine.CreateNativeQuery(text, entity)
	}
	return q.engine.CreateQuery(text, entity)
}

// bind applies the resolved setters. Queries using plain ? placeholders
// carry no parsed bindings; their arguments bind positionally in
// declaration order.
func (q *StringQuery) bind(query engine.Query, accessor *binding.Accessor, binder *binding.Binder, declared *sqlparse.DeclaredQuery, handling binding.ErrorHandling) error {
	if declared.UsesJDBCStyleParameters() {
		for i, p := range q.decl.Params.Bindable() {
			if err := query.SetPositional(i+1, accessor.Value(p), p.Temporal); err != nil {
				return err
			}
		}
		return nil
	}
	return binder.Bind(query, accessor, handling)
}

func (q *StringQuery) resultEntity() *metamodel.EntityType {
	switch q.decl.Returns {
	case ReturnsMany, ReturnsOne, ReturnsOptional, ReturnsPage, ReturnsSlice, ReturnsStream:
		return q.entity
	default:
		return nil
	}
}
