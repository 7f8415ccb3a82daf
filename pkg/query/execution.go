package query

import (
	"context"
	"fmt"
	"iter"

	"github.com/spf13/cast"

	"github.com/ekaya-inc/repoquery/pkg/apperrors"
	"github.com/ekaya-inc/repoquery/pkg/binding"
	"github.com/ekaya-inc/repoquery/pkg/domain"
	"github.com/ekaya-inc/repoquery/pkg/engine"
)

// preparedQuery is the surface a query implementation exposes to its
// execution strategy: engine queries bound with the invocation's values.
type preparedQuery interface {
	method() *Method
	eng() engine.Engine

	// createQuery builds and binds the main query. Pagination from the
	// accessor is already applied; strategies may override it.
	createQuery(ctx context.Context, accessor *binding.Accessor) (engine.Query, error)

	// createCountQuery builds and binds the matching count query.
	createCountQuery(ctx context.Context, accessor *binding.Accessor) (engine.Query, error)
}

// execution runs a prepared query in the way the method's classification
// demands. The set of strategies is closed; selection happens once at
// bootstrap.
type execution interface {
	execute(ctx context.Context, q preparedQuery, accessor *binding.Accessor) (any, error)
}

// executionFor selects the strategy for a classified method. kind covers
// the derived-subject hints a part tree carries; string queries pass their
// own flags.
func executionFor(m *Method, deleteQuery, existsQuery bool) execution {
	switch {
	case m.Modifying:
		return &modifyingExecution{}
	case deleteQuery:
		return &deleteExecution{}
	case existsQuery || m.Returns == ReturnsBool:
		return &existsExecution{}
	case m.Returns == ReturnsStream:
		return &streamExecution{}
	case m.Returns == ReturnsPage:
		return &pagedExecution{}
	case m.Returns == ReturnsSlice:
		return &slicedExecution{}
	case m.Returns == ReturnsOne:
		return &singleExecution{}
	case m.Returns == ReturnsOptional:
		return &singleExecution{optional: true}
	case m.Returns == ReturnsCount:
		return &countExecution{}
	default:
		return &collectionExecution{}
	}
}

// collectionExecution materializes all matching rows.
type collectionExecution struct{}

func (collectionExecution) execute(ctx context.Context, q preparedQuery, accessor *binding.Accessor) (any, error) {
	query, err := q.createQuery(ctx, accessor)
	if err != nil {
		return nil, err
	}
	return query.List(ctx)
}

// singleExecution expects at most one row; a strict single also rejects
// zero rows.
type singleExecution struct {
	optional bool
}

func (e singleExecution) execute(ctx context.Context, q preparedQuery, accessor *binding.Accessor) (any, error) {
	query, err := q.createQuery(ctx, accessor)
	if err != nil {
		return nil, err
	}
	query.SetMaxResults(2)
	rows, err := query.List(ctx)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		if e.optional {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", q.method().Name, apperrors.ErrNotFound)
	case 1:
		return rows[0], nil
	default:
		return nil, fmt.Errorf("%s: %w", q.method().Name, apperrors.ErrNonUniqueResult)
	}
}

// countExecution reads a single numeric row.
type countExecution struct{}

func (countExecution) execute(ctx context.Context, q preparedQuery, accessor *binding.Accessor) (any, error) {
	query, err := q.createQuery(ctx, accessor)
	if err != nil {
		return nil, err
	}
	rows, err := query.List(ctx)
	if err != nil {
		return nil, err
	}
	return sumCounts(rows)
}

// slicedExecution reads one row beyond the page size to learn whether a
// next page exists without counting.
type slicedExecution struct{}

func (slicedExecution) execute(ctx context.Context, q preparedQuery, accessor *binding.Accessor) (any, error) {
	pageable := accessor.Pageable()
	query, err := q.createQuery(ctx, accessor)
	if err != nil {
		return nil, err
	}
	if !pageable.IsPaged() {
		rows, err := query.List(ctx)
		if err != nil {
			return nil, err
		}
		return domain.Slice{Content: rows, Pageable: pageable}, nil
	}

	query.SetFirstResult(pageable.Offset())
	query.SetMaxResults(pageable.Size + 1)
	rows, err := query.List(ctx)
	if err != nil {
		return nil, err
	}
	hasNext := len(rows) > pageable.Size
	if hasNext {
		rows = rows[:pageable.Size]
	}
	return domain.Slice{Content: rows, Pageable: pageable, HasNext: hasNext}, nil
}

// pagedExecution reads one page and supplies the total lazily so short
// result sets can skip the count query entirely.
type pagedExecution struct{}

func (pagedExecution) execute(ctx context.Context, q preparedQuery, accessor *binding.Accessor) (any, error) {
	pageable := accessor.Pageable()
	query, err := q.createQuery(ctx, accessor)
	if err != nil {
		return nil, err
	}
	if pageable.IsPaged() {
		query.SetFirstResult(pageable.Offset())
		query.SetMaxResults(pageable.Size)
	}
	rows, err := query.List(ctx)
	if err != nil {
		return nil, err
	}

	total := func() (int64, error) {
		countQuery, err := q.createCountQuery(ctx, accessor)
		if err != nil {
			return 0, err
		}
		counts, err := countQuery.List(ctx)
		if err != nil {
			return 0, err
		}
		return sumCounts(counts)
	}
	return domain.PageOf(rows, pageable, total)
}

// streamExecution yields rows lazily and therefore demands an active
// transaction for the lifetime of the cursor.
type streamExecution struct{}

func (streamExecution) execute(ctx context.Context, q preparedQuery, accessor *binding.Accessor) (any, error) {
	if !engine.ActiveTransaction(ctx) {
		return nil, fmt.Errorf("streaming %s: %w", q.method().Name, apperrors.ErrNoTransaction)
	}
	query, err := q.createQuery(ctx, accessor)
	if err != nil {
		return nil, err
	}
	return query.Stream(ctx), nil
}

// deleteExecution fetches the matching entities, removes them one by one
// so lifecycle behavior matches entity removal, and reports either the
// removed entities or their number.
type deleteExecution struct{}

func (deleteExecution) execute(ctx context.Context, q preparedQuery, accessor *binding.Accessor) (any, error) {
	query, err := q.createQuery(ctx, accessor)
	if err != nil {
		return nil, err
	}
	rows, err := query.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := q.eng().Remove(ctx, row); err != nil {
			return nil, fmt.Errorf("removing matched entity: %w", err)
		}
	}
	if q.method().Returns == ReturnsMany {
		return rows, nil
	}
	return int64(len(rows)), nil
}

// existsExecution probes for a single matching row.
type existsExecution struct{}

func (existsExecution) execute(ctx context.Context, q preparedQuery, accessor *binding.Accessor) (any, error) {
	query, err := q.createQuery(ctx, accessor)
	if err != nil {
		return nil, err
	}
	query.SetMaxResults(1)
	rows, err := query.List(ctx)
	if err != nil {
		return nil, err
	}
	return len(rows) > 0, nil
}

// modifyingExecution runs the statement for its side effect, optionally
// flushing before and clearing after so subsequent reads observe it.
type modifyingExecution struct{}

func (modifyingExecution) execute(ctx context.Context, q preparedQuery, accessor *binding.Accessor) (any, error) {
	m := q.method()
	if m.FlushAutomatically {
		if err := q.eng().Flush(ctx); err != nil {
			return nil, fmt.Errorf("flushing before modifying query: %w", err)
		}
	}
	query, err := q.createQuery(ctx, accessor)
	if err != nil {
		return nil, err
	}
	affected, err := query.ExecuteUpdate(ctx)
	if err != nil {
		return nil, err
	}
	if m.ClearAutomatically {
		if err := q.eng().Clear(ctx); err != nil {
			return nil, fmt.Errorf("clearing after modifying query: %w", err)
		}
	}
	if m.Returns == ReturnsNone {
		return nil, nil
	}
	return affected, nil
}

// sumCounts folds count-query rows into one total. Grouped count queries
// return several rows; the page total is their sum.
func sumCounts(rows []any) (int64, error) {
	var total int64
	for _, row := range rows {
		n, err := cast.ToInt64E(row)
		if err != nil {
			return 0, fmt.Errorf("count query returned non-numeric value %v: %w", row, err)
		}
		total += n
	}
	return total, nil
}

// Stream is the result shape of streaming executions.
type Stream = iter.Seq2[any, error]
