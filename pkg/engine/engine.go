// Package engine declares the persistence engine surface the query layer
// drives. Implementations translate entity-level query text and criteria
// into their own dialect; the query layer stays engine-agnostic and adapts
// to the declared capabilities.
package engine

import (
	"context"
	"iter"

	"github.com/ekaya-inc/repoquery/pkg/domain"
	"github.com/ekaya-inc/repoquery/pkg/metamodel"
)

// Capabilities declares what an engine supports. The value is built once at
// bootstrap and passed down explicitly; the query layer never probes.
type Capabilities struct {
	// SupportsNamedParameters allows binding by placeholder name. Engines
	// without it receive positional bindings only.
	SupportsNamedParameters bool

	// SupportsStreaming allows row-by-row result consumption.
	SupportsStreaming bool

	// SupportsFetchGraphs allows association fetch hints on queries.
	SupportsFetchGraphs bool

	// RegistersExcessParameters reports that the engine exposes bound
	// parameters beyond the ones the query text declares, so binding an
	// absent placeholder is not an error.
	RegistersExcessParameters bool
}

// Engine is a persistence engine: it creates executable queries from
// entity-level text and manages the entity lifecycle operations the
// execution strategies need.
type Engine interface {
	// CreateQuery prepares an entity-level query. entity is the expected
	// result entity, nil for scalar results.
	CreateQuery(query string, entity *metamodel.EntityType) (Query, error)

	// CreateNativeQuery prepares a query written in the engine's own SQL
	// dialect.
	CreateNativeQuery(query string, entity *metamodel.EntityType) (Query, error)

	// CreateStoredProcedure prepares a stored procedure call with the given
	// output parameter names.
	CreateStoredProcedure(name string, outputs []string) (StoredProcedure, error)

	// Remove deletes a managed entity instance.
	Remove(ctx context.Context, entity any) error

	// Flush writes pending changes out.
	Flush(ctx context.Context) error

	// Clear evicts engine-held state so later reads observe the effects of
	// bulk statements.
	Clear(ctx context.Context) error

	Capabilities() Capabilities
	Metamodel() *metamodel.Metamodel
}

// Query is one executable statement with bind and pagination state.
type Query interface {
	// SetNamed binds a named placeholder. Engines return an error for
	// unknown names unless they register excess parameters.
	SetNamed(name string, value any, temporal domain.TemporalType) error

	// SetPositional binds a 1-based positional placeholder.
	SetPositional(position int, value any, temporal domain.TemporalType) error

	// SetMaxResults caps the number of rows returned.
	SetMaxResults(n int)

	// SetFirstResult skips the first n rows.
	SetFirstResult(n int)

	// ApplyFetchGraph hints the engine to fetch the given association
	// paths eagerly. Engines without fetch graph support return an error.
	ApplyFetchGraph(paths []string) error

	// List executes the query and materializes all rows.
	List(ctx context.Context) ([]any, error)

	// Stream executes the query and yields rows one at a time. The
	// sequence reports row errors through its second value.
	Stream(ctx context.Context) iter.Seq2[any, error]

	// ExecuteUpdate runs the statement for its side effect and returns the
	// number of affected rows.
	ExecuteUpdate(ctx context.Context) (int64, error)
}

// StoredProcedure is a prepared procedure call.
type StoredProcedure interface {
	// SetNamed binds a named input parameter.
	SetNamed(name string, value any, temporal domain.TemporalType) error

	// SetPositional binds a 1-based positional input parameter.
	SetPositional(position int, value any, temporal domain.TemporalType) error

	// Execute runs the procedure.
	Execute(ctx context.Context) error

	// OutputValue reads a declared output parameter after Execute.
	OutputValue(name string) (any, error)

	// ResultRows returns rows produced by the procedure, if any.
	ResultRows(ctx context.Context) ([]any, error)
}
