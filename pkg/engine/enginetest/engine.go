// Package enginetest provides an in-memory fake engine for exercising the
// query layer without a database. The fake records every created query, its
// bound values and its pagination state, and returns canned rows.
package enginetest

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"

	"github.com/ekaya-inc/repoquery/pkg/domain"
	"github.com/ekaya-inc/repoquery/pkg/engine"
	"github.com/ekaya-inc/repoquery/pkg/metamodel"
)

// Engine is a configurable fake. The zero value is usable; configure Caps,
// Rows and friends as the test needs.
type Engine struct {
	Caps engine.Capabilities
	MM   *metamodel.Metamodel

	// Rows is the default result of every query; ResultsFor overrides it
	// per exact query text.
	Rows       []any
	ResultsFor map[string][]any

	// UpdateCount is returned from ExecuteUpdate.
	UpdateCount int64

	// Outputs seeds stored procedure output values.
	Outputs map[string]any

	// Recorded state.
	Queries    []*Query
	Procedures []*StoredProcedure
	Removed    []any
	Flushes    int
	Clears     int
}

// New creates a fake with named-parameter support, the common case.
func New() *Engine {
	return &Engine{Caps: engine.Capabilities{
		SupportsNamedParameters: true,
		SupportsStreaming:       true,
		SupportsFetchGraphs:     true,
	}}
}

func (e *Engine) CreateQuery(query string, entity *metamodel.EntityType) (engine.Query, error) {
	return e.record(query, entity, false), nil
}

func (e *Engine) CreateNativeQuery(query string, entity *metamodel.EntityType) (engine.Query, error) {
	return e.record(query, entity, true), nil
}

func (e *Engine) record(query string, entity *metamodel.EntityType, native bool) *Query {
	q := &Query{
		ID:     uuid.NewString(),
		Text:   query,
		Entity: entity,
		Native: native,
		Named:  make(map[string]any),
		Pos:    make(map[int]any),
		engine: e,
	}
	e.Queries = append(e.Queries, q)
	return q
}

func (e *Engine) CreateStoredProcedure(name string, outputs []string) (engine.StoredProcedure, error) {
	p := &StoredProcedure{
		Name:        name,
		OutputNames: outputs,
		Named:       make(map[string]any),
		Pos:         make(map[int]any),
		engine:      e,
	}
	e.Procedures = append(e.Procedures, p)
	return p, nil
}

func (e *Engine) Remove(_ context.Context, entity any) error {
	e.Removed = append(e.Removed, entity)
	return nil
}

func (e *Engine) Flush(context.Context) error {
	e.Flushes++
	return nil
}

func (e *Engine) Clear(context.Context) error {
	e.Clears++
	return nil
}

func (e *Engine) Capabilities() engine.Capabilities { return e.Caps }
func (e *Engine) Metamodel() *metamodel.Metamodel   { return e.MM }

func (e *Engine) rowsFor(query string) []any {
	if rows, ok := e.ResultsFor[query]; ok {
		return rows
	}
	return e.Rows
}

// Query records everything the query layer does to it.
type Query struct {
	ID     string
	Text   string
	Entity *metamodel.EntityType
	Native bool

	Named map[string]any
	Pos   map[int]any

	Max        int
	First      int
	FetchPaths []string
	Executed   bool
	Updates    int64

	engine *Engine
}

func (q *Query) SetNamed(name string, value any, _ domain.TemporalType) error {
	if !q.engine.Caps.RegistersExcessParameters && !strings.Contains(q.Text, ":"+name) {
		return fmt.Errorf("query has no parameter named %q", name)
	}
	q.Named[name] = value
	return nil
}

func (q *Query) SetPositional(position int, value any, _ domain.TemporalType) error {
	if !q.engine.Caps.RegistersExcessParameters && !strings.Contains(q.Text, fmt.Sprintf("?%d", position)) {
		return fmt.Errorf("query has no parameter at position %d", position)
	}
	q.Pos[position] = value
	return nil
}

func (q *Query) SetMaxResults(n int)  { q.Max = n }
func (q *Query) SetFirstResult(n int) { q.First = n }

func (q *Query) ApplyFetchGraph(paths []string) error {
	if !q.engine.Caps.SupportsFetchGraphs {
		return fmt.Errorf("fetch graphs not supported")
	}
	q.FetchPaths = append(q.FetchPaths, paths...)
	return nil
}

func (q *Query) List(context.Context) ([]any, error) {
	q.Executed = true
	rows := q.engine.rowsFor(q.Text)
	if q.First > 0 {
		if q.First >= len(rows) {
			rows = nil
		} else {
			rows = rows[q.First:]
		}
	}
	if q.Max > 0 && len(rows) > q.Max {
		rows = rows[:q.Max]
	}
	return rows, nil
}

func (q *Query) Stream(ctx context.Context) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		rows, err := q.List(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}

func (q *Query) ExecuteUpdate(context.Context) (int64, error) {
	q.Executed = true
	q.Updates = q.engine.UpdateCount
	return q.engine.UpdateCount, nil
}

// StoredProcedure records inputs and serves seeded outputs.
type StoredProcedure struct {
	Name        string
	OutputNames []string
	Named       map[string]any
	Pos         map[int]any
	Executed    bool

	engine *Engine
}

func (p *StoredProcedure) SetNamed(name string, value any, _ domain.TemporalType) error {
	p.Named[name] = value
	return nil
}

func (p *StoredProcedure) SetPositional(position int, value any, _ domain.TemporalType) error {
	p.Pos[position] = value
	return nil
}

func (p *StoredProcedure) Execute(context.Context) error {
	p.Executed = true
	return nil
}

func (p *StoredProcedure) OutputValue(name string) (any, error) {
	if !p.Executed {
		return nil, fmt.Errorf("procedure %s not executed", p.Name)
	}
	value, ok := p.engine.Outputs[name]
	if !ok {
		return nil, fmt.Errorf("procedure %s has no output %q", p.Name, name)
	}
	return value, nil
}

func (p *StoredProcedure) ResultRows(ctx context.Context) ([]any, error) {
	if !p.Executed {
		return nil, fmt.Errorf("procedure %s not executed", p.Name)
	}
	return p.engine.rowsFor(p.Name), nil
}

var (
	_ engine.Engine          = (*Engine)(nil)
	_ engine.Query           = (*Query)(nil)
	_ engine.StoredProcedure = (*StoredProcedure)(nil)
)
