package query

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/repoquery/pkg/apperrors"
	"github.com/ekaya-inc/repoquery/pkg/binding"
	"github.com/ekaya-inc/repoquery/pkg/engine"
)

// syntheticOutput names the output parameter synthesized for procedure
// methods that return a value without declaring outputs.
const syntheticOutput = "out"

// ProcedureQuery calls a stored procedure. Procedures sit outside the
// query execution strategies: they bind inputs directly and read their
// result from declared outputs or returned rows.
type ProcedureQuery struct {
	decl   *Method
	engine engine.Engine
	logger *zap.Logger

	name    string
	outputs []string
}

// NewProcedureQuery resolves the procedure name and its output parameters
// from the declaration. A method returning a value without declared
// outputs gets a single synthesized output.
func NewProcedureQuery(m *Method, eng engine.Engine, logger *zap.Logger) (*ProcedureQuery, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	if m.Procedure == nil {
		return nil, fmt.Errorf("method %s: no procedure declared", m.Name)
	}
	switch m.Returns {
	case ReturnsMany, ReturnsOne, ReturnsOptional, ReturnsCount, ReturnsBool, ReturnsNone:
	default:
		return nil, fmt.Errorf("method %s: procedures cannot return %s", m.Name, m.Returns)
	}

	name := m.Procedure.Name
	if name == "" {
		name = m.Name
	}
	outputs := m.Procedure.Outputs
	if len(outputs) == 0 && m.Returns != ReturnsNone && m.Returns != ReturnsMany {
		outputs = []string{syntheticOutput}
	}
	if len(outputs) > 1 {
		return nil, fmt.Errorf("method %s: procedures with multiple output parameters are not supported", m.Name)
	}

	return &ProcedureQuery{
		decl:    m,
		engine:  eng,
		logger:  logger,
		name:    name,
		outputs: outputs,
	}, nil
}

func (q *ProcedureQuery) Method() *Method { return q.decl }

func (q *ProcedureQuery) Execute(ctx context.Context, args ...any) (any, error) {
	accessor, err := binding.NewAccessor(q.decl.Params, args)
	if err != nil {
		return nil, fmt.Errorf("method %s: %w", q.decl.Name, err)
	}

	// A procedure returning rows keeps a cursor open past Execute.
	returnsRows := q.decl.Returns == ReturnsMany
	if returnsRows && !engine.ActiveTransaction(ctx) {
		return nil, fmt.Errorf("procedure %s returns rows: %w", q.name, apperrors.ErrNoTransaction)
	}

	q.logger.Debug("calling stored procedure",
		zap.String("method", q.decl.Name),
		zap.String("procedure", q.name))

	proc, err := q.engine.CreateStoredProcedure(q.name, q.outputs)
	if err != nil {
		return nil, err
	}
	for _, p := range q.decl.Params.Bindable() {
		if p.IsNamed() {
			err = proc.SetNamed(p.Name, accessor.Value(p), p.Temporal)
		} else {
			err = proc.SetPositional(q.decl.Params.BindablePosition(p), accessor.Value(p), p.Temporal)
		}
		if err != nil {
			return nil, fmt.Errorf("binding procedure %s: %w", q.name, err)
		}
	}

	if err := proc.Execute(ctx); err != nil {
		return nil, fmt.Errorf("calling procedure %s: %w", q.name, err)
	}

	switch {
	case returnsRows:
		return proc.ResultRows(ctx)
	case len(q.outputs) == 0:
		return nil, nil
	default:
		value, err := proc.OutputValue(q.outputs[0])
		if err != nil {
			return nil, fmt.Errorf("reading output %q of procedure %s: %w", q.outputs[0], q.name, err)
		}
		return convertResult(q.decl.Returns, value)
	}
}
