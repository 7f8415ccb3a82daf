package query

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/repoquery/pkg/binding"
	"github.com/ekaya-inc/repoquery/pkg/engine"
)

// RepositoryQuery is one bootstrapped repository method, ready to execute.
type RepositoryQuery interface {
	Method() *Method

	// Execute runs the query with the invocation arguments, which must
	// match the declared parameters in number and order. The result shape
	// follows the method's ReturnKind.
	Execute(ctx context.Context, args ...any) (any, error)
}

// Factory creates repository queries against one engine. The evaluator
// serves expression placeholders in declared queries and may be nil when
// no query uses them.
type Factory struct {
	engine    engine.Engine
	evaluator binding.Evaluator
	logger    *zap.Logger
}

func NewFactory(eng engine.Engine, evaluator binding.Evaluator, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{engine: eng, evaluator: evaluator, logger: logger}
}

// Create classifies the method and builds its query: procedure methods
// call out, declared query text wins over derivation, and everything else
// parses the method name.
func (f *Factory) Create(m *Method) (RepositoryQuery, error) {
	switch {
	case m.Procedure != nil:
		return NewProcedureQuery(m, f.engine, f.logger)
	case m.Query != "":
		return NewStringQuery(m, f.engine, f.evaluator, f.logger)
	default:
		return NewPartTreeQuery(m, f.engine, f.logger)
	}
}
