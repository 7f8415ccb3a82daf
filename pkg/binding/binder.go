package binding

import (
	"fmt"

	"github.com/ekaya-inc/repoquery/pkg/apperrors"
	"github.com/ekaya-inc/repoquery/pkg/sqlparse"
)

// Binder applies all parameter bindings of a declared query to a target.
type Binder struct {
	params  *Parameters
	setters []Setter
}

// NewBinder builds a binder for the declared query's bindings. Each binding
// is resolved against the method's parameters once, at construction time,
// so unresolvable bindings fail at bootstrap instead of first execution.
func NewBinder(params *Parameters, bindings []*sqlparse.ParameterBinding, evaluator Evaluator) (*Binder, error) {
	setters := make([]Setter, 0, len(bindings))
	for _, b := range bindings {
		setter, err := newSetter(params, b, evaluator)
		if err != nil {
			return nil, err
		}
		setters = append(setters, setter)
	}
	return &Binder{params: params, setters: setters}, nil
}

// Bind applies every setter to the target.
func (b *Binder) Bind(target Target, accessor *Accessor, handling ErrorHandling) error {
	for _, s := range b.setters {
		if err := s.SetValue(target, accessor, handling); err != nil {
			return err
		}
	}
	return nil
}

// newSetter resolves one binding into a setter: expression bindings
// evaluate against the invocation arguments, plain bindings read the method
// parameter they answer to.
func newSetter(params *Parameters, binding *sqlparse.ParameterBinding, evaluator Evaluator) (Setter, error) {
	setter := &namedOrIndexedSetter{
		name:     binding.Name,
		position: binding.Position,
	}

	if binding.IsExpression() {
		if evaluator == nil {
			return nil, fmt.Errorf("query uses expression %q but no evaluator is configured", binding.Expression)
		}
		setter.extract = expressionExtractor(params, binding, evaluator)
		setter.lenientByDefault = true
		return setter, nil
	}

	param, err := resolveParameter(params, binding)
	if err != nil {
		return nil, err
	}
	setter.temporal = param.Temporal
	setter.extract = func(accessor *Accessor) (any, error) {
		return binding.Prepare(accessor.Value(param)), nil
	}
	return setter, nil
}

// resolveParameter finds the method parameter a binding reads its value
// from: by declared name first, then by bindable position. LIKE bindings
// renamed for wildcard disambiguation resolve through their original name.
func resolveParameter(params *Parameters, binding *sqlparse.ParameterBinding) (*Parameter, error) {
	if binding.HasName() {
		if p, ok := params.ByName(binding.Name); ok {
			return p, nil
		}
		if base, ok := originalName(binding.Name); ok {
			if p, ok := params.ByName(base); ok {
				return p, nil
			}
		}
		return nil, fmt.Errorf("query declares parameter %s but the method has no matching argument: %w",
			binding.Identifier(), apperrors.ErrParameterNotFound)
	}

	bindable := params.Bindable()
	if binding.Position < 1 || binding.Position > len(bindable) {
		return nil, fmt.Errorf("query declares parameter %s but the method has only %d bindable arguments: %w",
			binding.Identifier(), len(bindable), apperrors.ErrParameterNotFound)
	}
	return bindable[binding.Position-1], nil
}

// originalName strips the "_N" disambiguation suffix appended to renamed
// LIKE bindings.
func originalName(name string) (string, bool) {
	for i := len(name) - 1; i > 0; i-- {
		c := name[i]
		if c >= '0' && c <= '9' {
			continue
		}
		if c == '_' && i < len(name)-1 {
			return name[:i], true
		}
		break
	}
	return "", false
}

// expressionExtractor evaluates the binding's expression against the named
// invocation arguments and prepares the result like any other value.
func expressionExtractor(params *Parameters, binding *sqlparse.ParameterBinding, evaluator Evaluator) valueExtractor {
	return func(accessor *Accessor) (any, error) {
		args := make(map[string]any)
		for _, p := range params.Bindable() {
			if p.Name != "" {
				args[p.Name] = accessor.Value(p)
			}
		}
		value, err := evaluator.Evaluate(binding.Expression, args)
		if err != nil {
			return nil, err
		}
		return binding.Prepare(value), nil
	}
}
