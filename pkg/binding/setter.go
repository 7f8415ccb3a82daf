package binding

import (
	"github.com/ekaya-inc/repoquery/pkg/domain"
)

// Target is the mutable query object setters bind values into. Engine
// query implementations satisfy it.
type Target interface {
	// SetNamed binds a value to a named placeholder. It returns an error
	// when the query declares no such placeholder.
	SetNamed(name string, value any, temporal domain.TemporalType) error
	// SetPositional binds a value to a 1-based positional placeholder.
	SetPositional(position int, value any, temporal domain.TemporalType) error
}

// ErrorHandling decides what happens when a setter cannot bind: strict
// binding propagates the error, lenient binding swallows it. Leniency is
// reserved for bindings that legitimately may not appear in the executed
// query, such as expression placeholders probed against a derived count
// query.
type ErrorHandling int

const (
	Strict ErrorHandling = iota
	Lenient
)

// Handle applies the policy to a bind error.
func (h ErrorHandling) Handle(err error) error {
	if h == Lenient {
		return nil
	}
	return err
}

// Setter binds one placeholder of a query from the invocation's values.
type Setter interface {
	SetValue(target Target, accessor *Accessor, handling ErrorHandling) error
}

// valueExtractor resolves the raw value a setter binds.
type valueExtractor func(accessor *Accessor) (any, error)

// namedOrIndexedSetter binds a value to a named placeholder when the
// binding carries a name, to a positional one otherwise.
type namedOrIndexedSetter struct {
	extract  valueExtractor
	name     string
	position int
	temporal domain.TemporalType

	// lenientByDefault marks setters whose value may not resolve on every
	// invocation, such as expression placeholders.
	lenientByDefault bool
}

func (s *namedOrIndexedSetter) SetValue(target Target, accessor *Accessor, handling ErrorHandling) error {
	if s.lenientByDefault {
		handling = Lenient
	}

	value, err := s.extract(accessor)
	if err != nil {
		return handling.Handle(err)
	}

	if s.name != "" {
		return handling.Handle(target.SetNamed(s.name, value, s.temporal))
	}
	return handling.Handle(target.SetPositional(s.position, value, s.temporal))
}
