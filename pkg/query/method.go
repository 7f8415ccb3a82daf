// Package query turns repository method declarations into executable
// queries: derived queries parsed from the method name, manually declared
// string queries, and stored procedure calls. Each method is classified
// once at bootstrap into an execution strategy; invocations then bind
// arguments and run against the configured engine.
package query

import (
	"fmt"

	"github.com/ekaya-inc/repoquery/pkg/binding"
)

// ReturnKind describes what shape a method invocation produces.
type ReturnKind int

const (
	// ReturnsMany yields all matching entities.
	ReturnsMany ReturnKind = iota
	// ReturnsOne yields exactly one entity and fails on zero or several.
	ReturnsOne
	// ReturnsOptional yields at most one entity, nil when absent.
	ReturnsOptional
	// ReturnsPage yields one page plus the total count.
	ReturnsPage
	// ReturnsSlice yields one page plus a has-next indicator.
	ReturnsSlice
	// ReturnsStream yields entities one at a time.
	ReturnsStream
	// ReturnsCount yields a number, for count methods and modifying
	// statements.
	ReturnsCount
	// ReturnsBool yields a boolean, for exists methods.
	ReturnsBool
	// ReturnsNone yields nothing.
	ReturnsNone
)

func (k ReturnKind) String() string {
	switch k {
	case ReturnsOne:
		return "one"
	case ReturnsOptional:
		return "optional"
	case ReturnsPage:
		return "page"
	case ReturnsSlice:
		return "slice"
	case ReturnsStream:
		return "stream"
	case ReturnsCount:
		return "count"
	case ReturnsBool:
		return "bool"
	case ReturnsNone:
		return "none"
	default:
		return "many"
	}
}

// ProcedureSpec declares a stored procedure backing a method.
type ProcedureSpec struct {
	// Name is the database procedure name. Empty derives it from the
	// method name.
	Name string

	// Outputs are the declared output parameter names. Empty synthesizes
	// names for methods returning a value.
	Outputs []string
}

// Method declares one repository query method: its name, the entity it
// operates on, its formal parameters and the annotations that steer query
// creation.
type Method struct {
	Name   string
	Entity any
	Params *binding.Parameters

	Returns ReturnKind

	// Query is a manually declared query. Empty derives the query from the
	// method name.
	Query  string
	Native bool

	// CountQuery overrides the derived count query for paged execution;
	// CountProjection overrides just the counted expression.
	CountQuery      string
	CountProjection string

	// Modifying marks a statement executed for its side effect.
	// FlushAutomatically flushes pending changes before it runs;
	// ClearAutomatically evicts engine state after.
	Modifying          bool
	FlushAutomatically bool
	ClearAutomatically bool

	// Procedure marks the method as a stored procedure call.
	Procedure *ProcedureSpec

	// FetchGraph lists association paths to fetch eagerly.
	FetchGraph []string
}

// validate enforces the declaration rules that do not depend on query
// content.
func (m *Method) validate() error {
	if m.Name == "" {
		return fmt.Errorf("method name must not be empty")
	}
	if m.Entity == nil {
		return fmt.Errorf("method %s: entity must not be nil", m.Name)
	}
	if m.Params == nil {
		return fmt.Errorf("method %s: parameters must not be nil", m.Name)
	}

	if m.Modifying {
		switch m.Returns {
		case ReturnsCount, ReturnsNone:
		default:
			return fmt.Errorf("method %s: modifying queries can only return the affected row count or nothing, not %s",
				m.Name, m.Returns)
		}
		if m.Params.HasPageable() || m.Params.HasSort() {
			return fmt.Errorf("method %s: modifying queries do not support Sort or Pageable parameters", m.Name)
		}
		if m.Procedure != nil {
			return fmt.Errorf("method %s: a method cannot be both modifying and a procedure call", m.Name)
		}
	}

	if m.Returns == ReturnsPage || m.Returns == ReturnsSlice {
		if !m.Params.HasPageable() {
			return fmt.Errorf("method %s: returning a %s requires a Pageable parameter", m.Name, m.Returns)
		}
	}

	if m.Procedure != nil && m.Query != "" {
		return fmt.Errorf("method %s: a procedure method cannot also declare a query", m.Name)
	}
	return nil
}
