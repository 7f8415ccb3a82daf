package pgxengine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ekaya-inc/repoquery/pkg/domain"
	"github.com/ekaya-inc/repoquery/pkg/engine"
)

// storedProcedure calls a PostgreSQL procedure. Output parameters are read
// from the row a CALL with INOUT parameters returns; procedures producing a
// result set run as set-returning functions instead.
type storedProcedure struct {
	engine  *Engine
	name    string
	outputs []string

	named    map[string]any
	pos      map[int]any
	executed bool
	results  map[string]any
}

func (p *storedProcedure) SetNamed(name string, value any, _ domain.TemporalType) error {
	if p.named == nil {
		p.named = make(map[string]any)
	}
	p.named[name] = p.engine.normalize(value)
	return nil
}

func (p *storedProcedure) SetPositional(position int, value any, _ domain.TemporalType) error {
	if p.pos == nil {
		p.pos = make(map[int]any)
	}
	p.pos[position] = p.engine.normalize(value)
	return nil
}

func (p *storedProcedure) Execute(ctx context.Context) error {
	sql, args := p.callStatement()
	rows, err := p.engine.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("calling procedure %s: %w", p.name, err)
	}
	defer rows.Close()

	p.results = make(map[string]any)
	if rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return fmt.Errorf("reading outputs of procedure %s: %w", p.name, err)
		}
		for i, fd := range rows.FieldDescriptions() {
			if i < len(values) {
				p.results[strings.ToLower(fd.Name)] = values[i]
			}
		}
		// single synthesized output: take the first column regardless of name
		if len(p.outputs) == 1 && len(values) > 0 {
			if _, ok := p.results[strings.ToLower(p.outputs[0])]; !ok {
				p.results[strings.ToLower(p.outputs[0])] = values[0]
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("calling procedure %s: %w", p.name, err)
	}
	p.executed = true
	return nil
}

func (p *storedProcedure) OutputValue(name string) (any, error) {
	if !p.executed {
		return nil, fmt.Errorf("procedure %s was not executed", p.name)
	}
	value, ok := p.results[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("procedure %s has no output %q", p.name, name)
	}
	return value, nil
}

// ResultRows runs the procedure as a set-returning function and returns
// its rows as scalar tuples.
func (p *storedProcedure) ResultRows(ctx context.Context) ([]any, error) {
	args := p.argList()
	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sql := fmt.Sprintf("select * from %s(%s)", p.name, strings.Join(placeholders, ", "))

	rows, err := p.engine.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("calling function %s: %w", p.name, err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading rows of %s: %w", p.name, err)
		}
		if len(values) == 1 {
			out = append(out, values[0])
		} else {
			out = append(out, values)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows of %s: %w", p.name, err)
	}
	return out, nil
}

// callStatement builds "call name(...)". Named inputs use PostgreSQL named
// notation; positional inputs bind in order.
func (p *storedProcedure) callStatement() (string, []any) {
	var parts []string
	var args []any
	n := 0

	for _, pos := range sortedPositions(p.pos) {
		n++
		parts = append(parts, fmt.Sprintf("$%d", n))
		args = append(args, p.pos[pos])
	}
	for _, name := range sortedNames(p.named) {
		n++
		parts = append(parts, fmt.Sprintf("%s => $%d", name, n))
		args = append(args, p.named[name])
	}
	return fmt.Sprintf("call %s(%s)", p.name, strings.Join(parts, ", ")), args
}

func (p *storedProcedure) argList() []any {
	var args []any
	for _, pos := range sortedPositions(p.pos) {
		args = append(args, p.pos[pos])
	}
	for _, name := range sortedNames(p.named) {
		args = append(args, p.named[name])
	}
	return args
}

func sortedPositions(m map[int]any) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func sortedNames(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var _ engine.StoredProcedure = (*storedProcedure)(nil)
