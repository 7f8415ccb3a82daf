package pgxengine

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/repoquery/pkg/domain"
	"github.com/ekaya-inc/repoquery/pkg/engine"
	"github.com/ekaya-inc/repoquery/pkg/metamodel"
)

// query is one translated statement with its bound arguments. Each $N
// placeholder answers to a slot; binding resolves slots by name or by
// position.
type query struct {
	engine     *Engine
	translated *Translated
	entity     *metamodel.EntityType

	args  []any
	bound []bool
	max   int
	first int
}

func newQuery(e *Engine, translated *Translated, entity *metamodel.EntityType) *query {
	return &query{
		engine:     e,
		translated: translated,
		entity:     entity,
		args:       make([]any, len(translated.Slots)),
		bound:      make([]bool, len(translated.Slots)),
	}
}

func (q *query) SetNamed(name string, value any, _ domain.TemporalType) error {
	found := false
	for i, slot := range q.translated.Slots {
		if slot == name {
			q.args[i] = q.engine.normalize(value)
			q.bound[i] = true
			found = true
		}
	}
	if !found {
		return fmt.Errorf("query has no parameter named %q", name)
	}
	return nil
}

func (q *query) SetPositional(position int, value any, _ domain.TemporalType) error {
	key := fmt.Sprintf("?%d", position)
	for i, slot := range q.translated.Slots {
		if slot == key {
			q.args[i] = q.engine.normalize(value)
			q.bound[i] = true
			return nil
		}
	}
	return fmt.Errorf("query has no parameter at position %d", position)
}

func (q *query) SetMaxResults(n int)  { q.max = n }
func (q *query) SetFirstResult(n int) { q.first = n }

// ApplyFetchGraph is unsupported: associations load through explicit joins,
// there is no lazy-loading proxy to steer.
func (q *query) ApplyFetchGraph([]string) error {
	return fmt.Errorf("fetch graphs are not supported by the postgres engine")
}

// namedArgs keys the bound values by their slot for logging.
func (q *query) namedArgs() map[string]any {
	params := make(map[string]any, len(q.args))
	for i, slot := range q.translated.Slots {
		params[slot] = q.args[i]
	}
	return params
}

func (q *query) List(ctx context.Context) ([]any, error) {
	sql, err := q.finalSQL()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := q.engine.conn(ctx).Query(ctx, sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	scan, err := newRowScanner(q.engine.mm, q.entity, rows)
	if err != nil {
		return nil, err
	}
	var out []any
	for rows.Next() {
		value, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	q.engine.observe(sql, q.namedArgs(), time.Since(start))
	return out, nil
}

func (q *query) Stream(ctx context.Context) iter.Seq2[any, error] {
	if size := q.engine.opts.StreamFetchSize; size > 0 && engine.ActiveTransaction(ctx) {
		return q.cursorStream(ctx, size)
	}
	return func(yield func(any, error) bool) {
		sql, err := q.finalSQL()
		if err != nil {
			yield(nil, err)
			return
		}
		rows, err := q.engine.conn(ctx).Query(ctx, sql, q.args...)
		if err != nil {
			yield(nil, fmt.Errorf("executing query: %w", err))
			return
		}
		defer rows.Close()

		scan, err := newRowScanner(q.engine.mm, q.entity, rows)
		if err != nil {
			yield(nil, err)
			return
		}
		for rows.Next() {
			value, err := scan(rows)
			if !yield(value, err) {
				return
			}
			if err != nil {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("reading rows: %w", err))
		}
	}
}

// cursorStream fetches rows in configurable batches through a server-side
// cursor. Cursors only survive inside the surrounding transaction, which
// stream executions already require.
func (q *query) cursorStream(ctx context.Context, size int) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		sql, err := q.finalSQL()
		if err != nil {
			yield(nil, err)
			return
		}
		conn := q.engine.conn(ctx)
		name := "stream_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		declare := fmt.Sprintf("declare %s no scroll cursor for %s", name, sql)
		if _, err := conn.Exec(ctx, declare, q.args...); err != nil {
			yield(nil, fmt.Errorf("declaring cursor: %w", err))
			return
		}
		defer conn.Exec(ctx, "close "+name)

		var scan rowScanner
		for {
			rows, err := conn.Query(ctx, fmt.Sprintf("fetch %d from %s", size, name))
			if err != nil {
				yield(nil, fmt.Errorf("fetching from cursor: %w", err))
				return
			}
			if scan == nil {
				scan, err = newRowScanner(q.engine.mm, q.entity, rows)
				if err != nil {
					rows.Close()
					yield(nil, err)
					return
				}
			}
			fetched := 0
			for rows.Next() {
				fetched++
				value, err := scan(rows)
				if !yield(value, err) {
					rows.Close()
					return
				}
				if err != nil {
					rows.Close()
					return
				}
			}
			err = rows.Err()
			rows.Close()
			if err != nil {
				yield(nil, fmt.Errorf("reading rows: %w", err))
				return
			}
			if fetched < size {
				return
			}
		}
	}
}

func (q *query) ExecuteUpdate(ctx context.Context) (int64, error) {
	sql, err := q.finalSQL()
	if err != nil {
		return 0, err
	}
	start := time.Now()
	tag, err := q.engine.conn(ctx).Exec(ctx, sql, q.args...)
	if err != nil {
		return 0, fmt.Errorf("executing statement: %w", err)
	}
	q.engine.observe(sql, q.namedArgs(), time.Since(start))
	return tag.RowsAffected(), nil
}

func (q *query) finalSQL() (string, error) {
	for i, ok := range q.bound {
		if !ok {
			return "", fmt.Errorf("parameter %s was never bound", q.translated.Slots[i])
		}
	}
	var b strings.Builder
	b.WriteString(q.translated.SQL)
	if q.max > 0 {
		fmt.Fprintf(&b, " limit %d", q.max)
	}
	if q.first > 0 {
		fmt.Fprintf(&b, " offset %d", q.first)
	}
	return b.String(), nil
}

// normalize replaces managed entity values with their identifier so
// comparisons against associations bind the foreign key.
func (e *Engine) normalize(value any) any {
	if value == nil {
		return nil
	}
	et := e.mm.EntityOf(value)
	if et == nil || !et.HasSingleID() {
		return value
	}
	return et.IDAttributes()[0].Value(value)
}

// rewriteNativePlaceholders converts :name, ?N and plain ? placeholders in
// a native query to $N, recording the slot order. Quoted regions are left
// untouched.
func rewriteNativePlaceholders(query string) (*Translated, error) {
	var b strings.Builder
	var slots []string
	slot := func(key string) int {
		for i, s := range slots {
			if s == key {
				return i + 1
			}
		}
		slots = append(slots, key)
		return len(slots)
	}

	jdbc := 0
	i := 0
	for i < len(query) {
		c := query[i]
		switch {
		case c == '\'' || c == '"':
			end := i + 1
			for end < len(query) && query[end] != c {
				end++
			}
			if end < len(query) {
				end++
			}
			b.WriteString(query[i:end])
			i = end

		case c == ':' && i+1 < len(query) && isNameStart(query[i+1]):
			if i > 0 && query[i-1] == ':' {
				b.WriteByte(c)
				i++
				continue
			}
			end := i + 1
			for end < len(query) && isNameRune(query[end]) {
				end++
			}
			fmt.Fprintf(&b, "$%d", slot(query[i+1:end]))
			i = end

		case c == '?':
			end := i + 1
			for end < len(query) && query[end] >= '0' && query[end] <= '9' {
				end++
			}
			if end > i+1 {
				fmt.Fprintf(&b, "$%d", slot("?"+query[i+1:end]))
			} else {
				jdbc++
				fmt.Fprintf(&b, "$%d", slot(fmt.Sprintf("?%d", jdbc)))
			}
			i = end

		default:
			b.WriteByte(c)
			i++
		}
	}
	return &Translated{SQL: b.String(), Slots: slots}, nil
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameRune(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

var _ engine.Query = (*query)(nil)
