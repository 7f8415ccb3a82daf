// Package pgxengine implements the persistence engine over a PostgreSQL
// connection pool. Entity-level queries are lowered to SQL against the
// metamodel's table mapping; results scan back into entity structs.
package pgxengine

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/repoquery/pkg/engine"
	"github.com/ekaya-inc/repoquery/pkg/logging"
	"github.com/ekaya-inc/repoquery/pkg/metamodel"
)

// Options tune engine behavior beyond what the pool itself carries.
type Options struct {
	// StreamFetchSize is the number of rows fetched per cursor round trip
	// when streaming inside a transaction. Zero streams the result set in
	// one pass.
	StreamFetchSize int

	// LogParameterValues includes bound parameter values in slow-query
	// logs. Values for sensitively named parameters are redacted either way.
	LogParameterValues bool

	// SlowQueryThreshold logs queries that run longer than this at warn
	// level. Zero disables the check.
	SlowQueryThreshold time.Duration
}

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Engine runs queries against PostgreSQL through pgx.
type Engine struct {
	pool   *pgxpool.Pool
	mm     *metamodel.Metamodel
	logger *zap.Logger
	opts   Options
}

func New(pool *pgxpool.Pool, mm *metamodel.Metamodel, logger *zap.Logger) *Engine {
	return NewWithOptions(pool, mm, logger, Options{})
}

func NewWithOptions(pool *pgxpool.Pool, mm *metamodel.Metamodel, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{pool: pool, mm: mm, logger: logger, opts: opts}
}

func (e *Engine) Capabilities() engine.Capabilities {
	return engine.Capabilities{
		SupportsNamedParameters: true,
		SupportsStreaming:       true,
	}
}

func (e *Engine) Metamodel() *metamodel.Metamodel { return e.mm }

func (e *Engine) CreateQuery(query string, entity *metamodel.EntityType) (engine.Query, error) {
	translated, err := translateEntityQuery(e.mm, query)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("translated entity query",
		zap.String("query", logging.SanitizeQuery(query)),
		zap.String("sql", logging.SanitizeQuery(translated.SQL)))
	return newQuery(e, translated, entity), nil
}

func (e *Engine) CreateNativeQuery(query string, entity *metamodel.EntityType) (engine.Query, error) {
	translated, err := rewriteNativePlaceholders(query)
	if err != nil {
		return nil, err
	}
	return newQuery(e, translated, entity), nil
}

func (e *Engine) CreateStoredProcedure(name string, outputs []string) (engine.StoredProcedure, error) {
	return &storedProcedure{engine: e, name: name, outputs: outputs}, nil
}

// Remove deletes the entity row by its identifier.
func (e *Engine) Remove(ctx context.Context, entity any) error {
	et := e.mm.EntityOf(entity)
	if et == nil {
		return fmt.Errorf("cannot remove %T: not a managed entity", entity)
	}
	if !et.HasSingleID() {
		return fmt.Errorf("cannot remove %s: entity has no single identifier", et.Name)
	}
	id := et.IDAttributes()[0]

	sql := fmt.Sprintf("delete from %s where %s = $1", et.Table, id.Column)
	_, err := e.conn(ctx).Exec(ctx, sql, id.Value(entity))
	if err != nil {
		return fmt.Errorf("removing %s: %w", et.Name, err)
	}
	return nil
}

// Flush is a no-op: statements execute immediately, there is no write-behind
// buffer to drain.
func (e *Engine) Flush(context.Context) error { return nil }

// Clear is a no-op: the engine holds no first-level cache whose staleness a
// bulk statement could expose.
func (e *Engine) Clear(context.Context) error { return nil }

// txKey carries the pgx transaction through the context.
type txKey struct{}

// WithinTransaction runs fn inside a database transaction. The context
// passed to fn marks the transaction as active for streaming executions.
func (e *Engine) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	ctx = engine.WithTransaction(context.WithValue(ctx, txKey{}, tx))

	if err := fn(ctx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			e.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// observe emits a slow-query warning when the threshold is configured and
// exceeded.
func (e *Engine) observe(sql string, params map[string]any, elapsed time.Duration) {
	if e.opts.SlowQueryThreshold <= 0 || elapsed < e.opts.SlowQueryThreshold {
		return
	}
	e.logger.Warn("slow query",
		zap.String("sql", logging.SanitizeQuery(sql)),
		zap.Duration("elapsed", elapsed),
		zap.Any("parameters", logging.SanitizeParameters(params, e.opts.LogParameterValues)))
}

func (e *Engine) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return e.pool
}

var _ engine.Engine = (*Engine)(nil)
