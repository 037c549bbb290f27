package postgres

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"

	"github.com/koustreak/mallgate/internal/database"
	"github.com/koustreak/mallgate/internal/errs"
	"github.com/koustreak/mallgate/internal/logger"
)

// scopeSQL sets the search path for the checked-out session and reports,
// in the same round trip, whether the schema still exists. search_path
// silently accepts missing schemas, so the EXISTS is what catches a schema
// renamed or dropped after startup.
const scopeSQL = `
	SELECT set_config('search_path', $1, false),
	       EXISTS (SELECT 1 FROM pg_catalog.pg_namespace WHERE nspname = $2)`

const (
	bootstrapMaxTries   = 5
	bootstrapMaxElapsed = 30 * time.Second
)

// Gateway is the PostgreSQL implementation of database.Executor backed by a
// bounded pgxpool. Every Execute checks out a connection, applies the
// configured schema scope, runs the statement and releases the connection on
// every exit path. It is safe for concurrent use by multiple goroutines.
type Gateway struct {
	cfg  database.Config
	pool connPool
	log  *logger.Logger

	closeOnce sync.Once
}

// New validates cfg, builds the pool, waits for the database to answer a
// ping (retrying transient failures with exponential backoff) and verifies
// that the configured schema exists. Configuration problems, including a
// missing password or schema, come back as errs Configuration errors.
func New(ctx context.Context, cfg database.Config, log *logger.Logger) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	if log == nil {
		log = logger.FromContext(ctx)
	}

	p, err := buildPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	g := newGateway(cfg, p, log)
	if err := g.bootstrap(ctx); err != nil {
		p.close()
		return nil, err
	}

	log.InfoWith("connection pool ready", logger.Fields{
		"target":    describePool(cfg),
		"schema":    cfg.Schema,
		"max_conns": cfg.MaxConns,
	})
	return g, nil
}

func newGateway(cfg database.Config, p connPool, log *logger.Logger) *Gateway {
	return &Gateway{
		cfg:  cfg,
		pool: p,
		log:  log.With().Str("component", "gateway").Str("schema", cfg.Schema).Logger(),
	}
}

// bootstrap pings until the server answers, then performs one scoped
// checkout so a missing schema fails startup.
func (g *Gateway) bootstrap(ctx context.Context) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, g.cfg.ConnectTimeout)
		defer cancel()
		err := g.pool.ping(pingCtx)
		if err != nil && isPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(bootstrapMaxTries),
		backoff.WithMaxElapsedTime(bootstrapMaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			g.log.WarnWith("database not reachable, retrying", err, logger.Fields{
				"retry_in": next.String(),
			})
		}),
	)
	if err != nil {
		return mapError(err, "database unreachable")
	}

	c, err := g.checkout(ctx)
	if err != nil {
		return err
	}
	c.Release()
	return nil
}

// Schema returns the schema every statement is scoped to.
func (g *Gateway) Schema() string {
	return g.cfg.Schema
}

// Stats returns a snapshot of the pool counters.
func (g *Gateway) Stats() database.PoolStats {
	return g.pool.stat()
}

// Ping verifies the database is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ConnectTimeout)
	defer cancel()
	return mapError(g.pool.ping(ctx), "ping failed")
}

// Execute runs sql on a schema-scoped connection and returns every row.
// Statements without args go over the simple query protocol; statements
// with args use the extended protocol with server-side parameter binding.
func (g *Gateway) Execute(ctx context.Context, sql string, args ...any) (*database.QueryResult, error) {
	c, err := g.checkout(ctx)
	if err != nil {
		return nil, err
	}
	defer c.Release()

	queryArgs := args
	if len(args) == 0 {
		queryArgs = []any{pgx.QueryExecModeSimpleProtocol}
	}

	rows, err := c.Query(ctx, sql, queryArgs...)
	if err != nil {
		return nil, mapError(err, "query failed")
	}

	res, err := database.ScanRows(&pgxRows{rows: rows})
	if err != nil {
		return nil, mapError(err, "query failed")
	}
	return res, nil
}

// Shutdown closes the pool. It blocks until every checked-out connection has
// been released, so in-flight statements finish before it returns. Calls
// after the first are no-ops.
func (g *Gateway) Shutdown() {
	g.closeOnce.Do(func() {
		g.log.Info("draining connection pool")
		g.pool.close()
		g.log.Info("connection pool closed")
	})
}

// checkout acquires a connection within ConnectTimeout and applies the
// schema scope. On error nothing is left checked out.
func (g *Gateway) checkout(ctx context.Context) (conn, error) {
	acqCtx, cancel := context.WithTimeout(ctx, g.cfg.ConnectTimeout)
	defer cancel()

	c, err := g.pool.acquire(acqCtx)
	if err != nil {
		return nil, g.acquireError(ctx, err)
	}

	if err := g.applyScope(ctx, c); err != nil {
		c.Release()
		return nil, err
	}
	return c, nil
}

func (g *Gateway) acquireError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errs.Wrap(errs.ErrKindTimeout, "acquire cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		stats := g.pool.stat()
		if stats.Available() <= 0 {
			g.log.WarnWith("connection pool exhausted", err, logger.Fields{
				"max_conns": stats.Max,
				"wait":      g.cfg.ConnectTimeout.String(),
			})
			return errs.Wrap(errs.ErrKindPoolExhausted, "no connection available before acquire timeout", err)
		}
		return errs.Wrap(errs.ErrKindTimeout, "connect timeout", err)
	}
	return mapError(err, "failed to acquire connection")
}

func (g *Gateway) applyScope(ctx context.Context, c conn) error {
	var (
		path   string
		exists bool
	)
	err := c.QueryRow(ctx, scopeSQL, pgx.Identifier{g.cfg.Schema}.Sanitize(), g.cfg.Schema).Scan(&path, &exists)
	if err != nil {
		return mapError(err, "failed to apply schema scope")
	}
	if !exists {
		return errs.Newf(errs.ErrKindConfiguration, "schema %q does not exist", g.cfg.Schema)
	}
	return nil
}
