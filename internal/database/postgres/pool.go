package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/mallgate/internal/database"
	"github.com/koustreak/mallgate/internal/errs"
)

const applicationName = "mallgate"

// conn is the part of *pgxpool.Conn the gateway uses.
type conn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Release()
}

// connPool is the seam between the gateway and pgxpool.
type connPool interface {
	acquire(ctx context.Context) (conn, error)
	ping(ctx context.Context) error
	stat() database.PoolStats
	close()
}

type pgxPool struct {
	pool *pgxpool.Pool
}

// buildPool creates a pgxpool from cfg. It does not dial; connections are
// opened lazily on first acquire.
func buildPool(ctx context.Context, cfg database.Config) (*pgxPool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfiguration, "invalid postgres config", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = 0
	poolCfg.MaxConnIdleTime = cfg.IdleTimeout
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, mapError(err, "failed to create connection pool")
	}
	return &pgxPool{pool: pool}, nil
}

func (p *pgxPool) acquire(ctx context.Context) (conn, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p *pgxPool) ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *pgxPool) stat() database.PoolStats {
	s := p.pool.Stat()
	return database.PoolStats{
		Max:      s.MaxConns(),
		Acquired: s.AcquiredConns(),
		Idle:     s.IdleConns(),
		Total:    s.TotalConns(),
	}
}

func (p *pgxPool) close() {
	p.pool.Close()
}

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Values() ([]any, error) { return r.rows.Values() }
func (r *pgxRows) Close()                 { r.rows.Close() }
func (r *pgxRows) Err() error             { return r.rows.Err() }
func (r *pgxRows) RowsAffected() int64    { return r.rows.CommandTag().RowsAffected() }

func (r *pgxRows) Columns() []string {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols
}

func describePool(cfg database.Config) string {
	return fmt.Sprintf("%s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)
}
