package storage

import (
	"context"
	"database/sql"
)

// conn is one live backend pool. The Store swaps it out on reconnect.
type conn interface {
	Probe(ctx context.Context) error
	Exec(ctx context.Context, query string, args ...any) error
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	Close() error
}

type dialFunc func(ctx context.Context) (conn, error)

type sqlConn struct {
	db *sql.DB
}

func sqlDialer(d dialect, dsn string, cfg Config) dialFunc {
	return func(ctx context.Context) (conn, error) {
		if d.name == "sqlite" {
			if err := ensureSQLiteDir(dsn); err != nil {
				return nil, err
			}
		}
		db, err := sql.Open(d.driver, dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		if err := d.init(ctx, db, cfg); err != nil {
			_ = db.Close()
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &sqlConn{db: db}, nil
	}
}

func (c *sqlConn) Probe(ctx context.Context) error {
	var one int
	return c.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func (c *sqlConn) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.db.ExecContext(ctx, query, args...)
	return err
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(Row, len(cols))
		for i, name := range cols {
			if b, ok := vals[i].([]byte); ok {
				r[name] = string(b)
				continue
			}
			r[name] = vals[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *sqlConn) Close() error { return c.db.Close() }
