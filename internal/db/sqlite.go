package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// sqlitePool backs local development and tests. database/sql already pools
// connections, so Acquire pins one *sql.Conn for the caller.
type sqlitePool struct {
	db *sql.DB
}

func openSQLite(ctx context.Context, cfg Config) (Pool, error) {
	if cfg.DSN == "" {
		return nil, errors.New("sqlite requires a DSN")
	}

	sqlDB, err := sql.Open("sqlite", sqliteDSN(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(MaxConns)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxIdleTime(time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	return &sqlitePool{db: sqlDB}, nil
}

// sqliteDSN makes time.Time values round-trip as sortable text and lets
// writers wait on each other instead of failing with SQLITE_BUSY.
func sqliteDSN(dsn string) string {
	params := []string{}
	if !strings.Contains(dsn, "_time_format=") {
		params = append(params, "_time_format=sqlite")
	}
	if !strings.Contains(dsn, "busy_timeout") {
		params = append(params, "_pragma=busy_timeout(5000)")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func (p *sqlitePool) Acquire(ctx context.Context) (Conn, error) {
	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqliteConn{conn: c}, nil
}

func (p *sqlitePool) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
func (p *sqlitePool) Close()                         { _ = p.db.Close() }
func (p *sqlitePool) Driver() string                 { return DriverSQLite }

type sqliteConn struct {
	conn *sql.Conn
}

func (c *sqliteConn) Exec(ctx context.Context, query string, args ...any) error {
	_, err := c.conn.ExecContext(ctx, query, args...)
	return err
}

func (c *sqliteConn) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows: rows}, nil
}

func (c *sqliteConn) Release() { _ = c.conn.Close() }

type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool             { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *sqlRows) Err() error             { return r.rows.Err() }
func (r *sqlRows) Close()                 { _ = r.rows.Close() }
