package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vbp1/cdcboot/internal/config"
)

// Queryer is the subset of *pgx.Conn / pgxmock used by the helpers in this package.
type Queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Connect opens a single connection to db. The connect timeout from db bounds the dial
// even when ctx has no deadline.
func Connect(ctx context.Context, db config.Database) (*pgx.Conn, error) {
	cfg, err := pgx.ParseConfig("sslmode=disable")
	if err != nil {
		return nil, err
	}
	cfg.Host = db.Host
	cfg.Port = uint16(db.Port)
	cfg.User = db.User
	cfg.Password = db.Password
	cfg.Database = db.Name
	cfg.ConnectTimeout = db.ConnectTimeout

	dialCtx, cancel := context.WithTimeout(ctx, db.ConnectTimeout)
	defer cancel()
	conn, err := pgx.ConnectConfig(dialCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s@%s:%d/%s: %w", db.User, db.Host, db.Port, db.Name, err)
	}
	return conn, nil
}

// CountRows returns SELECT COUNT(*) of schema.table.
func CountRows(ctx context.Context, q Queryer, schema, table string) (int64, error) {
	sql := "SELECT COUNT(*) FROM " + pgx.Identifier{schema, table}.Sanitize()
	var n int64
	if err := q.QueryRow(ctx, sql).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s.%s: %w", schema, table, err)
	}
	return n, nil
}

// ListTables returns which of want exist in schema, in catalog order.
func ListTables(ctx context.Context, q Queryer, schema string, want []string) ([]string, error) {
	const sql = `SELECT table_name
              FROM information_schema.tables
              WHERE table_schema = $1 AND table_name = ANY($2)
              ORDER BY table_name`
	rows, err := q.Query(ctx, sql, schema, want)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

// ListColumns returns the column names of schema.table in ordinal order.
func ListColumns(ctx context.Context, q Queryer, schema, table string) ([]string, error) {
	const sql = `SELECT column_name
              FROM information_schema.columns
              WHERE table_schema = $1 AND table_name = $2
              ORDER BY ordinal_position`
	rows, err := q.Query(ctx, sql, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

// Conn is a closable Queryer; *pgx.Conn and pgxmock connections satisfy it.
type Conn interface {
	Queryer
	Close(ctx context.Context) error
}

// Dialer opens a connection; Dial satisfies it.
type Dialer func(ctx context.Context, db config.Database) (Conn, error)

// Dial is Connect behind the Conn interface.
func Dial(ctx context.Context, db config.Database) (Conn, error) {
	conn, err := Connect(ctx, db)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// WaitReady retries dial until a connection succeeds, up to attempts tries spaced by delay.
// It returns the attempt number that succeeded.
func WaitReady(ctx context.Context, dial Dialer, db config.Database, attempts int, delay time.Duration) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := dial(ctx, db)
		if err == nil {
			_ = conn.Close(ctx)
			return attempt, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(delay):
		}
	}
	return attempts, fmt.Errorf("database %s not ready after %d attempts: %w", db.Name, attempts, lastErr)
}
