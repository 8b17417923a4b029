package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/vbp1/cdcboot/internal/config"
	"github.com/vbp1/cdcboot/internal/postgres"
)

// Conn is the part of a database connection the probe needs.
type Conn = postgres.Conn

// Opener opens a connection to db.
type Opener = postgres.Dialer

// DefaultOpener connects with pgx.
var DefaultOpener Opener = postgres.Dial

// Database probes reachability and the row count of a known table. A failing count
// query means the table may not exist yet: the database is reachable but empty. The
// count query and the close are bounded by QueryTimeout, falling back to the connect
// timeout and then DefaultTimeout.
type Database struct {
	Name         string
	DB           config.Database
	Schema       string
	Table        string
	Open         Opener
	QueryTimeout time.Duration
}

func (d Database) identity() (Kind, string) { return KindDatabase, d.Name }

func (d Database) queryTimeout() time.Duration {
	switch {
	case d.QueryTimeout > 0:
		return d.QueryTimeout
	case d.DB.ConnectTimeout > 0:
		return d.DB.ConnectTimeout
	default:
		return DefaultTimeout
	}
}

// Probe implements Prober.
func (d Database) Probe(ctx context.Context) Result {
	res := Result{Kind: KindDatabase, Name: d.Name}
	open := d.Open
	if open == nil {
		open = DefaultOpener
	}
	conn, err := open(ctx, d.DB)
	if err != nil {
		res.Detail = err.Error()
		slog.Debug("probe: database unreachable", "name", d.Name, "err", err)
		return res
	}
	timeout := d.queryTimeout()
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		_ = conn.Close(cctx)
	}()

	res.Reachable = true
	schema := d.Schema
	if schema == "" {
		schema = "public"
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	n, err := postgres.CountRows(qctx, conn, schema, d.Table)
	if err != nil {
		res.RecordCount = count(0)
		res.Detail = err.Error()
		slog.Debug("probe: count failed, treating as empty", "name", d.Name, "err", err)
		return res
	}
	res.RecordCount = count(n)
	return res
}
