// Package envcheck verifies the local environment before the pipeline starts: the source
// database answers, the expected tables exist and optional services respond.
package envcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/vbp1/cdcboot/internal/config"
	"github.com/vbp1/cdcboot/internal/postgres"
	"github.com/vbp1/cdcboot/internal/probe"
	"github.com/vbp1/cdcboot/internal/util/disk"
	"github.com/vbp1/cdcboot/internal/util/fs"
)

// ReportFile is the default name of the JSON failure report.
const ReportFile = "environment_check_error.log"

var (
	// ErrDatabaseNotReady means the source database never accepted a connection.
	ErrDatabaseNotReady = errors.New("source database not ready")
	// ErrTablesMissing means fewer than the required tables exist.
	ErrTablesMissing = errors.New("expected tables missing")
)

// Level of a report entry.
const (
	LevelInfo    = "INFO"
	LevelSuccess = "SUCCESS"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

// Entry is one logged check line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Report is written on failure.
type Report struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Duration  string    `json:"duration"`
	Logs      []Entry   `json:"logs"`
}

// Summary is what a successful check found.
type Summary struct {
	Attempts int
	Tables   []string
	Columns  map[string][]string
	Counts   map[string]int64
	Services []probe.Result
	Slot     *postgres.SlotState
	Disk     map[string]disk.Space
	Duration time.Duration
}

// Checker runs the checks in order. The first fatal failure stops the run.
type Checker struct {
	DB       config.Database
	Dial     postgres.Dialer
	Attempts int
	Delay    time.Duration

	Schema string
	// Tables are looked up in information_schema; at least MinTables must exist.
	Tables    []string
	MinTables int
	// Counted tables get a row count and a column listing.
	Counted []string

	// Full enables the optional checks: Services and the replication slot.
	Full        bool
	Services    []probe.Prober
	Slot        string
	Publication string

	// DiskPaths must each have MinFree bytes available; shortage is only a warning.
	DiskPaths []string
	MinFree   uint64

	// Verify, when set, checks the transformation tool; failure is only a warning.
	Verify func(ctx context.Context) error

	Out io.Writer

	start time.Time
	logs  []Entry
	now   func() time.Time
}

func (c *Checker) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func (c *Checker) record(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.logs = append(c.logs, Entry{Timestamp: c.clock(), Level: level, Message: msg})
	if c.Out != nil {
		fmt.Fprintf(c.Out, "[%s] %-7s %s\n", c.clock().Format("15:04:05"), level, msg)
	}
	switch level {
	case LevelError:
		slog.Error(msg)
	case LevelWarning:
		slog.Warn(msg)
	default:
		slog.Debug(msg)
	}
}

// Logs returns the entries recorded so far.
func (c *Checker) Logs() []Entry { return slices.Clone(c.logs) }

// Run executes every check.
func (c *Checker) Run(ctx context.Context) (Summary, error) {
	c.start = c.clock()
	c.logs = nil
	sum := Summary{Columns: map[string][]string{}, Counts: map[string]int64{}, Disk: map[string]disk.Space{}}
	dial := c.Dial
	if dial == nil {
		dial = postgres.Dial
	}
	schema := c.Schema
	if schema == "" {
		schema = "public"
	}

	for _, p := range c.DiskPaths {
		sp, err := disk.EnsureSpace(ctx, p, c.MinFree)
		if err != nil {
			c.record(LevelWarning, "%v", err)
		} else {
			c.record(LevelInfo, "%s: %.0f MB free", p, disk.MB(sp.Free))
		}
		if sp.Total > 0 {
			sum.Disk[p] = sp
		}
	}

	c.record(LevelInfo, "waiting for database %s at %s:%d (max %d attempts, %s apart)", c.DB.Name, c.DB.Host, c.DB.Port, c.Attempts, c.Delay)
	n, err := postgres.WaitReady(ctx, dial, c.DB, max(c.Attempts, 1), c.Delay)
	sum.Attempts = n
	if err != nil {
		c.record(LevelError, "database not reachable: %v", err)
		return sum, fmt.Errorf("%w: %w", ErrDatabaseNotReady, err)
	}
	c.record(LevelSuccess, "database connection established (attempt %d)", n)

	conn, err := dial(ctx, c.DB)
	if err != nil {
		c.record(LevelError, "database connection lost: %v", err)
		return sum, fmt.Errorf("%w: %w", ErrDatabaseNotReady, err)
	}
	defer func() { _ = conn.Close(context.WithoutCancel(ctx)) }()

	tables, err := postgres.ListTables(ctx, conn, schema, c.Tables)
	if err != nil {
		c.record(LevelError, "list tables: %v", err)
		return sum, fmt.Errorf("list tables: %w", err)
	}
	sum.Tables = tables
	if len(tables) < c.MinTables {
		c.record(LevelError, "only %d of the expected tables exist: [%s]", len(tables), strings.Join(tables, ", "))
		return sum, fmt.Errorf("%w: found %d, need %d", ErrTablesMissing, len(tables), c.MinTables)
	}
	c.record(LevelSuccess, "%d tables available: [%s]", len(tables), strings.Join(tables, ", "))

	for _, t := range c.Counted {
		if !slices.Contains(tables, t) {
			continue
		}
		cols, err := postgres.ListColumns(ctx, conn, schema, t)
		if err != nil {
			c.record(LevelWarning, "columns of %s: %v", t, err)
			continue
		}
		sum.Columns[t] = cols
		c.record(LevelInfo, "table %s: %d columns [%s]", t, len(cols), strings.Join(cols, ", "))
	}

	var total int64
	for _, t := range c.Counted {
		n, err := postgres.CountRows(ctx, conn, schema, t)
		if err != nil {
			c.record(LevelWarning, "count %s: %v", t, err)
			continue
		}
		sum.Counts[t] = n
		total += n
	}
	if total > 0 {
		c.record(LevelSuccess, "database has data: %s", formatCounts(c.Counted, sum.Counts))
	} else {
		c.record(LevelWarning, "database is empty: %s", formatCounts(c.Counted, sum.Counts))
	}

	if c.Verify != nil {
		if err := c.Verify(ctx); err != nil {
			c.record(LevelWarning, "transformation tool check failed, continuing: %v", err)
		} else {
			c.record(LevelSuccess, "transformation tool configured")
		}
	}

	if !c.Full {
		c.record(LevelInfo, "optional service checks skipped (use --full)")
	} else {
		c.optional(ctx, conn, &sum)
	}

	sum.Duration = c.clock().Sub(c.start)
	c.record(LevelSuccess, "environment verified in %s", sum.Duration.Round(time.Millisecond))
	return sum, nil
}

func (c *Checker) optional(ctx context.Context, q postgres.Queryer, sum *Summary) {
	sum.Services = probe.Gather(ctx, c.Services...)
	for _, r := range sum.Services {
		if r.Reachable {
			c.record(LevelSuccess, "%s responding", r.Name)
		} else {
			c.record(LevelWarning, "%s not responding: %s", r.Name, r.Detail)
		}
	}

	if c.Publication != "" {
		ok, err := postgres.PublicationExists(ctx, q, c.Publication)
		switch {
		case err != nil:
			c.record(LevelWarning, "publication %s: %v", c.Publication, err)
		case ok:
			c.record(LevelSuccess, "publication %s exists", c.Publication)
		default:
			c.record(LevelWarning, "publication %s not found", c.Publication)
		}
	}
	if c.Slot != "" {
		st, err := postgres.ReplicationSlot(ctx, q, c.Slot)
		switch {
		case err != nil:
			c.record(LevelWarning, "replication slot %s: %v", c.Slot, err)
		case !st.Exists:
			c.record(LevelWarning, "replication slot %s not created yet", c.Slot)
		default:
			sum.Slot = &st
			c.record(LevelSuccess, "replication slot %s exists (plugin %s, active %t)", c.Slot, st.Plugin, st.Active)
		}
	}
}

// Report builds the failure report for cause.
func (c *Checker) Report(cause error) Report {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return Report{
		Timestamp: c.clock(),
		Error:     msg,
		Duration:  c.clock().Sub(c.start).String(),
		Logs:      c.Logs(),
	}
}

// WriteReport stores the failure report for cause as indented JSON at path.
func (c *Checker) WriteReport(path string, cause error) error {
	data, err := json.MarshalIndent(c.Report(cause), "", "  ")
	if err != nil {
		return err
	}
	if err := fs.ReplaceFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

func formatCounts(order []string, counts map[string]int64) string {
	parts := make([]string, 0, len(order))
	for _, t := range order {
		if n, ok := counts[t]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", t, n))
		}
	}
	return strings.Join(parts, " ")
}
