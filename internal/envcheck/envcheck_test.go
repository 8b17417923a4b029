package envcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbp1/cdcboot/internal/config"
	"github.com/vbp1/cdcboot/internal/postgres"
	"github.com/vbp1/cdcboot/internal/probe"
)

var expected = []string{"clientes", "pedidos", "produtos", "itens_pedido", "campanhas_marketing", "leads"}

// dialer hands out a close-only connection for the readiness wait and then main.
func dialer(t *testing.T, failures int, main pgxmock.PgxConnIface) postgres.Dialer {
	calls := 0
	return func(ctx context.Context, db config.Database) (postgres.Conn, error) {
		calls++
		if calls <= failures {
			return nil, errors.New("connection refused")
		}
		if calls == failures+1 {
			m, err := pgxmock.NewConn()
			require.NoError(t, err)
			m.ExpectClose()
			return m, nil
		}
		return main, nil
	}
}

func newChecker(dial postgres.Dialer) *Checker {
	return &Checker{
		DB:        config.Default().Source,
		Dial:      dial,
		Attempts:  3,
		Delay:     time.Millisecond,
		Tables:    expected,
		MinTables: 2,
		Counted:   []string{"clientes", "pedidos"},
	}
}

func expectStructure(m pgxmock.PgxConnIface, tables ...string) {
	rows := pgxmock.NewRows([]string{"table_name"})
	for _, t := range tables {
		rows.AddRow(t)
	}
	m.ExpectQuery("FROM information_schema.tables").WithArgs("public", expected).WillReturnRows(rows)
}

func TestRunSuccess(t *testing.T) {
	m, err := pgxmock.NewConn()
	require.NoError(t, err)
	expectStructure(m, "clientes", "leads", "pedidos")
	m.ExpectQuery("FROM information_schema.columns").WithArgs("public", "clientes").
		WillReturnRows(pgxmock.NewRows([]string{"column_name"}).AddRow("id").AddRow("nome"))
	m.ExpectQuery("FROM information_schema.columns").WithArgs("public", "pedidos").
		WillReturnRows(pgxmock.NewRows([]string{"column_name"}).AddRow("id"))
	m.ExpectQuery(`SELECT COUNT\(\*\) FROM "public"."clientes"`).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(10)))
	m.ExpectQuery(`SELECT COUNT\(\*\) FROM "public"."pedidos"`).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	m.ExpectClose()

	var out bytes.Buffer
	c := newChecker(dialer(t, 1, m))
	c.Out = &out
	c.DiskPaths = []string{t.TempDir()}
	c.MinFree = 1
	verified := false
	c.Verify = func(ctx context.Context) error { verified = true; return errors.New("profile missing") }

	sum, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Attempts)
	assert.Equal(t, []string{"clientes", "leads", "pedidos"}, sum.Tables)
	assert.Equal(t, []string{"id", "nome"}, sum.Columns["clientes"])
	assert.Equal(t, map[string]int64{"clientes": 10, "pedidos": 0}, sum.Counts)
	assert.True(t, verified)
	assert.Len(t, sum.Disk, 1)
	assert.Contains(t, out.String(), "clientes=10 pedidos=0")
	assert.Contains(t, out.String(), "optional service checks skipped")
	require.NoError(t, m.ExpectationsWereMet())

	var warned bool
	for _, e := range c.Logs() {
		if e.Level == LevelWarning {
			warned = true
		}
	}
	assert.True(t, warned, "a failed tool check is reported as a warning")
}

func TestRunTooFewTables(t *testing.T) {
	m, err := pgxmock.NewConn()
	require.NoError(t, err)
	expectStructure(m, "clientes")
	m.ExpectClose()

	c := newChecker(dialer(t, 0, m))
	_, err = c.Run(context.Background())
	require.ErrorIs(t, err, ErrTablesMissing)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestRunDatabaseNeverReady(t *testing.T) {
	c := newChecker(dialer(t, 100, nil))
	sum, err := c.Run(context.Background())
	require.ErrorIs(t, err, ErrDatabaseNotReady)
	assert.Equal(t, 3, sum.Attempts)
}

func TestRunFullChecksServicesAndSlot(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer up.Close()

	m, err := pgxmock.NewConn()
	require.NoError(t, err)
	expectStructure(m, "clientes", "pedidos")
	m.ExpectQuery("FROM information_schema.columns").WithArgs("public", "clientes").
		WillReturnRows(pgxmock.NewRows([]string{"column_name"}).AddRow("id"))
	m.ExpectQuery("FROM information_schema.columns").WithArgs("public", "pedidos").
		WillReturnRows(pgxmock.NewRows([]string{"column_name"}).AddRow("id"))
	m.ExpectQuery("COUNT").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	m.ExpectQuery("COUNT").WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))
	m.ExpectQuery("FROM pg_publication").WithArgs("airbyte_publication").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	m.ExpectQuery("FROM pg_replication_slots").WithArgs("airbyte_slot").
		WillReturnRows(pgxmock.NewRows([]string{"active", "plugin"}).AddRow(false, "pgoutput"))
	m.ExpectClose()

	c := newChecker(dialer(t, 0, m))
	c.Full = true
	c.Publication = "airbyte_publication"
	c.Slot = "airbyte_slot"
	c.Services = []probe.Prober{
		probe.HTTP{Name: "Airbyte", URL: up.URL, Timeout: time.Second},
		probe.HTTP{Name: "Airflow", URL: "http://127.0.0.1:1", Timeout: time.Second},
	}

	sum, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sum.Services, 2)
	assert.True(t, sum.Services[0].Reachable)
	assert.False(t, sum.Services[1].Reachable)
	require.NotNil(t, sum.Slot)
	assert.Equal(t, "pgoutput", sum.Slot.Plugin)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestWriteReport(t *testing.T) {
	c := newChecker(dialer(t, 100, nil))
	c.Attempts = 1
	_, runErr := c.Run(context.Background())
	require.Error(t, runErr)

	path := filepath.Join(t.TempDir(), ReportFile)
	require.NoError(t, c.WriteReport(path, runErr))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rep Report
	require.NoError(t, json.Unmarshal(data, &rep))
	assert.Contains(t, rep.Error, "source database not ready")
	require.NotEmpty(t, rep.Logs)
	assert.Equal(t, LevelError, rep.Logs[len(rep.Logs)-1].Level)
	assert.NotEmpty(t, rep.Duration)
}
