package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbp1/cdcboot/internal/config"
	execx "github.com/vbp1/cdcboot/internal/process"
)

func mockOpener(t *testing.T, setup func(m pgxmock.PgxConnIface)) Opener {
	return func(ctx context.Context, db config.Database) (Conn, error) {
		m, err := pgxmock.NewConn()
		require.NoError(t, err)
		setup(m)
		m.ExpectClose()
		return m, nil
	}
}

func TestDatabaseWithData(t *testing.T) {
	open := mockOpener(t, func(m pgxmock.PgxConnIface) {
		m.ExpectQuery(`SELECT COUNT\(\*\)`).WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(5)))
	})
	res := Database{Name: "target", DB: config.Default().Target, Table: "clientes", Open: open}.Probe(context.Background())
	assert.True(t, res.Reachable)
	assert.Equal(t, int64(5), res.Count())
	assert.Equal(t, ReachableWithData, res.Status())
	assert.Equal(t, KindDatabase, res.Kind)
}

func TestDatabaseCountFailureIsReachableEmpty(t *testing.T) {
	open := mockOpener(t, func(m pgxmock.PgxConnIface) {
		m.ExpectQuery(`SELECT COUNT\(\*\)`).WillReturnError(errors.New(`relation "public.clientes" does not exist`))
	})
	res := Database{Name: "target", DB: config.Default().Target, Table: "clientes", Open: open}.Probe(context.Background())
	assert.True(t, res.Reachable)
	require.NotNil(t, res.RecordCount)
	assert.Equal(t, int64(0), *res.RecordCount)
	assert.Equal(t, ReachableEmpty, res.Status())
	assert.Contains(t, res.Detail, "does not exist")
}

func TestDatabaseUnreachable(t *testing.T) {
	open := func(ctx context.Context, db config.Database) (Conn, error) {
		return nil, errors.New("dial tcp: connection refused")
	}
	res := Database{Name: "source", DB: config.Default().Source, Table: "clientes", Open: open}.Probe(context.Background())
	assert.False(t, res.Reachable)
	assert.Nil(t, res.RecordCount)
	assert.Equal(t, Unreachable, res.Status())
}

type fakeLister struct {
	names []string
	err   error
}

func (f fakeLister) Names(ctx context.Context, filter string) ([]string, error) {
	return f.names, f.err
}

func TestProcessPresence(t *testing.T) {
	p := Process{Name: "airbyte_webapp", Lister: fakeLister{names: []string{"airbyte_webapp"}}}
	assert.True(t, p.Probe(context.Background()).Reachable)

	p.Lister = fakeLister{names: []string{"postgres_source_db"}}
	assert.False(t, p.Probe(context.Background()).Reachable)

	p.Lister = fakeLister{err: errors.New("docker daemon not running")}
	res := p.Probe(context.Background())
	assert.False(t, res.Reachable)
	assert.Equal(t, KindProcess, res.Kind)
}

func TestDockerListerArgs(t *testing.T) {
	var gotArgs []string
	run := func(ctx context.Context, dir, bin string, args ...string) execx.Result {
		gotArgs = append([]string{bin}, args...)
		return execx.Result{Stdout: []byte("airbyte_webapp\nairbyte_webapp_proxy\n")}
	}
	names, err := Docker{Run: run}.Names(context.Background(), "airbyte_webapp")
	require.NoError(t, err)
	assert.Equal(t, []string{"docker", "ps", "--filter", "name=airbyte_webapp", "--format", "{{.Names}}"}, gotArgs)
	assert.Equal(t, []string{"airbyte_webapp", "airbyte_webapp_proxy"}, names)
}

func TestDockerListerFailure(t *testing.T) {
	run := func(ctx context.Context, dir, bin string, args ...string) execx.Result {
		return execx.Result{ExitCode: 1, Stderr: []byte("Cannot connect to the Docker daemon")}
	}
	_, err := Docker{Run: run}.Names(context.Background(), "x")
	require.Error(t, err)
}

type fakeRemote struct{ cmd string }

func (f *fakeRemote) Output(ctx context.Context, cmd string) ([]byte, error) {
	f.cmd = cmd
	return []byte("postgres_target_db\n"), nil
}

func TestRemoteDocker(t *testing.T) {
	r := &fakeRemote{}
	names, err := RemoteDocker{Remote: r}.Names(context.Background(), "postgres_target_db")
	require.NoError(t, err)
	assert.Equal(t, []string{"postgres_target_db"}, names)
	assert.Equal(t, "docker 'ps' '--filter' 'name=postgres_target_db' '--format' '{{.Names}}'", r.cmd)

	_, err = RemoteDocker{Remote: r}.Names(context.Background(), "x; rm -rf /")
	require.Error(t, err)
}

func TestHTTPProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ok := HTTP{Name: "health", URL: srv.URL + "/health", RequireOK: true}.Probe(context.Background())
	assert.True(t, ok.Reachable)
	assert.Equal(t, KindServiceEndpoint, ok.Kind)

	// any response counts unless RequireOK
	anyResp := HTTP{Name: "ui", URL: srv.URL + "/"}.Probe(context.Background())
	assert.True(t, anyResp.Reachable)

	strict := HTTP{Name: "ui", URL: srv.URL + "/", RequireOK: true}.Probe(context.Background())
	assert.False(t, strict.Reachable)

	srv.Close()
	down := HTTP{Name: "health", URL: srv.URL + "/health", Timeout: 200 * time.Millisecond}.Probe(context.Background())
	assert.False(t, down.Reachable)
}

func TestGatherKeepsOrderAndRunsConcurrently(t *testing.T) {
	slow := func(name string) Prober {
		return ProberFunc(func(ctx context.Context) Result {
			time.Sleep(100 * time.Millisecond)
			return Result{Kind: KindProcess, Name: name, Reachable: true}
		})
	}
	start := time.Now()
	res := Gather(context.Background(), slow("a"), slow("b"), slow("c"))
	elapsed := time.Since(start)

	require.Len(t, res, 3)
	assert.Equal(t, "a", res[0].Name)
	assert.Equal(t, "b", res[1].Name)
	assert.Equal(t, "c", res[2].Name)
	assert.Less(t, elapsed, 250*time.Millisecond)
}

func TestResultString(t *testing.T) {
	n := int64(3)
	r := Result{Kind: KindDatabase, Name: "target", Reachable: true, RecordCount: &n}
	assert.Equal(t, "Database(target): reachable_with_data count=3", r.String())
}

func TestDatabaseCountQueryIsBounded(t *testing.T) {
	open := mockOpener(t, func(m pgxmock.PgxConnIface) {
		m.ExpectQuery(`SELECT COUNT\(\*\)`).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(5))).
			WillDelayFor(3 * time.Second)
	})
	db := config.Default().Target
	db.ConnectTimeout = 100 * time.Millisecond

	start := time.Now()
	res := Database{Name: "target", DB: db, Table: "clientes", Open: open}.Probe(context.Background())
	assert.Less(t, time.Since(start), 2*time.Second, "count query must not outlive the query timeout")
	assert.True(t, res.Reachable)
	assert.Equal(t, int64(0), res.Count())
	assert.Equal(t, ReachableEmpty, res.Status())
}

func TestProcessListingIsBounded(t *testing.T) {
	wedged := func(ctx context.Context, dir, bin string, args ...string) execx.Result {
		<-ctx.Done()
		return execx.Result{Cmd: bin, Args: args, ExitCode: -1, Err: ctx.Err()}
	}
	done := make(chan Result, 1)
	go func() {
		done <- Process{Name: "airbyte_webapp", Lister: Docker{Run: wedged}, Timeout: 50 * time.Millisecond}.Probe(context.Background())
	}()
	select {
	case res := <-done:
		assert.False(t, res.Reachable)
		assert.Equal(t, Unreachable, res.Status())
	case <-time.After(2 * time.Second):
		t.Fatal("process probe ignored its timeout")
	}
}

// stuckLister ignores its context until released.
type stuckLister struct{ release chan struct{} }

func (s stuckLister) Names(context.Context, string) ([]string, error) {
	<-s.release
	return []string{"airbyte_webapp"}, nil
}

func TestBoundedGivesUpOnStuckProber(t *testing.T) {
	stuck := stuckLister{release: make(chan struct{})}
	t.Cleanup(func() { close(stuck.release) })

	slow := Bounded{
		Prober:  Process{Name: "airbyte_webapp", Lister: stuck, Timeout: time.Hour},
		Timeout: 50 * time.Millisecond,
	}
	fast := Bounded{Prober: ProberFunc(func(context.Context) Result {
		return Result{Kind: KindServiceEndpoint, Name: "ui", Reachable: true}
	}), Timeout: time.Second}

	start := time.Now()
	res := Gather(context.Background(), slow, fast)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, res, 2)
	assert.Equal(t, KindProcess, res[0].Kind)
	assert.Equal(t, "airbyte_webapp", res[0].Name)
	assert.False(t, res[0].Reachable)
	assert.Contains(t, res[0].Detail, "gave up")
	assert.True(t, res[1].Reachable)
}
