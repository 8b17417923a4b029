package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h http.HandlerFunc) *Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/api/v1", Timeout: 2 * time.Second})
}

func TestDoDecodesJSON(t *testing.T) {
	var gotBody map[string]any
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/sources/create", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sourceId":"src-1"}`))
	})
	id, err := c.CreateSource(context.Background(), SourceRequest{WorkspaceID: "ws", SourceDefinitionID: "def", Name: "PostgreSQL Source - CDC"})
	require.NoError(t, err)
	assert.Equal(t, "src-1", id)
	assert.Equal(t, "ws", gotBody["workspaceId"])
}

func TestDoClientError(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid configuration"}`))
	})
	_, err := c.CreateDestination(context.Background(), DestinationRequest{})
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusUnprocessableEntity, ce.StatusCode)
	assert.Equal(t, "/destinations/create", ce.Path)
	assert.Contains(t, ce.Error(), "invalid configuration")

	c = serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err = c.Workspaces(context.Background())
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusInternalServerError, ce.StatusCode)
}

func TestDoConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(Config{BaseURL: url, Timeout: time.Second})
	err := c.Health(context.Background())
	require.ErrorIs(t, err, ErrConnection)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestDoTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	err := c.Health(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
}

func TestMissingIdentifier(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"connection":{}}`))
	})
	_, err := c.CreateConnection(context.Background(), ConnectionRequest{})
	require.ErrorIs(t, err, ErrMissingField)
}

func TestHealthUnavailableBody(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"available":false}`))
	})
	require.Error(t, c.Health(context.Background()))
}

func TestDefinitionsAndFind(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sourceDefinitions":[
			{"sourceDefinitionId":"a","name":"MySQL"},
			{"sourceDefinitionId":"b","name":"Postgres"},
			{"sourceDefinitionId":"c","name":"AlloyDB for PostgreSQL"}]}`))
	})
	defs, err := c.SourceDefinitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 3)

	d, err := FindDefinition(defs, "POSTGRES")
	require.NoError(t, err)
	assert.Equal(t, "b", d.ID)

	_, err = FindDefinition(defs, "clickhouse")
	require.ErrorIs(t, err, ErrDefinitionNotFound)
}

func TestDiscoverSchema(t *testing.T) {
	var body map[string]any
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		_, _ = w.Write([]byte(`{"catalog":{"streams":[
			{"stream":{"name":"clientes","jsonSchema":{"properties":{"id":{"type":"number"},"nome":{"type":"string"}}}}},
			{"stream":{"name":"audit_log","jsonSchema":{"properties":{"ts":{"type":"string"}}}}}]}}`))
	})
	cat, err := c.DiscoverSchema(context.Background(), "src-1")
	require.NoError(t, err)
	assert.Equal(t, "src-1", body["sourceId"])
	assert.Equal(t, true, body["disable_cache"])
	require.Len(t, cat.Streams, 2)
	assert.Equal(t, "clientes", cat.Streams[0].Name)
	assert.True(t, cat.Streams[0].HasID)
	assert.False(t, cat.Streams[1].HasID)
	assert.Contains(t, string(cat.Streams[0].Stream), `"name":"clientes"`)
}

func TestSyncAndJob(t *testing.T) {
	c := serve(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/connections/sync":
			_, _ = w.Write([]byte(`{"job":{"id":42,"status":"pending"}}`))
		case "/api/v1/jobs/get":
			var body map[string]int64
			data, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(data, &body)
			assert.Equal(t, int64(42), body["id"])
			_, _ = w.Write([]byte(`{"job":{"id":42,"status":"running"}}`))
		}
	})
	id, err := c.TriggerSync(context.Background(), "conn-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	job, err := c.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "running", job.Status)
}

func TestRateLimiterHonoursContext(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1", RequestsPerSecond: 0.001})
	c.limiter.Allow() // drain the burst
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Do(ctx, http.MethodGet, "/health", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout))
}
