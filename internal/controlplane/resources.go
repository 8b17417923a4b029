package controlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Health checks GET /health. A body with "available": false counts as unhealthy.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.Do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	if v := res.Get("available"); v.Exists() && !v.Bool() {
		return fmt.Errorf("/health: control plane reports unavailable")
	}
	return nil
}

// Workspaces lists workspaces.
func (c *Client) Workspaces(ctx context.Context) ([]Workspace, error) {
	res, err := c.Do(ctx, http.MethodPost, "/workspaces/list", nil)
	if err != nil {
		return nil, err
	}
	var out []Workspace
	for _, w := range res.Get("workspaces").Array() {
		out = append(out, Workspace{ID: w.Get("workspaceId").String(), Name: w.Get("name").String()})
	}
	return out, nil
}

// SourceDefinitions lists source connector definitions.
func (c *Client) SourceDefinitions(ctx context.Context) ([]Definition, error) {
	return c.definitions(ctx, "/source_definitions/list", "sourceDefinitions", "sourceDefinitionId")
}

// DestinationDefinitions lists destination connector definitions.
func (c *Client) DestinationDefinitions(ctx context.Context) ([]Definition, error) {
	return c.definitions(ctx, "/destination_definitions/list", "destinationDefinitions", "destinationDefinitionId")
}

func (c *Client) definitions(ctx context.Context, path, listKey, idKey string) ([]Definition, error) {
	res, err := c.Do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, err
	}
	var out []Definition
	for _, d := range res.Get(listKey).Array() {
		out = append(out, Definition{ID: d.Get(idKey).String(), Name: d.Get("name").String()})
	}
	return out, nil
}

// FindDefinition returns the first definition whose name contains engine, ignoring case.
func FindDefinition(defs []Definition, engine string) (Definition, error) {
	want := strings.ToLower(engine)
	for _, d := range defs {
		if d.ID != "" && strings.Contains(strings.ToLower(d.Name), want) {
			return d, nil
		}
	}
	return Definition{}, fmt.Errorf("%w for engine %q among %d definitions", ErrDefinitionNotFound, engine, len(defs))
}

// CreateSource creates a source and returns its id.
func (c *Client) CreateSource(ctx context.Context, req SourceRequest) (string, error) {
	res, err := c.Do(ctx, http.MethodPost, "/sources/create", req)
	if err != nil {
		return "", err
	}
	return requireString(res, "/sources/create", "sourceId")
}

// CreateDestination creates a destination and returns its id.
func (c *Client) CreateDestination(ctx context.Context, req DestinationRequest) (string, error) {
	res, err := c.Do(ctx, http.MethodPost, "/destinations/create", req)
	if err != nil {
		return "", err
	}
	return requireString(res, "/destinations/create", "destinationId")
}

// DiscoverSchema runs schema discovery on a source, bypassing the server cache.
func (c *Client) DiscoverSchema(ctx context.Context, sourceID string) (Catalog, error) {
	body := map[string]any{"sourceId": sourceID, "disable_cache": true}
	res, err := c.Do(ctx, http.MethodPost, "/sources/discover_schema", body)
	if err != nil {
		return Catalog{}, err
	}
	cat := res.Get("catalog")
	if !cat.Exists() {
		return Catalog{}, fmt.Errorf("/sources/discover_schema: %w %q", ErrMissingField, "catalog")
	}
	var out Catalog
	cat.Get("streams").ForEach(func(_, s gjson.Result) bool {
		stream := s.Get("stream")
		out.Streams = append(out.Streams, DiscoveredStream{
			Name:   stream.Get("name").String(),
			Stream: json.RawMessage(stream.Raw),
			HasID:  stream.Get("jsonSchema.properties.id").Exists(),
		})
		return true
	})
	return out, nil
}

// CreateConnection creates a connection and returns its id.
func (c *Client) CreateConnection(ctx context.Context, req ConnectionRequest) (string, error) {
	res, err := c.Do(ctx, http.MethodPost, "/connections/create", req)
	if err != nil {
		return "", err
	}
	return requireString(res, "/connections/create", "connectionId")
}

// TriggerSync starts a manual sync and returns the job id.
func (c *Client) TriggerSync(ctx context.Context, connectionID string) (int64, error) {
	res, err := c.Do(ctx, http.MethodPost, "/connections/sync", map[string]string{"connectionId": connectionID})
	if err != nil {
		return 0, err
	}
	id := res.Get("job.id")
	if !id.Exists() {
		return 0, fmt.Errorf("/connections/sync: %w %q", ErrMissingField, "job.id")
	}
	return id.Int(), nil
}

// GetJob fetches a job's status.
func (c *Client) GetJob(ctx context.Context, id int64) (Job, error) {
	res, err := c.Do(ctx, http.MethodPost, "/jobs/get", map[string]int64{"id": id})
	if err != nil {
		return Job{}, err
	}
	st := res.Get("job.status")
	if !st.Exists() {
		return Job{}, fmt.Errorf("/jobs/get: %w %q", ErrMissingField, "job.status")
	}
	return Job{ID: id, Status: st.String()}, nil
}
