// Package provision drives the control plane from nothing to a completed first sync:
// health wait, workspace, source, destination, discovery, connection, sync. Each step runs
// once and a failure halts the run. Resources created before the failure are left in place.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/vbp1/cdcboot/internal/config"
	"github.com/vbp1/cdcboot/internal/controlplane"
	"github.com/vbp1/cdcboot/internal/debug"
	"github.com/vbp1/cdcboot/internal/metrics"
	"github.com/vbp1/cdcboot/internal/poll"
)

// Resource names sent to the control plane.
const (
	SourceName      = "PostgreSQL Source - CDC"
	DestinationName = "PostgreSQL Target - CDC"
	ConnectionName  = "PostgreSQL CDC Connection"
)

// API is the subset of the control-plane client used by the workflow.
type API interface {
	Health(ctx context.Context) error
	Workspaces(ctx context.Context) ([]controlplane.Workspace, error)
	SourceDefinitions(ctx context.Context) ([]controlplane.Definition, error)
	DestinationDefinitions(ctx context.Context) ([]controlplane.Definition, error)
	CreateSource(ctx context.Context, req controlplane.SourceRequest) (string, error)
	CreateDestination(ctx context.Context, req controlplane.DestinationRequest) (string, error)
	DiscoverSchema(ctx context.Context, sourceID string) (controlplane.Catalog, error)
	CreateConnection(ctx context.Context, req controlplane.ConnectionRequest) (string, error)
	TriggerSync(ctx context.Context, connectionID string) (int64, error)
	GetJob(ctx context.Context, id int64) (controlplane.Job, error)
}

// Resources collects identifiers created so far.
type Resources struct {
	WorkspaceID   string
	SourceID      string
	DestinationID string
	ConnectionID  string
	JobID         int64
	Streams       []string
}

// Workflow is a single provisioning run.
type Workflow struct {
	API         API
	Replication config.Replication
	// Health and Sync bound the two wait loops.
	Health poll.Poller
	Sync   poll.Poller
	Log    *slog.Logger

	res     Resources
	catalog controlplane.Catalog
	reached Step
	started bool
}

// Reached returns the last completed step; ok is false before the first one completes.
func (w *Workflow) Reached() (step Step, ok bool) { return w.reached, w.started }

// Resources returns the identifiers created so far, including after a failure.
func (w *Workflow) Resources() Resources { return w.res }

type stepFunc struct {
	step Step
	kind error
	run  func(ctx context.Context) error
}

// Run executes every step in order and stops at the first failure with a *StepError.
func (w *Workflow) Run(ctx context.Context) (Resources, error) {
	if w.Log == nil {
		w.Log = slog.Default()
	}
	steps := []stepFunc{
		{AwaitControlPlane, ErrControlPlaneUnavailable, w.awaitControlPlane},
		{WorkspaceResolved, ErrResourceCreationFailed, w.resolveWorkspace},
		{SourceCreated, ErrResourceCreationFailed, w.createSource},
		{DestinationCreated, ErrResourceCreationFailed, w.createDestination},
		{SchemaDiscovered, ErrResourceCreationFailed, w.discoverSchema},
		{ConnectionCreated, ErrResourceCreationFailed, w.createConnection},
		{SyncTriggered, ErrResourceCreationFailed, w.triggerSync},
		{SyncCompleted, nil, w.awaitSync},
	}
	for _, s := range steps {
		if err := debug.StopIf(ctx, s.step.String()); err != nil {
			return w.res, &StepError{Step: s.step, Err: err}
		}
		if err := ctx.Err(); err != nil {
			return w.res, &StepError{Step: s.step, Err: err}
		}
		w.Log.Info("provision step", "step", s.step)
		if err := s.run(ctx); err != nil {
			metrics.RecordStep(s.step.String(), "failed")
			return w.res, w.fail(ctx, s, err)
		}
		metrics.RecordStep(s.step.String(), "ok")
		w.reached, w.started = s.step, true
	}
	w.Log.Info("provisioning completed", "connection", w.res.ConnectionID, "job", w.res.JobID)
	return w.res, nil
}

func (w *Workflow) fail(ctx context.Context, s stepFunc, err error) error {
	se := &StepError{Step: s.step, Kind: s.kind, Err: err}
	switch {
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		se.Kind = nil
	case errors.Is(err, ErrSchemaMismatch):
		se.Kind = ErrSchemaMismatch
	case errors.Is(err, poll.ErrJobFailed):
		se.Kind = ErrSyncFailed
	case errors.Is(err, poll.ErrTimeout) && s.step == SyncCompleted:
		se.Kind = ErrSyncTimeout
	}
	w.Log.Error("provision step failed", "step", s.step, "err", err)
	return se
}

func (w *Workflow) awaitControlPlane(ctx context.Context) error {
	_, err := poll.Until(ctx, w.Health, "control plane health", w.API.Health)
	return err
}

func (w *Workflow) resolveWorkspace(ctx context.Context) error {
	ws, err := w.API.Workspaces(ctx)
	if err != nil {
		return err
	}
	if len(ws) == 0 || ws[0].ID == "" {
		return fmt.Errorf("no workspace found")
	}
	w.res.WorkspaceID = ws[0].ID
	w.Log.Info("workspace resolved", "workspace", ws[0].ID, "name", ws[0].Name)
	return nil
}

func (w *Workflow) createSource(ctx context.Context) error {
	defs, err := w.API.SourceDefinitions(ctx)
	if err != nil {
		return err
	}
	def, err := controlplane.FindDefinition(defs, w.Replication.Engine)
	if err != nil {
		return err
	}
	src := w.Replication.Source
	id, err := w.API.CreateSource(ctx, controlplane.SourceRequest{
		WorkspaceID:        w.res.WorkspaceID,
		SourceDefinitionID: def.ID,
		ConnectionConfiguration: controlplane.PostgresSourceConfig{
			Host:     src.Host,
			Port:     src.Port,
			Database: src.Name,
			Username: src.User,
			Password: src.Password,
			ReplicationMethod: controlplane.ReplicationMethod{
				Method:          "CDC",
				Plugin:          "pgoutput",
				Publication:     w.Replication.Publication,
				ReplicationSlot: w.Replication.Slot,
			},
		},
		Name: SourceName,
	})
	if err != nil {
		return err
	}
	w.res.SourceID = id
	w.Log.Info("source created", "source", id, "definition", def.Name)
	return nil
}

func (w *Workflow) createDestination(ctx context.Context) error {
	defs, err := w.API.DestinationDefinitions(ctx)
	if err != nil {
		return err
	}
	def, err := controlplane.FindDefinition(defs, w.Replication.Engine)
	if err != nil {
		return err
	}
	dst := w.Replication.Destination
	id, err := w.API.CreateDestination(ctx, controlplane.DestinationRequest{
		WorkspaceID:             w.res.WorkspaceID,
		DestinationDefinitionID: def.ID,
		ConnectionConfiguration: controlplane.PostgresDestinationConfig{
			Host:     dst.Host,
			Port:     dst.Port,
			Database: dst.Name,
			Username: dst.User,
			Password: dst.Password,
			Schema:   w.Replication.Schema,
		},
		Name: DestinationName,
	})
	if err != nil {
		return err
	}
	w.res.DestinationID = id
	w.Log.Info("destination created", "destination", id, "definition", def.Name)
	return nil
}

func (w *Workflow) discoverSchema(ctx context.Context) error {
	cat, err := w.API.DiscoverSchema(ctx, w.res.SourceID)
	if err != nil {
		return err
	}
	w.catalog = cat
	w.Log.Info("schema discovered", "streams", len(cat.Streams))
	return nil
}

func (w *Workflow) createConnection(ctx context.Context) error {
	streams, err := SelectStreams(w.catalog, w.Replication.Tables)
	if err != nil {
		return err
	}
	id, err := w.API.CreateConnection(ctx, controlplane.ConnectionRequest{
		SourceID:      w.res.SourceID,
		DestinationID: w.res.DestinationID,
		SyncCatalog:   controlplane.SyncCatalog{Streams: streams},
		Schedule:      controlplane.Schedule{ScheduleType: "manual"},
		Status:        "active",
		Name:          ConnectionName,
	})
	if err != nil {
		return err
	}
	w.res.ConnectionID = id
	seen := make(map[string]bool)
	for _, s := range w.catalog.Streams {
		if !seen[s.Name] && slices.Contains(w.Replication.Tables, s.Name) {
			seen[s.Name] = true
			w.res.Streams = append(w.res.Streams, s.Name)
		}
	}
	w.Log.Info("connection created", "connection", id, "streams", len(streams))
	return nil
}

func (w *Workflow) triggerSync(ctx context.Context) error {
	id, err := w.API.TriggerSync(ctx, w.res.ConnectionID)
	if err != nil {
		return err
	}
	w.res.JobID = id
	w.Log.Info("sync triggered", "job", id)
	return nil
}

func (w *Workflow) awaitSync(ctx context.Context) error {
	_, err := poll.Wait(ctx, w.Sync, w.res.JobID, func(ctx context.Context, id int64) (poll.Status, error) {
		job, err := w.API.GetJob(ctx, id)
		if err != nil {
			return poll.Unknown, err
		}
		return poll.ParseStatus(job.Status), nil
	})
	return err
}
