package provision

import (
	"errors"
	"fmt"
)

// Step is a state of the provisioning workflow. Steps are reached strictly in order.
type Step int

const (
	AwaitControlPlane Step = iota
	WorkspaceResolved
	SourceCreated
	DestinationCreated
	SchemaDiscovered
	ConnectionCreated
	SyncTriggered
	SyncCompleted
)

var stepNames = [...]string{
	AwaitControlPlane:  "AwaitControlPlane",
	WorkspaceResolved:  "WorkspaceResolved",
	SourceCreated:      "SourceCreated",
	DestinationCreated: "DestinationCreated",
	SchemaDiscovered:   "SchemaDiscovered",
	ConnectionCreated:  "ConnectionCreated",
	SyncTriggered:      "SyncTriggered",
	SyncCompleted:      "SyncCompleted",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepNames[s]
}

// Steps lists every step in execution order.
func Steps() []Step {
	out := make([]Step, 0, len(stepNames))
	for i := range stepNames {
		out = append(out, Step(i))
	}
	return out
}

var (
	// ErrControlPlaneUnavailable means the health wait ran out of attempts.
	ErrControlPlaneUnavailable = errors.New("control plane unavailable")
	// ErrResourceCreationFailed means a control-plane resource could not be resolved or created.
	ErrResourceCreationFailed = errors.New("resource creation failed")
	// ErrSchemaMismatch means none of the allow-listed tables were discovered.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrSyncFailed means the sync job reported failure.
	ErrSyncFailed = errors.New("sync failed")
	// ErrSyncTimeout means the sync job did not finish within the attempt budget.
	ErrSyncTimeout = errors.New("sync timed out")
)

// StepError names the step that halted the workflow. Kind is one of the package sentinels,
// or nil when the run was cancelled.
type StepError struct {
	Step Step
	Kind error
	Err  error
}

func (e *StepError) Error() string {
	if e.Kind == nil {
		return fmt.Sprintf("step %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("step %s: %v: %v", e.Step, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *StepError) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}
