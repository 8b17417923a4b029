package controlplane

import "encoding/json"

// Workspace is a control-plane workspace.
type Workspace struct {
	ID   string
	Name string
}

// Definition is a source or destination connector definition.
type Definition struct {
	ID   string
	Name string
}

// ReplicationMethod configures CDC on a Postgres source.
type ReplicationMethod struct {
	Method          string `json:"method"`
	Plugin          string `json:"plugin"`
	Publication     string `json:"publication"`
	ReplicationSlot string `json:"replication_slot"`
}

// PostgresSourceConfig is the connection configuration of a Postgres source.
type PostgresSourceConfig struct {
	Host              string            `json:"host"`
	Port              int               `json:"port"`
	Database          string            `json:"database"`
	Username          string            `json:"username"`
	Password          string            `json:"password"`
	SSL               bool              `json:"ssl"`
	ReplicationMethod ReplicationMethod `json:"replication_method"`
}

// PostgresDestinationConfig is the connection configuration of a Postgres destination.
type PostgresDestinationConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSL      bool   `json:"ssl"`
	Schema   string `json:"schema"`
}

// SourceRequest is the body of /sources/create.
type SourceRequest struct {
	WorkspaceID             string `json:"workspaceId"`
	SourceDefinitionID      string `json:"sourceDefinitionId"`
	ConnectionConfiguration any    `json:"connectionConfiguration"`
	Name                    string `json:"name"`
}

// DestinationRequest is the body of /destinations/create.
type DestinationRequest struct {
	WorkspaceID             string `json:"workspaceId"`
	DestinationDefinitionID string `json:"destinationDefinitionId"`
	ConnectionConfiguration any    `json:"connectionConfiguration"`
	Name                    string `json:"name"`
}

// DiscoveredStream is one stream of a discovered catalog.
type DiscoveredStream struct {
	Name string
	// Stream is the stream object as returned, echoed back in the connection request.
	Stream json.RawMessage
	// HasID reports an "id" property in the stream's JSON schema.
	HasID bool
}

// Catalog is the discovered source schema.
type Catalog struct {
	Streams []DiscoveredStream
}

// Sync modes used for configured streams.
const (
	SyncModeFullRefresh      = "full_refresh"
	DestinationSyncOverwrite = "overwrite"
)

// StreamConfig selects how a stream is synchronised.
type StreamConfig struct {
	Selected            bool       `json:"selected"`
	SyncMode            string     `json:"syncMode"`
	DestinationSyncMode string     `json:"destinationSyncMode"`
	PrimaryKey          [][]string `json:"primaryKey"`
	CursorField         []string   `json:"cursorField"`
}

// ConfiguredStream pairs a discovered stream with its sync configuration.
type ConfiguredStream struct {
	Stream json.RawMessage `json:"stream"`
	Config StreamConfig    `json:"config"`
}

// SyncCatalog lists configured streams.
type SyncCatalog struct {
	Streams []ConfiguredStream `json:"streams"`
}

// Schedule of a connection.
type Schedule struct {
	ScheduleType string `json:"scheduleType"`
}

// ConnectionRequest is the body of /connections/create.
type ConnectionRequest struct {
	SourceID      string      `json:"sourceId"`
	DestinationID string      `json:"destinationId"`
	SyncCatalog   SyncCatalog `json:"syncCatalog"`
	Schedule      Schedule    `json:"schedule"`
	Status        string      `json:"status"`
	Name          string      `json:"name"`
}

// Job is a sync job as reported by /jobs/get.
type Job struct {
	ID     int64
	Status string
}
