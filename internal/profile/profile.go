// Package profile turns a pipeline state into the transformation tool's connection
// profile and persists it. Each write fully replaces the previous document.
package profile

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vbp1/cdcboot/internal/config"
	"github.com/vbp1/cdcboot/internal/state"
	"github.com/vbp1/cdcboot/internal/util/fs"
)

// ErrMissingLogicalSource marks a profile without vars.logical_source_database.
var ErrMissingLogicalSource = errors.New("profile: vars.logical_source_database is empty")

// Vars are exposed to the transformation models.
type Vars struct {
	LogicalSourceDatabase string `yaml:"logical_source_database"`
}

// ConnectionProfile is one output target of the profile document.
type ConnectionProfile struct {
	EngineType     string `yaml:"type"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Database       string `yaml:"database"`
	Schema         string `yaml:"schema"`
	SearchPath     string `yaml:"search_path"`
	Threads        int    `yaml:"threads"`
	ConnectTimeout int    `yaml:"connect_timeout"`
	KeepalivesIdle int    `yaml:"keepalives_idle"`
	Vars           Vars   `yaml:"vars"`
}

// Validate enforces the fields consumers rely on.
func (p ConnectionProfile) Validate() error {
	if p.Vars.LogicalSourceDatabase == "" {
		return ErrMissingLogicalSource
	}
	if p.EngineType == "" || p.Host == "" || p.Database == "" || p.Schema == "" {
		return fmt.Errorf("profile: engine type, host, database and schema are required")
	}
	return nil
}

// Synthesize picks the database the transformation tool should read from.
// ProductionReplicated points at the replicated target, ReplicationReady and Development
// at the source. Anything else (SetupRequired or an unknown value) also falls back to the
// source and reports fallback so the caller can warn about it.
func Synthesize(st state.PipelineState, source, target config.Database, pc config.Profile) (p ConnectionProfile, fallback bool) {
	db := source
	switch st {
	case state.ProductionReplicated:
		db = target
	case state.ReplicationReady, state.Development:
	default:
		fallback = true
	}

	return ConnectionProfile{
		EngineType:     "postgres",
		Host:           db.Host,
		Port:           db.Port,
		User:           db.User,
		Password:       db.Password,
		Database:       db.Name,
		Schema:         pc.Schema,
		SearchPath:     pc.Schema,
		Threads:        pc.Threads,
		ConnectTimeout: pc.ConnTimeout,
		KeepalivesIdle: 0,
		Vars:           Vars{LogicalSourceDatabase: db.Name},
	}, fallback
}

// Entry is one named profile with its default target.
type Entry struct {
	Target  string                       `yaml:"target"`
	Outputs map[string]ConnectionProfile `yaml:"outputs"`
}

// Document is the whole profile store content.
type Document map[string]Entry

// NewDocument wraps a single output as profile name / target.
func NewDocument(name, target string, p ConnectionProfile) Document {
	return Document{name: {Target: target, Outputs: map[string]ConnectionProfile{target: p}}}
}

// Render encodes doc as YAML with two-space indentation.
func Render(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Store is the on-disk profile file. Concurrent writers are not coordinated: the last
// rename wins.
type Store struct {
	Path string
}

// Write validates every output and replaces the file.
func (s Store) Write(doc Document) error {
	for name, e := range doc {
		for target, out := range e.Outputs {
			if err := out.Validate(); err != nil {
				return fmt.Errorf("%s.%s: %w", name, target, err)
			}
		}
	}
	data, err := Render(doc)
	if err != nil {
		return err
	}
	if err := fs.ReplaceFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("write profile %s: %w", s.Path, err)
	}
	return nil
}

// Read loads the file back.
func (s Store) Read() (Document, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", s.Path, err)
	}
	return doc, nil
}

// Exists reports whether the profile file is present.
func (s Store) Exists() bool { return fs.Exists(s.Path) }
