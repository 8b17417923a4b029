// Package config holds the explicit configuration passed to every component.
// Defaults mirror the docker-compose deployment and may be overridden by environment
// variables and then by command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// EnvFileVar names the variable pointing at a dotenv file; DefaultEnvFile is used when
// it is unset.
const (
	EnvFileVar     = "CDCBOOT_ENV_FILE"
	DefaultEnvFile = ".env"
)

// LoadEnvFile reads KEY=VALUE pairs from path (DefaultEnvFile when empty) into the
// process environment so Default picks them up. Variables already set win. A missing
// default file is not an error; a missing explicit file is.
func LoadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	err := godotenv.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Database describes one PostgreSQL endpoint.
type Database struct {
	Host           string `validate:"required"`
	Port           int    `validate:"min=1,max=65535"`
	User           string `validate:"required"`
	Password       string
	Name           string        `validate:"required"`
	ConnectTimeout time.Duration `validate:"gt=0"`
}

// DSN renders a libpq keyword/value connection string.
func (d Database) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable connect_timeout=%d",
		d.Host, d.Port, d.User, d.Password, d.Name, int(d.ConnectTimeout.Seconds()))
}

// ControlPlane configures the replication control-plane client.
type ControlPlane struct {
	URL            string        `validate:"required,url"`
	RequestTimeout time.Duration `validate:"gt=0"`
	// RequestsPerSecond throttles calls; 0 disables throttling.
	RequestsPerSecond float64 `validate:"gte=0"`

	HealthInterval time.Duration `validate:"gte=0"`
	HealthAttempts int           `validate:"min=1"`
	SyncInterval   time.Duration `validate:"gte=0"`
	SyncAttempts   int           `validate:"min=1"`
}

// Replication describes the CDC pipeline to provision. The database endpoints here are
// addressed as the control plane sees them (container network), not as probes see them.
type Replication struct {
	Source      Database
	Destination Database
	Engine      string   `validate:"required"`
	Publication string   `validate:"required"`
	Slot        string   `validate:"required"`
	Schema      string   `validate:"required"`
	Tables      []string `validate:"min=1,dive,required"`
}

// Profile configures the transformation-tool profile store.
type Profile struct {
	Path        string `validate:"required"`
	Name        string `validate:"required"`
	Target      string `validate:"required"`
	Schema      string `validate:"required"`
	Threads     int    `validate:"min=1"`
	ConnTimeout int    `validate:"min=1"`
}

// Transform configures the transformation tool (dbt) runner.
type Transform struct {
	Bin         string `validate:"required"`
	ProjectDir  string
	ProfilesDir string
	Timeout     time.Duration `validate:"gt=0"`
}

// Probe configures the Probe Layer.
type Probe struct {
	// Lister selects how process presence is checked: docker, local or ssh.
	Lister          string        `validate:"oneof=docker local ssh"`
	SourceProcess   string        `validate:"required"`
	TargetProcess   string        `validate:"required"`
	ReplicationProc string        `validate:"required"`
	CountTable      string        `validate:"required"`
	HTTPTimeout     time.Duration `validate:"gt=0"`
	// Timeout caps each probe as a whole, including connect, query and listing.
	Timeout          time.Duration `validate:"gt=0"`
	SSHHost          string
	SSHUser          string
	SSHKey           string
	InsecureSSH      bool
	OptionalServices []string
}

// Config is the root configuration.
type Config struct {
	Source       Database
	Target       Database
	ControlPlane ControlPlane
	Replication  Replication
	Profile      Profile
	Transform    Transform
	Probe        Probe
}

// Default returns configuration seeded from environment variables.
func Default() *Config {
	home, _ := os.UserHomeDir()
	profilesDir := env("DBT_PROFILES_DIR", filepath.Join(home, ".dbt"))

	return &Config{
		Source: Database{
			Host:           "localhost",
			Port:           envInt("POSTGRES_SOURCE_EXTERNAL_PORT", 5430),
			User:           env("POSTGRES_SOURCE_USER", "admin"),
			Password:       env("POSTGRES_SOURCE_PASSWORD", "admin"),
			Name:           env("POSTGRES_SOURCE_DB_NAME", "db_source"),
			ConnectTimeout: 5 * time.Second,
		},
		Target: Database{
			Host:           "localhost",
			Port:           envInt("POSTGRES_TARGET_EXTERNAL_PORT", 5431),
			User:           env("POSTGRES_TARGET_USER", "admin"),
			Password:       env("POSTGRES_TARGET_PASSWORD", "admin"),
			Name:           env("POSTGRES_TARGET_DB_NAME", "db_target"),
			ConnectTimeout: 5 * time.Second,
		},
		ControlPlane: ControlPlane{
			URL:            env("AIRBYTE_API_URL", "http://localhost:8000/api/v1"),
			RequestTimeout: 30 * time.Second,
			HealthInterval: 10 * time.Second,
			HealthAttempts: 30,
			SyncInterval:   10 * time.Second,
			SyncAttempts:   30,
		},
		Replication: Replication{
			Source: Database{
				Host:           env("POSTGRES_SOURCE_HOST", "postgres_source"),
				Port:           envInt("POSTGRES_SOURCE_PORT", 5432),
				User:           env("POSTGRES_SOURCE_USER", "admin"),
				Password:       env("POSTGRES_SOURCE_PASSWORD", "admin"),
				Name:           env("POSTGRES_SOURCE_DB_NAME", "db_source"),
				ConnectTimeout: 10 * time.Second,
			},
			Destination: Database{
				Host:           env("POSTGRES_TARGET_HOST", "postgres_target"),
				Port:           envInt("POSTGRES_TARGET_PORT", 5432),
				User:           env("POSTGRES_TARGET_USER", "admin"),
				Password:       env("POSTGRES_TARGET_PASSWORD", "admin"),
				Name:           env("POSTGRES_TARGET_DB_NAME", "db_target"),
				ConnectTimeout: 10 * time.Second,
			},
			Engine:      "postgres",
			Publication: env("AIRBYTE_REPLICATION_PUBLICATION", "airbyte_publication"),
			Slot:        env("AIRBYTE_REPLICATION_SLOT", "airbyte_slot"),
			Schema:      "public",
			Tables:      []string{"clientes", "pedidos", "produtos", "leads"},
		},
		Profile: Profile{
			Path:        filepath.Join(profilesDir, "profiles.yml"),
			Name:        "default",
			Target:      "dev",
			Schema:      "public",
			Threads:     4,
			ConnTimeout: 10,
		},
		Transform: Transform{
			Bin:         env("DBT_BIN", "dbt"),
			ProjectDir:  env("DBT_PROJECT_DIR", "dbt_project"),
			ProfilesDir: profilesDir,
			Timeout:     10 * time.Minute,
		},
		Probe: Probe{
			Lister:           "docker",
			SourceProcess:    "postgres_source_db",
			TargetProcess:    "postgres_target_db",
			ReplicationProc:  "airbyte_webapp",
			CountTable:       "clientes",
			HTTPTimeout:      5 * time.Second,
			Timeout:          15 * time.Second,
			OptionalServices: []string{"Airbyte=http://localhost:8001", "Airflow=http://localhost:8080"},
		},
	}
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Probe.Lister == "ssh" && (c.Probe.SSHHost == "" || c.Probe.SSHUser == "") {
		return fmt.Errorf("invalid configuration: ssh lister requires ssh host and user")
	}
	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
