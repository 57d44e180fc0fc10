package config

import (
	"fmt"
	"path/filepath"
	"runtime"
)

const (
	// Version : engine version printed by the cli
	Version = "2.0.0"

	DefaultBatchSize  int64 = 5_000_000
	DefaultMaxRetries       = 3
	DefaultS3Prefix         = "epic-shelter"
	DefaultS3Region         = "us-west-2"
	localDirName            = "epic-shelter"
)

// Endpoint : one side of a migration, a table living in some database engine
type Endpoint struct {
	Engine   string            `json:"engine" mapstructure:"engine"`
	Host     string            `json:"host" mapstructure:"host"`
	Port     int               `json:"port" mapstructure:"port"`
	User     string            `json:"user" mapstructure:"user"`
	Password string            `json:"-" mapstructure:"password"`
	Database string            `json:"database" mapstructure:"database"`
	Schema   string            `json:"schema" mapstructure:"schema"`
	Table    string            `json:"table" mapstructure:"table"`
	Options  map[string]string `json:"options" mapstructure:"options"`
}

// Addr : host:port
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Option : engine specific option or the fallback
func (e Endpoint) Option(key, fallback string) string {
	if v, ok := e.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Storage : object storage target for staged files
type Storage struct {
	Bucket          string `json:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `json:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string `json:"-" mapstructure:"secret_access_key"`
	Region          string `json:"region" mapstructure:"region"`
	// Endpoint : overrides the aws endpoint for s3 compatible stores (minio etc)
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
	Prefix   string `json:"prefix" mapstructure:"prefix"`
}

// Job : immutable description of one migration run
type Job struct {
	ID          string
	Source      Endpoint
	Destination Endpoint
	Storage     *Storage
	StartOffset *int64
	EndOffset   *int64
	SortColumn  string
}

// Config : run options, set once at startup and read only afterwards
type Config struct {
	LocalDir         string
	UseObjectStorage bool
	MigrateOnly      bool
	ResetDestTable   bool
	Verbose          bool
	BatchSize        int64
	Workers          int
	MaxRetries       int
	// StateDB : sqlite file for run history, empty disables it
	StateDB string
}

// Default : defaults for every run option
func Default() Config {
	return Config{
		LocalDir:       DefaultLocalDir(),
		ResetDestTable: true,
		BatchSize:      DefaultBatchSize,
		Workers:        2 * runtime.NumCPU(),
		MaxRetries:     DefaultMaxRetries,
	}
}

// JobDir : local staging directory of a job
func (c Config) JobDir(jobID string) string {
	return filepath.Join(c.LocalDir, jobID)
}

// Validate : checks the options that cannot be defaulted
func (c Config) Validate(job Job) error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.LocalDir == "" {
		return fmt.Errorf("local dir is required")
	}
	if c.UseObjectStorage && (job.Storage == nil || job.Storage.Bucket == "") {
		return fmt.Errorf("object storage is enabled but no bucket was configured")
	}
	return nil
}
