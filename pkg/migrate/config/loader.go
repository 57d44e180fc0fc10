package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// viper keys, also used as flag names
const (
	KeyJobID         = "job-id"
	KeyVerbose       = "verbose"
	KeyMigrateOnly   = "migrate-only"
	KeyLocalDir      = "local-dir"
	KeyStartOffset   = "start-offset"
	KeyEndOffset     = "end-offset"
	KeySortColumn    = "sort-column"
	KeyKeepDestTable = "keep-dest-table"
	KeyBatchSize     = "batch-size"
	KeyWorkers       = "workers"
	KeyMaxRetries    = "max-retries"
	KeyStateDB       = "state-db"

	KeyS3Bucket    = "s3-bucket"
	KeyS3AccessKey = "s3-access-key-id"
	KeyS3SecretKey = "s3-secret-access-key"
	KeyS3Region    = "s3-region"
	KeyS3Endpoint  = "s3-endpoint"
	KeyS3Prefix    = "s3-prefix"

	SourcePrefix      = "src"
	DestinationPrefix = "dest"

	envPrefix = "SHELTER"
)

// DefaultLocalDir : ~/epic-shelter, or a relative dir when there is no home
func DefaultLocalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return localDirName
	}
	return filepath.Join(home, localDirName)
}

// NewViper : viper reading SHELTER_* environment variables
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// RegisterEndpointFlags : --src-* / --dest-* connection flags
func RegisterEndpointFlags(fs *pflag.FlagSet) {
	for _, side := range []struct{ prefix, name string }{
		{SourcePrefix, "source"},
		{DestinationPrefix, "destination"},
	} {
		fs.String(side.prefix+"-engine", "", "The "+side.name+" engine to connect to")
		fs.String(side.prefix+"-host", "", "The "+side.name+" host to connect to")
		fs.Int(side.prefix+"-port", 0, "The "+side.name+" port to connect to")
		fs.String(side.prefix+"-user", "", "The "+side.name+" user to connect as")
		fs.String(side.prefix+"-password", "", "The "+side.name+" password")
		fs.String(side.prefix+"-database", "", "The "+side.name+" database")
		fs.String(side.prefix+"-schema", "", "The "+side.name+" schema, for engines that have one")
		fs.String(side.prefix+"-table", "", "The "+side.name+" table")
		fs.StringToString(side.prefix+"-options", nil, "Engine specific "+side.name+" options (key=value)")
	}
	fs.BoolP(KeyVerbose, "v", false, "Verbose logging, including every sql query")
}

// RegisterRunFlags : flags only the migrate command understands
func RegisterRunFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String(KeyJobID, "", "Job id, generated when empty")
	fs.Bool(KeyMigrateOnly, false, "Do not keep staged files once the migration is done")
	fs.String(KeyLocalDir, def.LocalDir, "Local staging directory")
	fs.Int64(KeyStartOffset, 0, "First row offset to migrate")
	fs.Int64(KeyEndOffset, 0, "Row offset to stop at (exclusive)")
	fs.String(KeySortColumn, "", "Column used to order rows while paging")
	fs.Bool(KeyKeepDestTable, false, "Do not delete existing destination rows before migrating")
	fs.Int64(KeyBatchSize, def.BatchSize, "Rows per batch")
	fs.Int(KeyWorkers, def.Workers, "Batches processed concurrently")
	fs.Int(KeyMaxRetries, def.MaxRetries, "Retries for reads and uploads")
	fs.String(KeyStateDB, "", "Sqlite file recording run history")

	fs.String(KeyS3Bucket, "", "Bucket used to stage parquet files, enables object storage")
	fs.String(KeyS3AccessKey, "", "Object storage access key id")
	fs.String(KeyS3SecretKey, "", "Object storage secret access key")
	fs.String(KeyS3Region, DefaultS3Region, "Object storage region")
	fs.String(KeyS3Endpoint, "", "Object storage endpoint override")
	fs.String(KeyS3Prefix, DefaultS3Prefix, "Key prefix for staged files")
}

// LoadEndpoint : reads one side of the job, collecting every missing field
func LoadEndpoint(v *viper.Viper, prefix string) (Endpoint, error) {
	return loadEndpoint(v, prefix, true)
}

// LoadConnection : like LoadEndpoint without requiring a table
func LoadConnection(v *viper.Viper, prefix string) (Endpoint, error) {
	return loadEndpoint(v, prefix, false)
}

func loadEndpoint(v *viper.Viper, prefix string, requireTable bool) (Endpoint, error) {
	key := func(k string) string { return prefix + "-" + k }
	ep := Endpoint{
		Engine:   strings.ToLower(v.GetString(key("engine"))),
		Host:     v.GetString(key("host")),
		Port:     v.GetInt(key("port")),
		User:     v.GetString(key("user")),
		Password: v.GetString(key("password")),
		Database: v.GetString(key("database")),
		Schema:   v.GetString(key("schema")),
		Table:    v.GetString(key("table")),
		Options:  v.GetStringMapString(key("options")),
	}

	var merr *multierror.Error
	for _, f := range []struct {
		name  string
		empty bool
	}{
		{"engine", ep.Engine == ""},
		{"host", ep.Host == ""},
		{"port", ep.Port == 0},
		{"user", ep.User == ""},
		{"password", ep.Password == ""},
		{"database", ep.Database == ""},
		{"table", requireTable && ep.Table == ""},
	} {
		if f.empty {
			merr = multierror.Append(merr, fmt.Errorf("--%s is required", key(f.name)))
		}
	}
	return ep, merr.ErrorOrNil()
}

// LoadEndpoints : source and destination
func LoadEndpoints(v *viper.Viper) (src Endpoint, dst Endpoint, err error) {
	var merr *multierror.Error
	src, err = LoadEndpoint(v, SourcePrefix)
	merr = multierror.Append(merr, err)
	dst, err = LoadEndpoint(v, DestinationPrefix)
	merr = multierror.Append(merr, err)
	return src, dst, merr.ErrorOrNil()
}

// Load : builds the job and its run options out of flags, env and config file
func Load(v *viper.Viper) (Job, Config, error) {
	var job Job
	src, dst, err := LoadEndpoints(v)
	if err != nil {
		return job, Config{}, err
	}
	job.Source, job.Destination = src, dst

	job.ID = v.GetString(KeyJobID)
	if job.ID == "" {
		uid, err := uuid.NewV4()
		if err != nil {
			return job, Config{}, fmt.Errorf("generate job id : %w", err)
		}
		job.ID = uid.String()
	}
	job.SortColumn = v.GetString(KeySortColumn)
	if v.IsSet(KeyStartOffset) {
		start := v.GetInt64(KeyStartOffset)
		job.StartOffset = &start
	}
	if v.IsSet(KeyEndOffset) {
		end := v.GetInt64(KeyEndOffset)
		job.EndOffset = &end
	}
	if bucket := v.GetString(KeyS3Bucket); bucket != "" {
		job.Storage = &Storage{
			Bucket:          bucket,
			AccessKeyID:     v.GetString(KeyS3AccessKey),
			SecretAccessKey: v.GetString(KeyS3SecretKey),
			Region:          stringOr(v.GetString(KeyS3Region), DefaultS3Region),
			Endpoint:        v.GetString(KeyS3Endpoint),
			Prefix:          stringOr(v.GetString(KeyS3Prefix), DefaultS3Prefix),
		}
	}

	cfg := Default()
	cfg.UseObjectStorage = job.Storage != nil
	cfg.MigrateOnly = v.GetBool(KeyMigrateOnly)
	cfg.ResetDestTable = !v.GetBool(KeyKeepDestTable)
	cfg.Verbose = v.GetBool(KeyVerbose)
	cfg.StateDB = v.GetString(KeyStateDB)
	if dir := v.GetString(KeyLocalDir); dir != "" {
		cfg.LocalDir = dir
	}
	if v.IsSet(KeyBatchSize) {
		cfg.BatchSize = v.GetInt64(KeyBatchSize)
	}
	if v.IsSet(KeyWorkers) {
		cfg.Workers = v.GetInt(KeyWorkers)
	}
	if v.IsSet(KeyMaxRetries) {
		cfg.MaxRetries = v.GetInt(KeyMaxRetries)
	}
	if err := cfg.Validate(job); err != nil {
		return job, cfg, err
	}
	return job, cfg, nil
}

func stringOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
