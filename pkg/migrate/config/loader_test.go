package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func endpointValues(prefix string) map[string]any {
	return map[string]any{
		prefix + "-engine":   "SingleStore",
		prefix + "-host":     "db.internal",
		prefix + "-port":     3306,
		prefix + "-user":     "root",
		prefix + "-password": "secret",
		prefix + "-database": "app",
		prefix + "-table":    "events",
	}
}

func newTestFlags(t *testing.T) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterEndpointFlags(fs)
	RegisterRunFlags(fs)
	return fs
}

func TestLoad(t *testing.T) {
	t.Run("defaults and generated job id", func(t *testing.T) {
		v := NewViper()
		require.NoError(t, v.BindPFlags(newTestFlags(t)))
		for k, val := range endpointValues(SourcePrefix) {
			v.Set(k, val)
		}
		for k, val := range endpointValues(DestinationPrefix) {
			v.Set(k, val)
		}

		job, cfg, err := Load(v)
		require.NoError(t, err)
		assert.NotEmpty(t, job.ID)
		assert.Equal(t, "singlestore", job.Source.Engine)
		assert.Equal(t, "db.internal:3306", job.Destination.Addr())
		assert.Nil(t, job.StartOffset)
		assert.Nil(t, job.EndOffset)
		assert.Nil(t, job.Storage)

		assert.False(t, cfg.UseObjectStorage)
		assert.True(t, cfg.ResetDestTable)
		assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
		assert.Positive(t, cfg.Workers)
		assert.Equal(t, filepath.Join(cfg.LocalDir, job.ID), cfg.JobDir(job.ID))
	})

	t.Run("explicit options", func(t *testing.T) {
		v := NewViper()
		fs := newTestFlags(t)
		require.NoError(t, v.BindPFlags(fs))
		require.NoError(t, fs.Parse([]string{
			"--job-id=job-1",
			"--start-offset=0",
			"--end-offset=10",
			"--keep-dest-table",
			"--migrate-only",
			"--s3-bucket=staging",
			"--s3-access-key-id=AK",
			"--s3-secret-access-key=SK",
			"--batch-size=100",
			"--dest-options=warehouse=WH,role=LOADER",
		}))
		for k, val := range endpointValues(SourcePrefix) {
			v.Set(k, val)
		}
		for k, val := range endpointValues(DestinationPrefix) {
			v.Set(k, val)
		}

		job, cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, "job-1", job.ID)
		require.NotNil(t, job.StartOffset)
		assert.EqualValues(t, 0, *job.StartOffset)
		require.NotNil(t, job.EndOffset)
		assert.EqualValues(t, 10, *job.EndOffset)
		require.NotNil(t, job.Storage)
		assert.Equal(t, "staging", job.Storage.Bucket)
		assert.Equal(t, DefaultS3Prefix, job.Storage.Prefix)
		assert.Equal(t, DefaultS3Region, job.Storage.Region)
		assert.Equal(t, "WH", job.Destination.Option("warehouse", ""))
		assert.Equal(t, "PUBLIC", job.Destination.Option("schema", "PUBLIC"))

		assert.True(t, cfg.UseObjectStorage)
		assert.True(t, cfg.MigrateOnly)
		assert.False(t, cfg.ResetDestTable)
		assert.EqualValues(t, 100, cfg.BatchSize)
	})

	t.Run("missing fields are all reported", func(t *testing.T) {
		v := NewViper()
		require.NoError(t, v.BindPFlags(newTestFlags(t)))
		v.Set("src-engine", "mysql")

		_, _, err := Load(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--src-host is required")
		assert.Contains(t, err.Error(), "--dest-engine is required")
		assert.Contains(t, err.Error(), "--dest-table is required")
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("SHELTER_SRC_ENGINE", "postgres")
		v := NewViper()
		assert.Equal(t, "postgres", v.GetString("src-engine"))
	})
}

func TestConfigValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate(Job{}))

	cfg.UseObjectStorage = true
	require.ErrorContains(t, cfg.Validate(Job{}), "no bucket")

	cfg = Default()
	cfg.BatchSize = 0
	require.Error(t, cfg.Validate(Job{}))
}

func TestDefaultLocalDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	assert.Equal(t, filepath.Join(home, "epic-shelter"), DefaultLocalDir())
}

func TestLoadConnection(t *testing.T) {
	v := NewViper()
	require.NoError(t, v.BindPFlags(newTestFlags(t)))
	for k, val := range endpointValues(SourcePrefix) {
		v.Set(k, val)
	}
	v.Set(SourcePrefix+"-table", "")

	ep, err := LoadConnection(v, SourcePrefix)
	require.NoError(t, err)
	assert.Equal(t, "app", ep.Database)

	_, err = LoadEndpoint(v, SourcePrefix)
	assert.ErrorContains(t, err, "--src-table is required")
}
