package migrate

import (
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/baderkha/shelter/pkg/migrate/encode"
)

// workspace : the local per job staging directory
type workspace struct {
	fs  afero.Fs
	dir string
	log zerolog.Logger
}

// ArtifactPath : {dir}/{table}_{batchNumber}.parquet
func (w workspace) ArtifactPath(tableName string, batchNumber int64) string {
	return filepath.Join(w.dir, ArtifactName(tableName, batchNumber))
}

// ArtifactName : {table}_{batchNumber}.parquet
func ArtifactName(tableName string, batchNumber int64) string {
	return fmt.Sprintf("%s_%d%s", tableName, batchNumber, encode.Extension)
}

// Reset : removes the files of the directory, creating it when absent. Nested
// directories are left alone, files that cannot be removed are logged and left behind.
func (w workspace) Reset() error {
	exists, err := afero.DirExists(w.fs, w.dir)
	if err != nil {
		return fmt.Errorf("%w : stat %s : %w", ErrStagingIO, w.dir, err)
	}
	if !exists {
		if err := w.fs.MkdirAll(w.dir, 0o755); err != nil {
			return fmt.Errorf("%w : create %s : %w", ErrStagingIO, w.dir, err)
		}
		return nil
	}

	entries, err := afero.ReadDir(w.fs, w.dir)
	if err != nil {
		return fmt.Errorf("%w : list %s : %w", ErrStagingIO, w.dir, err)
	}
	var merr *multierror.Error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := w.fs.Remove(filepath.Join(w.dir, e.Name())); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		w.log.Warn().Err(err).Str("path", w.dir).Msg("could not clear every staged file")
	}
	return nil
}

// Teardown : removes the directory, logging a failure
func (w workspace) Teardown() {
	if err := w.fs.RemoveAll(w.dir); err != nil {
		w.log.Warn().Err(err).Str("path", w.dir).Msg("could not remove workspace")
		return
	}
	w.log.Debug().Str("path", w.dir).Msg("removed workspace")
}
