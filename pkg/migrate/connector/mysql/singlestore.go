package mysql

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/baderkha/shelter/pkg/migrate/config"
	"github.com/baderkha/shelter/pkg/migrate/connector"
	"github.com/baderkha/shelter/pkg/migrate/table"
)

// SingleStore : mysql connector that can also ingest staged parquet files through a pipeline
type SingleStore struct {
	*Connector
}

var _ connector.BulkIngester = (*SingleStore)(nil)

// NewSingleStore : connector.Factory for singlestore
func NewSingleStore(ep config.Endpoint, opts connector.Options) (connector.Connector, error) {
	return &SingleStore{Connector: newConnector(ep, opts)}, nil
}

// PipelineName : es_<job id>_pipeline, the job id being the directory holding the staged files
func PipelineName(pathPattern string) string {
	jobID := path.Base(path.Dir(pathPattern))
	return fmt.Sprintf("es_%s_pipeline", strings.ReplaceAll(jobID, "-", "_"))
}

// PipelineQuery : CREATE PIPELINE loading parquet files into the table. Timestamps are
// staged as epoch microseconds and converted back with FROM_UNIXTIME.
func PipelineQuery(name string, tableName string, pathPattern string, schema table.Schema, creds connector.Credentials) (string, error) {
	region := creds.Region
	if region == "" {
		region = config.DefaultS3Region
	}
	cfg, err := json.Marshal(map[string]string{"region": region})
	if err != nil {
		return "", err
	}
	credentials, err := json.Marshal(map[string]string{
		"aws_access_key_id":     creds.AccessKeyID,
		"aws_secret_access_key": creds.SecretAccessKey,
	})
	if err != nil {
		return "", err
	}

	var (
		mappings []string
		sets     []string
	)
	for _, col := range schema {
		if strings.Contains(strings.ToLower(col.Type), "timestamp") {
			mappings = append(mappings, fmt.Sprintf("@%s <- %s", col.Name, col.Name))
			sets = append(sets, fmt.Sprintf("%s = FROM_UNIXTIME(@%s/1000000)", col.Name, col.Name))
			continue
		}
		mappings = append(mappings, fmt.Sprintf("%s <- %s", col.Name, col.Name))
	}

	var q strings.Builder
	fmt.Fprintf(&q, "CREATE OR REPLACE PIPELINE %s\n", name)
	fmt.Fprintf(&q, "AS LOAD DATA S3 '%s'\n", escapeLiteral(pathPattern))
	fmt.Fprintf(&q, "CONFIG '%s'\n", escapeLiteral(string(cfg)))
	fmt.Fprintf(&q, "CREDENTIALS '%s'\n", escapeLiteral(string(credentials)))
	fmt.Fprintf(&q, "REPLACE INTO TABLE %s\n", tableName)
	q.WriteString("FORMAT PARQUET\n(\n    ")
	q.WriteString(strings.Join(mappings, ",\n    "))
	q.WriteString("\n)")
	if len(sets) > 0 {
		q.WriteString("\nSET ")
		q.WriteString(strings.Join(sets, ", "))
	}
	return q.String(), nil
}

// IngestFromStaged : creates a pipeline over the staged files, runs it in the foreground, drops it
func (s *SingleStore) IngestFromStaged(ctx context.Context, tableName string, pathPattern string, creds connector.Credentials) error {
	name := PipelineName(pathPattern)
	log := s.Log.With().Str("pipeline", name).Str("table", tableName).Logger()

	schema, err := s.GetTableSchema(ctx, tableName)
	if err != nil {
		return err
	}
	if len(schema) == 0 {
		return fmt.Errorf("could not get schema for table %s", tableName)
	}
	query, err := PipelineQuery(name, tableName, pathPattern, schema, creds)
	if err != nil {
		return err
	}

	start := time.Now()
	if _, err := s.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create pipeline %s : %w", name, err)
	}
	defer func() {
		// ctx may already be cancelled, the pipeline still has to go
		if _, err := s.DB.ExecContext(context.WithoutCancel(ctx), "DROP PIPELINE "+name); err != nil {
			log.Warn().Err(err).Msg("could not drop pipeline")
		}
	}()
	if _, err := s.DB.ExecContext(ctx, "START PIPELINE "+name+" FOREGROUND"); err != nil {
		return fmt.Errorf("run pipeline %s : %w", name, err)
	}
	log.Info().Dur("dur", time.Since(start)).Msg("ingested staged files")
	return nil
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
