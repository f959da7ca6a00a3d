package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_files",
		SQL: `CREATE TABLE IF NOT EXISTS files (
  tenant_id         TEXT        NOT NULL,
  id                UUID        NOT NULL,
  original_filename TEXT        NOT NULL,
  content_type      TEXT        NOT NULL,
  file_size         BIGINT      NOT NULL CHECK (file_size >= 0),
  created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
  chunk_ids         JSONB       NOT NULL DEFAULT '[]',
  PRIMARY KEY (tenant_id, id)
);`,
	},
	{
		Name: "create_index_files_tenant_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_files_tenant_created_at ON files (tenant_id, created_at);`,
	},
}

// EnsureMigrated checks whether the files table exists and runs the DDL steps
// if it does not. Steps are individually idempotent so a partially applied
// migration converges on the next start.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	start := time.Now()

	var exists bool
	const query = "SELECT to_regclass('public.files') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}
	if exists {
		log.Info("schema already exists, skipping migration",
			zap.Duration("elapsed", time.Since(start)))
		return nil
	}

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("migration step failed",
				zap.String("step", step.Name),
				zap.Error(err))
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		log.Info("migration step applied",
			zap.String("step", step.Name),
			zap.Duration("elapsed", time.Since(stepStart)))
	}

	log.Info("migration complete", zap.Duration("elapsed", time.Since(start)))
	return nil
}
