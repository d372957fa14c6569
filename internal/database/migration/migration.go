package migration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_files",
		SQL: `CREATE TABLE IF NOT EXISTS files (
  id         BIGSERIAL PRIMARY KEY,
  sha256     TEXT      NOT NULL UNIQUE,
  ext        TEXT      NOT NULL,
  mime       TEXT      NOT NULL,
  addr       TEXT      NOT NULL DEFAULT '',
  ua         TEXT      NOT NULL DEFAULT '',
  removed    BOOLEAN   NOT NULL DEFAULT FALSE,
  nsfw_score DOUBLE PRECISION,
  expiration BIGINT,
  mgmt_token TEXT,
  secret     TEXT,
  last_scan  TIMESTAMPTZ,
  size       BIGINT    NOT NULL CHECK (size >= 0)
);`,
	},
	{
		Name: "create_index_files_addr",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_files_addr ON files (addr);`,
	},
	{
		Name: "create_index_files_expiration",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_files_expiration ON files (expiration) WHERE expiration IS NOT NULL;`,
	},
	{
		Name: "create_index_files_last_scan",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_files_last_scan ON files (last_scan) WHERE removed = FALSE;`,
	},
	{
		Name: "create_table_urls",
		SQL: `CREATE TABLE IF NOT EXISTS urls (
  id  BIGSERIAL PRIMARY KEY,
  url TEXT      NOT NULL UNIQUE
);`,
	},
}

// EnsureMigrated checks if the 'files' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, loc *time.Location, dbHost string) error {
	start := time.Now()

	logJSON(loc, map[string]any{
		"component": "database",
		"event":     "db_migration_check",
		"status":    "starting",
		"db_host":   dbHost,
	})

	var exists bool
	query := "SELECT to_regclass('public.files') IS NOT NULL"
	err := db.QueryRowContext(ctx, query).Scan(&exists)
	if err != nil {
		logJSON(loc, map[string]any{
			"component":     "database",
			"event":         "db_migration_failed",
			"status":        "error",
			"error_message": fmt.Sprintf("failed to check sentinel table: %v", err),
			"db_host":       dbHost,
			"duration_ms":   time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		logJSON(loc, map[string]any{
			"component":   "database",
			"event":       "db_migration_skip",
			"status":      "success",
			"msg":         "schema already exists, skipping migration",
			"db_host":     dbHost,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil
	}

	logJSON(loc, map[string]any{
		"component": "database",
		"event":     "db_migration_start",
		"status":    "in_progress",
		"db_host":   dbHost,
	})

	for _, step := range steps {
		stepStart := time.Now()
		_, err := db.ExecContext(ctx, step.SQL)
		if err != nil {
			logJSON(loc, map[string]any{
				"component":        "database",
				"event":            "db_migration_failed",
				"status":           "error",
				"migration_step":   step.Name,
				"error_message":    err.Error(),
				"db_host":          dbHost,
				"duration_ms":      time.Since(start).Milliseconds(),
				"step_duration_ms": time.Since(stepStart).Milliseconds(),
			})
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		logJSON(loc, map[string]any{
			"component":        "database",
			"event":            "db_migration_step",
			"status":           "success",
			"migration_step":   step.Name,
			"db_host":          dbHost,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		})
	}

	logJSON(loc, map[string]any{
		"component":   "database",
		"event":       "db_migration_success",
		"status":      "success",
		"db_host":     dbHost,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	return nil
}

func logJSON(loc *time.Location, data map[string]any) {
	data["ts"] = time.Now().In(loc).Format(time.RFC3339Nano)
	if _, ok := data["level"]; !ok {
		if data["status"] == "error" {
			data["level"] = "error"
		} else {
			data["level"] = "info"
		}
	}

	b, err := json.Marshal(data)
	if err != nil {
		log.Printf("failed to marshal migration log: %v", err)
		return
	}
	log.SetFlags(0)
	log.Println(string(b))
}
