package metrics

import (
	"database/sql"

	"codeberg.org/mutker/fanctl/internal/errors"
	"codeberg.org/mutker/fanctl/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS decisions (
	       id            INTEGER PRIMARY KEY AUTOINCREMENT,
	       timestamp     INTEGER NOT NULL,
	       session       TEXT NOT NULL,
	       cpu_temp      INTEGER NOT NULL CHECK (typeof(cpu_temp) = 'integer'),
	       gpu_temp      INTEGER NOT NULL CHECK (typeof(gpu_temp) = 'integer'),
	       cpu_temp_avg  INTEGER NOT NULL CHECK (typeof(cpu_temp_avg) = 'integer'),
	       gpu_temp_avg  INTEGER NOT NULL CHECK (typeof(gpu_temp_avg) = 'integer'),
	       cpu_source    TEXT NOT NULL,
	       gpu_util      INTEGER NOT NULL CHECK (typeof(gpu_util) = 'integer'),
	       level_current TEXT NOT NULL,
	       level_target  TEXT NOT NULL,
	       duty          INTEGER NOT NULL CHECK (duty BETWEEN 0 AND 100),
	       reason        TEXT NOT NULL,
	       applied       INTEGER NOT NULL CHECK (applied IN (0, 1)),
	       gpu_failed    INTEGER NOT NULL CHECK (gpu_failed IN (0, 1))
	   );
	   CREATE INDEX IF NOT EXISTS decisions_timestamp ON decisions (timestamp);`

	insertDecisionSQL = `
    INSERT INTO decisions (
        timestamp, session,
        cpu_temp, gpu_temp, cpu_temp_avg, gpu_temp_avg, cpu_source,
        gpu_util,
        level_current, level_target, duty,
        reason, applied, gpu_failed
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectRecentSQL = `
    SELECT
        timestamp, session,
        cpu_temp, gpu_temp, cpu_temp_avg, gpu_temp_avg, cpu_source,
        gpu_util,
        level_current, level_target, duty,
        reason, applied, gpu_failed
    FROM decisions
    ORDER BY id DESC
    LIMIT ?`
)

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				log.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "create_tables",
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version, 0 for a new database
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
