package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
)

const interpretationsTable = "interpretations"

// interpretationsDDL is shared by both dialects except for the float type.
// Timestamps are fixed-width UTC text so they order lexically.
const interpretationsDDL = `CREATE TABLE IF NOT EXISTS interpretations (
	id                 TEXT NOT NULL PRIMARY KEY,
	message_id         TEXT NOT NULL,
	mission_id         TEXT NOT NULL,
	sender             TEXT NOT NULL,
	message_text       TEXT NOT NULL,
	received_at        TEXT NOT NULL,
	status             TEXT NOT NULL,
	vehicle            TEXT NOT NULL,
	eta_utc            TEXT,
	eta_local          TEXT NOT NULL,
	minutes_until      INTEGER,
	status_source      TEXT NOT NULL,
	eta_source         TEXT NOT NULL,
	confidence         %s NOT NULL DEFAULT 0,
	evidence           TEXT NOT NULL DEFAULT '',
	correction_applied INTEGER NOT NULL DEFAULT 0,
	result_json        TEXT NOT NULL
)`

// migrationStatements returns the DDL for the given dialect.
func migrationStatements(d string) []string {
	floatType := "REAL"
	if d == dialect.Postgres {
		floatType = "DOUBLE PRECISION"
	}
	return []string{
		fmt.Sprintf(interpretationsDDL, floatType),
		`CREATE UNIQUE INDEX IF NOT EXISTS interpretations_message_id ON interpretations (message_id)`,
		`CREATE INDEX IF NOT EXISTS interpretations_mission_sender ON interpretations (mission_id, sender, received_at)`,
	}
}

// Migrate creates the interpretations table and its indexes if missing.
func (d *DB) Migrate(ctx context.Context) error {
	for i, stmt := range migrationStatements(d.dialect) {
		if err := d.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			d.logger.Error("migration failed", "statement", i, "error", err)
			return fmt.Errorf("migrate: %w", err)
		}
	}
	d.logger.Info("migration complete", "table", interpretationsTable)
	return nil
}
