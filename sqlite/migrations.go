package sqlite

import (
	"context"
	"fmt"
)

type migration struct {
	version string
	sql     string
}

// migrations is the ordered schema ladder. Entries are applied once and
// recorded in schema_migrations; never edit an applied entry, append a
// new one instead.
var migrations = []migration{
	{
		version: "0001_initial",
		sql: `
CREATE TABLE workflow_states (
    id         TEXT PRIMARY KEY,
    phase      TEXT NOT NULL,
    state      TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX idx_workflow_states_updated ON workflow_states (updated_at DESC);
CREATE INDEX idx_workflow_states_phase ON workflow_states (phase);

CREATE TABLE checkpoints (
    id          TEXT PRIMARY KEY,
    workflow_id TEXT NOT NULL,
    sequence    INTEGER NOT NULL,
    reason      TEXT NOT NULL,
    state       TEXT NOT NULL,
    created_at  TEXT NOT NULL
);

CREATE UNIQUE INDEX idx_checkpoints_workflow_sequence ON checkpoints (workflow_id, sequence);

CREATE TABLE journal_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    workflow_id TEXT NOT NULL,
    event       TEXT NOT NULL,
    phase       TEXT NOT NULL,
    kind        TEXT,
    message     TEXT,
    artifacts   TEXT,
    timestamp   TEXT NOT NULL
);

CREATE INDEX idx_journal_events_workflow ON journal_events (workflow_id, id);
`,
	},
}

func (s *Store) applyMigrations(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, migration := range migrations {
		var count int
		row := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", migration.version)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, migration.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", migration.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", migration.version); err != nil {
			return fmt.Errorf("record migration %s: %w", migration.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}
