package history

import (
	"database/sql"
	"fmt"
)

// The event log is a single append-only table. There is no versioned
// migration machinery because nothing ever reads this back into the
// registry; an incompatible schema change just starts a new file.
const schema = `
CREATE TABLE IF NOT EXISTS relay_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	connection_id TEXT NOT NULL,
	role TEXT NOT NULL,
	event TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relay_events_session ON relay_events(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_relay_events_event ON relay_events(event);
`

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize event log schema: %w", err)
	}
	return nil
}

func applySQLitePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	return nil
}
