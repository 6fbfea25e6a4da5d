// ABOUTME: Database schema definitions and migrations
// ABOUTME: Creates the opportunity and update-history tables
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS opportunities (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	account_name TEXT NOT NULL DEFAULT '',
	stage TEXT NOT NULL,
	fields TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_opportunities_name ON opportunities(name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_opportunities_stage ON opportunities(stage);

CREATE TABLE IF NOT EXISTS opportunity_history (
	id TEXT PRIMARY KEY,
	opportunity_id TEXT NOT NULL,
	field TEXT NOT NULL,
	old_value TEXT,
	new_value TEXT,
	confidence TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	changed_at DATETIME NOT NULL,
	FOREIGN KEY (opportunity_id) REFERENCES opportunities(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_opportunity_history_opp ON opportunity_history(opportunity_id, changed_at);
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
