package historydb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE history(
			id INTEGER PRIMARY KEY,
			created_at INT NOT NULL,
			filename TEXT NOT NULL,
			kind TEXT NOT NULL,
			model TEXT NOT NULL,
			path TEXT,
			num_results INT NOT NULL DEFAULT 0,
			params TEXT,
			duration_ms INT NOT NULL DEFAULT 0,
			error TEXT
		);

		CREATE INDEX idx_history_filename ON history (filename);
	`))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		ALTER TABLE history ADD COLUMN archive_url TEXT;
	`))

	return migs
}
