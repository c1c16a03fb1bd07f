package configdb

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
		CREATE TABLE user(
			id INTEGER PRIMARY KEY,
			employee_id TEXT NOT NULL,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			email TEXT NOT NULL,
			email_normalized TEXT NOT NULL,
			mobile_contact TEXT,
			permissions TEXT NOT NULL,
			password BLOB,
			password_changed_at INT
		);
		CREATE UNIQUE INDEX idx_user_email_normalized ON user (email_normalized);
		CREATE UNIQUE INDEX idx_user_employee_id ON user (employee_id);

		CREATE TABLE session(
			created_at INT NOT NULL,
			key BLOB NOT NULL,
			user_id INT NOT NULL,
			expires_at INT
		);

		CREATE TABLE system_config (key TEXT PRIMARY KEY, value TEXT NOT NULL);
	`))

	return migs
}
