package commands

import (
	"database/sql"

	"github.com/teranos/attrmigrate/am"
	"github.com/teranos/attrmigrate/db"
	"github.com/teranos/attrmigrate/errors"
	"github.com/teranos/attrmigrate/logger"
)

// openDatabase opens and migrates a database using the specified path.
// If dbPath is empty, it loads from am config. Uses logger.Logger for db operations.
func openDatabase(dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		path, err := am.GetDatabasePath()
		if err != nil {
			return nil, errors.Wrap(err, "failed to get database path")
		}
		if path == "" {
			dbPath = am.DefaultDatabasePath
		} else {
			dbPath = path
		}
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.WithHint(err, "check database.path or pass --db")
	}
	return database, nil
}
