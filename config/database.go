package config

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// InitDatabase opens the SQLite database and applies migrations
func InitDatabase(cfg Config) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", cfg.DatabasePath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := runMigrations(db, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	return db, nil
}

func runMigrations(db *sql.DB, path string) error {
	migrations, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	_, err = db.Exec(string(migrations))
	return err
}
