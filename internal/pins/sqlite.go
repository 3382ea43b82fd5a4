package pins

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bryanchriswhite/taskdock/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore keeps pins in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create pins directory: %w", err)
	}
	if err := migrateSQLite(path); err != nil {
		return nil, fmt.Errorf("failed to migrate pins database: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func openDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)
	return db, nil
}

// migrateSQLite runs on its own connection because closing the migrator
// closes the database it was given.
func migrateSQLite(path string) error {
	db, err := openDB(path)
	if err != nil {
		return err
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		db.Close()
		return err
	}
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		db.Close()
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		db.Close()
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Load reads both pin sets.
func (s *SQLiteStore) Load() (State, error) {
	var st State

	rows, err := s.db.Query(`SELECT window_id FROM pinned_windows ORDER BY window_id`)
	if err != nil {
		return State{}, fmt.Errorf("failed to load pinned windows: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return State{}, err
		}
		st.Windows = append(st.Windows, model.WindowID(id))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return State{}, err
	}

	rows, err = s.db.Query(`SELECT app_id FROM pinned_apps ORDER BY app_id`)
	if err != nil {
		return State{}, fmt.Errorf("failed to load pinned apps: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var app string
		if err := rows.Scan(&app); err != nil {
			return State{}, err
		}
		st.Apps = append(st.Apps, model.AppID(app))
	}
	return st, rows.Err()
}

// Save replaces both pin sets in one transaction.
func (s *SQLiteStore) Save(st State) error {
	return withTx(s.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM pinned_windows`); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM pinned_apps`); err != nil {
			return err
		}
		for _, id := range st.Windows {
			if _, err := tx.Exec(`INSERT OR IGNORE INTO pinned_windows(window_id) VALUES (?)`, int64(id)); err != nil {
				return fmt.Errorf("failed to save pinned window %d: %w", id, err)
			}
		}
		for _, app := range st.Apps {
			if _, err := tx.Exec(`INSERT OR IGNORE INTO pinned_apps(app_id) VALUES (?)`, string(app)); err != nil {
				return fmt.Errorf("failed to save pinned app %s: %w", app, err)
			}
		}
		return nil
	})
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func withTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
