package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/melonattacker/honeycluster/internal/model"
)

import (
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

type SQLite struct {
	DB *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	// Some environments restrict SQLite creating new files under $HOME, but allow
	// opening an existing file. Pre-create the DB file to avoid SQLITE_CANTOPEN.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("precreate sqlite db %s: %w", path, err)
	}
	_ = f.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &SQLite{DB: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQLiteReadOnly opens an existing feature store without migrating it.
func OpenSQLiteReadOnly(path string) (*SQLite, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, model.MissingInput(path)
		}
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	var userVersion int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&userVersion); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read user_version: %w", err)
	}
	if userVersion != schemaVersion {
		_ = db.Close()
		return nil, fmt.Errorf("unsupported sqlite schema version %d", userVersion)
	}
	return &SQLite{DB: db}, nil
}

func (s *SQLite) Close() error { return s.DB.Close() }

func (s *SQLite) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA foreign_keys=ON;`,
	}
	for _, st := range stmts {
		if _, err := s.DB.Exec(st); err != nil {
			if strings.Contains(err.Error(), "readonly") {
				continue
			}
			return fmt.Errorf("sqlite pragma: %w", err)
		}
	}

	var userVersion int
	if err := s.DB.QueryRow(`PRAGMA user_version;`).Scan(&userVersion); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if userVersion == 0 {
		if err := s.migrateToV1(); err != nil {
			return err
		}
		if _, err := s.DB.Exec(fmt.Sprintf(`PRAGMA user_version=%d;`, schemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
		userVersion = schemaVersion
	}
	if userVersion != schemaVersion {
		return fmt.Errorf("unsupported sqlite schema version %d", userVersion)
	}
	return nil
}

func featureColumnsDDL() string {
	cols := make([]string, 0, len(model.FeatureNames()))
	for _, n := range model.FeatureNames() {
		cols = append(cols, n+" REAL NOT NULL")
	}
	return strings.Join(cols, ",\n\t\t\t")
}

func (s *SQLite) migrateToV1() error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS features(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			session_id TEXT NOT NULL,
			log_date TEXT,
			start_ts INTEGER,
			end_ts INTEGER,
			` + featureColumnsDDL() + `,
			UNIQUE(source, session_id)
		);`,
		`CREATE TABLE IF NOT EXISTS processed_files(
			source TEXT PRIMARY KEY,
			sessions INTEGER,
			processed_ts INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS assignments(
			run_id TEXT,
			view TEXT,
			source TEXT,
			session_id TEXT,
			cluster_id INTEGER,
			PRIMARY KEY(run_id, view, source, session_id)
		);`,
		`CREATE TABLE IF NOT EXISTS cluster_summaries(
			run_id TEXT,
			view TEXT,
			cluster_id INTEGER,
			size INTEGER,
			feature TEXT,
			mean REAL,
			std REAL,
			min REAL,
			median REAL,
			max REAL,
			PRIMARY KEY(run_id, view, cluster_id, feature)
		);`,
		`CREATE TABLE IF NOT EXISTS cluster_noise(
			run_id TEXT,
			view TEXT,
			noise INTEGER,
			total INTEGER,
			PRIMARY KEY(run_id, view)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_features_log_date ON features(log_date);`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_run_view_cluster ON assignments(run_id, view, cluster_id);`,
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, st := range ddl {
		if _, err := tx.Exec(st); err != nil {
			return fmt.Errorf("sqlite ddl: %w", err)
		}
	}
	return tx.Commit()
}

func nullStr(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
