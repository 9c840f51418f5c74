// SPDX-License-Identifier: GPL-3.0-only

package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/shini4i/asd-adaptive-brightness/internal/controller"
)

const sqliteFileName = "samples.db"

const schema = `
CREATE TABLE IF NOT EXISTS samples (
	output     TEXT    NOT NULL,
	position   INTEGER NOT NULL,
	lux        INTEGER NOT NULL,
	luma       INTEGER,
	brightness INTEGER NOT NULL,
	PRIMARY KEY (output, position)
);
`

// SQLite keeps the samples of every output in one database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	// Outputs save from their own goroutines; one connection serialises writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", schema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate %s: %w", path, err)
		}
	}

	return &SQLite{db: db}, nil
}

// For returns the persistence of the named output.
func (s *SQLite) For(output string) controller.Persistence {
	return &sqliteOutput{db: s.db, output: output}
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type sqliteOutput struct {
	db     *sql.DB
	output string
}

func (o *sqliteOutput) Load() ([]controller.Sample, error) {
	rows, err := o.db.Query(
		`SELECT lux, luma, brightness FROM samples WHERE output = ? ORDER BY position`,
		o.output,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []controller.Sample
	for rows.Next() {
		var (
			lux, brightness int64
			luma            sql.NullInt64
		)
		if err := rows.Scan(&lux, &luma, &brightness); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if lux < 0 || brightness < 0 || (luma.Valid && (luma.Int64 < 0 || luma.Int64 > 100)) {
			return nil, fmt.Errorf("invalid sample row for output %s", o.output)
		}

		l := controller.NoLuminance
		if luma.Valid {
			l = controller.Luma(uint8(luma.Int64))
		}
		samples = append(samples, controller.NewSample(uint64(lux), l, uint64(brightness)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}
	return samples, nil
}

func (o *sqliteOutput) Save(samples []controller.Sample) error {
	tx, err := o.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM samples WHERE output = ?`, o.output); err != nil {
		return fmt.Errorf("delete samples: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO samples (output, position, lux, luma, brightness) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, s := range samples {
		var luma sql.NullInt64
		if v, ok := s.Luminance.Get(); ok {
			luma = sql.NullInt64{Int64: int64(v), Valid: true}
		}
		// #nosec G115 -- lux and brightness come from sensors and devices, far below MaxInt64
		if _, err := stmt.Exec(o.output, i, int64(s.Lux), luma, int64(s.Brightness)); err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
