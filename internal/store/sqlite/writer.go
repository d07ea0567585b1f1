// Package sqlite persists the latest frame of each chart so charts can be
// restored after a restart.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"signalchart/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/charts.db"
}

// Store is a model.FrameStore backed by one SQLite table.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database in WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chart_frames (
			chart      TEXT    PRIMARY KEY,
			symbol     TEXT    NOT NULL DEFAULT '',
			bars       INTEGER NOT NULL DEFAULT 0,
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	return err
}

// SaveFrame implements model.FrameWriter with an upsert on chart.
func (s *Store) SaveFrame(ctx context.Context, f model.Frame) error {
	var symbol string
	if f.Quote != nil {
		symbol = f.Quote.Symbol
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chart_frames (chart, symbol, bars, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chart) DO UPDATE SET
			symbol = excluded.symbol,
			bars = excluded.bars,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, f.Chart, symbol, f.Quote.Len(), string(f.JSON()), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite save frame %s: %w", f.Chart, err)
	}
	return nil
}

// DeleteFrame implements model.FrameWriter.
func (s *Store) DeleteFrame(ctx context.Context, chart string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chart_frames WHERE chart = ?`, chart); err != nil {
		return fmt.Errorf("sqlite delete frame %s: %w", chart, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
