package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"visforge/forge"
)

// Store keeps save slots in a single SQLite table as JSON payloads.
type Store struct {
	db      *sql.DB
	path    string
	primary string
}

// NewStore opens or creates the database at path. primary names the primary
// currency legacy saves are migrated into.
func NewStore(path, primary string) (*Store, error) {
	if path == "" {
		path = "visforge.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS saves (
		slot TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create saves table: %w", err)
	}
	return &Store{db: db, path: path, primary: primary}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Load(ctx context.Context, slot string) (*forge.SaveFile, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM saves WHERE slot = ?`, slot).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, forge.ErrSaveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select save: %w", err)
	}
	return forge.DecodeSave(payload, s.primary)
}

func (s *Store) Save(ctx context.Context, slot string, save *forge.SaveFile) error {
	if slot == "" {
		return fmt.Errorf("empty slot")
	}
	payload, err := forge.EncodeSave(save)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO saves(slot, payload, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		slot, payload, time.Now().UTC().UnixMilli()); err != nil {
		return fmt.Errorf("upsert save: %w", err)
	}
	return nil
}

// Delete removes a slot and reports whether it existed.
func (s *Store) Delete(ctx context.Context, slot string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saves WHERE slot = ?`, slot)
	if err != nil {
		return false, fmt.Errorf("delete save: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Slots lists the stored slot names in order.
func (s *Store) Slots(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slot FROM saves ORDER BY slot`)
	if err != nil {
		return nil, fmt.Errorf("select slots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var slots []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}
