package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/amos"
	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/idgen"
	"github.com/patrickkettner/homebridge-smart-diffuser-lbslm/internal/storage"
)

// SQLiteStorage implements storage.Storage using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// New creates a new SQLite storage instance
func New(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStorage{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate creates the database schema
func (s *SQLiteStorage) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS accessories (
			id TEXT PRIMARY KEY,
			nid TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			model TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS device_state (
			nid TEXT PRIMARY KEY,
			is_on INTEGER NOT NULL DEFAULT 0,
			run_seconds INTEGER NOT NULL DEFAULT 0,
			liquid_level INTEGER NOT NULL DEFAULT 0,
			locked INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (nid) REFERENCES accessories(nid) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_accessories_nid ON accessories(nid);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveAccessory inserts or updates a cached accessory by nid
func (s *SQLiteStorage) SaveAccessory(ctx context.Context, accessory *storage.Accessory) error {
	now := time.Now().UTC()
	if accessory.ID == "" {
		accessory.ID = idgen.NewAccessory()
	}
	if accessory.CreatedAt.IsZero() {
		accessory.CreatedAt = now
	}
	accessory.UpdatedAt = now

	query := `
		INSERT INTO accessories (id, nid, name, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(nid) DO UPDATE SET
			name = excluded.name,
			model = excluded.model,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		accessory.ID, accessory.NID, accessory.Name, accessory.Model,
		accessory.CreatedAt, accessory.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save accessory: %w", err)
	}
	return nil
}

// GetAccessory retrieves a cached accessory by nid
func (s *SQLiteStorage) GetAccessory(ctx context.Context, nid string) (*storage.Accessory, error) {
	query := `SELECT id, nid, name, model, created_at, updated_at FROM accessories WHERE nid = ?`

	var accessory storage.Accessory
	err := s.db.QueryRowContext(ctx, query, nid).Scan(
		&accessory.ID, &accessory.NID, &accessory.Name, &accessory.Model,
		&accessory.CreatedAt, &accessory.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrAccessoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get accessory: %w", err)
	}
	return &accessory, nil
}

// ListAccessories returns all cached accessories
func (s *SQLiteStorage) ListAccessories(ctx context.Context) ([]*storage.Accessory, error) {
	query := `SELECT id, nid, name, model, created_at, updated_at FROM accessories ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accessories: %w", err)
	}
	defer rows.Close()

	accessories := make([]*storage.Accessory, 0)
	for rows.Next() {
		var accessory storage.Accessory
		if err := rows.Scan(
			&accessory.ID, &accessory.NID, &accessory.Name, &accessory.Model,
			&accessory.CreatedAt, &accessory.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan accessory: %w", err)
		}
		accessories = append(accessories, &accessory)
	}

	return accessories, rows.Err()
}

// DeleteAccessory removes a cached accessory and its state
func (s *SQLiteStorage) DeleteAccessory(ctx context.Context, nid string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM accessories WHERE nid = ?`, nid)
	if err != nil {
		return fmt.Errorf("failed to delete accessory: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrAccessoryNotFound
	}
	return nil
}

// SaveDeviceState upserts the last-known snapshot for a device
func (s *SQLiteStorage) SaveDeviceState(ctx context.Context, nid string, state amos.State) error {
	query := `
		INSERT INTO device_state (nid, is_on, run_seconds, liquid_level, locked, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(nid) DO UPDATE SET
			is_on = excluded.is_on,
			run_seconds = excluded.run_seconds,
			liquid_level = excluded.liquid_level,
			locked = excluded.locked,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		nid, state.IsOn, state.RunSeconds, state.LiquidLevel, state.Locked, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save device state: %w", err)
	}
	return nil
}

// GetDeviceState retrieves the last-known snapshot for a device
func (s *SQLiteStorage) GetDeviceState(ctx context.Context, nid string) (*amos.State, error) {
	query := `SELECT is_on, run_seconds, liquid_level, locked FROM device_state WHERE nid = ?`

	var state amos.State
	err := s.db.QueryRowContext(ctx, query, nid).Scan(
		&state.IsOn, &state.RunSeconds, &state.LiquidLevel, &state.Locked)
	if err == sql.ErrNoRows {
		return nil, storage.ErrAccessoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device state: %w", err)
	}
	return &state, nil
}
