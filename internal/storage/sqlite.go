// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/vpexport/internal/model"
	"github.com/jeranaias/vpexport/internal/util"
)

// =============================================================================
// SCHEMA
// =============================================================================

// Schema creates the dataset tables.
const Schema = `
CREATE TABLE IF NOT EXISTS display_sets (
	uid        TEXT PRIMARY KEY,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS instances (
	display_set_uid TEXT    NOT NULL REFERENCES display_sets(uid) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	attributes      TEXT    NOT NULL,
	PRIMARY KEY (display_set_uid, position)
);
`

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore is a persistent Store.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the dataset database at path.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		expanded, err := util.ExpandHome(path)
		if err != nil {
			return nil, err
		}
		path = expanded
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections.
	// A single connection also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database location.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Put stores display sets, replacing existing ones with the same UID.
// All sets are written in one transaction.
func (s *SQLiteStore) Put(ctx context.Context, sets ...model.DisplaySet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, ds := range sets {
		if ds.UID == "" {
			return errors.New("display set has no uid")
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM instances WHERE display_set_uid = ?", ds.UID); err != nil {
			return fmt.Errorf("clear instances of %s: %w", ds.UID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO display_sets (uid, updated_at) VALUES (?, ?) ON CONFLICT(uid) DO UPDATE SET updated_at = excluded.updated_at",
			ds.UID, now); err != nil {
			return fmt.Errorf("store display set %s: %w", ds.UID, err)
		}
		for pos, inst := range ds.Instances {
			attrs := inst.Attributes
			if attrs == nil {
				attrs = map[string]string{}
			}
			data, err := json.Marshal(attrs)
			if err != nil {
				return fmt.Errorf("encode attributes: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO instances (display_set_uid, position, attributes) VALUES (?, ?, ?)",
				ds.UID, pos, string(data)); err != nil {
				return fmt.Errorf("store instance %d of %s: %w", pos, ds.UID, err)
			}
		}
	}

	return tx.Commit()
}

// DisplaySet loads a display set with its instances in stored order.
func (s *SQLiteStore) DisplaySet(ctx context.Context, uid string) (*model.DisplaySet, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM display_sets WHERE uid = ?", uid).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisplaySetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query display set %s: %w", uid, err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT attributes FROM instances WHERE display_set_uid = ? ORDER BY position", uid)
	if err != nil {
		return nil, fmt.Errorf("query instances of %s: %w", uid, err)
	}
	defer rows.Close()

	ds := &model.DisplaySet{UID: uid}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		attrs := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
			return nil, fmt.Errorf("decode attributes of %s: %w", uid, err)
		}
		ds.Instances = append(ds.Instances, model.Instance{Attributes: attrs})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ds, nil
}

// List returns all display set UIDs ordered by UID.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT uid FROM display_sets ORDER BY uid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		uids = append(uids, uid)
	}
	return uids, rows.Err()
}

// Delete removes a display set and its instances.
func (s *SQLiteStore) Delete(ctx context.Context, uid string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM display_sets WHERE uid = ?", uid)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDisplaySetNotFound
	}
	return nil
}
