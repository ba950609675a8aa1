// Package userdb is the authoritative server-side store: one row per user
// holding credentials and the latest saved PlayerState, guarded by a
// monotonic version so stale saves are rejected instead of silently winning.
package userdb

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"blockcoder.app/internal/game/state"
	"blockcoder.app/internal/leaderboard"
)

var (
	ErrUsernameTaken   = errors.New("username taken")
	ErrNotFound        = errors.New("user not found")
	ErrVersionConflict = errors.New("stale state version")
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	state         TEXT NOT NULL,
	version       INTEGER NOT NULL DEFAULT 1,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser inserts a fresh account with its starter state at version 1.
func (s *Store) CreateUser(username, passwordHash string, st state.PlayerState) error {
	blob, err := json.Marshal(st)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.Exec(
		`INSERT INTO users (username, password_hash, state, version, created_at, updated_at)
		 VALUES (?, ?, ?, 1, ?, ?)`,
		username, passwordHash, string(blob), now, now)
	if err != nil {
		var exists int
		if s.db.QueryRow(`SELECT 1 FROM users WHERE username = ?`, username).Scan(&exists) == nil {
			return ErrUsernameTaken
		}
		return err
	}
	return nil
}

// PasswordHash returns the stored credential hash for username.
func (s *Store) PasswordHash(username string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT password_hash FROM users WHERE username = ?`, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return hash, err
}

// State returns the stored PlayerState and its version.
func (s *Store) State(username string) (state.PlayerState, int64, error) {
	var (
		blob    string
		version int64
	)
	err := s.db.QueryRow(`SELECT state, version FROM users WHERE username = ?`, username).Scan(&blob, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return state.PlayerState{}, 0, ErrNotFound
	}
	if err != nil {
		return state.PlayerState{}, 0, err
	}
	var st state.PlayerState
	if err := json.Unmarshal([]byte(blob), &st); err != nil {
		return state.PlayerState{}, 0, fmt.Errorf("stored state for %s: %w", username, err)
	}
	st.Normalize()
	return st, version, nil
}

// SaveState replaces the stored state wholesale, but only if expectVersion
// matches what is stored. It returns the new version on success and
// ErrVersionConflict when another session saved in between.
func (s *Store) SaveState(username string, st state.PlayerState, expectVersion int64) (int64, error) {
	blob, err := json.Marshal(st)
	if err != nil {
		return 0, err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	err = tx.QueryRow(`SELECT version FROM users WHERE username = ?`, username).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if current != expectVersion {
		return current, ErrVersionConflict
	}

	next := current + 1
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(
		`UPDATE users SET state = ?, version = ?, updated_at = ? WHERE username = ?`,
		string(blob), next, now, username); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

// Currencies returns every user's balance, in rowid order, for the
// leaderboard projection.
func (s *Store) Currencies() ([]leaderboard.Entry, error) {
	rows, err := s.db.Query(`SELECT username, state FROM users ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leaderboard.Entry
	for rows.Next() {
		var (
			username string
			blob     string
		)
		if err := rows.Scan(&username, &blob); err != nil {
			return nil, err
		}
		var st state.PlayerState
		if err := json.Unmarshal([]byte(blob), &st); err != nil {
			// A single corrupt row must not take the whole board down.
			out = append(out, leaderboard.Entry{Username: username})
			continue
		}
		out = append(out, leaderboard.Entry{Username: username, Currency: st.Currency})
	}
	return out, rows.Err()
}

// UserCount is surfaced on /metrics.
func (s *Store) UserCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
