// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// titleWidth is the display width of a session title derived from its first
// user turn.
const titleWidth = 50

// =============================================================================
// ERRORS
// =============================================================================

// ErrSessionNotFound is returned when a session doesn't exist.
// Use errors.Is(err, ErrSessionNotFound) to check for this error.
var ErrSessionNotFound = &SessionError{Message: "session not found"}

// ErrAmbiguousID is returned when an ID prefix matches more than one session.
var ErrAmbiguousID = &SessionError{Message: "session id prefix is ambiguous"}

// SessionError represents a session-related error.
// It implements the error interface and can be compared using errors.Is.
type SessionError struct {
	Message string
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing session errors.
func (e *SessionError) Is(target error) bool {
	t, ok := target.(*SessionError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session contains metadata for a stored conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	TurnCount int       `json:"turn_count"`
}

// DisplayTitle returns the title, or a placeholder for an empty session.
func (s Session) DisplayTitle() string {
	if s.Title == "" {
		return "New Conversation"
	}
	return s.Title
}

// =============================================================================
// STORE
// =============================================================================

// Store persists chat sessions in SQLite. It is safe for concurrent use.
type Store struct {
	db *sql.DB

	mu      sync.Mutex // guards entropy
	entropy *ulid.MonotonicEntropy
}

// Open opens or creates the session database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Per-connection settings go in the DSN so they survive reconnects.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{
		db:      db,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) newID(now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// Create starts a new empty session for modelName.
func (s *Store) Create(ctx context.Context, modelName string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:        s.newID(now),
		Model:     modelName,
		CreatedAt: time.UnixMilli(now.UnixMilli()),
		UpdatedAt: time.UnixMilli(now.UnixMilli()),
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, title, model, created_at, updated_at) VALUES (?, '', ?, ?, ?)",
		sess.ID, sess.Model, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

const sessionColumns = `
	s.id, s.title, s.model, s.created_at, s.updated_at,
	(SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess             Session
		created, updated int64
	)
	if err := row.Scan(&sess.ID, &sess.Title, &sess.Model, &created, &updated, &sess.TurnCount); err != nil {
		return nil, err
	}
	sess.CreatedAt = time.UnixMilli(created)
	sess.UpdatedAt = time.UnixMilli(updated)
	return &sess, nil
}

// Get returns the session with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, "SELECT"+sessionColumns+" FROM sessions s WHERE s.id = ?", id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// Resolve returns the full ID of the session whose ID starts with prefix.
// Prefix matching ignores case.
func (s *Store) Resolve(ctx context.Context, prefix string) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" || strings.ContainsAny(prefix, "%_") {
		return "", fmt.Errorf("%w: %q", ErrSessionNotFound, prefix)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM sessions WHERE id LIKE ? ORDER BY id LIMIT 2", prefix+"%")
	if err != nil {
		return "", fmt.Errorf("resolve session: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("resolve session: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("resolve session: %w", err)
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, prefix)
	}
}

// List returns sessions, most recently updated first. A limit of zero or
// less returns all sessions.
func (s *Store) List(ctx context.Context, limit int) ([]Session, error) {
	query := "SELECT" + sessionColumns + " FROM sessions s ORDER BY s.updated_at DESC, s.id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// SetModel records the model used by a session.
func (s *Store) SetModel(ctx context.Context, id, modelName string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET model = ?, updated_at = ? WHERE id = ?",
		modelName, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("set session model: %w", err)
	}
	return requireAffected(res, id)
}

// Delete removes a session and its turns.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireAffected(res, id)
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// =============================================================================
// TURN OPERATIONS
// =============================================================================

// AppendTurn adds a turn to the end of a session. The first user turn
// becomes the session title.
func (s *Store) AppendTurn(ctx context.Context, id string, turn model.Turn) error {
	var images sql.NullString
	if len(turn.Images) > 0 {
		data, err := json.Marshal(turn.Images)
		if err != nil {
			return fmt.Errorf("encode images: %w", err)
		}
		images = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	defer tx.Rollback()

	var title string
	err = tx.QueryRowContext(ctx, "SELECT title FROM sessions WHERE id = ?", id).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	now := time.Now().UnixMilli()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO turns (session_id, seq, role, text, images, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = ?), ?, ?, ?, ?)`,
		id, id, string(turn.Role), turn.Text, images, now)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	if title == "" && turn.Role == model.RoleUser {
		title = turn.Preview(titleWidth)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?", title, now, id); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// Turns returns the turns of a session in conversation order.
func (s *Store) Turns(ctx context.Context, id string) ([]model.Turn, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT role, text, images FROM turns WHERE session_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()

	turns := make([]model.Turn, 0)
	for rows.Next() {
		var (
			turn   model.Turn
			role   string
			images sql.NullString
		)
		if err := rows.Scan(&role, &turn.Text, &images); err != nil {
			return nil, fmt.Errorf("load turns: %w", err)
		}
		turn.Role = model.Role(role)
		if images.Valid && images.String != "" {
			if err := json.Unmarshal([]byte(images.String), &turn.Images); err != nil {
				return nil, fmt.Errorf("decode images: %w", err)
			}
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	return turns, nil
}
