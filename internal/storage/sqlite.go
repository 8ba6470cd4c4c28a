package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Verification attempts
	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		realm TEXT NOT NULL,
		method TEXT NOT NULL,
		uri TEXT,
		transport TEXT NOT NULL,
		verdict TEXT NOT NULL,
		reason TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now')),
		last_used_at TEXT,
		revoked_at TEXT
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_attempts_username ON attempts(username);
	CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON attempts(created_at);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// RecordAttempt stores a verification attempt
func (s *SQLiteStore) RecordAttempt(ctx context.Context, attempt *Attempt) error {
	if attempt.ID == "" {
		attempt.ID = generateID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, username, realm, method, uri, transport, verdict, reason, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID, attempt.Username, attempt.Realm, attempt.Method,
		attempt.URI, attempt.Transport, attempt.Verdict, attempt.Reason, attempt.DurationMS,
	)
	return err
}

// GetAttempt retrieves one attempt by ID
func (s *SQLiteStore) GetAttempt(ctx context.Context, id string) (*Attempt, error) {
	var a Attempt
	var reason sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, realm, method, uri, transport, verdict, reason, duration_ms, created_at
		 FROM attempts WHERE id = ?`, id).Scan(
		&a.ID, &a.Username, &a.Realm, &a.Method, &a.URI, &a.Transport, &a.Verdict, &reason, &a.DurationMS, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Reason = reason.String
	return &a, nil
}

// ListAttempts lists attempts matching the filter, newest first
func (s *SQLiteStore) ListAttempts(ctx context.Context, filter AttemptFilter, pagination PaginationParams) (*PaginatedResult[Attempt], error) {
	limit := pagination.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT id, username, realm, method, uri, transport, verdict, reason, duration_ms, created_at FROM attempts WHERE 1=1`
	var args []any

	if filter.Username != "" {
		query += " AND username = ?"
		args = append(args, filter.Username)
	}
	if filter.Realm != "" {
		query += " AND realm = ?"
		args = append(args, filter.Realm)
	}
	if filter.Verdict != "" {
		query += " AND verdict = ?"
		args = append(args, filter.Verdict)
	}
	if pagination.Cursor != "" {
		query += " AND created_at < ?"
		args = append(args, pagination.Cursor)
	}

	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var reason sql.NullString
		if err := rows.Scan(&a.ID, &a.Username, &a.Realm, &a.Method, &a.URI, &a.Transport, &a.Verdict, &reason, &a.DurationMS, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Reason = reason.String
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &PaginatedResult[Attempt]{Data: attempts}
	if len(attempts) > limit {
		result.Data = attempts[:limit]
		result.HasMore = true
		result.NextCursor = result.Data[limit-1].CreatedAt
	}
	return result, nil
}

// PurgeAttempts deletes attempts older than the given timestamp
func (s *SQLiteStore) PurgeAttempts(ctx context.Context, before string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM attempts WHERE created_at < ?", before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateAPIKey creates a new API key
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	id := generateID()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name, created_at) VALUES (?, ?, ?, datetime('now'))", id, hash, name)
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *SQLiteStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	err := s.db.QueryRowContext(ctx, "SELECT id, key_hash, name, created_at FROM api_keys WHERE key_hash = ? AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &ak.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	// Update last used
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = datetime('now') WHERE id = ?", ak.ID)
	return &ak, err
}

// ListAPIKeys lists all API keys
func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var lastUsed sql.NullString
		if err := rows.Scan(&k.ID, &k.Name, &k.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			k.LastUsedAt = lastUsed.String
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *SQLiteStore) RevokeAPIKey(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = datetime('now') WHERE id = ?", id)
	return err
}
