package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Verification attempts
	CREATE TABLE IF NOT EXISTS attempts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		username TEXT NOT NULL,
		realm TEXT NOT NULL,
		method TEXT NOT NULL,
		uri TEXT,
		transport TEXT NOT NULL,
		verdict TEXT NOT NULL,
		reason TEXT,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		last_used_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ
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
func (s *PostgresStore) RecordAttempt(ctx context.Context, attempt *Attempt) error {
	if attempt.ID == "" {
		attempt.ID = generateID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, username, realm, method, uri, transport, verdict, reason, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		attempt.ID, attempt.Username, attempt.Realm, attempt.Method,
		attempt.URI, attempt.Transport, attempt.Verdict, attempt.Reason, attempt.DurationMS,
	)
	return err
}

// GetAttempt retrieves one attempt by ID
func (s *PostgresStore) GetAttempt(ctx context.Context, id string) (*Attempt, error) {
	var a Attempt
	var reason sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, realm, method, uri, transport, verdict, reason, duration_ms, created_at::TEXT
		 FROM attempts WHERE id = $1`, id).Scan(
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
func (s *PostgresStore) ListAttempts(ctx context.Context, filter AttemptFilter, pagination PaginationParams) (*PaginatedResult[Attempt], error) {
	limit := pagination.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `SELECT id, username, realm, method, uri, transport, verdict, reason, duration_ms, created_at::TEXT FROM attempts WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Username != "" {
		query += " AND username = " + arg(filter.Username)
	}
	if filter.Realm != "" {
		query += " AND realm = " + arg(filter.Realm)
	}
	if filter.Verdict != "" {
		query += " AND verdict = " + arg(filter.Verdict)
	}
	if pagination.Cursor != "" {
		query += " AND created_at < " + arg(pagination.Cursor) + "::TIMESTAMPTZ"
	}

	query += " ORDER BY created_at DESC LIMIT " + arg(limit+1)

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
func (s *PostgresStore) PurgeAttempts(ctx context.Context, before string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM attempts WHERE created_at < $1::TIMESTAMPTZ", before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateAPIKey creates a new API key
func (s *PostgresStore) CreateAPIKey(ctx context.Context, name string) (string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	id := generateID()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name) VALUES ($1, $2, $3)", id, hash, name)
	if err != nil {
		return "", err
	}
	return key, nil
}

// ValidateAPIKey validates an API key
func (s *PostgresStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	err := s.db.QueryRowContext(ctx, "SELECT id, key_hash, name, created_at::TEXT FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &ak.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	// Update last used
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = NOW() WHERE id = $1", ak.ID)
	return &ak, err
}

// ListAPIKeys lists all API keys
func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at::TEXT, last_used_at::TEXT FROM api_keys WHERE revoked_at IS NULL")
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
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = NOW() WHERE id = $1", id)
	return err
}
