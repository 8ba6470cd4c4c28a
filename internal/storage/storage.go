package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pendergraft/web3auth/internal/config"
)

// AttemptStore handles verification attempt auditing
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt *Attempt) error
	GetAttempt(ctx context.Context, id string) (*Attempt, error)
	ListAttempts(ctx context.Context, filter AttemptFilter, pagination PaginationParams) (*PaginatedResult[Attempt], error)
	PurgeAttempts(ctx context.Context, before string) (int64, error)
}

// APIKeyStore handles API key operations
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, name string) (key string, err error)
	ValidateAPIKey(ctx context.Context, key string) (*APIKey, error)
	ListAPIKeys(ctx context.Context) ([]APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// Store combines all storage interfaces with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	AttemptStore
	APIKeyStore

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// Attempt is one audited verification attempt. Response digests are
// never stored, only the verdict and diagnostic reason.
type Attempt struct {
	ID         string
	Username   string
	Realm      string
	Method     string
	URI        string
	Transport  string
	Verdict    string
	Reason     string
	DurationMS int64
	CreatedAt  string
}

// APIKey represents an API key
type APIKey struct {
	ID         string
	Name       string
	KeyHash    string
	CreatedAt  string
	LastUsedAt string
	RevokedAt  string
}

// AttemptFilter contains filter options for listing attempts
type AttemptFilter struct {
	Username string
	Realm    string
	Verdict  string
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
