package domain

import (
	"context"
	"log/slog"
	"time"
)

// loggingService is the interface required for logging middleware.
type loggingService interface {
	Verify(ctx context.Context, creds Credentials) (Outcome, error)
}

// LoggingMiddleware returns a service middleware that logs all verifications.
func LoggingMiddleware(logger *slog.Logger) func(loggingService) *loggingMiddleware {
	return func(next loggingService) *loggingMiddleware {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   loggingService
	logger *slog.Logger
}

func (m *loggingMiddleware) Verify(ctx context.Context, creds Credentials) (Outcome, error) {
	start := time.Now()
	outcome, err := m.next.Verify(ctx, creds)
	m.logger.Info("Verify",
		"username", creds.Username,
		"realm", creds.Realm,
		"method", creds.Method,
		"verdict", outcome.Verdict,
		"reason", outcome.Reason,
		"duration", time.Since(start),
		"error", err,
	)
	return outcome, err
}
