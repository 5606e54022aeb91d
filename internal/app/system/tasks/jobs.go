// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// sweep builds a job around a bulk store operation that reports how many
// records it touched. Only non-zero passes are logged.
func sweep(name string, every time.Duration, logger *zap.Logger, msg, field string, fn func(context.Context) (int64, error)) Job {
	return Job{
		Name:     name,
		Interval: every,
		Run: func(ctx context.Context) error {
			n, err := fn(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info(msg, zap.Int64(field, n))
			}
			return nil
		},
	}
}

// PaymentExpirer marks abandoned pending payments as expired.
type PaymentExpirer interface {
	ExpireStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// PaymentExpiryJob expires pending orders older than maxAge.
func PaymentExpiryJob(payments PaymentExpirer, maxAge time.Duration, logger *zap.Logger) Job {
	return sweep("payment-expiry", 15*time.Minute, logger, "expired stale pending payments", "expired",
		func(ctx context.Context) (int64, error) {
			return payments.ExpireStale(ctx, time.Now().Add(-maxAge))
		})
}

// SessionCloser ends tracked sessions that have gone quiet.
type SessionCloser interface {
	CloseInactive(ctx context.Context, threshold time.Duration) (int64, error)
}

// SessionCleanupJob closes sessions idle longer than threshold.
func SessionCleanupJob(sessions SessionCloser, threshold time.Duration, logger *zap.Logger) Job {
	return sweep("session-cleanup", 10*time.Minute, logger, "closed inactive sessions", "closed",
		func(ctx context.Context) (int64, error) {
			return sessions.CloseInactive(ctx, threshold)
		})
}

// LedgerPruner deletes ledger entries older than a cutoff.
type LedgerPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LedgerRetentionJob drops ledger entries older than retention.
func LedgerRetentionJob(ledger LedgerPruner, retention time.Duration, logger *zap.Logger) Job {
	return sweep("ledger-retention", time.Hour, logger, "pruned ledger entries", "deleted",
		func(ctx context.Context) (int64, error) {
			return ledger.DeleteOlderThan(ctx, time.Now().Add(-retention))
		})
}
