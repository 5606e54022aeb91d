// Package txn runs multi-document writes in a MongoDB transaction when the
// deployment supports one.
//
// Standalone servers (the usual local and test setup) reject transactions;
// Run then executes the function once more without one.
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Func holds the writes to run. ctx is a session context inside a
// transaction and the caller's context otherwise.
type Func func(ctx context.Context) error

// Run executes fn in a transaction, falling back to a plain call when
// transactions are unavailable. Errors returned by fn abort the transaction
// and are returned unchanged.
func Run(ctx context.Context, db *mongo.Database, log *zap.Logger, fn Func) error {
	if log == nil {
		log = zap.NewNop()
	}

	session, err := db.Client().StartSession()
	if err != nil {
		log.Warn("failed to start session, running without transaction", zap.Error(err))
		return fn(ctx)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		log.Debug("transactions not supported, running without transaction", zap.Error(err))
		return fn(ctx)
	}
	return err
}

// IsNotSupported reports whether err means the server cannot run
// multi-document transactions.
//
// Known codes: 20 (replica set or mongos required), 51 (IllegalOperation),
// 263 (operation not allowed in a transaction).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case 20, 51, 263:
			return true
		}
	}

	// DocumentDB and older servers word this differently; two keyword hits
	// keep unrelated errors out.
	msg := strings.ToLower(err.Error())
	hits := 0
	for _, kw := range []string{"transaction", "replica set", "session", "not supported", "illegal operation"} {
		if strings.Contains(msg, kw) {
			hits++
		}
	}
	return hits >= 2
}
