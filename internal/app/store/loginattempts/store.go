// internal/app/store/loginattempts/store.go
package loginattempts

import (
	"context"
	"errors"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/system/clock"
	"github.com/consistencygrid/consistencygrid/internal/app/system/normalize"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Attempt tracks failed sign-in attempts for one email.
type Attempt struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Email        string             `bson:"email"`         // normalized (lowercase)
	AttemptCount int                `bson:"attempt_count"` // failures in current window
	WindowStart  time.Time          `bson:"window_start"`  // when the current counting window started
	LockedUntil  *time.Time         `bson:"locked_until"`  // lockout expiry (nil if not locked)
	LastAttempt  time.Time          `bson:"last_attempt"`  // most recent failure (for TTL cleanup)
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

// Store locks an email out after too many failed sign-ins inside a window.
// Database errors never block a sign-in.
type Store struct {
	c               *mongo.Collection
	maxAttempts     int
	windowDuration  time.Duration
	lockoutDuration time.Duration
	clock           clock.Clock
}

// New creates a Store. A nil clock uses wall time.
func New(db *mongo.Database, maxAttempts int, window, lockout time.Duration, c clock.Clock) *Store {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Store{
		c:               db.Collection("login_attempts"),
		maxAttempts:     maxAttempts,
		windowDuration:  window,
		lockoutDuration: lockout,
		clock:           clock.OrReal(c),
	}
}

// MaxAttempts returns the configured failure budget.
func (s *Store) MaxAttempts() int { return s.maxAttempts }

// CheckAllowed reports whether email may attempt to sign in.
// Returns:
//   - allowed: true if the attempt should be processed
//   - remaining: attempts left before lockout (-1 if locked)
//   - lockedUntil: when the lockout expires (nil if not locked)
func (s *Store) CheckAllowed(ctx context.Context, email string) (allowed bool, remaining int, lockedUntil *time.Time) {
	email = normalize.Email(email)
	now := s.clock.Now()

	var attempt Attempt
	err := s.c.FindOne(ctx, bson.M{"email": email}).Decode(&attempt)
	if err != nil {
		// No record, or the lookup failed: allow (fail open).
		return true, s.maxAttempts, nil
	}

	if attempt.LockedUntil != nil && now.Before(*attempt.LockedUntil) {
		return false, -1, attempt.LockedUntil
	}

	if !now.Before(attempt.WindowStart.Add(s.windowDuration)) {
		return true, s.maxAttempts, nil
	}

	remaining = s.maxAttempts - attempt.AttemptCount
	if remaining <= 0 {
		// Over budget but lockout already lapsed inside the window.
		return true, 1, nil
	}
	return true, remaining, nil
}

// RecordFailure counts one failed sign-in for email in a single atomic
// upsert. A failure outside the current window starts a new one.
// Returns:
//   - lockedOut: true if this failure triggered a lockout
//   - lockedUntil: when the lockout expires (nil if not locked)
func (s *Store) RecordFailure(ctx context.Context, email string) (lockedOut bool, lockedUntil *time.Time) {
	email = normalize.Email(email)
	now := s.clock.Now()
	cutoff := now.Add(-s.windowDuration)
	lockUntil := now.Add(s.lockoutDuration)

	expired := bson.M{"$lte": bson.A{bson.M{"$ifNull": bson.A{"$window_start", time.Time{}}}, cutoff}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"email":         email,
			"attempt_count": bson.M{"$cond": bson.A{expired, 1, bson.M{"$add": bson.A{"$attempt_count", 1}}}},
			"window_start":  bson.M{"$cond": bson.A{expired, now, "$window_start"}},
			"last_attempt":  now,
			"updated_at":    now,
			"created_at":    bson.M{"$ifNull": bson.A{"$created_at", now}},
		}}},
		{{Key: "$set", Value: bson.M{
			"locked_until": bson.M{"$cond": bson.A{
				bson.M{"$gte": bson.A{"$attempt_count", s.maxAttempts}}, lockUntil, nil,
			}},
		}}},
	}

	var attempt Attempt
	err := s.c.FindOneAndUpdate(ctx, bson.M{"email": email}, pipeline,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&attempt)
	if err != nil {
		// Fail open: never lock on a write error.
		return false, nil
	}

	if attempt.LockedUntil != nil {
		return true, attempt.LockedUntil
	}
	return false, nil
}

// ClearOnSuccess removes the record for email after a successful sign-in.
func (s *Store) ClearOnSuccess(ctx context.Context, email string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"email": normalize.Email(email)})
	return err
}

// GetAttempt returns the current record for email, or nil if there is none.
func (s *Store) GetAttempt(ctx context.Context, email string) (*Attempt, error) {
	var attempt Attempt
	err := s.c.FindOne(ctx, bson.M{"email": normalize.Email(email)}).Decode(&attempt)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &attempt, nil
}
