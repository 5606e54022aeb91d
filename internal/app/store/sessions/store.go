// internal/app/store/sessions/store.go
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/system/clock"
	"github.com/consistencygrid/consistencygrid/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Session end reasons
const (
	EndReasonLogout   = "logout"   // User explicitly logged out
	EndReasonInactive = "inactive" // Closed by the cleanup job
)

// ErrNotFound is returned when no open session has the token.
var ErrNotFound = errors.New("session not found")

// Session is a server-side record of one sign-in. The cookie carries the
// token; the record lets a user see and end their own sign-ins.
type Session struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Token        string             `bson:"token" json:"-"`
	UserID       primitive.ObjectID `bson:"user_id" json:"-"`
	IPAddress    string             `bson:"ip_address,omitempty" json:"ipAddress,omitempty"`
	UserAgent    string             `bson:"user_agent,omitempty" json:"userAgent,omitempty"`
	LoginAt      time.Time          `bson:"login_at" json:"loginAt"`
	LastActivity time.Time          `bson:"last_activity" json:"lastActivity"`
	LogoutAt     *time.Time         `bson:"logout_at,omitempty" json:"logoutAt,omitempty"`
	EndReason    string             `bson:"end_reason,omitempty" json:"endReason,omitempty"`
	DurationSecs int64              `bson:"duration_secs,omitempty" json:"durationSecs,omitempty"`
	ExpiresAt    time.Time          `bson:"expires_at" json:"expiresAt"`
}

// Store manages session records in MongoDB.
type Store struct {
	c     *mongo.Collection
	clock clock.Clock
}

// New creates a new session Store. A nil clock uses wall time.
func New(db *mongo.Database, c clock.Clock) *Store {
	return &Store{c: db.Collection("sessions"), clock: clock.OrReal(c)}
}

// Create records a new sign-in.
func (s *Store) Create(ctx context.Context, session Session) (Session, error) {
	now := s.clock.Now()
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	if session.LoginAt.IsZero() {
		session.LoginAt = now
	}
	session.LastActivity = now
	_, err := s.c.InsertOne(ctx, session)
	return session, err
}

// GetByToken returns the open, unexpired session for token.
func (s *Store) GetByToken(ctx context.Context, token string) (*Session, error) {
	var session Session
	err := s.c.FindOne(ctx, bson.M{
		"token":      token,
		"logout_at":  nil,
		"expires_at": bson.M{"$gt": s.clock.Now()},
	}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// TouchInterval is the least time between activity writes for one session.
const TouchInterval = time.Minute

// Check reports whether token names an open, unexpired session and moves
// its last_activity forward when that is older than TouchInterval. It
// satisfies auth.SessionTracker. A failed touch returns open=true with the
// error.
func (s *Store) Check(ctx context.Context, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	session, err := s.GetByToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if s.clock.Now().Sub(session.LastActivity) >= TouchInterval {
		if err := s.Touch(ctx, token); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Touch moves last_activity forward for an open session.
func (s *Store) Touch(ctx context.Context, token string) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"token": token, "logout_at": nil},
		bson.M{"$set": bson.M{"last_activity": s.clock.Now()}},
	)
	return err
}

// Close ends an open session and records how long it lasted. Closing an
// already closed or unknown token returns ErrNotFound.
func (s *Store) Close(ctx context.Context, token, reason string) error {
	now := s.clock.Now()
	res, err := s.c.UpdateOne(ctx,
		bson.M{"token": token, "logout_at": nil},
		mongo.Pipeline{{{Key: "$set", Value: bson.M{
			"logout_at":  now,
			"end_reason": reason,
			"duration_secs": bson.M{"$toLong": bson.M{"$divide": bson.A{
				bson.M{"$subtract": bson.A{now, "$login_at"}}, 1000,
			}}},
		}}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CloseByUser ends every open session of userID except keepToken (which may
// be empty) and returns how many were closed.
func (s *Store) CloseByUser(ctx context.Context, userID primitive.ObjectID, keepToken, reason string) (int64, error) {
	filter := bson.M{"user_id": userID, "logout_at": nil}
	if keepToken != "" {
		filter["token"] = bson.M{"$ne": keepToken}
	}
	res, err := s.c.UpdateMany(ctx, filter, bson.M{"$set": bson.M{
		"logout_at":  s.clock.Now(),
		"end_reason": reason,
	}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// ListOpen returns userID's open sessions, most recently active first.
func (s *Store) ListOpen(ctx context.Context, userID primitive.ObjectID) ([]Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_activity", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{
		"user_id":    userID,
		"logout_at":  nil,
		"expires_at": bson.M{"$gt": s.clock.Now()},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []Session{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CloseInactive closes sessions with no activity within threshold and
// returns the number closed.
func (s *Store) CloseInactive(ctx context.Context, threshold time.Duration) (int64, error) {
	now := s.clock.Now()
	res, err := s.c.UpdateMany(ctx,
		bson.M{
			"logout_at":     nil,
			"last_activity": bson.M{"$lt": now.Add(-threshold)},
		},
		bson.M{"$set": bson.M{
			"logout_at":  now,
			"end_reason": EndReasonInactive,
		}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
