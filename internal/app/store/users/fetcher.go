// internal/app/store/users/fetcher.go
package userstore

import (
	"context"
	"errors"

	"github.com/consistencygrid/consistencygrid/internal/app/system/auth"
	"github.com/consistencygrid/consistencygrid/internal/app/system/normalize"
	"github.com/consistencygrid/consistencygrid/internal/app/system/timeouts"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// sessionProjection loads only what a request needs to know about its user.
var sessionProjection = options.FindOne().SetProjection(bson.M{
	"name": 1, "email": 1, "role": 1, "plan": 1, "status": 1, "timezone": 1,
})

// Fetcher satisfies auth.UserFetcher. Each request sees the user's current
// role, plan and timezone, so changes apply without signing in again.
type Fetcher struct {
	store  *Store
	logger *zap.Logger
}

// NewFetcher creates a Fetcher over db's users collection.
func NewFetcher(db *mongo.Database, logger *zap.Logger) *Fetcher {
	return &Fetcher{store: New(db), logger: logger}
}

// FetchUser returns nil for malformed IDs, unknown or disabled users, and
// lookup errors (which are logged).
func (f *Fetcher) FetchUser(ctx context.Context, userID string) *auth.SessionUser {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	u, err := f.store.findOne(ctx, bson.M{"_id": oid}, sessionProjection)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		f.logger.Warn("user fetch failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	case u.IsDisabled():
		return nil
	}
	return toSessionUser(u)
}

func toSessionUser(u *models.User) *auth.SessionUser {
	return &auth.SessionUser{
		ID:       u.ID.Hex(),
		Name:     u.Name,
		Email:    u.Email,
		Role:     normalize.Role(u.Role),
		Plan:     u.Plan,
		Timezone: u.Timezone,
	}
}
