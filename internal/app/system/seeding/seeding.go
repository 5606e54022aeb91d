// internal/app/system/seeding/seeding.go
package seeding

import (
	"context"
	"errors"

	userstore "github.com/consistencygrid/consistencygrid/internal/app/store/users"
	"github.com/consistencygrid/consistencygrid/internal/app/system/authutil"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Admin describes the account SeedAdmin makes sure exists.
type Admin struct {
	Email    string
	Name     string
	Password string // only used when the account is created
}

// SeedAdmin ensures an admin account exists for a.Email.
// An existing user is promoted to admin; otherwise a new account is created.
// A blank email is a no-op.
func SeedAdmin(ctx context.Context, db *mongo.Database, a Admin, logger *zap.Logger) error {
	if a.Email == "" {
		return nil
	}
	users := userstore.New(db)

	existing, err := users.GetByEmail(ctx, a.Email)
	switch {
	case err == nil:
		if existing.Role == models.RoleAdmin {
			logger.Debug("admin user already configured", zap.String("email", existing.Email))
			return nil
		}
		if err := users.SetRole(ctx, existing.ID, models.RoleAdmin); err != nil {
			return err
		}
		logger.Info("promoted existing user to admin",
			zap.String("email", existing.Email),
			zap.String("user_id", existing.ID.Hex()),
			zap.String("previous_role", existing.Role))
		return nil
	case !errors.Is(err, userstore.ErrNotFound):
		return err
	}

	var hash string
	if a.Password != "" {
		if err := authutil.ValidatePasswordFor(a.Password, a.Email); err != nil {
			return err
		}
		if hash, err = authutil.HashPassword(a.Password); err != nil {
			return err
		}
	}
	name := a.Name
	if name == "" {
		name = "Admin"
	}

	u, err := users.Create(ctx, models.User{
		Name:         name,
		Email:        a.Email,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	})
	if err != nil {
		return err
	}
	logger.Info("created admin user",
		zap.String("email", u.Email),
		zap.String("user_id", u.ID.Hex()))
	return nil
}
