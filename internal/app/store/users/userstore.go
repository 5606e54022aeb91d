// internal/app/store/users/userstore.go
package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/system/calendar"
	"github.com/consistencygrid/consistencygrid/internal/app/system/normalize"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

var (
	// ErrDuplicateEmail is returned when the email is already registered.
	ErrDuplicateEmail = errors.New("an account with this email already exists")
	// ErrNotFound is returned when no user matches.
	ErrNotFound = errors.New("user not found")

	errBadRole     = errors.New("invalid role")
	errBadStatus   = errors.New(`status must be "active"|"disabled"`)
	errBadPlan     = errors.New("invalid plan")
	errBadTimezone = errors.New("invalid timezone")
	errNoEmail     = errors.New("email is required")
)

// Create inserts a new user after normalizing & validating fields.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	u.ID = primitive.NewObjectID()
	u.Name = normalize.Name(u.Name)
	u.NameCI = text.Fold(u.Name)
	u.Email = normalize.Email(u.Email)
	u.EmailCI = text.Fold(u.Email)
	if u.Email == "" {
		return models.User{}, errNoEmail
	}

	if u.Role == "" {
		u.Role = models.RoleMember
	}
	if u.Plan == "" {
		u.Plan = models.PlanFree
	}
	if u.Status == "" {
		u.Status = models.StatusActive
	}
	if u.Timezone == "" {
		u.Timezone = "UTC"
	}

	if !models.IsValidRole(u.Role) {
		return models.User{}, errBadRole
	}
	if !models.IsValidStatus(u.Status) {
		return models.User{}, errBadStatus
	}
	if !models.IsValidPlan(u.Plan) {
		return models.User{}, errBadPlan
	}
	if !calendar.ValidTimezone(u.Timezone) {
		return models.User{}, errBadTimezone
	}

	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByEmail looks up a user by case/diacritic-insensitive email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email_ci": text.Fold(normalize.Email(email))})
}

func (s *Store) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, filter, opts...).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// SetTimezone changes the zone used to compute the user's "today".
func (s *Store) SetTimezone(ctx context.Context, id primitive.ObjectID, tz string) error {
	if !calendar.ValidTimezone(tz) {
		return errBadTimezone
	}
	return s.set(ctx, id, bson.M{"timezone": tz})
}

// SetPlan changes the user's plan.
func (s *Store) SetPlan(ctx context.Context, id primitive.ObjectID, plan string) error {
	if !models.IsValidPlan(plan) {
		return errBadPlan
	}
	return s.set(ctx, id, bson.M{"plan": plan})
}

// SetRole changes the user's role.
func (s *Store) SetRole(ctx context.Context, id primitive.ObjectID, role string) error {
	if !models.IsValidRole(role) {
		return errBadRole
	}
	return s.set(ctx, id, bson.M{"role": role})
}

// SetName changes the display name.
func (s *Store) SetName(ctx context.Context, id primitive.ObjectID, name string) error {
	name = normalize.Name(name)
	return s.set(ctx, id, bson.M{"name": name, "name_ci": text.Fold(name)})
}

// UpdatePassword replaces the password hash.
func (s *Store) UpdatePassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error {
	return s.set(ctx, id, bson.M{"password_hash": passwordHash})
}

func (s *Store) set(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	set["updated_at"] = time.Now()
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// IsValidationError reports whether err came from input validation.
func IsValidationError(err error) bool {
	switch err {
	case errBadRole, errBadStatus, errBadPlan, errBadTimezone, errNoEmail:
		return true
	}
	return false
}
