// internal/app/store/reminders/reminderstore.go
package reminderstore

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/system/calendar"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound      = errors.New("reminder not found")
	ErrTitleRequired = errors.New("title is required")
	ErrBadTime       = errors.New("time must be HH:MM")
	ErrBadDays       = errors.New("days must be weekday numbers 0-6")
)

// Store provides access to the reminders collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new reminder store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("reminders")}
}

// NormalizeDays sorts and de-duplicates weekday numbers.
func NormalizeDays(days []int) ([]int, error) {
	seen := make(map[int]bool, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			return nil, ErrBadDays
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return out, nil
}

// Create inserts a reminder.
func (s *Store) Create(ctx context.Context, r models.Reminder) (models.Reminder, error) {
	if r.Title == "" {
		return models.Reminder{}, ErrTitleRequired
	}
	if !calendar.ValidClock(r.Time) {
		return models.Reminder{}, ErrBadTime
	}
	days, err := NormalizeDays(r.Days)
	if err != nil {
		return models.Reminder{}, err
	}
	now := time.Now().UTC()
	r.ID = primitive.NewObjectID()
	r.Days = days
	r.CreatedAt = now
	r.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, r); err != nil {
		return models.Reminder{}, err
	}
	return r, nil
}

// List returns the user's reminders ordered by time of day.
func (s *Store) List(ctx context.Context, userID primitive.ObjectID) ([]models.Reminder, error) {
	opts := options.Find().SetSort(bson.D{{Key: "time", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Reminder{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update holds optional reminder changes; nil fields are left untouched.
type Update struct {
	Title   *string
	Time    *string
	Days    *[]int
	Enabled *bool
}

// Update applies upd and returns the result.
func (s *Store) Update(ctx context.Context, userID, id primitive.ObjectID, upd Update) (*models.Reminder, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if upd.Title != nil {
		if *upd.Title == "" {
			return nil, ErrTitleRequired
		}
		set["title"] = *upd.Title
	}
	if upd.Time != nil {
		if !calendar.ValidClock(*upd.Time) {
			return nil, ErrBadTime
		}
		set["time"] = *upd.Time
	}
	if upd.Days != nil {
		days, err := NormalizeDays(*upd.Days)
		if err != nil {
			return nil, err
		}
		set["days"] = days
	}
	if upd.Enabled != nil {
		set["enabled"] = *upd.Enabled
	}

	var r models.Reminder
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Delete removes one of the user's reminders.
func (s *Store) Delete(ctx context.Context, userID, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// IsValidationError reports whether err came from input validation.
func IsValidationError(err error) bool {
	switch err {
	case ErrTitleRequired, ErrBadTime, ErrBadDays:
		return true
	}
	return false
}
