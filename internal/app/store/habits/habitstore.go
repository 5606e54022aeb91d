// internal/app/store/habits/habitstore.go
package habitstore

import (
	"context"
	"errors"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MaxTitleLen bounds habit titles.
const MaxTitleLen = 100

var (
	// ErrNotFound is returned when the habit does not exist or belongs to
	// another user.
	ErrNotFound = errors.New("habit not found")
	// ErrTitleRequired is returned when a habit has no title.
	ErrTitleRequired = errors.New("title is required")
)

// Store provides access to the habits collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new habit store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("habits")}
}

// Create inserts an active habit at the end of the user's list.
func (s *Store) Create(ctx context.Context, h models.Habit) (models.Habit, error) {
	if h.Title == "" {
		return models.Habit{}, ErrTitleRequired
	}
	n, err := s.c.CountDocuments(ctx, bson.M{"user_id": h.UserID, "is_active": true})
	if err != nil {
		return models.Habit{}, err
	}

	now := time.Now().UTC()
	h.ID = primitive.NewObjectID()
	h.SortOrder = int(n)
	h.IsActive = true
	h.CreatedAt = now
	h.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, h); err != nil {
		return models.Habit{}, err
	}
	return h, nil
}

// ListActive returns the user's active habits in display order.
func (s *Store) ListActive(ctx context.Context, userID primitive.ObjectID) ([]models.Habit, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sort_order", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID, "is_active": true}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	habits := []models.Habit{}
	if err := cur.All(ctx, &habits); err != nil {
		return nil, err
	}
	return habits, nil
}

// ActiveIDs returns the ids of the user's active habits.
func (s *Store) ActiveIDs(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID, "is_active": true}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}

// CountActive returns how many active habits the user has.
func (s *Store) CountActive(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"user_id": userID, "is_active": true})
}

// Get loads one of the user's habits, active or not.
func (s *Store) Get(ctx context.Context, userID, id primitive.ObjectID) (*models.Habit, error) {
	var h models.Habit
	err := s.c.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&h)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// Update holds optional changes; nil fields are left untouched.
type Update struct {
	Title       *string
	Description *string
	Color       *string
	SortOrder   *int
}

// Update applies upd to an active habit and returns the result.
func (s *Store) Update(ctx context.Context, userID, id primitive.ObjectID, upd Update) (*models.Habit, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if upd.Title != nil {
		if *upd.Title == "" {
			return nil, ErrTitleRequired
		}
		set["title"] = *upd.Title
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.Color != nil {
		set["color"] = *upd.Color
	}
	if upd.SortOrder != nil {
		set["sort_order"] = *upd.SortOrder
	}

	var h models.Habit
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "user_id": userID, "is_active": true},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&h)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// Deactivate hides a habit while keeping its logs.
func (s *Store) Deactivate(ctx context.Context, userID, id primitive.ObjectID) error {
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "user_id": userID, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
