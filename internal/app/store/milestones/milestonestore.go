// internal/app/store/milestones/milestonestore.go
package milestonestore

import (
	"context"
	"errors"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/system/calendar"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound      = errors.New("milestone not found")
	ErrTitleRequired = errors.New("title is required")
	ErrBadDate       = errors.New("date must be YYYY-MM-DD")
)

// Store provides access to the milestones collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new milestone store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("milestones")}
}

// Create inserts a milestone.
func (s *Store) Create(ctx context.Context, m models.Milestone) (models.Milestone, error) {
	if m.Title == "" {
		return models.Milestone{}, ErrTitleRequired
	}
	if _, err := calendar.Parse(m.Date); err != nil {
		return models.Milestone{}, ErrBadDate
	}
	m.ID = primitive.NewObjectID()
	m.CreatedAt = time.Now().UTC()
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		return models.Milestone{}, err
	}
	return m, nil
}

// List returns the user's milestones on or after from, by date. A zero
// from lists them all.
func (s *Store) List(ctx context.Context, userID primitive.ObjectID, from calendar.Date, limit int64) ([]models.Milestone, error) {
	filter := bson.M{"user_id": userID}
	if !from.IsZero() {
		filter["date"] = bson.M{"$gte": from.String()}
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Milestone{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes one of the user's milestones.
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

// DetachGoal clears the goal link on milestones of a deleted goal.
func (s *Store) DetachGoal(ctx context.Context, userID, goalID primitive.ObjectID) error {
	_, err := s.c.UpdateMany(ctx,
		bson.M{"user_id": userID, "goal_id": goalID},
		bson.M{"$unset": bson.M{"goal_id": ""}},
	)
	return err
}
