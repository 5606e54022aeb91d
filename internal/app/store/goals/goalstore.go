// internal/app/store/goals/goalstore.go
package goalstore

import (
	"context"
	"errors"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/store/storeutil"
	"github.com/consistencygrid/consistencygrid/internal/app/system/calendar"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound        = errors.New("goal not found")
	ErrTitleRequired   = errors.New("title is required")
	ErrBadStatus       = errors.New(`status must be "active"|"completed"|"archived"`)
	ErrBadTargetDate   = errors.New("target date must be YYYY-MM-DD")
	ErrSubGoalNotFound = errors.New("sub-goal not found")
)

// Store provides access to the goals collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new goal store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("goals")}
}

// Create inserts a goal. Sub-goals get fresh ids and progress is derived
// from them.
func (s *Store) Create(ctx context.Context, g models.Goal) (models.Goal, error) {
	if g.Title == "" {
		return models.Goal{}, ErrTitleRequired
	}
	if g.Status == "" {
		g.Status = models.GoalActive
	}
	if !models.IsValidGoalStatus(g.Status) {
		return models.Goal{}, ErrBadStatus
	}
	if err := checkTargetDate(g.TargetDate); err != nil {
		return models.Goal{}, err
	}

	now := time.Now().UTC()
	if g.SubGoals == nil {
		g.SubGoals = []models.SubGoal{}
	}
	for i := range g.SubGoals {
		g.SubGoals[i].ID = primitive.NewObjectID()
		g.SubGoals[i].CreatedAt = now
	}
	g.ID = primitive.NewObjectID()
	g.Progress = models.GoalProgress(g.Status, g.SubGoals)
	g.CreatedAt = now
	g.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, g); err != nil {
		return models.Goal{}, err
	}
	return g, nil
}

func checkTargetDate(s string) error {
	if s == "" {
		return nil
	}
	if _, err := calendar.Parse(s); err != nil {
		return ErrBadTargetDate
	}
	return nil
}

// List returns a page of the user's goals, newest first. An empty status
// lists every status.
func (s *Store) List(ctx context.Context, userID primitive.ObjectID, status string, limit, page int64) ([]models.Goal, error) {
	filter := bson.M{"user_id": userID}
	if status != "" {
		filter["status"] = status
	}
	opts := storeutil.Paginate(limit, page).SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	goals := []models.Goal{}
	if err := cur.All(ctx, &goals); err != nil {
		return nil, err
	}
	return goals, nil
}

// Get loads one of the user's goals.
func (s *Store) Get(ctx context.Context, userID, id primitive.ObjectID) (*models.Goal, error) {
	var g models.Goal
	err := s.c.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// Update holds optional goal changes; nil fields are left untouched.
type Update struct {
	Title       *string
	Description *string
	Category    *string
	TargetDate  *string
	Status      *string
}

// Update applies upd and recomputes progress in the same write.
func (s *Store) Update(ctx context.Context, userID, id primitive.ObjectID, upd Update) (*models.Goal, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if upd.Title != nil {
		if *upd.Title == "" {
			return nil, ErrTitleRequired
		}
		set["title"] = bson.M{"$literal": *upd.Title}
	}
	if upd.Description != nil {
		set["description"] = bson.M{"$literal": *upd.Description}
	}
	if upd.Category != nil {
		set["category"] = bson.M{"$literal": *upd.Category}
	}
	if upd.TargetDate != nil {
		if err := checkTargetDate(*upd.TargetDate); err != nil {
			return nil, err
		}
		set["target_date"] = *upd.TargetDate
	}
	if upd.Status != nil {
		if !models.IsValidGoalStatus(*upd.Status) {
			return nil, ErrBadStatus
		}
		set["status"] = *upd.Status
	}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: set}},
		progressStage(),
	}
	return s.apply(ctx, bson.M{"_id": id, "user_id": userID}, pipeline, ErrNotFound)
}

// Delete removes one of the user's goals.
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

// AddSubGoal appends a not-done sub-goal.
func (s *Store) AddSubGoal(ctx context.Context, userID, goalID primitive.ObjectID, title string) (*models.Goal, error) {
	if title == "" {
		return nil, ErrTitleRequired
	}
	now := time.Now().UTC()
	sub := models.SubGoal{ID: primitive.NewObjectID(), Title: title, CreatedAt: now}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"sub_goals":  bson.M{"$concatArrays": bson.A{subGoals, bson.A{bson.M{"$literal": sub}}}},
			"updated_at": now,
		}}},
		progressStage(),
	}
	return s.apply(ctx, bson.M{"_id": goalID, "user_id": userID}, pipeline, ErrNotFound)
}

// ToggleSubGoal flips one sub-goal's done flag.
func (s *Store) ToggleSubGoal(ctx context.Context, userID, goalID, subID primitive.ObjectID) (*models.Goal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"sub_goals": bson.M{"$map": bson.M{
				"input": subGoals,
				"as":    "s",
				"in": bson.M{"$cond": bson.A{
					bson.M{"$eq": bson.A{"$$s._id", subID}},
					bson.M{"$mergeObjects": bson.A{"$$s", bson.M{"done": bson.M{"$not": bson.A{"$$s.done"}}}}},
					"$$s",
				}},
			}},
			"updated_at": time.Now().UTC(),
		}}},
		progressStage(),
	}
	return s.apply(ctx, s.subFilter(userID, goalID, subID), pipeline, ErrSubGoalNotFound)
}

// DeleteSubGoal removes one sub-goal.
func (s *Store) DeleteSubGoal(ctx context.Context, userID, goalID, subID primitive.ObjectID) (*models.Goal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"sub_goals": bson.M{"$filter": bson.M{
				"input": subGoals,
				"as":    "s",
				"cond":  bson.M{"$ne": bson.A{"$$s._id", subID}},
			}},
			"updated_at": time.Now().UTC(),
		}}},
		progressStage(),
	}
	return s.apply(ctx, s.subFilter(userID, goalID, subID), pipeline, ErrSubGoalNotFound)
}

func (s *Store) subFilter(userID, goalID, subID primitive.ObjectID) bson.M {
	return bson.M{"_id": goalID, "user_id": userID, "sub_goals._id": subID}
}

func (s *Store) apply(ctx context.Context, filter bson.M, pipeline mongo.Pipeline, missing error) (*models.Goal, error) {
	var g models.Goal
	err := s.c.FindOneAndUpdate(ctx, filter, pipeline,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&g)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, missing
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

var subGoals = bson.M{"$ifNull": bson.A{"$sub_goals", bson.A{}}}

// progressStage recomputes progress from the document's own sub-goals and
// status, matching models.GoalProgress.
func progressStage() bson.D {
	total := bson.M{"$size": subGoals}
	done := bson.M{"$size": bson.M{"$filter": bson.M{"input": subGoals, "as": "s", "cond": "$$s.done"}}}
	return bson.D{{Key: "$set", Value: bson.M{
		"progress": bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{total, 0}},
			bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$status", models.GoalCompleted}}, 100, 0}},
			bson.M{"$toInt": bson.M{"$floor": bson.M{"$divide": bson.A{bson.M{"$multiply": bson.A{done, 100}}, total}}}},
		}},
	}}}
}

// CountByStatus returns the number of the user's goals per status.
func (s *Store) CountByStatus(ctx context.Context, userID primitive.ObjectID) (map[string]int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": userID}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "n": bson.M{"$sum": 1}}}},
	}
	cur, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		Status string `bson:"_id"`
		N      int64  `bson:"n"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := map[string]int64{
		models.GoalActive:    0,
		models.GoalCompleted: 0,
		models.GoalArchived:  0,
	}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}

// IsValidationError reports whether err came from input validation.
func IsValidationError(err error) bool {
	switch err {
	case ErrTitleRequired, ErrBadStatus, ErrBadTargetDate:
		return true
	}
	return false
}
