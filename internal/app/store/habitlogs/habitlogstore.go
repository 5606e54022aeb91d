// internal/app/store/habitlogs/habitlogstore.go
package habitlogstore

import (
	"context"
	"fmt"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/system/calendar"
	"github.com/consistencygrid/consistencygrid/internal/app/system/streak"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store provides access to the habit_logs collection. The unique
// (habit_id, date) index guarantees one row per habit and day.
type Store struct {
	c *mongo.Collection
}

// New creates a new habit log store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("habit_logs")}
}

// Toggle flips the done flag for habitID on date, creating the log as done
// when none exists. The flip happens server side in one update, so two
// concurrent toggles never both read the same old value.
func (s *Store) Toggle(ctx context.Context, userID, habitID primitive.ObjectID, date calendar.Date) (models.HabitLog, error) {
	now := time.Now().UTC()
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"user_id":    userID,
			"done":       bson.M{"$not": bson.A{bson.M{"$ifNull": bson.A{"$done", false}}}},
			"created_at": bson.M{"$ifNull": bson.A{"$created_at", now}},
			"updated_at": now,
		}}},
	}
	return s.upsert(ctx, habitID, date, pipeline)
}

// SetDone stores an explicit done value for habitID on date.
func (s *Store) SetDone(ctx context.Context, userID, habitID primitive.ObjectID, date calendar.Date, done bool) (models.HabitLog, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{"user_id": userID, "done": done, "updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	return s.upsert(ctx, habitID, date, update)
}

func (s *Store) upsert(ctx context.Context, habitID primitive.ObjectID, date calendar.Date, update interface{}) (models.HabitLog, error) {
	var log models.HabitLog
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"habit_id": habitID, "date": date.String()},
		update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&log)
	return log, err
}

// ListForHabits returns the user's logs for habitIDs with from <= date <= to,
// ordered by date.
func (s *Store) ListForHabits(ctx context.Context, userID primitive.ObjectID, habitIDs []primitive.ObjectID, from, to calendar.Date) ([]models.HabitLog, error) {
	filter := bson.M{
		"user_id":  userID,
		"habit_id": bson.M{"$in": habitIDs},
		"date":     bson.M{"$gte": from.String(), "$lte": to.String()},
	}
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	logs := []models.HabitLog{}
	if err := cur.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// StreakLogs loads every done log of habitIDs for streak calculation.
// A stored date that does not parse is reported as an error rather than
// skipped, since dropping it would silently shorten a streak.
func (s *Store) StreakLogs(ctx context.Context, userID primitive.ObjectID, habitIDs []primitive.ObjectID) ([]streak.Log, error) {
	if len(habitIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{
		"user_id":  userID,
		"habit_id": bson.M{"$in": habitIDs},
		"done":     true,
	}
	opts := options.Find().SetProjection(bson.M{"date": 1, "done": 1})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []streak.Log
	for cur.Next(ctx) {
		var row struct {
			ID   primitive.ObjectID `bson:"_id"`
			Date string             `bson:"date"`
			Done bool               `bson:"done"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		d, err := calendar.Parse(row.Date)
		if err != nil {
			return nil, fmt.Errorf("habit log %s: %w", row.ID.Hex(), err)
		}
		out = append(out, streak.Log{Date: d, Done: row.Done})
	}
	return out, cur.Err()
}

// CountDoneOn returns how many of habitIDs are done on date.
func (s *Store) CountDoneOn(ctx context.Context, userID primitive.ObjectID, habitIDs []primitive.ObjectID, date calendar.Date) (int64, error) {
	if len(habitIDs) == 0 {
		return 0, nil
	}
	return s.c.CountDocuments(ctx, bson.M{
		"user_id":  userID,
		"habit_id": bson.M{"$in": habitIDs},
		"date":     date.String(),
		"done":     true,
	})
}
