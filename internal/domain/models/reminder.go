// internal/domain/models/reminder.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reminder is a daily nudge at a local wall-clock time. Days holds weekday
// numbers (0 = Sunday); empty means every day.
type Reminder struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID  `bson:"user_id" json:"userId"`
	HabitID   *primitive.ObjectID `bson:"habit_id,omitempty" json:"habitId,omitempty"`
	Title     string              `bson:"title" json:"title"`
	Time      string              `bson:"time" json:"time"` // HH:MM
	Days      []int               `bson:"days,omitempty" json:"days,omitempty"`
	Enabled   bool                `bson:"enabled" json:"enabled"`
	CreatedAt time.Time           `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time           `bson:"updated_at" json:"updatedAt"`
}
