// internal/domain/models/habit.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Habit is a recurring activity a user tracks day by day. Deleting a habit
// only clears IsActive so its history survives.
type Habit struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      primitive.ObjectID `bson:"user_id" json:"userId"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Color       string             `bson:"color,omitempty" json:"color,omitempty"`
	SortOrder   int                `bson:"sort_order" json:"sortOrder"`
	IsActive    bool               `bson:"is_active" json:"isActive"`
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updatedAt"`
}

// HabitLog records whether a habit was done on one calendar day. There is at
// most one log per habit and date.
type HabitLog struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	HabitID primitive.ObjectID `bson:"habit_id" json:"habitId"`
	UserID  primitive.ObjectID `bson:"user_id" json:"userId"`

	// Date is the user's local calendar day, "YYYY-MM-DD".
	Date string `bson:"date" json:"date"`
	Done bool   `bson:"done" json:"done"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}
