// internal/domain/models/goal.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Goal statuses
const (
	GoalActive    = "active"
	GoalCompleted = "completed"
	GoalArchived  = "archived"
)

// IsValidGoalStatus checks if s is a recognized goal status.
func IsValidGoalStatus(s string) bool {
	return s == GoalActive || s == GoalCompleted || s == GoalArchived
}

// Goal is a longer-term objective broken into optional sub-goals. Progress is
// the percentage of sub-goals done, kept in sync whenever they change.
type Goal struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      primitive.ObjectID `bson:"user_id" json:"userId"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Category    string             `bson:"category,omitempty" json:"category,omitempty"`
	TargetDate  string             `bson:"target_date,omitempty" json:"targetDate,omitempty"` // YYYY-MM-DD
	Status      string             `bson:"status" json:"status"`
	Progress    int                `bson:"progress" json:"progress"` // 0..100
	SubGoals    []SubGoal          `bson:"sub_goals" json:"subGoals"`
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updatedAt"`
}

// SubGoal is a checklist item inside a Goal.
type SubGoal struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	Title     string             `bson:"title" json:"title"`
	Done      bool               `bson:"done" json:"done"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}

// GoalProgress returns the rounded-down percentage of done sub-goals. A goal
// without sub-goals is 100 when completed and 0 otherwise.
func GoalProgress(status string, subs []SubGoal) int {
	if len(subs) == 0 {
		if status == GoalCompleted {
			return 100
		}
		return 0
	}
	done := 0
	for _, s := range subs {
		if s.Done {
			done++
		}
	}
	return done * 100 / len(subs)
}

// Milestone marks a notable date, optionally tied to a goal.
type Milestone struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID  `bson:"user_id" json:"userId"`
	GoalID    *primitive.ObjectID `bson:"goal_id,omitempty" json:"goalId,omitempty"`
	Title     string              `bson:"title" json:"title"`
	Date      string              `bson:"date" json:"date"` // YYYY-MM-DD
	CreatedAt time.Time           `bson:"created_at" json:"createdAt"`
}
