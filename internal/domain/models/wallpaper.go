// internal/domain/models/wallpaper.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WallpaperSettings are a user's display preferences for the generated
// progress wallpaper. One document per user.
type WallpaperSettings struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	UserID     primitive.ObjectID `bson:"user_id" json:"-"`
	Theme      string             `bson:"theme" json:"theme"`           // light, dark, minimal
	GridStyle  string             `bson:"grid_style" json:"gridStyle"`  // dots, squares
	Resolution string             `bson:"resolution" json:"resolution"` // WIDTHxHEIGHT
	ShowStreak bool               `bson:"show_streak" json:"showStreak"`
	ShowGoals  bool               `bson:"show_goals" json:"showGoals"`
	Quote      string             `bson:"quote,omitempty" json:"quote,omitempty"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updatedAt"`
}

// Wallpaper option values
const (
	ThemeLight   = "light"
	ThemeDark    = "dark"
	ThemeMinimal = "minimal"

	GridDots    = "dots"
	GridSquares = "squares"
)

// DefaultWallpaperSettings returns the settings used before a user saves any.
func DefaultWallpaperSettings() WallpaperSettings {
	return WallpaperSettings{
		Theme:      ThemeDark,
		GridStyle:  GridDots,
		Resolution: "1170x2532",
		ShowStreak: true,
		ShowGoals:  true,
	}
}
