// internal/app/store/wallpaper/wallpaperstore.go
package wallpaperstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// MaxQuoteLen bounds the wallpaper quote.
	MaxQuoteLen = 200
	// MaxDimension bounds either side of the wallpaper resolution.
	MaxDimension = 8192
)

var resolutionRE = regexp.MustCompile(`^(\d{2,5})x(\d{2,5})$`)

// Store provides access to the wallpaper_settings collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new wallpaper settings store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("wallpaper_settings")}
}

// Get returns the user's settings, or the defaults when none are saved.
func (s *Store) Get(ctx context.Context, userID primitive.ObjectID) (models.WallpaperSettings, error) {
	var ws models.WallpaperSettings
	err := s.c.FindOne(ctx, bson.M{"user_id": userID}).Decode(&ws)
	if errors.Is(err, mongo.ErrNoDocuments) {
		ws = models.DefaultWallpaperSettings()
		ws.UserID = userID
		return ws, nil
	}
	if err != nil {
		return models.WallpaperSettings{}, err
	}
	return ws, nil
}

// Validate checks ws field by field.
func Validate(ws models.WallpaperSettings) error {
	switch ws.Theme {
	case models.ThemeLight, models.ThemeDark, models.ThemeMinimal:
	default:
		return fmt.Errorf("theme must be %q, %q or %q", models.ThemeLight, models.ThemeDark, models.ThemeMinimal)
	}
	switch ws.GridStyle {
	case models.GridDots, models.GridSquares:
	default:
		return fmt.Errorf("gridStyle must be %q or %q", models.GridDots, models.GridSquares)
	}
	m := resolutionRE.FindStringSubmatch(ws.Resolution)
	if m == nil {
		return errors.New("resolution must be WIDTHxHEIGHT")
	}
	for _, side := range m[1:] {
		n, _ := strconv.Atoi(side)
		if n < 100 || n > MaxDimension {
			return fmt.Errorf("resolution sides must be between 100 and %d", MaxDimension)
		}
	}
	if utf8.RuneCountInString(ws.Quote) > MaxQuoteLen {
		return fmt.Errorf("quote must be at most %d characters", MaxQuoteLen)
	}
	return nil
}

// Upsert validates and saves the user's settings. The filter's user_id
// seeds the document on first save.
func (s *Store) Upsert(ctx context.Context, userID primitive.ObjectID, ws models.WallpaperSettings) (models.WallpaperSettings, error) {
	if err := Validate(ws); err != nil {
		return models.WallpaperSettings{}, err
	}

	update := bson.M{
		"$set": bson.M{
			"theme":       ws.Theme,
			"grid_style":  ws.GridStyle,
			"resolution":  ws.Resolution,
			"show_streak": ws.ShowStreak,
			"show_goals":  ws.ShowGoals,
			"quote":       ws.Quote,
			"updated_at":  time.Now().UTC(),
		},
	}

	var out models.WallpaperSettings
	err := s.c.FindOneAndUpdate(ctx, bson.M{"user_id": userID}, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	return out, err
}
