package milestonestore

import (
	"errors"
	"testing"

	"github.com/consistencygrid/consistencygrid/internal/app/system/calendar"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"github.com/consistencygrid/consistencygrid/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_CreateListDelete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	goalID := primitive.NewObjectID()
	for _, d := range []string{"2024-05-01", "2024-01-15", "2024-03-01"} {
		if _, err := store.Create(ctx, models.Milestone{UserID: userID, GoalID: &goalID, Title: "m " + d, Date: d}); err != nil {
			t.Fatalf("Create(%s) error = %v", d, err)
		}
	}

	all, err := store.List(ctx, userID, calendar.Date{}, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("List() = %d, %v; want 3", len(all), err)
	}
	if all[0].Date != "2024-01-15" || all[2].Date != "2024-05-01" {
		t.Errorf("List() order = %s..%s", all[0].Date, all[2].Date)
	}

	upcoming, _ := store.List(ctx, userID, calendar.MustParse("2024-02-01"), 1)
	if len(upcoming) != 1 || upcoming[0].Date != "2024-03-01" {
		t.Errorf("List(from, limit 1) = %+v", upcoming)
	}

	if err := store.DetachGoal(ctx, userID, goalID); err != nil {
		t.Fatalf("DetachGoal() error = %v", err)
	}
	all, _ = store.List(ctx, userID, calendar.Date{}, 0)
	for _, m := range all {
		if m.GoalID != nil {
			t.Errorf("milestone %s still linked to goal", m.ID.Hex())
		}
	}

	if err := store.Delete(ctx, userID, all[0].ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, primitive.NewObjectID(), all[1].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(other user) error = %v, want ErrNotFound", err)
	}
}

func TestStore_Create_Validation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Create(ctx, models.Milestone{Date: "2024-01-01"}); !errors.Is(err, ErrTitleRequired) {
		t.Errorf("Create(no title) error = %v", err)
	}
	if _, err := store.Create(ctx, models.Milestone{Title: "x", Date: "2024-13-01"}); !errors.Is(err, ErrBadDate) {
		t.Errorf("Create(bad date) error = %v", err)
	}
}
