package habitlogstore

import (
	"sync"
	"testing"

	"github.com/consistencygrid/consistencygrid/internal/app/system/calendar"
	"github.com/consistencygrid/consistencygrid/internal/app/system/indexes"
	"github.com/consistencygrid/consistencygrid/internal/app/system/streak"
	"github.com/consistencygrid/consistencygrid/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var day = calendar.MustParse("2024-03-10")

func TestStore_Toggle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	habitID := primitive.NewObjectID()

	log, err := store.Toggle(ctx, userID, habitID, day)
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if !log.Done || log.Date != "2024-03-10" || log.HabitID != habitID || log.UserID != userID {
		t.Errorf("first Toggle() = %+v, want done log", log)
	}
	created := log.CreatedAt

	log, err = store.Toggle(ctx, userID, habitID, day)
	if err != nil {
		t.Fatalf("second Toggle() error = %v", err)
	}
	if log.Done {
		t.Error("second Toggle() should clear done")
	}
	if !log.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed from %v to %v", created, log.CreatedAt)
	}

	n, _ := db.Collection("habit_logs").CountDocuments(ctx, bson.M{"habit_id": habitID})
	if n != 1 {
		t.Errorf("log count = %d, want 1", n)
	}
}

func TestStore_Toggle_ConcurrentEvenCountEndsNotDone(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll() error = %v", err)
	}
	store := New(db)

	userID := primitive.NewObjectID()
	habitID := primitive.NewObjectID()
	if _, err := store.Toggle(ctx, userID, habitID, day); err != nil {
		t.Fatalf("seed Toggle() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Toggle(ctx, userID, habitID, day); err != nil {
				t.Errorf("Toggle() error = %v", err)
			}
		}()
	}
	wg.Wait()

	logs, _ := store.ListForHabits(ctx, userID, []primitive.ObjectID{habitID}, day, day)
	if len(logs) != 1 || !logs[0].Done {
		t.Errorf("after 11 toggles logs = %+v, want one done log", logs)
	}
}

func TestStore_SetDone(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	habitID := primitive.NewObjectID()
	for _, want := range []bool{true, true, false} {
		log, err := store.SetDone(ctx, userID, habitID, day, want)
		if err != nil {
			t.Fatalf("SetDone(%v) error = %v", want, err)
		}
		if log.Done != want {
			t.Errorf("SetDone(%v).Done = %v", want, log.Done)
		}
	}
}

func TestStore_ListForHabits(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	h := primitive.NewObjectID()
	for _, d := range []string{"2024-02-28", "2024-03-01", "2024-03-05", "2024-03-31"} {
		store.SetDone(ctx, userID, h, calendar.MustParse(d), true)
	}
	// Another user's log with the same habit id must not leak.
	store.SetDone(ctx, primitive.NewObjectID(), primitive.NewObjectID(), calendar.MustParse("2024-03-02"), true)

	logs, err := store.ListForHabits(ctx, userID, []primitive.ObjectID{h},
		calendar.MustParse("2024-03-01"), calendar.MustParse("2024-03-31"))
	if err != nil {
		t.Fatalf("ListForHabits() error = %v", err)
	}
	var got []string
	for _, l := range logs {
		got = append(got, l.Date)
	}
	want := []string{"2024-03-01", "2024-03-05", "2024-03-31"}
	if len(got) != len(want) {
		t.Fatalf("ListForHabits() dates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListForHabits()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestStore_StreakLogs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	h1 := primitive.NewObjectID()
	h2 := primitive.NewObjectID()
	inactive := primitive.NewObjectID()

	store.SetDone(ctx, userID, h1, day.AddDays(-2), true)
	store.SetDone(ctx, userID, h2, day.AddDays(-1), true)
	store.SetDone(ctx, userID, h1, day, false)
	store.SetDone(ctx, userID, inactive, day, true)

	logs, err := store.StreakLogs(ctx, userID, []primitive.ObjectID{h1, h2})
	if err != nil {
		t.Fatalf("StreakLogs() error = %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("StreakLogs() len = %d, want 2 done logs", len(logs))
	}
	got := streak.Calculate(logs, day)
	if got != (streak.Result{Current: 2, Best: 2}) {
		t.Errorf("Calculate(StreakLogs()) = %+v, want {2 2}", got)
	}

	if logs, err := store.StreakLogs(ctx, userID, nil); err != nil || logs != nil {
		t.Errorf("StreakLogs(no habits) = %v, %v", logs, err)
	}
}

func TestStore_StreakLogs_MalformedDate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	h := primitive.NewObjectID()
	_, _ = db.Collection("habit_logs").InsertOne(ctx, bson.M{
		"habit_id": h, "user_id": userID, "date": "03/10/2024", "done": true,
	})

	if _, err := store.StreakLogs(ctx, userID, []primitive.ObjectID{h}); err == nil {
		t.Error("StreakLogs() should fail on a malformed date")
	}
}

func TestStore_CountDoneOn(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	h1, h2, h3 := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	store.SetDone(ctx, userID, h1, day, true)
	store.SetDone(ctx, userID, h2, day, true)
	store.SetDone(ctx, userID, h3, day, false)
	store.SetDone(ctx, userID, h1, day.AddDays(-1), true)

	n, err := store.CountDoneOn(ctx, userID, []primitive.ObjectID{h1, h2, h3}, day)
	if err != nil || n != 2 {
		t.Errorf("CountDoneOn() = %d, %v; want 2", n, err)
	}
}
