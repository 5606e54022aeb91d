package paymentstore

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"github.com/consistencygrid/consistencygrid/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_CreateAndMark(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	tx, err := store.CreatePending(ctx, userID, models.PlanPro, 499, "USD")
	if err != nil {
		t.Fatalf("CreatePending() error = %v", err)
	}
	if !strings.HasPrefix(tx.OrderRef, "cg_") || tx.Status != models.PaymentPending {
		t.Errorf("CreatePending() = %+v", tx)
	}

	paid, err := store.MarkStatus(ctx, tx.OrderRef, models.PaymentPaid, "gw-123")
	if err != nil {
		t.Fatalf("MarkStatus() error = %v", err)
	}
	if paid.Status != models.PaymentPaid || paid.GatewayRef != "gw-123" {
		t.Errorf("MarkStatus() = %+v", paid)
	}

	// Replays leave the final status alone.
	if _, err := store.MarkStatus(ctx, tx.OrderRef, models.PaymentFailed, ""); !errors.Is(err, ErrNotPending) {
		t.Errorf("MarkStatus(replay) error = %v, want ErrNotPending", err)
	}
	got, _ := store.GetByOrderRef(ctx, tx.OrderRef)
	if got.Status != models.PaymentPaid {
		t.Errorf("status after replay = %q, want paid", got.Status)
	}

	if _, err := store.MarkStatus(ctx, "cg_missing", models.PaymentPaid, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkStatus(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := store.MarkStatus(ctx, tx.OrderRef, models.PaymentPending, ""); !errors.Is(err, ErrBadStatus) {
		t.Errorf("MarkStatus(pending) error = %v, want ErrBadStatus", err)
	}

	list, _ := store.ListByUser(ctx, userID, 10)
	if len(list) != 1 {
		t.Errorf("ListByUser() = %d, want 1", len(list))
	}
}

func TestStore_ExpireStale(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	old, _ := store.CreatePending(ctx, userID, models.PlanPro, 499, "USD")
	fresh, _ := store.CreatePending(ctx, userID, models.PlanPro, 499, "USD")
	_, _ = db.Collection("payment_transactions").UpdateOne(ctx,
		bson.M{"_id": old.ID},
		bson.M{"$set": bson.M{"created_at": time.Now().Add(-48 * time.Hour)}},
	)

	n, err := store.ExpireStale(ctx, time.Now().Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("ExpireStale() = %d, %v; want 1", n, err)
	}
	if got, _ := store.GetByOrderRef(ctx, old.OrderRef); got.Status != models.PaymentExpired {
		t.Errorf("old status = %q, want expired", got.Status)
	}
	if got, _ := store.GetByOrderRef(ctx, fresh.OrderRef); got.Status != models.PaymentPending {
		t.Errorf("fresh status = %q, want pending", got.Status)
	}
}
