// internal/app/store/payments/paymentstore.go
package paymentstore

import (
	"context"
	"errors"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrNotFound   = errors.New("payment not found")
	ErrNotPending = errors.New("payment is no longer pending")
	ErrBadStatus  = errors.New("invalid payment status")
)

// Store provides access to the payment_transactions collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new payment store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("payment_transactions")}
}

// CreatePending records a new order with a fresh order reference.
func (s *Store) CreatePending(ctx context.Context, userID primitive.ObjectID, plan string, amountCents int64, currency string) (models.PaymentTransaction, error) {
	now := time.Now().UTC()
	tx := models.PaymentTransaction{
		ID:          primitive.NewObjectID(),
		UserID:      userID,
		OrderRef:    "cg_" + uuid.NewString(),
		Plan:        plan,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      models.PaymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.c.InsertOne(ctx, tx); err != nil {
		return models.PaymentTransaction{}, err
	}
	return tx, nil
}

// GetByOrderRef loads a transaction by its gateway-facing reference.
func (s *Store) GetByOrderRef(ctx context.Context, orderRef string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := s.c.FindOne(ctx, bson.M{"order_ref": orderRef}).Decode(&tx)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// ListByUser returns the user's transactions, newest first.
func (s *Store) ListByUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]models.PaymentTransaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.c.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.PaymentTransaction{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkStatus moves a pending transaction to a final status. A transaction
// that already left pending is reported with ErrNotPending so a replayed
// gateway callback changes nothing.
func (s *Store) MarkStatus(ctx context.Context, orderRef, status, gatewayRef string) (*models.PaymentTransaction, error) {
	switch status {
	case models.PaymentPaid, models.PaymentFailed, models.PaymentExpired:
	default:
		return nil, ErrBadStatus
	}

	set := bson.M{"status": status, "updated_at": time.Now().UTC()}
	if gatewayRef != "" {
		set["gateway_ref"] = gatewayRef
	}

	var tx models.PaymentTransaction
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"order_ref": orderRef, "status": models.PaymentPending},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&tx)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := s.GetByOrderRef(ctx, orderRef); getErr != nil {
			return nil, getErr
		}
		return nil, ErrNotPending
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// ExpireStale marks pending transactions created before cutoff as expired
// and returns how many changed.
func (s *Store) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.UpdateMany(ctx,
		bson.M{"status": models.PaymentPending, "created_at": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{"status": models.PaymentExpired, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
