// internal/domain/models/payment.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Payment statuses. Only pending transactions may change status.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
	PaymentExpired = "expired"
)

// PaymentTransaction is one plan purchase attempt. OrderRef is the identifier
// shared with the payment gateway.
type PaymentTransaction struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      primitive.ObjectID `bson:"user_id" json:"userId"`
	OrderRef    string             `bson:"order_ref" json:"orderRef"`
	Plan        string             `bson:"plan" json:"plan"`
	AmountCents int64              `bson:"amount_cents" json:"amountCents"`
	Currency    string             `bson:"currency" json:"currency"`
	Status      string             `bson:"status" json:"status"`
	GatewayRef  string             `bson:"gateway_ref,omitempty" json:"gatewayRef,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updatedAt"`
}
