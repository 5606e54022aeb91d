// Package payments creates plan orders and applies gateway callbacks.
//
// Endpoints:
//   - POST /api/payments/orders  - Start an order for a plan (session)
//   - GET  /api/payments/orders  - The user's orders (session)
//   - POST /api/payments/webhook - Gateway result for an order (API key)
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	paymentstore "github.com/consistencygrid/consistencygrid/internal/app/store/payments"
	userstore "github.com/consistencygrid/consistencygrid/internal/app/store/users"
	"github.com/consistencygrid/consistencygrid/internal/app/system/auth"
	"github.com/consistencygrid/consistencygrid/internal/app/system/inputval"
	"github.com/consistencygrid/consistencygrid/internal/app/system/invalidate"
	"github.com/consistencygrid/consistencygrid/internal/app/system/jsonutil"
	"github.com/consistencygrid/consistencygrid/internal/app/system/timeouts"
	"github.com/consistencygrid/consistencygrid/internal/app/system/txn"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Price is what one plan costs.
type Price struct {
	AmountCents int64
	Currency    string
}

// DefaultPrices lists the purchasable plans.
var DefaultPrices = map[string]Price{
	models.PlanPro: {AmountCents: 499, Currency: "USD"},
}

const maxOrdersListed = 50

var errPlanUpgrade = errors.New("plan upgrade failed")

// Handler serves the payment endpoints.
type Handler struct {
	db       *mongo.Database
	payments *paymentstore.Store
	users    *userstore.Store
	inv      *invalidate.Invalidator
	prices   map[string]Price
	logger   *zap.Logger
}

// NewHandler creates a payments handler. A nil prices map uses DefaultPrices.
func NewHandler(db *mongo.Database, inv *invalidate.Invalidator, prices map[string]Price, logger *zap.Logger) *Handler {
	if prices == nil {
		prices = DefaultPrices
	}
	return &Handler{
		db:       db,
		payments: paymentstore.New(db),
		users:    userstore.New(db),
		inv:      inv,
		prices:   prices,
		logger:   logger,
	}
}

type orderInput struct {
	Plan string `json:"plan" validate:"required" label:"Plan"`
}

// CreateOrder handles POST /api/payments/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var in orderInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}
	price, ok := h.prices[in.Plan]
	if !ok {
		jsonutil.ValidationError(w, map[string]string{"plan": "Unknown plan"})
		return
	}
	if u.Plan == in.Plan {
		jsonutil.Conflict(w, "You are already on this plan")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	tx, err := h.payments.CreatePending(ctx, u.UserID(), in.Plan, price.AmountCents, price.Currency)
	if err != nil {
		h.logger.Error("create order failed", zap.String("user_id", u.ID), zap.Error(err))
		jsonutil.InternalError(w, "Failed to create order")
		return
	}

	h.logger.Info("payment order created",
		zap.String("user_id", u.ID),
		zap.String("order_ref", tx.OrderRef),
		zap.String("plan", tx.Plan))
	jsonutil.Created(w, tx)
}

// ListOrders handles GET /api/payments/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	list, err := h.payments.ListByUser(ctx, u.UserID(), maxOrdersListed)
	if err != nil {
		h.logger.Error("list orders failed", zap.String("user_id", u.ID), zap.Error(err))
		jsonutil.InternalError(w, "Failed to load orders")
		return
	}
	jsonutil.OK(w, map[string]any{"orders": list})
}

type webhookInput struct {
	OrderRef   string `json:"orderRef" validate:"required" label:"Order reference"`
	Status     string `json:"status" validate:"required,oneof=paid failed" label:"Status"`
	GatewayRef string `json:"gatewayRef" validate:"max=200" label:"Gateway reference"`
}

// Webhook handles POST /api/payments/webhook. Replays of an already settled
// order answer 200 without changing anything.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var in webhookInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	// The order and the plan change commit together where transactions exist.
	var tx *models.PaymentTransaction
	err := txn.Run(ctx, h.db, h.logger, func(ctx context.Context) error {
		settled, err := h.payments.MarkStatus(ctx, in.OrderRef, in.Status, in.GatewayRef)
		if err != nil {
			return err
		}
		if settled.Status == models.PaymentPaid {
			if err := h.users.SetPlan(ctx, settled.UserID, settled.Plan); err != nil {
				return fmt.Errorf("%w: %v", errPlanUpgrade, err)
			}
		}
		tx = settled
		return nil
	})
	switch {
	case errors.Is(err, paymentstore.ErrNotFound):
		jsonutil.NotFound(w, "Order not found")
		return
	case errors.Is(err, paymentstore.ErrNotPending):
		existing, getErr := h.payments.GetByOrderRef(ctx, in.OrderRef)
		if getErr != nil {
			h.logger.Error("webhook reload failed", zap.String("order_ref", in.OrderRef), zap.Error(getErr))
			jsonutil.InternalError(w, "Failed to process webhook")
			return
		}
		h.logger.Info("webhook replay ignored",
			zap.String("order_ref", in.OrderRef),
			zap.String("status", existing.Status))
		jsonutil.OK(w, map[string]any{"order": existing, "duplicate": true})
		return
	case errors.Is(err, errPlanUpgrade):
		h.logger.Error("plan upgrade failed for paid order", zap.String("order_ref", in.OrderRef), zap.Error(err))
		jsonutil.InternalError(w, "Failed to apply payment")
		return
	case err != nil:
		h.logger.Error("webhook mark status failed", zap.String("order_ref", in.OrderRef), zap.Error(err))
		jsonutil.InternalError(w, "Failed to process webhook")
		return
	}

	if tx.Status == models.PaymentPaid {
		h.logger.Info("plan upgraded",
			zap.String("user_id", tx.UserID.Hex()),
			zap.String("plan", tx.Plan))
	}

	_ = h.inv.Invalidate(ctx, tx.UserID.Hex(), invalidate.ScopeAll)
	jsonutil.OK(w, map[string]any{"order": tx, "duplicate": false})
}
