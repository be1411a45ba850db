package repository

import (
	"context"
	"time"

	"hotspot-billing/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

// PaymentRepository is the Payment Record Store. Status may only leave
// pending through UpdateStatusIfPending.
type PaymentRepository interface {
	// Save inserts a new payment. A duplicate checkout/merchant request id
	// returns domain.ErrAlreadyExists.
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	FindByCheckoutRequestID(ctx context.Context, tx Tx, checkoutRequestID string) (*model.Payment, error)
	FindByMerchantRequestID(ctx context.Context, tx Tx, merchantRequestID string) (*model.Payment, error)
	// FindByAnyCorrelationID tries payment id, then checkout id, then merchant id,
	// skipping empty ones, and returns the first hit or domain.ErrNotFound.
	FindByAnyCorrelationID(ctx context.Context, tx Tx, ids model.CorrelationIDs) (*model.Payment, error)

	// UpdateStatusIfPending applies o only while the row is still pending.
	// It reports whether this call won the transition.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id string, o *model.CallbackOutcome) (bool, error)
	// RecordRedelivery bumps retry_count/last_retry_at. Payload and metadata are
	// rewritten only when o.ResultCode equals the stored result code; status,
	// result code and receipt are left alone.
	RecordRedelivery(ctx context.Context, tx Tx, id string, o *model.CallbackOutcome) error

	ListRecent(ctx context.Context, tx Tx, limit int) ([]*model.Payment, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, before time.Time, limit int) ([]*model.Payment, error)

	// Read-side aggregates over completed payments created in [from, to].
	SumCompleted(ctx context.Context, tx Tx, from, to time.Time) (total int64, count int, err error)
	RevenueByPlan(ctx context.Context, tx Tx, from, to time.Time) ([]model.PlanRevenue, error)
	CountByStatus(ctx context.Context, tx Tx) (map[model.PaymentStatus]int, error)
}

// -----------------------------
// Guest users
// -----------------------------

type GuestUserRepository interface {
	Save(ctx context.Context, tx Tx, g *model.GuestUser) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.GuestUser, error)
}

// -----------------------------
// Callback log
// -----------------------------

type CallbackLogRepository interface {
	Append(ctx context.Context, tx Tx, l *model.CallbackLog) error
	ListRecent(ctx context.Context, tx Tx, limit int) ([]*model.CallbackLog, error)
}
