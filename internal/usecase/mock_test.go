//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/domain/ports/adapter"
	"hotspot-billing/internal/domain/ports/repository"
	"hotspot-billing/internal/infra/db/memory"
)

// ---- Payments: in-memory store with per-method overrides ----

type MockPaymentRepo struct {
	*memory.PaymentRepo

	SaveFunc                   func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	FindByAnyCorrelationIDFunc func(ctx context.Context, tx repository.Tx, ids model.CorrelationIDs) (*model.Payment, error)
	UpdateStatusIfPendingFunc  func(ctx context.Context, tx repository.Tx, id string, o *model.CallbackOutcome) (bool, error)
	SumCompletedFunc           func(ctx context.Context, tx repository.Tx, from, to time.Time) (int64, int, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{PaymentRepo: memory.NewPaymentRepo()}
}

func (r *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, p)
	}
	return r.PaymentRepo.Save(ctx, tx, p)
}

func (r *MockPaymentRepo) FindByAnyCorrelationID(ctx context.Context, tx repository.Tx, ids model.CorrelationIDs) (*model.Payment, error) {
	if r.FindByAnyCorrelationIDFunc != nil {
		return r.FindByAnyCorrelationIDFunc(ctx, tx, ids)
	}
	return r.PaymentRepo.FindByAnyCorrelationID(ctx, tx, ids)
}

func (r *MockPaymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, o *model.CallbackOutcome) (bool, error) {
	if r.UpdateStatusIfPendingFunc != nil {
		return r.UpdateStatusIfPendingFunc(ctx, tx, id, o)
	}
	return r.PaymentRepo.UpdateStatusIfPending(ctx, tx, id, o)
}

func (r *MockPaymentRepo) SumCompleted(ctx context.Context, tx repository.Tx, from, to time.Time) (int64, int, error) {
	if r.SumCompletedFunc != nil {
		return r.SumCompletedFunc(ctx, tx, from, to)
	}
	return r.PaymentRepo.SumCompleted(ctx, tx, from, to)
}

// ---- Guest users ----

type MockGuestUserRepo struct {
	*memory.GuestUserRepo

	mu    sync.Mutex
	saved []*model.GuestUser

	SaveFunc func(ctx context.Context, tx repository.Tx, g *model.GuestUser) error
}

var _ repository.GuestUserRepository = (*MockGuestUserRepo)(nil)

func NewMockGuestUserRepo() *MockGuestUserRepo {
	return &MockGuestUserRepo{GuestUserRepo: memory.NewGuestUserRepo()}
}

func (r *MockGuestUserRepo) Save(ctx context.Context, tx repository.Tx, g *model.GuestUser) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, g)
	}
	r.mu.Lock()
	r.saved = append(r.saved, g)
	r.mu.Unlock()
	return r.GuestUserRepo.Save(ctx, tx, g)
}

func (r *MockGuestUserRepo) Saved() []*model.GuestUser {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.GuestUser(nil), r.saved...)
}

// ---- Callback log ----

type MockCallbackLogRepo struct {
	*memory.CallbackLogRepo
	AppendFunc func(ctx context.Context, tx repository.Tx, l *model.CallbackLog) error
}

var _ repository.CallbackLogRepository = (*MockCallbackLogRepo)(nil)

func NewMockCallbackLogRepo() *MockCallbackLogRepo {
	return &MockCallbackLogRepo{CallbackLogRepo: memory.NewCallbackLogRepo(100)}
}

func (r *MockCallbackLogRepo) Append(ctx context.Context, tx repository.Tx, l *model.CallbackLog) error {
	if r.AppendFunc != nil {
		return r.AppendFunc(ctx, tx, l)
	}
	return r.CallbackLogRepo.Append(ctx, tx, l)
}

// ---- Push payment gateway ----

type MockPaymentGateway struct {
	mu       sync.Mutex
	seq      int
	requests []adapter.StkPushRequest

	StkPushFunc func(ctx context.Context, req adapter.StkPushRequest) (*adapter.StkPushResponse, error)
}

var _ adapter.PushPaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() string { return "mockpay" }

func (m *MockPaymentGateway) StkPush(ctx context.Context, req adapter.StkPushRequest) (*adapter.StkPushResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.seq++
	n := m.seq
	m.mu.Unlock()
	if m.StkPushFunc != nil {
		return m.StkPushFunc(ctx, req)
	}
	return &adapter.StkPushResponse{
		MerchantRequestID:   fmt.Sprintf("mr-%d", n),
		CheckoutRequestID:   fmt.Sprintf("ws_CO_%d", n),
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}, nil
}

func (m *MockPaymentGateway) Requests() []adapter.StkPushRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]adapter.StkPushRequest(nil), m.requests...)
}

// ---- Notifier ----

type MockNotifier struct {
	mu    sync.Mutex
	calls []model.PaymentSnapshot

	BroadcastFunc func(ctx context.Context, s model.PaymentSnapshot) error
}

var _ adapter.PaymentNotifier = (*MockNotifier)(nil)

func (m *MockNotifier) BroadcastPaymentUpdate(ctx context.Context, s model.PaymentSnapshot) error {
	m.mu.Lock()
	m.calls = append(m.calls, s)
	m.mu.Unlock()
	if m.BroadcastFunc != nil {
		return m.BroadcastFunc(ctx, s)
	}
	return nil
}

func (m *MockNotifier) Calls() []model.PaymentSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.PaymentSnapshot(nil), m.calls...)
}

// ---- Rate limiter ----

type MockRateLimiter struct {
	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

func (m *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key, limit, window)
	}
	return true, nil
}

// ---- Transactions ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with a nil handle unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, nil)
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}
