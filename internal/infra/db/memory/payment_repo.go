// Package memory holds process-local stores used in dev mode and tests.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"hotspot-billing/internal/domain"
	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/domain/ports/repository"

	"github.com/google/uuid"
)

var _ repository.PaymentRepository = (*PaymentRepo)(nil)

// PaymentRepo keeps payments in a map guarded by one mutex; the
// conditional update runs entirely under the lock.
type PaymentRepo struct {
	mu         sync.RWMutex
	byID       map[string]*model.Payment
	byCheckout map[string]string
	byMerchant map[string]string
	now        func() time.Time
}

func NewPaymentRepo() *PaymentRepo {
	return &PaymentRepo{
		byID:       map[string]*model.Payment{},
		byCheckout: map[string]string{},
		byMerchant: map[string]string{},
		now:        time.Now,
	}
}

func (r *PaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if p == nil {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, ok := r.byID[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if id := deref(p.CheckoutRequestID); id != "" {
		if _, ok := r.byCheckout[id]; ok {
			return domain.ErrAlreadyExists
		}
	}
	if id := deref(p.MerchantRequestID); id != "" {
		if _, ok := r.byMerchant[id]; ok {
			return domain.ErrAlreadyExists
		}
	}

	now := r.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	r.byID[p.ID] = clonePayment(p)
	if id := deref(p.CheckoutRequestID); id != "" {
		r.byCheckout[id] = p.ID
	}
	if id := deref(p.MerchantRequestID); id != "" {
		r.byMerchant[id] = p.ID
	}
	id, checkout, merchant := p.ID, deref(p.CheckoutRequestID), deref(p.MerchantRequestID)
	track(tx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.byID, id)
		if checkout != "" {
			delete(r.byCheckout, checkout)
		}
		if merchant != "" {
			delete(r.byMerchant, merchant)
		}
	})
	return nil
}

// restoreOnRollback puts back the row as it was before an in-tx update.
func (r *PaymentRepo) restoreOnRollback(tx repository.Tx, before *model.Payment) {
	track(tx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.byID[before.ID] = before
	})
}

func (r *PaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.get(id)
}

func (r *PaymentRepo) FindByCheckoutRequestID(ctx context.Context, tx repository.Tx, checkoutRequestID string) (*model.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byCheckout[checkoutRequestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.get(id)
}

func (r *PaymentRepo) FindByMerchantRequestID(ctx context.Context, tx repository.Tx, merchantRequestID string) (*model.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byMerchant[merchantRequestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.get(id)
}

func (r *PaymentRepo) FindByAnyCorrelationID(ctx context.Context, tx repository.Tx, ids model.CorrelationIDs) (*model.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ids.PaymentID != "" {
		if p, err := r.get(ids.PaymentID); err == nil {
			return p, nil
		}
	}
	if ids.CheckoutRequestID != "" {
		if id, ok := r.byCheckout[ids.CheckoutRequestID]; ok {
			return r.get(id)
		}
	}
	if ids.MerchantRequestID != "" {
		if id, ok := r.byMerchant[ids.MerchantRequestID]; ok {
			return r.get(id)
		}
	}
	return nil, domain.ErrNotFound
}

func (r *PaymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, o *model.CallbackOutcome) (bool, error) {
	if o == nil || !o.Status.IsTerminal() {
		return false, domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if !model.CanTransition(p.Status, o.Status) {
		return false, nil
	}
	r.restoreOnRollback(tx, clonePayment(p))
	p.Apply(o)
	return true, nil
}

func (r *PaymentRepo) RecordRedelivery(ctx context.Context, tx repository.Tx, id string, o *model.CallbackOutcome) error {
	if o == nil {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.restoreOnRollback(tx, clonePayment(p))
	at := o.At
	p.RetryCount++
	p.LastRetryAt = &at
	p.UpdatedAt = at
	if p.ResultCode != nil && *p.ResultCode == o.ResultCode {
		p.CallbackPayload = append(json.RawMessage(nil), o.Payload...)
		p.CallbackMetadata = o.Metadata
	}
	return nil
}

func (r *PaymentRepo) ListRecent(ctx context.Context, tx repository.Tx, limit int) ([]*model.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.filter(func(*model.Payment) bool { return true })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *PaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := r.filter(func(p *model.Payment) bool {
		return p.Status == model.PaymentStatusPending && p.CreatedAt.Before(before)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *PaymentRepo) SumCompleted(ctx context.Context, tx repository.Tx, from, to time.Time) (int64, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	count := 0
	for _, p := range r.byID {
		if completedIn(p, from, to) {
			total += p.Amount
			count++
		}
	}
	return total, count, nil
}

func (r *PaymentRepo) RevenueByPlan(ctx context.Context, tx repository.Tx, from, to time.Time) ([]model.PlanRevenue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agg := map[string]*model.PlanRevenue{}
	for _, p := range r.byID {
		if !completedIn(p, from, to) {
			continue
		}
		name := p.DisplayPlanName()
		pr, ok := agg[name]
		if !ok {
			pr = &model.PlanRevenue{Name: name}
			agg[name] = pr
		}
		pr.Revenue += p.Amount
		pr.Count++
	}
	out := make([]model.PlanRevenue, 0, len(agg))
	for _, pr := range agg {
		out = append(out, *pr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *PaymentRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.PaymentStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[model.PaymentStatus]int{}
	for _, p := range r.byID {
		out[p.Status]++
	}
	return out, nil
}

func (r *PaymentRepo) get(id string) (*model.Payment, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clonePayment(p), nil
}

func (r *PaymentRepo) filter(keep func(*model.Payment) bool) []*model.Payment {
	var out []*model.Payment
	for _, p := range r.byID {
		if keep(p) {
			out = append(out, clonePayment(p))
		}
	}
	return out
}

func completedIn(p *model.Payment, from, to time.Time) bool {
	return p.Status == model.PaymentStatusCompleted && !p.CreatedAt.Before(from) && !p.CreatedAt.After(to)
}

func clonePayment(p *model.Payment) *model.Payment {
	cp := *p
	cp.PlanID = clonePtr(p.PlanID)
	cp.MerchantRequestID = clonePtr(p.MerchantRequestID)
	cp.CheckoutRequestID = clonePtr(p.CheckoutRequestID)
	cp.MpesaReceiptNumber = clonePtr(p.MpesaReceiptNumber)
	cp.TransactionDate = clonePtr(p.TransactionDate)
	cp.ResultCode = clonePtr(p.ResultCode)
	cp.LastRetryAt = clonePtr(p.LastRetryAt)
	cp.CompletedAt = clonePtr(p.CompletedAt)
	if p.CallbackPayload != nil {
		cp.CallbackPayload = append(json.RawMessage(nil), p.CallbackPayload...)
	}
	if p.CallbackMetadata != nil {
		md := *p.CallbackMetadata
		cp.CallbackMetadata = &md
	}
	return &cp
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
