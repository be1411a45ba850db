//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hotspot-billing/internal/domain"
	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/domain/ports/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"
)

func newPendingPayment(checkout, merchant string, amount int64) *model.Payment {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &model.Payment{
		ID:                uuid.NewString(),
		UserID:            "user-1",
		PlanName:          "Daily",
		Type:              model.PaymentTypePlan,
		Amount:            amount,
		PhoneNumber:       "254712345678",
		AccountReference:  "ADKIMS",
		TransactionDesc:   "Daily",
		MerchantRequestID: model.StrPtr(merchant),
		CheckoutRequestID: model.StrPtr(checkout),
		Status:            model.PaymentStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func successOutcome(receipt string) *model.CallbackOutcome {
	amt := decimal.NewFromInt(10)
	return &model.CallbackOutcome{
		Status:          model.PaymentStatusCompleted,
		ResultCode:      0,
		ResultDesc:      "The service request is processed successfully.",
		ReceiptNumber:   model.StrPtr(receipt),
		TransactionDate: model.StrPtr("20240301120000"),
		Payload:         []byte(`{"Body":{"stkCallback":{"ResultCode":0}}}`),
		Metadata:        &model.CallbackMetadata{Amount: &amt, MpesaReceiptNumber: model.StrPtr(receipt)},
		At:              time.Now().UTC(),
	}
}

func failedOutcome(code int) *model.CallbackOutcome {
	return &model.CallbackOutcome{
		Status:     model.PaymentStatusFailed,
		ResultCode: code,
		ResultDesc: "Request cancelled by user",
		Payload:    []byte(`{"Body":{"stkCallback":{"ResultCode":1032}}}`),
		At:         time.Now().UTC(),
	}
}

func TestPaymentRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewPaymentRepo(testPool)

	t.Run("should save and find a payment by every correlation id", func(t *testing.T) {
		cleanup(t)
		p := newPendingPayment("ws_CO_1", "mr-1", 10)

		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("Failed to save new payment: %v", err)
		}

		byID, err := repo.FindByID(ctx, nil, p.ID)
		if err != nil || byID.CheckoutRequestID == nil || *byID.CheckoutRequestID != "ws_CO_1" {
			t.Fatalf("FindByID returned %+v, %v", byID, err)
		}
		byCheckout, err := repo.FindByCheckoutRequestID(ctx, nil, "ws_CO_1")
		if err != nil || byCheckout.ID != p.ID {
			t.Fatalf("FindByCheckoutRequestID returned %+v, %v", byCheckout, err)
		}
		byMerchant, err := repo.FindByMerchantRequestID(ctx, nil, "mr-1")
		if err != nil || byMerchant.ID != p.ID {
			t.Fatalf("FindByMerchantRequestID returned %+v, %v", byMerchant, err)
		}
		byAny, err := repo.FindByAnyCorrelationID(ctx, nil, model.CorrelationIDs{PaymentID: uuid.NewString(), MerchantRequestID: "mr-1"})
		if err != nil || byAny.ID != p.ID {
			t.Fatalf("FindByAnyCorrelationID returned %+v, %v", byAny, err)
		}
		if _, err := repo.FindByAnyCorrelationID(ctx, nil, model.CorrelationIDs{CheckoutRequestID: "nope"}); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should reject a duplicate checkout request id", func(t *testing.T) {
		cleanup(t)
		if err := repo.Save(ctx, nil, newPendingPayment("ws_CO_1", "mr-1", 10)); err != nil {
			t.Fatalf("first save failed: %v", err)
		}
		err := repo.Save(ctx, nil, newPendingPayment("ws_CO_1", "mr-2", 10))
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("should transition once and keep the receipt only on success", func(t *testing.T) {
		cleanup(t)
		p := newPendingPayment("ws_CO_1", "mr-1", 10)
		_ = repo.Save(ctx, nil, p)

		won, err := repo.UpdateStatusIfPending(ctx, nil, p.ID, successOutcome("NLJ7RT61SV"))
		if err != nil || !won {
			t.Fatalf("expected first update to win, got %v %v", won, err)
		}
		won, err = repo.UpdateStatusIfPending(ctx, nil, p.ID, failedOutcome(1032))
		if err != nil || won {
			t.Fatalf("expected second update to lose without error, got %v %v", won, err)
		}

		got, _ := repo.FindByID(ctx, nil, p.ID)
		if got.Status != model.PaymentStatusCompleted {
			t.Errorf("expected completed, got %s", got.Status)
		}
		if got.MpesaReceiptNumber == nil || *got.MpesaReceiptNumber != "NLJ7RT61SV" {
			t.Errorf("unexpected receipt %v", got.MpesaReceiptNumber)
		}
		if got.CompletedAt == nil {
			t.Error("expected completed_at to be set")
		}
		if got.CallbackMetadata == nil || got.CallbackMetadata.Amount == nil || !got.CallbackMetadata.Amount.Equal(decimal.NewFromInt(10)) {
			t.Errorf("expected metadata round trip, got %+v", got.CallbackMetadata)
		}
	})

	t.Run("should report not found for an unknown id", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.UpdateStatusIfPending(ctx, nil, uuid.NewString(), successOutcome("R")); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := repo.RecordRedelivery(ctx, nil, uuid.NewString(), successOutcome("R")); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should let exactly one of many concurrent updates win", func(t *testing.T) {
		cleanup(t)
		p := newPendingPayment("ws_CO_1", "mr-1", 10)
		_ = repo.Save(ctx, nil, p)

		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				o := successOutcome("R1")
				if i%2 == 1 {
					o = failedOutcome(1)
				}
				won, err := repo.UpdateStatusIfPending(ctx, nil, p.ID, o)
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if won {
					atomic.AddInt32(&wins, 1)
				}
			}(i)
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("expected exactly one winner, got %d", wins)
		}
	})

	t.Run("should record redeliveries without touching the result", func(t *testing.T) {
		cleanup(t)
		p := newPendingPayment("ws_CO_1", "mr-1", 10)
		_ = repo.Save(ctx, nil, p)
		_, _ = repo.UpdateStatusIfPending(ctx, nil, p.ID, successOutcome("R1"))

		late := failedOutcome(1)
		late.Payload = []byte(`{"late":true}`)
		if err := repo.RecordRedelivery(ctx, nil, p.ID, late); err != nil {
			t.Fatalf("RecordRedelivery failed: %v", err)
		}
		again := successOutcome("R1")
		again.Payload = []byte(`{"again":true}`)
		_ = repo.RecordRedelivery(ctx, nil, p.ID, again)

		got, _ := repo.FindByID(ctx, nil, p.ID)
		if got.RetryCount != 2 || got.LastRetryAt == nil {
			t.Errorf("expected 2 retries, got %d (%v)", got.RetryCount, got.LastRetryAt)
		}
		if got.Status != model.PaymentStatusCompleted || got.ResultCode == nil || *got.ResultCode != 0 {
			t.Errorf("redelivery changed the result: %+v", got)
		}
		if string(got.CallbackPayload) != `{"again": true}` && string(got.CallbackPayload) != `{"again":true}` {
			t.Errorf("expected payload from the matching redelivery, got %s", got.CallbackPayload)
		}
	})

	t.Run("should lock the row inside a transaction", func(t *testing.T) {
		cleanup(t)
		p := newPendingPayment("ws_CO_1", "mr-1", 10)
		_ = repo.Save(ctx, nil, p)
		tm := NewTxManager(testPool)

		err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			got, err := repo.FindByID(ctx, tx, p.ID)
			if err != nil {
				return err
			}
			_, err = repo.UpdateStatusIfPending(ctx, tx, got.ID, successOutcome("R1"))
			return err
		})
		if err != nil {
			t.Fatalf("WithTx failed: %v", err)
		}
		got, _ := repo.FindByID(ctx, nil, p.ID)
		if got.Status != model.PaymentStatusCompleted {
			t.Errorf("expected committed transition, got %s", got.Status)
		}
	})

	t.Run("should retry a serialization failure on a fresh transaction", func(t *testing.T) {
		// --- Arrange ---
		cleanup(t)
		tm := NewTxManager(testPool)
		tm.backoff = time.Millisecond
		var attempts int32

		// --- Act ---
		err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			n := atomic.AddInt32(&attempts, 1)
			if err := repo.Save(ctx, tx, newPendingPayment("ws_CO_retry", "mr-retry", 10)); err != nil {
				return err
			}
			if n == 1 {
				return &pgconn.PgError{Code: serializationFailure, Message: "could not serialize access"}
			}
			return nil
		})

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected the second attempt to commit, got %v", err)
		}
		if attempts != 2 {
			t.Errorf("expected 2 attempts, got %d", attempts)
		}
		if _, err := repo.FindByCheckoutRequestID(ctx, nil, "ws_CO_retry"); err != nil {
			t.Errorf("expected the payment from the committed attempt, got %v", err)
		}
	})

	t.Run("should roll back and return the callback error", func(t *testing.T) {
		cleanup(t)
		tm := NewTxManager(testPool)
		boom := errors.New("boom")
		err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			_ = repo.Save(ctx, tx, newPendingPayment("ws_CO_rb", "mr-rb", 10))
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if _, err := repo.FindByCheckoutRequestID(ctx, nil, "ws_CO_rb"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected the insert to be rolled back, got %v", err)
		}
	})
}

func TestPaymentRepo_Reports_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewPaymentRepo(testPool)
	cleanup(t)

	seed := []struct {
		plan   string
		amount int64
		ok     bool
	}{
		{"Daily", 50, true},
		{"Daily", 50, true},
		{"", 30, true},
		{"Weekly", 200, false},
	}
	for i, s := range seed {
		p := newPendingPayment(uuid.NewString(), uuid.NewString(), s.amount)
		p.PlanName = s.plan
		if err := repo.Save(ctx, nil, p); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
		o := successOutcome("R" + p.ID[:8])
		if !s.ok {
			o = failedOutcome(1)
		}
		_, _ = repo.UpdateStatusIfPending(ctx, nil, p.ID, o)
	}
	_ = repo.Save(ctx, nil, newPendingPayment("ws_CO_pending", "mr-pending", 99))

	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)

	t.Run("should sum completed revenue", func(t *testing.T) {
		total, count, err := repo.SumCompleted(ctx, nil, from, to)
		if err != nil {
			t.Fatalf("SumCompleted failed: %v", err)
		}
		if total != 130 || count != 3 {
			t.Errorf("expected 130/3, got %d/%d", total, count)
		}
	})

	t.Run("should group by plan with the direct payment label", func(t *testing.T) {
		rows, err := repo.RevenueByPlan(ctx, nil, from, to)
		if err != nil {
			t.Fatalf("RevenueByPlan failed: %v", err)
		}
		if len(rows) != 2 || rows[0].Name != "Daily" || rows[0].Revenue != 100 || rows[1].Name != model.DirectPaymentPlanName {
			t.Errorf("unexpected rows %+v", rows)
		}
	})

	t.Run("should count every status", func(t *testing.T) {
		stats, err := repo.CountByStatus(ctx, nil)
		if err != nil {
			t.Fatalf("CountByStatus failed: %v", err)
		}
		if stats[model.PaymentStatusCompleted] != 3 || stats[model.PaymentStatusFailed] != 1 || stats[model.PaymentStatusPending] != 1 {
			t.Errorf("unexpected stats %+v", stats)
		}
	})

	t.Run("should list recent and stale pending payments", func(t *testing.T) {
		recent, err := repo.ListRecent(ctx, nil, 3)
		if err != nil || len(recent) != 3 {
			t.Fatalf("ListRecent returned %d rows, %v", len(recent), err)
		}
		stale, err := repo.ListPendingOlderThan(ctx, nil, to, 10)
		if err != nil || len(stale) != 1 || stale[0].Amount != 99 {
			t.Errorf("unexpected stale list %+v, %v", stale, err)
		}
	})
}

func TestGuestAndCallbackLogRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	cleanup(t)

	t.Run("should save and find a guest user", func(t *testing.T) {
		repo := NewGuestUserRepo(testPool)
		g, _ := model.NewGuestUser("254712345678", time.Now().UTC())
		if err := repo.Save(ctx, nil, g); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		got, err := repo.FindByID(ctx, nil, g.ID)
		if err != nil || got.Username != g.Username || got.Role != model.GuestRole {
			t.Errorf("FindByID returned %+v, %v", got, err)
		}
		if _, err := repo.FindByID(ctx, nil, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should append callback logs and list newest first", func(t *testing.T) {
		repo := NewCallbackLogRepo(testPool)
		base := time.Now().UTC()
		for i, id := range []string{"a", "b"} {
			l := &model.CallbackLog{Kind: model.CallbackKindStk, PaymentID: id, Payload: []byte(`{}`), ReceivedAt: base.Add(time.Duration(i) * time.Second)}
			if err := repo.Append(ctx, nil, l); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}
		_ = repo.Append(ctx, nil, &model.CallbackLog{Kind: model.CallbackKindValidation, ReceivedAt: base.Add(5 * time.Second)})

		logs, err := repo.ListRecent(ctx, nil, 10)
		if err != nil || len(logs) != 3 {
			t.Fatalf("ListRecent returned %d logs, %v", len(logs), err)
		}
		if logs[0].Kind != model.CallbackKindValidation || logs[0].PaymentID != "" || logs[1].PaymentID != "b" {
			t.Errorf("unexpected order %+v", logs)
		}
	})
}
