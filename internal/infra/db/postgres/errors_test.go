//go:build !integration

package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgconn"

	"hotspot-billing/internal/domain"
)

func TestRetryableTx(t *testing.T) {
	t.Run("should retry serialization failures and deadlocks", func(t *testing.T) {
		for _, code := range []string{serializationFailure, deadlockDetected} {
			err := fmt.Errorf("update payment: %w", &pgconn.PgError{Code: code})
			if !retryableTx(err) {
				t.Errorf("expected code %s to be retryable", code)
			}
		}
	})

	t.Run("should not retry other errors", func(t *testing.T) {
		for _, err := range []error{
			&pgconn.PgError{Code: uniqueViolation},
			errors.New("connection reset"),
			domain.ErrOperationFailed,
		} {
			if retryableTx(err) {
				t.Errorf("expected %v not to be retryable", err)
			}
		}
	})
}

func TestMapWriteErr(t *testing.T) {
	t.Run("should map unique violations to ErrAlreadyExists", func(t *testing.T) {
		if err := mapWriteErr(&pgconn.PgError{Code: uniqueViolation}); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("should keep the cause of a retryable conflict", func(t *testing.T) {
		// --- Act ---
		err := mapWriteErr(&pgconn.PgError{Code: serializationFailure})

		// --- Assert ---
		if !errors.Is(err, domain.ErrOperationFailed) {
			t.Errorf("expected ErrOperationFailed, got %v", err)
		}
		if !retryableTx(err) {
			t.Error("expected the mapped error to stay retryable")
		}
	})

	t.Run("should hide other driver errors", func(t *testing.T) {
		err := mapWriteErr(errors.New("syntax error at or near"))
		if err != domain.ErrOperationFailed {
			t.Errorf("expected bare ErrOperationFailed, got %v", err)
		}
	})

	t.Run("should pass executor errors through", func(t *testing.T) {
		if err := mapWriteErr(domain.ErrInvalidExecContext); err != domain.ErrInvalidExecContext {
			t.Errorf("expected ErrInvalidExecContext, got %v", err)
		}
		if mapWriteErr(nil) != nil {
			t.Error("expected nil for nil")
		}
	})
}
