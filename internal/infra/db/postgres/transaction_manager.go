package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"hotspot-billing/internal/domain"
	"hotspot-billing/internal/domain/ports/repository"
)

const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"

	txAttempts = 3
)

var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager runs fn inside a pgx transaction. Repositories receive the
// pgx.Tx through the repository.Tx argument. A transaction that loses a
// serialization or deadlock race is retried from the start, so fn must only
// touch the database.
type TxManager struct {
	pool    *pgxpool.Pool
	backoff time.Duration
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool, backoff: 50 * time.Millisecond}
}

func (m *TxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	var err, fnErr error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		fnErr = nil
		err = m.pool.BeginTxFunc(ctx, txOpt, func(tx pgx.Tx) error {
			fnErr = fn(ctx, tx)
			return fnErr
		})
		if err == nil || !retryableTx(err) || attempt == txAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * m.backoff):
		}
	}
	switch {
	case err == nil:
		return nil
	case fnErr != nil && errors.Is(err, fnErr):
		return fnErr
	default:
		// begin or commit failed
		return fmt.Errorf("%w: %w", domain.ErrOperationFailed, err)
	}
}

// retryableTx reports whether err is a Postgres conflict that may succeed on
// a fresh transaction.
func retryableTx(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected
}

func getExecutor(pool *pgxpool.Pool, tx repository.Tx) (interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}, error) {
	switch v := tx.(type) {
	case pgx.Tx:
		return v, nil
	case *pgxpool.Conn:
		return v, nil
	case *pgxpool.Pool:
		return v, nil
	case nil:
		if pool != nil {
			return pool, nil
		}
		return nil, domain.ErrInvalidArgument
	default:
		return nil, domain.ErrInvalidExecContext
	}
}
