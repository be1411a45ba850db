package memory

import (
	"context"
	"sync"

	"hotspot-billing/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
)

var _ repository.TransactionManager = (*TxManager)(nil)

// Tx collects undo steps for writes made through it. Reads are not isolated
// from other callers; only the rollback half of a transaction is provided.
type Tx struct {
	mu   sync.Mutex
	undo []func()
}

func (t *Tx) onRollback(fn func()) {
	t.mu.Lock()
	t.undo = append(t.undo, fn)
	t.mu.Unlock()
}

func (t *Tx) rollback() {
	t.mu.Lock()
	steps := t.undo
	t.undo = nil
	t.mu.Unlock()
	for i := len(steps) - 1; i >= 0; i-- {
		steps[i]()
	}
}

// track registers fn on tx when tx came from this package's TxManager.
func track(tx repository.Tx, fn func()) {
	if t, ok := tx.(*Tx); ok && t != nil {
		t.onRollback(fn)
	}
}

// TxManager hands fn a *Tx; an error or panic from fn undoes its writes in
// reverse order.
type TxManager struct{}

func NewTxManager() *TxManager { return &TxManager{} }

func (TxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	tx := &Tx{}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
		if err != nil {
			tx.rollback()
		}
	}()
	return fn(ctx, tx)
}
