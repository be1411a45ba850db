package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"hotspot-billing/internal/domain"
	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/domain/ports/repository"
)

var _ repository.CallbackLogRepository = (*callbackLogRepo)(nil)

// callbackLogRepo is append-only; rows are never updated.
type callbackLogRepo struct{ pool *pgxpool.Pool }

func NewCallbackLogRepo(pool *pgxpool.Pool) *callbackLogRepo {
	return &callbackLogRepo{pool: pool}
}

func (r *callbackLogRepo) Append(ctx context.Context, tx repository.Tx, l *model.CallbackLog) error {
	if l == nil {
		return domain.ErrInvalidArgument
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.ReceivedAt.IsZero() {
		l.ReceivedAt = time.Now()
	}
	const q = `
INSERT INTO callback_logs (id, kind, payment_id, payload, received_at)
VALUES ($1,$2,NULLIF($3,''),$4,$5);`
	_, err := execSQL(ctx, r.pool, tx, q, l.ID, string(l.Kind), l.PaymentID, nullJSON(l.Payload), l.ReceivedAt)
	return mapWriteErr(err)
}

func (r *callbackLogRepo) ListRecent(ctx context.Context, tx repository.Tx, limit int) ([]*model.CallbackLog, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, kind, COALESCE(payment_id,''), payload, received_at
FROM callback_logs
ORDER BY received_at DESC
LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.CallbackLog{}
	for rows.Next() {
		var (
			l       model.CallbackLog
			kind    string
			payload []byte
		)
		if err := rows.Scan(&l.ID, &kind, &l.PaymentID, &payload, &l.ReceivedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		l.Kind = model.CallbackKind(kind)
		l.Payload = payload
		out = append(out, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
