package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"hotspot-billing/internal/domain"
	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, plan_id, plan_name, type, amount, phone_number, account_reference, transaction_desc,
  merchant_request_id, checkout_request_id, status, result_code, result_desc, mpesa_receipt_number, transaction_date,
  callback_payload, callback_metadata, retry_count, last_retry_at, created_at, updated_at, completed_at`

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if p == nil || p.ID == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO payments (` + paymentColumns + `) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23
);`
	md, err := marshalNullable(p.CallbackMetadata)
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %v", domain.ErrInvalidArgument, err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	_, err = execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, p.PlanID, p.PlanName, string(p.Type), p.Amount, p.PhoneNumber, p.AccountReference, p.TransactionDesc,
		p.MerchantRequestID, p.CheckoutRequestID, string(p.Status), p.ResultCode, p.ResultDesc, p.MpesaReceiptNumber, p.TransactionDate,
		nullJSON(p.CallbackPayload), md, p.RetryCount, p.LastRetryAt, p.CreatedAt, p.UpdatedAt, p.CompletedAt,
	)
	return mapWriteErr(err)
}

func (r *paymentRepo) findOne(ctx context.Context, tx repository.Tx, where string, arg interface{}) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + where + ` LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q+";", arg)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	return r.findOne(ctx, tx, "id=$1", id)
}

func (r *paymentRepo) FindByCheckoutRequestID(ctx context.Context, tx repository.Tx, checkoutRequestID string) (*model.Payment, error) {
	return r.findOne(ctx, tx, "checkout_request_id=$1", checkoutRequestID)
}

func (r *paymentRepo) FindByMerchantRequestID(ctx context.Context, tx repository.Tx, merchantRequestID string) (*model.Payment, error) {
	return r.findOne(ctx, tx, "merchant_request_id=$1", merchantRequestID)
}

func (r *paymentRepo) FindByAnyCorrelationID(ctx context.Context, tx repository.Tx, ids model.CorrelationIDs) (*model.Payment, error) {
	lookups := []struct {
		val  string
		find func(context.Context, repository.Tx, string) (*model.Payment, error)
	}{
		{ids.PaymentID, r.FindByID},
		{ids.CheckoutRequestID, r.FindByCheckoutRequestID},
		{ids.MerchantRequestID, r.FindByMerchantRequestID},
	}
	for _, l := range lookups {
		if l.val == "" {
			continue
		}
		p, err := l.find(ctx, tx, l.val)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return nil, domain.ErrNotFound
}

func (r *paymentRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, o *model.CallbackOutcome) (bool, error) {
	if o == nil || !o.Status.IsTerminal() {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE payments SET
  status=$2, result_code=$3, result_desc=$4, mpesa_receipt_number=$5, transaction_date=$6,
  callback_payload=$7, callback_metadata=$8, updated_at=$9,
  completed_at=CASE WHEN $2='completed' THEN $9 ELSE completed_at END
WHERE id=$1 AND status='pending';`
	md, err := marshalNullable(o.Metadata)
	if err != nil {
		return false, fmt.Errorf("%w: marshal metadata: %v", domain.ErrInvalidArgument, err)
	}
	var receipt *string
	if o.ResultCode == 0 {
		receipt = o.ReceiptNumber
	}
	at := o.At
	if at.IsZero() {
		at = time.Now()
	}
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(o.Status), o.ResultCode, o.ResultDesc, receipt, o.TransactionDate,
		nullJSON(o.Payload), md, at)
	if err != nil {
		return false, mapWriteErr(err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.exists(ctx, tx, id)
}

func (r *paymentRepo) RecordRedelivery(ctx context.Context, tx repository.Tx, id string, o *model.CallbackOutcome) error {
	if o == nil {
		return domain.ErrInvalidArgument
	}
	const q = `
UPDATE payments SET
  retry_count=retry_count+1, last_retry_at=$2, updated_at=$2,
  callback_payload=CASE WHEN result_code=$3 THEN COALESCE($4::jsonb, callback_payload) ELSE callback_payload END,
  callback_metadata=CASE WHEN result_code=$3 THEN COALESCE($5::jsonb, callback_metadata) ELSE callback_metadata END
WHERE id=$1;`
	md, err := marshalNullable(o.Metadata)
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %v", domain.ErrInvalidArgument, err)
	}
	at := o.At
	if at.IsZero() {
		at = time.Now()
	}
	tag, err := execSQL(ctx, r.pool, tx, q, id, at, o.ResultCode, nullJSON(o.Payload), md)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentRepo) exists(ctx context.Context, tx repository.Tx, id string) error {
	row, err := pickRow(ctx, r.pool, tx, `SELECT 1 FROM payments WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	var one int
	if err := row.Scan(&one); err != nil {
		return mapReadErr(err)
	}
	return nil
}

func (r *paymentRepo) ListRecent(ctx context.Context, tx repository.Tx, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + paymentColumns + ` FROM payments ORDER BY created_at DESC LIMIT $1;`
	return r.list(ctx, tx, q, limit)
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE status='pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, before, limit)
}

func (r *paymentRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Payment, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *paymentRepo) SumCompleted(ctx context.Context, tx repository.Tx, from, to time.Time) (int64, int, error) {
	const q = `SELECT COALESCE(SUM(amount),0), COUNT(*) FROM payments WHERE status='completed' AND created_at BETWEEN $1 AND $2;`
	row, err := pickRow(ctx, r.pool, tx, q, from, to)
	if err != nil {
		return 0, 0, err
	}
	var total int64
	var count int
	if err := row.Scan(&total, &count); err != nil {
		return 0, 0, domain.ErrReadDatabaseRow
	}
	return total, count, nil
}

func (r *paymentRepo) RevenueByPlan(ctx context.Context, tx repository.Tx, from, to time.Time) ([]model.PlanRevenue, error) {
	const q = `
SELECT COALESCE(NULLIF(plan_name,''), $3) AS name, COALESCE(SUM(amount),0), COUNT(*)
FROM payments
WHERE status='completed' AND created_at BETWEEN $1 AND $2
GROUP BY 1
ORDER BY 2 DESC, 1 ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, from, to, model.DirectPaymentPlanName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.PlanRevenue{}
	for rows.Next() {
		var pr model.PlanRevenue
		if err := rows.Scan(&pr.Name, &pr.Revenue, &pr.Count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *paymentRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.PaymentStatus]int, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT status, COUNT(*) FROM payments GROUP BY status;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[model.PaymentStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[model.PaymentStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p              model.Payment
		typ, status    string
		payload, mdRaw []byte
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.PlanID, &p.PlanName, &typ, &p.Amount, &p.PhoneNumber, &p.AccountReference, &p.TransactionDesc,
		&p.MerchantRequestID, &p.CheckoutRequestID, &status, &p.ResultCode, &p.ResultDesc, &p.MpesaReceiptNumber, &p.TransactionDate,
		&payload, &mdRaw, &p.RetryCount, &p.LastRetryAt, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, mapReadErr(err)
	}
	p.Type = model.PaymentType(typ)
	p.Status = model.PaymentStatus(status)
	if len(payload) > 0 {
		p.CallbackPayload = json.RawMessage(payload)
	}
	if len(mdRaw) > 0 {
		var md model.CallbackMetadata
		if err := json.Unmarshal(mdRaw, &md); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		p.CallbackMetadata = &md
	}
	return &p, nil
}
