// File: internal/usecase/report_uc.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"hotspot-billing/internal/domain"
	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/domain/ports/repository"
)

const dashboardRecentCount = 5

var _ ReportUseCase = (*reportUC)(nil)

// ReportUseCase is read-only aggregation over completed payments.
type ReportUseCase interface {
	Revenue(ctx context.Context, from, to time.Time) (*model.RevenueReport, error)
	Dashboard(ctx context.Context) (*model.Dashboard, error)
	Recent(ctx context.Context, n int) ([]*model.Payment, error)
}

type reportUC struct {
	payments repository.PaymentRepository
	now      func() time.Time
}

func NewReportUseCase(payments repository.PaymentRepository) *reportUC {
	return &reportUC{payments: payments, now: time.Now}
}

// Revenue defaults a zero from to the epoch and a zero to to now.
func (u *reportUC) Revenue(ctx context.Context, from, to time.Time) (*model.RevenueReport, error) {
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	if to.IsZero() {
		to = u.now()
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: endDate is before startDate", domain.ErrInvalidArgument)
	}

	total, count, err := u.payments.SumCompleted(ctx, nil, from, to)
	if err != nil {
		return nil, err
	}
	rows, err := u.payments.RevenueByPlan(ctx, nil, from, to)
	if err != nil {
		return nil, err
	}
	byPlan := make(map[string]int64, len(rows))
	for _, r := range rows {
		byPlan[r.Name] += r.Revenue
	}
	return &model.RevenueReport{
		TotalRevenue:      total,
		TransactionsCount: count,
		RevenueByPlan:     byPlan,
		StartDate:         from,
		EndDate:           to,
	}, nil
}

func (u *reportUC) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	from, to := time.Unix(0, 0).UTC(), u.now()
	total, count, err := u.payments.SumCompleted(ctx, nil, from, to)
	if err != nil {
		return nil, err
	}
	byPlan, err := u.payments.RevenueByPlan(ctx, nil, from, to)
	if err != nil {
		return nil, err
	}
	recent, err := u.payments.ListRecent(ctx, nil, dashboardRecentCount)
	if err != nil {
		return nil, err
	}
	stats, err := u.payments.CountByStatus(ctx, nil)
	if err != nil {
		return nil, err
	}
	if byPlan == nil {
		byPlan = []model.PlanRevenue{}
	}
	if recent == nil {
		recent = []*model.Payment{}
	}
	if stats == nil {
		stats = map[model.PaymentStatus]int{}
	}
	for _, s := range []model.PaymentStatus{model.PaymentStatusPending, model.PaymentStatusCompleted, model.PaymentStatusFailed} {
		if _, ok := stats[s]; !ok {
			stats[s] = 0
		}
	}
	return &model.Dashboard{
		TotalRevenue:       total,
		TotalTransactions:  count,
		RevenueByPlan:      byPlan,
		RecentTransactions: recent,
		PaymentStats:       stats,
	}, nil
}

func (u *reportUC) Recent(ctx context.Context, n int) ([]*model.Payment, error) {
	return u.payments.ListRecent(ctx, nil, clampLimit(n))
}
