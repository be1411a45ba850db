package model

import "time"

// RevenueReport aggregates completed payments created within [StartDate, EndDate].
type RevenueReport struct {
	TotalRevenue      int64
	TransactionsCount int
	RevenueByPlan     map[string]int64
	StartDate         time.Time
	EndDate           time.Time
}

type PlanRevenue struct {
	Name    string
	Revenue int64
	Count   int
}

type Dashboard struct {
	TotalRevenue       int64
	TotalTransactions  int
	RevenueByPlan      []PlanRevenue
	RecentTransactions []*Payment
	PaymentStats       map[PaymentStatus]int
}
