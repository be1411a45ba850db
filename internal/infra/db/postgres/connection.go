package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"hotspot-billing/internal/infra/metrics"
)

// NewPgxPool connects and pings. maxConns <= 0 keeps the pgx default.
func NewPgxPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url is empty")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.HealthCheckPeriod = 30 * time.Second

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// ReportPoolStats copies pool counters into the payment_store_pool_* gauges.
func ReportPoolStats(pool *pgxpool.Pool) {
	if pool == nil {
		return
	}
	metrics.SetPoolStats(poolStats(pool.Stat()))
}

func poolStats(s *pgxpool.Stat) metrics.PoolStats {
	return metrics.PoolStats{
		Total:            s.TotalConns(),
		Idle:             s.IdleConns(),
		InUse:            s.AcquiredConns(),
		Max:              s.MaxConns(),
		Acquires:         s.AcquireCount(),
		EmptyAcquires:    s.EmptyAcquireCount(),
		CanceledAcquires: s.CanceledAcquireCount(),
		AcquireWait:      s.AcquireDuration(),
	}
}
