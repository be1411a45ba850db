package sched

import (
	"context"
	"errors"
	"time"

	"hotspot-billing/internal/domain/ports/repository"
	"hotspot-billing/internal/infra/metrics"
	"hotspot-billing/internal/infra/redis"

	"github.com/rs/zerolog"
)

const staleLockKey = "lock:sched:stale-pending"

type StaleMonitorConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	Limit      int
}

// StaleMonitor reports payments that stayed pending past StaleAfter. It only
// observes; a late callback or the synthesize path still finalizes them.
type StaleMonitor struct {
	cfg      StaleMonitorConfig
	payments repository.PaymentRepository
	locker   redis.Locker
	onTick   func()
	log      *zerolog.Logger
	now      func() time.Time
}

// NewStaleMonitor builds the monitor. locker and onTick may be nil; with a
// locker only one replica scans per tick. onTick runs after every scan and is
// where the caller publishes pool gauges.
func NewStaleMonitor(cfg StaleMonitorConfig, payments repository.PaymentRepository, locker redis.Locker, onTick func(), logger *zerolog.Logger) *StaleMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 200
	}
	l := logger.With().Str("component", "StaleMonitor").Logger()
	return &StaleMonitor{cfg: cfg, payments: payments, locker: locker, onTick: onTick, log: &l, now: time.Now}
}

func (m *StaleMonitor) Run(ctx context.Context) error {
	m.log.Info().Dur("interval", m.cfg.Interval).Dur("stale_after", m.cfg.StaleAfter).Msg("Starting stale payment monitor")
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("Stopping stale payment monitor")
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Tick(ctx); err != nil {
				m.log.Error().Err(err).Msg("stale scan failed")
			}
		}
	}
}

// Tick runs one scan and returns the number of stale payments seen.
func (m *StaleMonitor) Tick(ctx context.Context) (int, error) {
	if m.onTick != nil {
		defer m.onTick()
	}
	if m.locker != nil {
		token, err := m.locker.TryLock(ctx, staleLockKey, m.cfg.Interval)
		if err != nil {
			if errors.Is(err, redis.ErrLockHeld) {
				return 0, nil
			}
			m.log.Warn().Err(err).Msg("lock unavailable; scanning anyway")
		} else {
			defer func() { _ = m.locker.Unlock(context.WithoutCancel(ctx), staleLockKey, token) }()
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := m.now().Add(-m.cfg.StaleAfter)
	stale, err := m.payments.ListPendingOlderThan(runCtx, nil, cutoff, m.cfg.Limit)
	if err != nil {
		return 0, err
	}
	metrics.SetPendingStale(len(stale))
	if len(stale) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(stale))
	for _, p := range stale {
		ids = append(ids, p.ID)
	}
	m.log.Warn().Int("count", len(stale)).Strs("payment_ids", ids).Time("cutoff", cutoff).Msg("payments still pending")
	return len(stale), nil
}
