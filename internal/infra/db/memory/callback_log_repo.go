package memory

import (
	"context"
	"sync"

	"hotspot-billing/internal/domain"
	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/domain/ports/repository"

	"github.com/google/uuid"
)

var _ repository.CallbackLogRepository = (*CallbackLogRepo)(nil)

// CallbackLogRepo is a bounded ring of the most recent deliveries.
type CallbackLogRepo struct {
	mu   sync.Mutex
	max  int
	logs []*model.CallbackLog
}

func NewCallbackLogRepo(max int) *CallbackLogRepo {
	if max <= 0 {
		max = 1000
	}
	return &CallbackLogRepo{max: max}
}

func (r *CallbackLogRepo) Append(ctx context.Context, tx repository.Tx, l *model.CallbackLog) error {
	if l == nil {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *l
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	r.logs = append(r.logs, &cp)
	if len(r.logs) > r.max {
		r.logs = r.logs[len(r.logs)-r.max:]
	}
	return nil
}

// ListRecent returns newest first.
func (r *CallbackLogRepo) ListRecent(ctx context.Context, tx repository.Tx, limit int) ([]*model.CallbackLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.logs) {
		limit = len(r.logs)
	}
	out := make([]*model.CallbackLog, 0, limit)
	for i := len(r.logs) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *r.logs[i]
		out = append(out, &cp)
	}
	return out, nil
}
