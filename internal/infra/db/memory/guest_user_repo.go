package memory

import (
	"context"
	"sync"

	"hotspot-billing/internal/domain"
	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/domain/ports/repository"
)

var _ repository.GuestUserRepository = (*GuestUserRepo)(nil)

type GuestUserRepo struct {
	mu   sync.RWMutex
	byID map[string]model.GuestUser
}

func NewGuestUserRepo() *GuestUserRepo {
	return &GuestUserRepo{byID: map[string]model.GuestUser{}}
}

func (r *GuestUserRepo) Save(ctx context.Context, tx repository.Tx, g *model.GuestUser) error {
	if g == nil || g.ID == "" {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[g.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.byID[g.ID] = *g
	id := g.ID
	track(tx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.byID, id)
	})
	return nil
}

func (r *GuestUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.GuestUser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &g, nil
}
