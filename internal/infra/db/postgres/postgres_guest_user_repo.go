package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"hotspot-billing/internal/domain"
	"hotspot-billing/internal/domain/model"
	"hotspot-billing/internal/domain/ports/repository"
)

var _ repository.GuestUserRepository = (*guestUserRepo)(nil)

type guestUserRepo struct{ pool *pgxpool.Pool }

func NewGuestUserRepo(pool *pgxpool.Pool) *guestUserRepo {
	return &guestUserRepo{pool: pool}
}

func (r *guestUserRepo) Save(ctx context.Context, tx repository.Tx, g *model.GuestUser) error {
	if g == nil || g.ID == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO guest_users (id, phone_number, username, role, created_at)
VALUES ($1,$2,$3,$4,$5);`
	_, err := execSQL(ctx, r.pool, tx, q, g.ID, g.PhoneNumber, g.Username, g.Role, g.CreatedAt)
	return mapWriteErr(err)
}

func (r *guestUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.GuestUser, error) {
	const q = `SELECT id, phone_number, username, role, created_at FROM guest_users WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var g model.GuestUser
	if err := row.Scan(&g.ID, &g.PhoneNumber, &g.Username, &g.Role, &g.CreatedAt); err != nil {
		return nil, mapReadErr(err)
	}
	return &g, nil
}
