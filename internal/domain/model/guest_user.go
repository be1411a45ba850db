package model

import (
	"crypto/rand"
	"strings"
	"time"

	"hotspot-billing/internal/domain"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

const GuestRole = "guest"

// GuestUser stands in for an anonymous payer. It is never mutated after creation.
type GuestUser struct {
	ID          string
	PhoneNumber string
	Username    string
	Role        string
	CreatedAt   time.Time
}

// NewGuestUser builds a guest for a canonical phone number.
func NewGuestUser(phone string, now time.Time) (*GuestUser, error) {
	if phone == "" {
		return nil, domain.ErrInvalidArgument
	}
	id := ulid.MustNew(ulid.Timestamp(now), rand.Reader)
	return &GuestUser{
		ID:          uuid.NewString(),
		PhoneNumber: phone,
		Username:    "guest_" + strings.ToLower(id.String()),
		Role:        GuestRole,
		CreatedAt:   now,
	}, nil
}
