package redis

import (
	"context"
	"errors"
	"time"
)

const darajaTokenKey = "mpesa:access_token"

// TokenStore shares the provider access token between replicas.
type TokenStore struct {
	client RedisClient
	key    string
}

func NewTokenStore(client RedisClient) *TokenStore {
	return &TokenStore{client: client, key: darajaTokenKey}
}

// GetToken returns an empty token without error when nothing is stored.
func (s *TokenStore) GetToken(ctx context.Context) (string, time.Duration, error) {
	tok, err := s.client.Get(ctx, s.key)
	if errors.Is(err, ErrNil) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	ttl, err := s.client.TTL(ctx, s.key)
	if err != nil {
		return "", 0, err
	}
	if ttl <= 0 {
		// -1 means no expiry was set; treat it as unusable.
		return "", 0, nil
	}
	return tok, ttl, nil
}

func (s *TokenStore) SetToken(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, s.key, token, ttl)
}

func (s *TokenStore) DelToken(ctx context.Context, token string) error {
	_, err := s.client.DelIfEquals(ctx, s.key, token)
	return err
}
