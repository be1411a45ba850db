//go:build !integration

package redis

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type entry struct {
	val string
	ttl time.Duration
}

// fakeClient is an in-memory RedisClient. TTLs are recorded, not enforced.
type fakeClient struct {
	mu        sync.Mutex
	data      map[string]entry
	published map[string][]string
	IncrFunc  func(ctx context.Context, key string) (int64, error)
}

var _ RedisClient = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{data: map[string]entry{}, published: map[string][]string{}}
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func (f *fakeClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = entry{val: fmt.Sprint(value), ttl: expiration}
	return nil
}

func (f *fakeClient) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.data[key]
	if !ok {
		return "", ErrNil
	}
	return e.val, nil
}

func (f *fakeClient) TTL(ctx context.Context, key string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.data[key]
	if !ok {
		return -2, nil
	}
	if e.ttl <= 0 {
		return -1, nil
	}
	return e.ttl, nil
}

func (f *fakeClient) Incr(ctx context.Context, key string) (int64, error) {
	if f.IncrFunc != nil {
		return f.IncrFunc(ctx, key)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	if e, ok := f.data[key]; ok {
		fmt.Sscan(e.val, &n)
	}
	n++
	e := f.data[key]
	e.val = fmt.Sprint(n)
	f.data[key] = e
	return n, nil
}

func (f *fakeClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.data[key]; ok {
		e.ttl = expiration
		f.data[key] = e
	}
	return nil
}

func (f *fakeClient) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeClient) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.data[key]; ok && e.val == value {
		delete(f.data, key)
		return true, nil
	}
	return false, nil
}

func (f *fakeClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = entry{val: fmt.Sprint(value), ttl: expiration}
	return true, nil
}

func (f *fakeClient) Publish(ctx context.Context, channel string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], fmt.Sprint(message))
	return nil
}

func (f *fakeClient) Close() error { return nil }
