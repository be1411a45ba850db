//go:build !integration

package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hotspot-billing/internal/domain"
	"hotspot-billing/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// fakeDaraja is a scripted stand-in for the provider.
type fakeDaraja struct {
	oauthCalls int32
	pushCalls  int32
	expiresIn  any

	mu       sync.Mutex
	lastPush stkPushPayload
	lastAuth string

	pushStatus int
	pushReply  any
	pushDelay  time.Duration
}

func (f *fakeDaraja) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.oauthCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errorCode":"400.008.01","errorMessage":"Invalid Authentication passed"}`))
			return
		}
		exp := f.expiresIn
		if exp == nil {
			exp = "3599"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-" + string(rune('0'+n)), "expires_in": exp})
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.pushCalls, 1)
		if f.pushDelay > 0 {
			select {
			case <-time.After(f.pushDelay):
			case <-r.Context().Done():
				return
			}
		}
		var p stkPushPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("bad push body: %v", err)
		}
		f.mu.Lock()
		f.lastPush = p
		f.lastAuth = r.Header.Get("Authorization")
		status, reply := f.pushStatus, f.pushReply
		f.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if reply == nil {
			reply = stkPushReply{
				MerchantRequestID:   "29115-34620561-1",
				CheckoutRequestID:   "ws_CO_191220191020363925",
				ResponseCode:        "0",
				ResponseDescription: "Success. Request accepted for processing",
				CustomerMessage:     "Success. Request accepted for processing",
			}
		}
		_ = json.NewEncoder(w).Encode(reply)
	})
	return mux
}

func (f *fakeDaraja) script(status int, reply any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushStatus, f.pushReply = status, reply
}

func newTestGateway(t *testing.T, f *fakeDaraja, opts ...Option) (*DarajaGateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	g, err := NewDarajaGateway(DarajaConfig{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		ShortCode:      "174379",
		Passkey:        "passkey",
		Timeout:        2 * time.Second,
		TokenMargin:    time.Minute,
	}, newTestLogger(), append([]Option{WithHTTPClient(srv.Client())}, opts...)...)
	if err != nil {
		t.Fatalf("NewDarajaGateway: %v", err)
	}
	return g, srv
}

var pushReq = adapter.StkPushRequest{
	Amount:           50,
	PhoneNumber:      "254712345678",
	CallbackURL:      "https://example.com/api/mpesa/callback/pay-1",
	AccountReference: "PLAN-daily",
	TransactionDesc:  "Payment for D",
}

func TestDarajaGateway_StkPush(t *testing.T) {
	ctx := context.Background()

	t.Run("should build the provider envelope and return correlation ids", func(t *testing.T) {
		// --- Arrange ---
		f := &fakeDaraja{}
		fixed := time.Date(2024, 1, 2, 0, 4, 5, 0, time.UTC) // 03:04:05 EAT
		g, _ := newTestGateway(t, f, WithClock(func() time.Time { return fixed }))

		// --- Act ---
		res, err := g.StkPush(ctx, pushReq)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.CheckoutRequestID != "ws_CO_191220191020363925" || res.MerchantRequestID != "29115-34620561-1" {
			t.Errorf("unexpected ids: %+v", res)
		}
		f.mu.Lock()
		p, auth := f.lastPush, f.lastAuth
		f.mu.Unlock()
		if p.Timestamp != "20240102030405" {
			t.Errorf("expected EAT timestamp 20240102030405, got %s", p.Timestamp)
		}
		want := base64.StdEncoding.EncodeToString([]byte("174379passkey20240102030405"))
		if p.Password != want {
			t.Errorf("unexpected password %s", p.Password)
		}
		if p.TransactionType != "CustomerPayBillOnline" || p.PartyA != "254712345678" || p.PhoneNumber != "254712345678" || p.PartyB != "174379" || p.BusinessShortCode != "174379" {
			t.Errorf("unexpected envelope %+v", p)
		}
		if p.Amount != 50 || p.CallBackURL != pushReq.CallbackURL || p.AccountReference != "PLAN-daily" {
			t.Errorf("unexpected envelope %+v", p)
		}
		if auth != "Bearer tok-1" {
			t.Errorf("expected bearer token, got %q", auth)
		}
	})

	t.Run("should reuse the cached token until the margin and then refresh", func(t *testing.T) {
		f := &fakeDaraja{expiresIn: 120} // numeric expires_in
		now := time.Now()
		var mu sync.Mutex
		clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
		g, _ := newTestGateway(t, f, WithClock(clock))

		for i := 0; i < 3; i++ {
			if _, err := g.StkPush(ctx, pushReq); err != nil {
				t.Fatalf("push %d: %v", i, err)
			}
		}
		if got := atomic.LoadInt32(&f.oauthCalls); got != 1 {
			t.Fatalf("expected one oauth call, got %d", got)
		}

		mu.Lock()
		now = now.Add(61 * time.Second) // past 120s - 60s margin
		mu.Unlock()
		if _, err := g.StkPush(ctx, pushReq); err != nil {
			t.Fatalf("push after expiry: %v", err)
		}
		if got := atomic.LoadInt32(&f.oauthCalls); got != 2 {
			t.Errorf("expected a refresh after expiry, got %d oauth calls", got)
		}
	})

	t.Run("should tolerate concurrent refreshes", func(t *testing.T) {
		f := &fakeDaraja{}
		g, _ := newTestGateway(t, f)

		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := g.StkPush(ctx, pushReq); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("unexpected error: %v", err)
		}
		if got := atomic.LoadInt32(&f.oauthCalls); got < 1 || got > 10 {
			t.Errorf("unexpected oauth call count %d", got)
		}
	})

	t.Run("should translate a nonzero ResponseCode into ErrProviderRejected", func(t *testing.T) {
		f := &fakeDaraja{pushReply: stkPushReply{ResponseCode: "1", ResponseDescription: "Rejected"}}
		g, _ := newTestGateway(t, f)
		_, err := g.StkPush(ctx, pushReq)
		if !errors.Is(err, domain.ErrProviderRejected) {
			t.Fatalf("expected ErrProviderRejected, got %v", err)
		}
		var pe *domain.ProviderError
		if !errors.As(err, &pe) || pe.Code != "1" {
			t.Errorf("expected provider code 1, got %+v", pe)
		}
	})

	t.Run("should translate a 400 body into ErrProviderRejected with the provider message", func(t *testing.T) {
		f := &fakeDaraja{pushStatus: http.StatusBadRequest, pushReply: darajaError{ErrorCode: "400.002.02", ErrorMessage: "Bad Request - Invalid PhoneNumber"}}
		g, _ := newTestGateway(t, f)
		_, err := g.StkPush(ctx, pushReq)
		var pe *domain.ProviderError
		if !errors.As(err, &pe) || !errors.Is(err, domain.ErrProviderRejected) {
			t.Fatalf("expected rejected ProviderError, got %v", err)
		}
		if pe.Message != "400.002.02 Bad Request - Invalid PhoneNumber" {
			t.Errorf("unexpected message %q", pe.Message)
		}
	})

	t.Run("should invalidate the token on 401", func(t *testing.T) {
		f := &fakeDaraja{pushStatus: http.StatusUnauthorized, pushReply: darajaError{ErrorMessage: "Invalid Access Token"}}
		g, _ := newTestGateway(t, f)
		if _, err := g.StkPush(ctx, pushReq); !errors.Is(err, domain.ErrProviderAuth) {
			t.Fatalf("expected ErrProviderAuth, got %v", err)
		}
		f.script(http.StatusOK, nil)
		if _, err := g.StkPush(ctx, pushReq); err != nil {
			t.Fatalf("expected recovery after 401, got %v", err)
		}
		if got := atomic.LoadInt32(&f.oauthCalls); got != 2 {
			t.Errorf("expected a fresh token after 401, got %d oauth calls", got)
		}
	})

	t.Run("should map 5xx to ErrProviderUnavailable", func(t *testing.T) {
		f := &fakeDaraja{pushStatus: http.StatusServiceUnavailable, pushReply: map[string]string{}}
		g, _ := newTestGateway(t, f)
		if _, err := g.StkPush(ctx, pushReq); !errors.Is(err, domain.ErrProviderUnavailable) {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	})

	t.Run("should fail on bad credentials without pushing", func(t *testing.T) {
		f := &fakeDaraja{}
		srv := httptest.NewServer(f.handler(t))
		defer srv.Close()
		g, _ := NewDarajaGateway(DarajaConfig{BaseURL: srv.URL, ConsumerKey: "key", ConsumerSecret: "wrong", ShortCode: "1", Passkey: "p"}, newTestLogger())
		if _, err := g.StkPush(ctx, pushReq); !errors.Is(err, domain.ErrProviderAuth) {
			t.Errorf("expected ErrProviderAuth, got %v", err)
		}
		if atomic.LoadInt32(&f.pushCalls) != 0 {
			t.Error("push must not be attempted without a token")
		}
	})

	t.Run("should give up when the deadline passes", func(t *testing.T) {
		f := &fakeDaraja{pushDelay: time.Second}
		g, _ := newTestGateway(t, f)
		cctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		start := time.Now()
		_, err := g.StkPush(cctx, pushReq)
		if !errors.Is(err, domain.ErrProviderUnavailable) {
			t.Fatalf("expected ErrProviderUnavailable, got %v", err)
		}
		if time.Since(start) > 900*time.Millisecond {
			t.Error("push was not bounded by the context deadline")
		}
	})
}

func TestNewDarajaGateway(t *testing.T) {
	t.Run("should require credentials", func(t *testing.T) {
		if _, err := NewDarajaGateway(DarajaConfig{BaseURL: "http://x"}, newTestLogger()); err == nil {
			t.Error("expected an error without credentials")
		}
	})
}

// memTokenStore is an in-memory TokenStore.
type memTokenStore struct {
	mu    sync.Mutex
	token string
	ttl   time.Duration
}

func (m *memTokenStore) GetToken(ctx context.Context) (string, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.ttl, nil
}

func (m *memTokenStore) SetToken(ctx context.Context, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.ttl = token, ttl
	return nil
}

func (m *memTokenStore) DelToken(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == token {
		m.token, m.ttl = "", 0
	}
	return nil
}

func TestTokenCache(t *testing.T) {
	ctx := context.Background()

	t.Run("should share tokens through the store", func(t *testing.T) {
		store := &memTokenStore{}
		calls := 0
		fetch := func(ctx context.Context) (string, time.Duration, error) {
			calls++
			return "fresh", time.Hour, nil
		}
		a := newTokenCache(fetch, time.Minute, store, nil)
		b := newTokenCache(fetch, time.Minute, store, nil)

		if tok, _ := a.Token(ctx); tok != "fresh" {
			t.Fatalf("unexpected token %q", tok)
		}
		if tok, _ := b.Token(ctx); tok != "fresh" {
			t.Fatalf("unexpected token %q", tok)
		}
		if calls != 1 {
			t.Errorf("expected the second cache to reuse the shared token, got %d fetches", calls)
		}
	})

	t.Run("should not cache tokens shorter than the margin", func(t *testing.T) {
		calls := 0
		c := newTokenCache(func(ctx context.Context) (string, time.Duration, error) {
			calls++
			return "short", 30 * time.Second, nil
		}, time.Minute, nil, nil)
		_, _ = c.Token(ctx)
		_, _ = c.Token(ctx)
		if calls != 2 {
			t.Errorf("expected every call to fetch, got %d", calls)
		}
	})

	t.Run("should only invalidate the token it was given", func(t *testing.T) {
		c := newTokenCache(func(ctx context.Context) (string, time.Duration, error) { return "new", time.Hour, nil }, time.Minute, nil, nil)
		_, _ = c.Token(ctx)
		c.Invalidate(ctx, "old")
		if tok, ok := c.cached(); !ok || tok != "new" {
			t.Errorf("a stale invalidate dropped the current token")
		}
		c.Invalidate(ctx, "new")
		if _, ok := c.cached(); ok {
			t.Error("expected the token to be dropped")
		}
	})
}
