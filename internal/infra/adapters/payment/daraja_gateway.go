// File: internal/infra/adapters/payment/daraja_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hotspot-billing/internal/domain"
	"hotspot-billing/internal/domain/ports/adapter"
	"hotspot-billing/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.PushPaymentGateway = (*DarajaGateway)(nil)

// Safaricom timestamps are East Africa Time.
var eat = time.FixedZone("EAT", 3*60*60)

const (
	oauthPath   = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath = "/mpesa/stkpush/v1/processrequest"

	transactionTypePayBill = "CustomerPayBillOnline"
	maxErrorBody           = 4 << 10
)

type DarajaConfig struct {
	BaseURL        string // https://sandbox.safaricom.co.ke | https://api.safaricom.co.ke
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	Timeout        time.Duration
	TokenMargin    time.Duration
}

// DarajaGateway implements adapter.PushPaymentGateway against the M-Pesa
// Daraja STK push API.
type DarajaGateway struct {
	cfg    DarajaConfig
	client *http.Client
	tokens *TokenCache
	now    func() time.Time
	log    *zerolog.Logger
}

type Option func(*DarajaGateway)

func WithHTTPClient(c *http.Client) Option { return func(g *DarajaGateway) { g.client = c } }
func WithClock(now func() time.Time) Option { return func(g *DarajaGateway) { g.now = now } }

// WithTokenStore shares the bearer token through an external store.
func WithTokenStore(s TokenStore) Option { return func(g *DarajaGateway) { g.tokens.shared = s } }

func NewDarajaGateway(cfg DarajaConfig, logger *zerolog.Logger, opts ...Option) (*DarajaGateway, error) {
	if cfg.ConsumerKey == "" || cfg.ConsumerSecret == "" {
		return nil, errors.New("daraja consumer key/secret empty")
	}
	if cfg.ShortCode == "" || cfg.Passkey == "" {
		return nil, errors.New("daraja shortcode/passkey empty")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("daraja base url empty")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.TokenMargin <= 0 {
		cfg.TokenMargin = time.Minute
	}
	l := logger.With().Str("component", "DarajaGateway").Logger()
	g := &DarajaGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
		log:    &l,
	}
	g.tokens = newTokenCache(g.fetchToken, cfg.TokenMargin, nil, func() time.Time { return g.now() })
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

func (g *DarajaGateway) Name() string { return "mpesa" }

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushReply struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type darajaError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Timestamp formats t as yyyyMMddHHmmss in EAT.
func Timestamp(t time.Time) string { return t.In(eat).Format("20060102150405") }

// Password is base64(shortcode + passkey + timestamp).
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

// StkPush sends one Lipa na M-Pesa Online request.
func (g *DarajaGateway) StkPush(ctx context.Context, req adapter.StkPushRequest) (*adapter.StkPushResponse, error) {
	tok, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	ts := Timestamp(g.now())
	payload := stkPushPayload{
		BusinessShortCode: g.cfg.ShortCode,
		Password:          Password(g.cfg.ShortCode, g.cfg.Passkey, ts),
		Timestamp:         ts,
		TransactionType:   transactionTypePayBill,
		Amount:            req.Amount,
		PartyA:            req.PhoneNumber,
		PartyB:            g.cfg.ShortCode,
		PhoneNumber:       req.PhoneNumber,
		CallBackURL:       req.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.TransactionDesc,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal stk push: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+stkPushPath, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build stk push request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+tok)

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		metrics.ObserveProviderCall("stkpush", "unavailable", time.Since(start))
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		g.tokens.Invalidate(ctx, tok)
		metrics.ObserveProviderCall("stkpush", "auth", time.Since(start))
		return nil, &domain.ProviderError{Kind: domain.ErrProviderAuth, Code: strconv.Itoa(resp.StatusCode), Message: readDarajaError(resp.Body)}
	}
	if resp.StatusCode >= 500 {
		metrics.ObserveProviderCall("stkpush", "unavailable", time.Since(start))
		return nil, &domain.ProviderError{Kind: domain.ErrProviderUnavailable, Code: strconv.Itoa(resp.StatusCode), Message: readDarajaError(resp.Body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.ObserveProviderCall("stkpush", "rejected", time.Since(start))
		return nil, &domain.ProviderError{Kind: domain.ErrProviderRejected, Code: strconv.Itoa(resp.StatusCode), Message: readDarajaError(resp.Body)}
	}

	var out stkPushReply
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.ObserveProviderCall("stkpush", "unavailable", time.Since(start))
		return nil, &domain.ProviderError{Kind: domain.ErrProviderUnavailable, Message: "undecodable stk push response"}
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		metrics.ObserveProviderCall("stkpush", "rejected", time.Since(start))
		return nil, &domain.ProviderError{Kind: domain.ErrProviderRejected, Code: out.ResponseCode, Message: out.ResponseDescription}
	}
	metrics.ObserveProviderCall("stkpush", "ok", time.Since(start))
	g.log.Debug().
		Str("checkout_request_id", out.CheckoutRequestID).
		Str("merchant_request_id", out.MerchantRequestID).
		Dur("duration", time.Since(start)).
		Msg("stk push accepted")

	return &adapter.StkPushResponse{
		MerchantRequestID:   out.MerchantRequestID,
		CheckoutRequestID:   out.CheckoutRequestID,
		ResponseCode:        out.ResponseCode,
		ResponseDescription: out.ResponseDescription,
		CustomerMessage:     out.CustomerMessage,
	}, nil
}

// fetchToken performs the client-credentials exchange.
func (g *DarajaGateway) fetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+oauthPath, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build oauth request: %w", err)
	}
	req.SetBasicAuth(g.cfg.ConsumerKey, g.cfg.ConsumerSecret)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		metrics.ObserveProviderCall("oauth", "unavailable", time.Since(start))
		return "", 0, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		metrics.ObserveProviderCall("oauth", "unavailable", time.Since(start))
		return "", 0, &domain.ProviderError{Kind: domain.ErrProviderUnavailable, Code: strconv.Itoa(resp.StatusCode), Message: readDarajaError(resp.Body)}
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ObserveProviderCall("oauth", "auth", time.Since(start))
		return "", 0, &domain.ProviderError{Kind: domain.ErrProviderAuth, Code: strconv.Itoa(resp.StatusCode), Message: readDarajaError(resp.Body)}
	}

	var out struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"` // Daraja sends "3599" as a string
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.AccessToken == "" {
		metrics.ObserveProviderCall("oauth", "auth", time.Since(start))
		return "", 0, &domain.ProviderError{Kind: domain.ErrProviderAuth, Message: "no access token in oauth response"}
	}
	secs, err := out.ExpiresIn.Int64()
	if err != nil || secs <= 0 {
		secs = 3599
	}
	metrics.ObserveProviderCall("oauth", "ok", time.Since(start))
	g.log.Debug().Int64("expires_in", secs).Msg("fetched daraja access token")
	return out.AccessToken, time.Duration(secs) * time.Second, nil
}

func transportError(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &domain.ProviderError{Kind: domain.ErrProviderUnavailable, Message: "timeout"}
	}
	if errors.Is(err, context.Canceled) {
		return &domain.ProviderError{Kind: domain.ErrProviderUnavailable, Message: "request cancelled"}
	}
	return &domain.ProviderError{Kind: domain.ErrProviderUnavailable, Message: err.Error()}
}

func readDarajaError(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var de darajaError
	if json.Unmarshal(b, &de) == nil && de.ErrorMessage != "" {
		if de.ErrorCode != "" {
			return de.ErrorCode + " " + de.ErrorMessage
		}
		return de.ErrorMessage
	}
	return strings.TrimSpace(string(b))
}
