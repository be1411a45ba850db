// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hotspot-billing/internal/config"
	"hotspot-billing/internal/domain/ports/adapter"
	"hotspot-billing/internal/domain/ports/repository"
	notify "hotspot-billing/internal/infra/adapters/notify"
	payAdapters "hotspot-billing/internal/infra/adapters/payment"
	"hotspot-billing/internal/infra/api"
	"hotspot-billing/internal/infra/db/memory"
	pg "hotspot-billing/internal/infra/db/postgres"
	"hotspot-billing/internal/infra/logging"
	"hotspot-billing/internal/infra/metrics"
	red "hotspot-billing/internal/infra/redis"
	"hotspot-billing/internal/infra/sched"
	"hotspot-billing/internal/infra/worker"
	"hotspot-billing/internal/usecase"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

var (
	version = "dev"
	commit  = "none"
)

type stores struct {
	payments  repository.PaymentRepository
	guests    repository.GuestUserRepository
	logs      repository.CallbackLogRepository
	tm        repository.TransactionManager
	pool      *pgxpool.Pool
	health    func(ctx context.Context) error
	poolStats func()
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: console logs, memory store without database.url, debug routes")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	// ---- Storage ----
	st, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage")
	}
	if st.pool != nil {
		defer st.pool.Close()
		logger.Info().Msg("postgres connected")
	} else {
		logger.Warn().Msg("database.url empty; using the in-memory store")
	}

	// ---- Redis (optional) ----
	var (
		redisClient *red.Client
		limiter     usecase.RateLimiter
		locker      red.Locker
	)
	if cfg.Redis.URL != "" {
		redisClient, err = red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		limiter = red.NewRateLimiter(redisClient)
		locker = red.NewLocker(redisClient)
		logger.Info().Msg("redis connected")
	}

	// ---- Push-payment gateway ----
	var gateway adapter.PushPaymentGateway
	if cfg.Payment.Mpesa.Mock() {
		gateway = payAdapters.NewNoopPaymentGateway()
		logger.Warn().Msg("payment.mpesa.env=mock; STK pushes are not sent")
	} else {
		m := cfg.Payment.Mpesa
		var opts []payAdapters.Option
		if redisClient != nil {
			opts = append(opts, payAdapters.WithTokenStore(red.NewTokenStore(redisClient)))
		}
		gateway, err = payAdapters.NewDarajaGateway(payAdapters.DarajaConfig{
			BaseURL:        m.BaseURL,
			ConsumerKey:    m.ConsumerKey,
			ConsumerSecret: m.ConsumerSecret,
			ShortCode:      m.ShortCode,
			Passkey:        m.Passkey,
			Timeout:        m.Timeout,
			TokenMargin:    m.TokenMargin,
		}, logger, opts...)
		if err != nil {
			logger.Fatal().Err(err).Msg("daraja gateway")
		}
		logger.Info().Str("env", m.Env).Str("base_url", m.BaseURL).Msg("daraja gateway ready")
	}

	// ---- Notification fan-out ----
	pool := worker.NewPool(cfg.Notify.Workers, logger)
	pool.Start(ctx)
	defer pool.Stop()
	notifier := buildNotifier(cfg, redisClient, pool, logger)

	// ---- Use cases ----
	paymentUC := usecase.NewPaymentUseCase(st.payments, st.guests, gateway, st.tm, limiter, usecase.PaymentConfig{
		CallbackBaseURL:  cfg.Payment.Mpesa.CallbackURL,
		AccountReference: cfg.Payment.Mpesa.AccountReference,
		Timeout:          cfg.Payment.Mpesa.Timeout,
		RateLimit:        cfg.Payment.RateLimit.PerPhone,
		RateWindow:       cfg.Payment.RateLimit.Window,
		RateKey:          red.StkPushKey,
		Dev:              cfg.Runtime.Dev,
	}, logger)
	callbackUC := usecase.NewCallbackUseCase(st.payments, st.logs, notifier, logger)
	reportUC := usecase.NewReportUseCase(st.payments)

	// ---- Stale pending monitor ----
	monitor := sched.NewStaleMonitor(sched.StaleMonitorConfig{
		Interval:   cfg.Scheduler.StaleCheckInterval,
		StaleAfter: cfg.Scheduler.StaleAfter,
	}, st.payments, locker, st.poolStats, logger)
	go func() { _ = monitor.Run(ctx) }()

	// ---- HTTP ----
	auth := api.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
	if !auth.Enabled() {
		logger.Warn().Msg("admin.jwt_secret empty; admin routes answer 403")
	}
	srv := api.NewServer(paymentUC, callbackUC, reportUC, auth, st.health, api.Options{
		Dev:             cfg.Runtime.Dev,
		RequestTimeout:  cfg.HTTP.RequestTimeout,
		CallbackTimeout: cfg.HTTP.CallbackTimeout,
	}, logger)
	server := api.NewHTTPServer(fmt.Sprintf(":%d", cfg.HTTP.Port), srv.Router())
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if cfg.Database.URL == "" {
		return &stores{
			payments: memory.NewPaymentRepo(),
			guests:   memory.NewGuestUserRepo(),
			logs:     memory.NewCallbackLogRepo(1000),
			tm:       memory.NewTxManager(),
		}, nil
	}
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	return &stores{
		payments:  pg.NewPaymentRepo(pool),
		guests:    pg.NewGuestUserRepo(pool),
		logs:      pg.NewCallbackLogRepo(pool),
		tm:        pg.NewTxManager(pool),
		pool:      pool,
		health:    pool.Ping,
		poolStats: func() { pg.ReportPoolStats(pool) },
	}, nil
}

// buildNotifier fans completed payments out to every configured sink through
// the worker pool, so a slow sink never delays a callback ack.
func buildNotifier(cfg *config.Config, redisClient *red.Client, pool *worker.Pool, logger *zerolog.Logger) adapter.PaymentNotifier {
	var sinks notify.Multi
	if redisClient != nil {
		sinks = append(sinks, notify.NewRedisNotifier(redisClient, cfg.Notify.RedisChannel))
	}
	if tg := cfg.Notify.Telegram; tg.Token != "" {
		t, err := notify.NewTelegramNotifier(tg.Token, tg.ChatIDs)
		if err != nil {
			logger.Error().Err(err).Msg("telegram notifier disabled")
		} else {
			sinks = append(sinks, t)
		}
	}
	if len(sinks) == 0 {
		return notify.NewNoopNotifier(logger)
	}
	return notify.NewAsync(sinks, pool, 10*time.Second, logger)
}
