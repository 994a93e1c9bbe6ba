package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/RaselmamunSD/Zuhha/internal/config"
	"github.com/RaselmamunSD/Zuhha/internal/core"
	"github.com/RaselmamunSD/Zuhha/internal/db"
	"github.com/RaselmamunSD/Zuhha/internal/dispatch"
	"github.com/RaselmamunSD/Zuhha/internal/provider"
	"github.com/RaselmamunSD/Zuhha/internal/scheduler"
	"github.com/RaselmamunSD/Zuhha/internal/worker"
)

func main() {
	var exitCode int
	defer func() {
		os.Exit(exitCode)
	}()

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Error().Err(err).Msg("load config")
		exitCode = 1
		return
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("service", "worker").Logger()

	rootCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := db.Connect(rootCtx, cfg.Database.URL)
	if err != nil {
		log.Error().Err(err).Msg("connect db")
		exitCode = 1
		return
	}
	defer pool.Close()

	store := &core.Store{DB: pool}
	provs := buildProviders(cfg.Providers)
	sweeper := dispatch.NewSweeper(store, cfg.Dispatch.Location(), log)

	// Every scheduled job is declared here, handed to the scheduler in
	// one list at startup.
	jobs := []scheduler.Job{
		{
			Name:    "dispatch-sweep",
			Spec:    cfg.Dispatch.SweepSpec,
			Timeout: cfg.Dispatch.SweepTimeout,
			Run: func(ctx context.Context) error {
				_, err := sweeper.Run(ctx, time.Now())
				return err
			},
		},
		{
			Name:    "daily-summary",
			Spec:    cfg.Dispatch.DailySummaryAt,
			Timeout: 5 * time.Minute,
			Run: func(ctx context.Context) error {
				_, err := sweeper.RunDailySummary(ctx, time.Now())
				return err
			},
		},
		{
			Name:    "weekly-summary",
			Spec:    cfg.Dispatch.WeeklySummaryAt,
			Timeout: 5 * time.Minute,
			Run: func(ctx context.Context) error {
				_, err := sweeper.RunWeeklySummary(ctx, time.Now())
				return err
			},
		},
		{
			Name:    "log-cleanup",
			Spec:    cfg.Dispatch.CleanupAt,
			Timeout: 5 * time.Minute,
			Run: func(ctx context.Context) error {
				return sweeper.RunCleanup(ctx, cfg.Dispatch.Retention())
			},
		},
	}

	sched := scheduler.New(cfg.Dispatch.Location(), jobs, log)
	if err := sched.Start(rootCtx); err != nil {
		log.Error().Err(err).Msg("start scheduler")
		exitCode = 1
		return
	}
	defer sched.Stop()

	go serveHealthz(pool, log)

	opts := worker.Options{
		BatchSize:     cfg.Delivery.BatchSize,
		Concurrency:   cfg.Delivery.Concurrency,
		PollInterval:  cfg.Delivery.PollInterval,
		IdleSleep:     cfg.Delivery.IdleSleep,
		ProviderQPS:   cfg.Delivery.ProviderQPS,
		ProviderBurst: cfg.Delivery.ProviderBurst,
		SendTimeout:   cfg.Delivery.SendTimeout,
		MaxAttempts:   cfg.Delivery.MaxAttempts,
		RetryDelay:    cfg.Delivery.RetryDelay,
	}
	if err := worker.RunEngine(rootCtx, store, provs, opts, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("engine exited")
		exitCode = 1
		return
	}
}

func buildProviders(cfg config.ProvidersConfig) worker.Providers {
	if cfg.Kind != "live" {
		dummy := provider.NewDummy()
		return worker.Providers{
			core.ChannelWhatsApp: dummy,
			core.ChannelEmail:    dummy,
		}
	}
	return worker.Providers{
		core.ChannelWhatsApp: provider.WithBreaker("twilio-whatsapp",
			provider.NewTwilioWhatsApp(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From)),
		core.ChannelEmail: provider.WithBreaker("smtp-email",
			provider.NewSMTPEmail(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From, cfg.SMTP.Password, cfg.SMTP.Subject)),
	}
}

func serveHealthz(pool *pgxpool.Pool, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if err := http.ListenAndServe("0.0.0.0:9090", mux); err != nil {
		log.Error().Err(err).Msg("healthz server")
	}
}
