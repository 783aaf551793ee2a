package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthconnect/scheduling/internal/api"
	"github.com/healthconnect/scheduling/internal/clock"
	"github.com/healthconnect/scheduling/internal/config"
	"github.com/healthconnect/scheduling/internal/consultation"
	"github.com/healthconnect/scheduling/internal/db"
	"github.com/healthconnect/scheduling/internal/notification"
	"github.com/healthconnect/scheduling/internal/realtime"
	redisclient "github.com/healthconnect/scheduling/internal/redis"
	"github.com/healthconnect/scheduling/internal/scheduling"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config load error")
	}

	log := newLogger(cfg.Env).With().Str("service", "api-server").Logger()
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, int32(cfg.PgMaxConns))
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisPoolSize)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	clk := clock.System{}

	schedRepo := scheduling.NewPgRepository(pgPool)
	notifRepo := notification.NewPgRepository(pgPool)
	consultRepo := consultation.NewPgRepository(pgPool)

	hub := realtime.NewHub(log)
	dispatcher := notification.NewDispatcher(notifRepo, hub, clk, log)

	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	ledger := scheduling.NewLedger(schedRepo, clk, log)
	booking := scheduling.NewBooking(schedRepo, locker, dispatcher, clk, scheduling.BookingConfig{
		RequireApprovedDoctor: cfg.RequireApprovedDoctor,
	}, log)

	consult := consultation.NewService(consultRepo, clk)
	session := realtime.NewSession(hub, booking, consult, dispatcher, clk, log)
	ws := realtime.NewHandler(hub, session, api.ActorFrom, log)

	handlers := api.NewHandlers(ledger, booking, dispatcher, clk, api.Config{
		TemplateHorizonDays: cfg.TemplateHorizonDays,
		VideoWindow: scheduling.VideoWindow{
			Early: cfg.VideoEarlyWindow,
			Late:  cfg.VideoLateWindow,
		},
	}, log)

	router := api.NewRouter(api.RouterConfig{
		Handlers: handlers,
		WS:       ws,
		PgPool:   pgPool,
		Redis:    rdb,
		Env:      cfg.Env,
		Version:  version,
		Log:      log,
	})

	// In-process reminder scan; connected clients get the urgent push over
	// the hub. The claim is atomic, so extra scanners elsewhere are harmless.
	reminder := notification.NewReminder(schedRepo, dispatcher, clk, cfg.ReminderWindow, cfg.ReminderBuffer, log)
	go runReminderLoop(rootCtx, reminder, cfg.ReminderInterval, log)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
}

func runReminderLoop(ctx context.Context, reminder *notification.Reminder, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
			if _, err := reminder.RunOnce(runCtx); err != nil {
				log.Error().Err(err).Msg("reminder run error")
			}
			cancel()
		}
	}
}

func newLogger(env string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
