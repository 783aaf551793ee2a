package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/healthconnect/scheduling/internal/clock"
	"github.com/healthconnect/scheduling/internal/config"
	"github.com/healthconnect/scheduling/internal/db"
	"github.com/healthconnect/scheduling/internal/notification"
	"github.com/healthconnect/scheduling/internal/scheduling"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config load error")
	}

	log := newLogger(cfg.Env).With().Str("service", "reminder-worker").Logger()
	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.ReminderInterval).
		Str("template_sync", cfg.TemplateSyncSpec).
		Msg("reminder-worker starting up")

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

	clk := clock.System{}
	schedRepo := scheduling.NewPgRepository(pgPool)
	notifRepo := notification.NewPgRepository(pgPool)

	// No hub in this process: reminders are persisted and picked up through
	// the pull endpoints. The atomic claim keeps this safe to run alongside
	// the api-server's in-process scanner.
	dispatcher := notification.NewDispatcher(notifRepo, nil, clk, log)
	reminder := notification.NewReminder(schedRepo, dispatcher, clk, cfg.ReminderWindow, cfg.ReminderBuffer, log)
	ledger := scheduling.NewLedger(schedRepo, clk, log)

	// Nightly template sync regenerates every approved doctor's slot grid
	// over the horizon.
	c := cron.New(cron.WithLocation(clock.Zone))
	_, err = c.AddFunc(cfg.TemplateSyncSpec, func() {
		syncTemplates(rootCtx, ledger, cfg.TemplateHorizonDays, log)
	})
	if err != nil {
		log.Fatal().Err(err).Str("spec", cfg.TemplateSyncSpec).Msg("invalid template sync spec")
	}
	c.Start()
	defer c.Stop()

	// Run once at startup
	runOnce(rootCtx, reminder, log)

	ticker := time.NewTicker(cfg.ReminderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, reminder, log)
		}
	}
}

func runOnce(ctx context.Context, reminder *notification.Reminder, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	sent, err := reminder.RunOnce(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("reminder run error")
		return
	}
	if sent > 0 {
		log.Info().Int("sent", sent).Dur("took", time.Since(start)).Msg("reminder run complete")
	}
}

func syncTemplates(ctx context.Context, ledger *scheduling.Ledger, horizonDays int, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	doctors, err := ledger.ApprovedDoctors(runCtx)
	if err != nil {
		log.Error().Err(err).Msg("template sync: list doctors failed")
		return
	}

	total := 0
	for i := range doctors {
		n, err := ledger.SyncFromTemplate(runCtx, doctors[i].ID, horizonDays)
		if err != nil {
			log.Error().Err(err).Stringer("doctor_id", doctors[i].ID).Msg("template sync failed")
			continue
		}
		total += n
	}
	log.Info().Int("doctors", len(doctors)).Int("generated", total).Msg("template sync complete")
}

func newLogger(env string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
