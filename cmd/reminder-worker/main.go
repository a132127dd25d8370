package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebridge/healthplan-backend/internal/appointment"
	"github.com/carebridge/healthplan-backend/internal/config"
	"github.com/carebridge/healthplan-backend/internal/db"
	"github.com/carebridge/healthplan-backend/internal/notify"
	redisclient "github.com/carebridge/healthplan-backend/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("config load error")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Str("app", "reminder-worker").Logger()

	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Dur("lead", cfg.ReminderLead).
		Msg("reminder-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	var notifier appointment.Notifier
	if cfg.AMQPURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatal().Err(err).Msg("amqp connection error")
		}
		defer func() {
			_ = amqpNotifier.Close()
		}()
		notifier = amqpNotifier
	} else {
		notifier = notify.NewLogNotifier(log)
	}

	repo := appointment.NewPgRepository(pgPool)
	// The worker only reads and marks rows, it never contends for slots.
	svc := appointment.NewService(repo, redisclient.NoopLocker{}, notifier, log)
	svc.SetReminderLead(cfg.ReminderLead)

	// Run once at startup
	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.SendDueReminders(runCtx); err != nil {
		log.Error().Err(err).Msg("reminder run error")
		return
	}
	log.Info().Dur("took", time.Since(start)).Msg("reminder run complete")
}
