package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logging"
	"github.com/hackgods/clinic-booking/internal/notify"
	"github.com/hackgods/clinic-booking/internal/reminder"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger, err := logging.New(cfg.Env, "reminder-worker")
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("reminder-worker starting up",
		zap.Int("queue_db", cfg.ReminderQueueDB),
		zap.Duration("lead", cfg.ReminderLead))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	sender := notify.NewSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}, logger)

	handler := reminder.NewHandler(appointment.NewPgStore(pgPool), sender, logger, nil)

	srv := asynq.NewServer(
		reminder.RedisOpt(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.ReminderQueueDB),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			ShutdownTimeout: cfg.ShutdownTimeout,
			Logger:          logger.Sugar(),
		},
	)

	mux := asynq.NewServeMux()
	mux.Handle(reminder.TypeAppointmentReminder, handler)

	if err := srv.Start(mux); err != nil {
		logger.Fatal("reminder worker start error", zap.Error(err))
	}

	<-rootCtx.Done()
	logger.Info("shutdown signal received, stopping reminder worker")
	srv.Shutdown()
}
