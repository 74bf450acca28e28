package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/events"
	"github.com/hackgods/clinic-booking/internal/logging"
	"github.com/hackgods/clinic-booking/internal/tracing"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger, err := logging.New(cfg.Env, "event-relay")
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("event-relay starting up",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.EventsTopic),
		zap.Duration("interval", cfg.RelayInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(rootCtx, tracing.Config{
		ServiceName:    "clinic-booking-relay",
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     0.1,
	})
	if err != nil {
		logger.Fatal("tracing init error", zap.Error(err))
	}

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()

	producer, err := events.NewProducer(events.ProducerConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.EventsTopic,
	}, logger)
	if err != nil {
		logger.Fatal("kafka producer error", zap.Error(err))
	}
	defer producer.Close()

	topicCtx, cancelTopic := context.WithTimeout(rootCtx, 15*time.Second)
	err = producer.EnsureTopic(topicCtx, 3, 1)
	cancelTopic()
	if err != nil {
		logger.Fatal("ensure topic error", zap.Error(err))
	}

	relay := events.NewRelay(events.NewPgOutbox(pgPool), producer, cfg.RelayBatchSize, logger, nil)
	relay.Run(rootCtx, cfg.RelayInterval)

	logger.Info("shutting down event-relay")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown error", zap.Error(err))
	}
}
