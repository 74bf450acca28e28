package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/api"
	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/logging"
	"github.com/hackgods/clinic-booking/internal/metrics"
	"github.com/hackgods/clinic-booking/internal/notify"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
	"github.com/hackgods/clinic-booking/internal/reminder"
	"github.com/hackgods/clinic-booking/internal/tracing"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger, err := logging.New(cfg.Env, "api-server")
	if err != nil {
		panic("logger init error: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version),
		zap.String("reassign_policy", cfg.ReassignPolicy))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(rootCtx, tracing.Config{
		ServiceName:    "clinic-booking-api",
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
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
	logger.Info("connected to Postgres")

	if err := db.Migrate(rootCtx, pgPool); err != nil {
		logger.Fatal("schema migration error", zap.Error(err))
	}

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))

	queue := asynq.NewClient(reminder.RedisOpt(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.ReminderQueueDB))
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("error closing reminder queue", zap.Error(err))
		}
	}()

	m := metrics.New(nil)

	sender := notify.NewSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}, logger)
	dispatcher := notify.NewDispatcher(sender, logger, m, cfg.NotifyTimeout)

	svc := appointment.NewService(appointment.NewPgStore(pgPool), logger,
		appointment.WithLocker(redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)),
		appointment.WithNotifier(dispatcher),
		appointment.WithReminders(reminder.NewScheduler(queue, cfg.ReminderLead, cfg.Location(), logger)),
		appointment.WithMetrics(m),
		appointment.WithReassignPolicy(reassignPolicy(cfg.ReassignPolicy)),
		appointment.WithLocation(cfg.Location()),
	)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		Logger:  logger,
		HealthChecks: []api.HealthCheck{
			{Name: "postgres", Pinger: pgPool, Critical: true},
			{Name: "redis", Pinger: api.PingFunc(func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			})},
		},
		JWTSecret:   []byte(cfg.JWTSecret),
		RateLimiter: api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger),
		Metrics:     m,
		Env:         cfg.Env,
		Version:     version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	dispatcher.Wait()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown error", zap.Error(err))
	}
	logger.Info("api-server stopped")
}

// reassignPolicy maps the validated config value onto the service policy.
func reassignPolicy(name string) appointment.ReassignPolicy {
	switch name {
	case config.ReassignSkip:
		return appointment.ReassignSkip
	case config.ReassignReject:
		return appointment.ReassignReject
	default:
		return appointment.ReassignUnchecked
	}
}
