// Package notify delivers booking, leave and prescription messages by email.
// Delivery is best effort and never blocks the operation that triggered it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/hackgods/clinic-booking/internal/metrics"
)

// Sender delivers one message synchronously.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}

// LogSender only logs messages. Used when no SMTP host is configured.
type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.Logger.Info("notification",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}

// NewSender returns a breaker-guarded SMTP sender, or a LogSender when no
// SMTP host is set.
func NewSender(cfg SMTPConfig, logger *zap.Logger) Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		logger.Warn("SMTP_HOST not set, notifications are logged only")
		return LogSender{Logger: logger}
	}
	return NewBreakerSender(NewSMTPSender(cfg), logger)
}

// BreakerSender stops calling a failing mail server for a while instead of
// piling up timeouts behind it.
type BreakerSender struct {
	next Sender
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerSender(next Sender, logger *zap.Logger) *BreakerSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &BreakerSender{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerSender) Send(ctx context.Context, to, subject, body string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, to, subject, body)
	})
	return err
}

// State reports the breaker state for health output.
func (b *BreakerSender) State() string {
	return b.cb.State().String()
}

// Dispatcher sends each message on its own goroutine. Failures are logged
// and counted, never returned.
type Dispatcher struct {
	sender  Sender
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, logger *zap.Logger, m *metrics.Metrics, timeout time.Duration) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{sender: sender, logger: logger, metrics: m, timeout: timeout}
}

func (d *Dispatcher) Notify(ctx context.Context, to, subject, body string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		// the request that triggered the message may already be finished
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		err := d.sender.Send(sendCtx, to, subject, body)
		switch {
		case err == nil:
			d.metrics.ObserveNotification("sent")
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			d.metrics.ObserveNotification("dropped")
			d.logger.Warn("notification dropped, mail circuit open",
				zap.String("to", to), zap.String("subject", subject))
		default:
			d.metrics.ObserveNotification("failed")
			d.logger.Error("notification failed",
				zap.String("to", to), zap.String("subject", subject), zap.Error(err))
		}
	}()
}

// Wait blocks until every in-flight message has been attempted.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
