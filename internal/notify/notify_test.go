package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/metrics"
)

type stubSender struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubSender) Send(ctx context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, to)
	return s.err
}

func (s *stubSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestDispatcherDelivers(t *testing.T) {
	sender := &stubSender{}
	m := metrics.New(nil)
	d := NewDispatcher(sender, zap.NewNop(), m, 0)

	d.Notify(context.Background(), "a@x.test", "hi", "body")
	d.Notify(context.Background(), "b@x.test", "hi", "body")
	d.Wait()

	if sender.count() != 2 {
		t.Fatalf("sent %d, want 2", sender.count())
	}
}

func TestDispatcherSurvivesCancelledContext(t *testing.T) {
	sender := &stubSender{}
	d := NewDispatcher(sender, nil, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Notify(ctx, "a@x.test", "hi", "body")
	d.Wait()

	if sender.count() != 1 {
		t.Fatalf("sent %d, want 1", sender.count())
	}
}

func TestDispatcherSwallowsFailures(t *testing.T) {
	sender := &stubSender{err: errors.New("smtp down")}
	d := NewDispatcher(sender, nil, nil, 0)

	d.Notify(context.Background(), "a@x.test", "hi", "body")
	d.Wait()

	if sender.count() != 1 {
		t.Fatalf("sent %d, want 1", sender.count())
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	sender := &stubSender{err: errors.New("smtp down")}
	b := NewBreakerSender(sender, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := b.Send(ctx, "a@x.test", "s", "b"); err == nil {
			t.Fatalf("attempt %d succeeded", i)
		}
	}
	if b.State() != "open" {
		t.Fatalf("state = %s, want open", b.State())
	}

	err := b.Send(ctx, "a@x.test", "s", "b")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want open state", err)
	}
	if sender.count() != 5 {
		t.Fatalf("underlying sends = %d, want 5", sender.count())
	}
}

func TestLogSender(t *testing.T) {
	var s Sender = LogSender{Logger: zap.NewNop()}
	if err := s.Send(context.Background(), "a@x.test", "Appointment confirmed", strings.Repeat("x", 10)); err != nil {
		t.Fatal(err)
	}
}

func TestNewSenderPicksTransport(t *testing.T) {
	if _, ok := NewSender(SMTPConfig{}, nil).(LogSender); !ok {
		t.Error("empty host should log only")
	}
	s := NewSender(SMTPConfig{Host: "smtp.clinic.test", Port: 587, From: "no-reply@clinic.test"}, nil)
	b, ok := s.(*BreakerSender)
	if !ok {
		t.Fatalf("got %T, want *BreakerSender", s)
	}
	if b.State() != "closed" {
		t.Errorf("new breaker state = %s", b.State())
	}
}
