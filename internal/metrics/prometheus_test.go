package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveBooking("success", time.Millisecond)
	m.ObserveLeave(2, 1)
	m.ObserveOutbox(1, 0)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New(nil)
	m.ObserveBooking("conflict", 3*time.Millisecond)
	m.ObserveLeave(2, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `clinic_bookings_total{outcome="conflict"} 1`) {
		t.Errorf("expected conflict booking counter in output:\n%s", body)
	}
	if !strings.Contains(body, "clinic_leave_reassigned_appointments_total 2") {
		t.Errorf("expected reassigned counter in output:\n%s", body)
	}
}

func TestNewUsesSeparateRegistries(t *testing.T) {
	// registering twice on the same registry would panic
	New(nil)
	New(nil)
}
