package appointment

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hackgods/clinic-booking/internal/identity"
)

func int64p(v int64) *int64 { return &v }

func TestRequestLeave(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	l, err := f.svc.RequestLeave(ctx, drThree, LeaveRequest{
		SubstituteID: int64p(9),
		FromDate:     date(t, "2024-06-10"),
		ToDate:       date(t, "2024-06-12"),
		Reason:       " conference ",
	})
	if err != nil {
		t.Fatalf("RequestLeave: %v", err)
	}
	if l.DoctorID != 3 || l.Status != LeavePending || l.Reason != "conference" {
		t.Fatalf("unexpected leave %+v", l)
	}

	cases := []struct {
		name  string
		actor identity.Actor
		req   LeaveRequest
		want  error
	}{
		{"reversed range", drThree, LeaveRequest{FromDate: date(t, "2024-06-12"), ToDate: date(t, "2024-06-10")}, ErrInvalidInput},
		{"self substitute", drThree, LeaveRequest{SubstituteID: int64p(3), FromDate: date(t, "2024-06-10"), ToDate: date(t, "2024-06-10")}, ErrInvalidInput},
		{"unknown substitute", drThree, LeaveRequest{SubstituteID: int64p(404), FromDate: date(t, "2024-06-10"), ToDate: date(t, "2024-06-10")}, ErrNotFound},
		{"other doctor", drSeven, LeaveRequest{DoctorID: 3, FromDate: date(t, "2024-06-10"), ToDate: date(t, "2024-06-10")}, ErrForbidden},
		{"patient", student, LeaveRequest{DoctorID: 3, FromDate: date(t, "2024-06-10"), ToDate: date(t, "2024-06-10")}, ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.RequestLeave(ctx, tc.actor, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestApproveLeaveReassignsAppointments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a1 := f.store.addAppointment(3, 21, date(t, "2024-06-10"), "09:00")
	a2 := f.store.addAppointment(3, 22, date(t, "2024-06-12"), "14:00")
	outside := f.store.addAppointment(3, 21, date(t, "2024-06-13"), "09:00")
	leaveID := f.store.addLeave(3, int64p(9), date(t, "2024-06-10"), date(t, "2024-06-12"), LeavePending)

	res, err := f.svc.ApproveLeave(ctx, admin, leaveID)
	if err != nil {
		t.Fatalf("ApproveLeave: %v", err)
	}
	if res.Reassigned != 2 || len(res.Skipped) != 0 {
		t.Fatalf("reassigned=%d skipped=%v, want 2 and none", res.Reassigned, res.Skipped)
	}
	if res.Leave.Status != LeaveApproved {
		t.Fatalf("leave status = %s", res.Leave.Status)
	}
	for _, id := range []int64{a1, a2} {
		if got := f.store.appointment(id).DoctorID; got != 9 {
			t.Fatalf("appointment %d doctor = %d, want 9", id, got)
		}
	}
	if got := f.store.appointment(outside).DoctorID; got != 3 {
		t.Fatalf("appointment outside range moved to %d", got)
	}

	got := f.notifier.recipients()
	want := []string{"asha@clinic.test", "meera@clinic.test"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("notified %v, want %v", got, want)
	}
}

func TestApproveLeaveLeavesFinishedAppointments(t *testing.T) {
	f := newFixture(t)
	done := f.store.addAppointment(3, 21, date(t, "2024-06-10"), "09:00")
	f.store.mu.Lock()
	a := f.store.st.appointments[done]
	a.Status = StatusCompleted
	f.store.st.appointments[done] = a
	f.store.mu.Unlock()
	leaveID := f.store.addLeave(3, int64p(9), date(t, "2024-06-10"), date(t, "2024-06-10"), LeavePending)

	res, err := f.svc.ApproveLeave(context.Background(), admin, leaveID)
	if err != nil {
		t.Fatalf("ApproveLeave: %v", err)
	}
	if res.Reassigned != 0 || f.store.appointment(done).DoctorID != 3 {
		t.Fatalf("completed appointment was reassigned")
	}
}

func TestApproveLeaveSubstituteConflict(t *testing.T) {
	setup := func(t *testing.T, policy ReassignPolicy) (*fixture, int64, int64, int64) {
		f := newFixture(t, WithReassignPolicy(policy))
		clash := f.store.addAppointment(3, 21, date(t, "2024-06-10"), "09:00")
		free := f.store.addAppointment(3, 22, date(t, "2024-06-11"), "09:00")
		f.store.addAppointment(9, 22, date(t, "2024-06-10"), "09:00")
		leaveID := f.store.addLeave(3, int64p(9), date(t, "2024-06-10"), date(t, "2024-06-12"), LeavePending)
		return f, leaveID, clash, free
	}

	t.Run("unchecked rolls back", func(t *testing.T) {
		f, leaveID, clash, free := setup(t, ReassignUnchecked)
		_, err := f.svc.ApproveLeave(context.Background(), admin, leaveID)
		if !errors.Is(err, ErrSlotConflict) {
			t.Fatalf("err = %v, want slot conflict", err)
		}
		l, _ := f.store.GetLeave(context.Background(), leaveID)
		if l.Status != LeavePending {
			t.Fatalf("leave status = %s, want pending", l.Status)
		}
		if f.store.appointment(clash).DoctorID != 3 || f.store.appointment(free).DoctorID != 3 {
			t.Fatal("appointments moved despite rollback")
		}
	})

	t.Run("skip keeps clashing appointment", func(t *testing.T) {
		f, leaveID, clash, free := setup(t, ReassignSkip)
		res, err := f.svc.ApproveLeave(context.Background(), admin, leaveID)
		if err != nil {
			t.Fatalf("ApproveLeave: %v", err)
		}
		if res.Reassigned != 1 || !reflect.DeepEqual(res.Skipped, []int64{clash}) {
			t.Fatalf("reassigned=%d skipped=%v", res.Reassigned, res.Skipped)
		}
		if f.store.appointment(clash).DoctorID != 3 || f.store.appointment(free).DoctorID != 9 {
			t.Fatal("wrong appointments moved")
		}
	})

	t.Run("reject refuses approval", func(t *testing.T) {
		f, leaveID, _, free := setup(t, ReassignReject)
		_, err := f.svc.ApproveLeave(context.Background(), admin, leaveID)
		if !errors.Is(err, ErrSubstituteBusy) {
			t.Fatalf("err = %v, want substitute busy", err)
		}
		if f.store.appointment(free).DoctorID != 3 {
			t.Fatal("appointment moved despite rejection")
		}
	})
}

func TestApproveLeavePreconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	noSub := f.store.addLeave(3, nil, date(t, "2024-06-10"), date(t, "2024-06-10"), LeavePending)
	approved := f.store.addLeave(3, int64p(9), date(t, "2024-06-20"), date(t, "2024-06-21"), LeaveApproved)

	if _, err := f.svc.ApproveLeave(ctx, drThree, noSub); !errors.Is(err, ErrForbidden) {
		t.Fatalf("doctor approving: err = %v, want forbidden", err)
	}
	if _, err := f.svc.ApproveLeave(ctx, admin, noSub); !errors.Is(err, ErrNoSubstitute) {
		t.Fatalf("no substitute: err = %v", err)
	}
	if _, err := f.svc.ApproveLeave(ctx, admin, approved); !errors.Is(err, ErrLeaveNotPending) {
		t.Fatalf("already approved: err = %v", err)
	}
	if _, err := f.svc.ApproveLeave(ctx, admin, 404); !errors.Is(err, ErrLeaveNotFound) {
		t.Fatalf("missing: err = %v", err)
	}
}

func TestRejectLeaveDeletesIt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	appt := f.store.addAppointment(3, 21, date(t, "2024-06-10"), "09:00")
	leaveID := f.store.addLeave(3, int64p(9), date(t, "2024-06-10"), date(t, "2024-06-10"), LeavePending)

	if err := f.svc.RejectLeave(ctx, admin, leaveID); err != nil {
		t.Fatalf("RejectLeave: %v", err)
	}
	if _, err := f.store.GetLeave(ctx, leaveID); !errors.Is(err, ErrLeaveNotFound) {
		t.Fatalf("leave still present: %v", err)
	}
	if f.store.appointment(appt).DoctorID != 3 {
		t.Fatal("rejecting a leave moved an appointment")
	}
	if err := f.svc.RejectLeave(ctx, admin, leaveID); !errors.Is(err, ErrLeaveNotFound) {
		t.Fatalf("second reject: err = %v", err)
	}
}

func TestListLeavesScopesDoctors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.addLeave(3, nil, date(t, "2024-06-10"), date(t, "2024-06-10"), LeavePending)
	f.store.addLeave(7, nil, date(t, "2024-06-10"), date(t, "2024-06-10"), LeavePending)
	f.store.addLeave(7, nil, date(t, "2024-06-20"), date(t, "2024-06-20"), LeaveApproved)

	all, err := f.svc.ListLeaves(ctx, admin, LeavePending)
	if err != nil || len(all) != 2 {
		t.Fatalf("admin pending = %d, %v", len(all), err)
	}
	own, err := f.svc.ListLeaves(ctx, drSeven, "")
	if err != nil || len(own) != 2 {
		t.Fatalf("doctor 7 leaves = %d, %v", len(own), err)
	}
	if _, err := f.svc.ListLeaves(ctx, admin, "archived"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad status: err = %v", err)
	}
	if _, err := f.svc.ListLeaves(ctx, student, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("patient: err = %v", err)
	}
}
