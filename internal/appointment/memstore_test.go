package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hackgods/clinic-booking/internal/calendar"
	"github.com/hackgods/clinic-booking/internal/identity"
	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

// memState is the whole database. Transactions run one at a time against it
// and restore a snapshot when they fail, which mirrors the guarantees the
// Postgres store gives the service.
type memState struct {
	nextID        int64
	doctors       map[int64]Doctor
	patients      map[int64]Patient
	templates     map[int64]AvailabilityTemplate
	leaves        map[int64]Leave
	appointments  map[int64]Appointment
	medicines     map[int64]Medicine
	prescriptions map[int64]Prescription
	events        []EventLog
}

func newMemState() *memState {
	return &memState{
		nextID:        100,
		doctors:       map[int64]Doctor{},
		patients:      map[int64]Patient{},
		templates:     map[int64]AvailabilityTemplate{},
		leaves:        map[int64]Leave{},
		appointments:  map[int64]Appointment{},
		medicines:     map[int64]Medicine{},
		prescriptions: map[int64]Prescription{},
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (st *memState) clone() *memState {
	return &memState{
		nextID:        st.nextID,
		doctors:       cloneMap(st.doctors),
		patients:      cloneMap(st.patients),
		templates:     cloneMap(st.templates),
		leaves:        cloneMap(st.leaves),
		appointments:  cloneMap(st.appointments),
		medicines:     cloneMap(st.medicines),
		prescriptions: cloneMap(st.prescriptions),
		events:        append([]EventLog(nil), st.events...),
	}
}

func (st *memState) id() int64 {
	st.nextID++
	return st.nextID
}

type memStore struct {
	*memRepo
	mu sync.Mutex
	st *memState

	// beforeInsert runs inside InsertAppointment ahead of the uniqueness
	// check, standing in for a booking committed by another transaction.
	beforeInsert func(st *memState)
	// failEvent makes InsertEvent fail for the given event type.
	failEvent string
}

func newMemStore() *memStore {
	s := &memStore{st: newMemState()}
	s.memRepo = &memRepo{store: s}
	return s
}

func (s *memStore) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&memRepo{store: s, inTx: true}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

type memRepo struct {
	store *memStore
	inTx  bool
}

func (r *memRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *memRepo) state() *memState { return r.store.st }

func (r *memRepo) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	defer r.lock()()
	d, ok := r.state().doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *memRepo) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	defer r.lock()()
	p, ok := r.state().patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *memRepo) InsertTemplate(ctx context.Context, t AvailabilityTemplate) (*AvailabilityTemplate, error) {
	defer r.lock()()
	st := r.state()
	t.ID = st.id()
	t.CreatedAt = time.Now()
	st.templates[t.ID] = t
	return &t, nil
}

func (r *memRepo) ListTemplates(ctx context.Context, doctorID int64) ([]AvailabilityTemplate, error) {
	defer r.lock()()
	var out []AvailabilityTemplate
	for _, t := range r.state().templates {
		if t.DoctorID == doctorID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

func (r *memRepo) ListTemplatesForDay(ctx context.Context, doctorID int64, day calendar.Weekday) ([]AvailabilityTemplate, error) {
	defer r.lock()()
	var out []AvailabilityTemplate
	for _, t := range r.state().templates {
		if t.DoctorID == doctorID && t.Day == day {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memRepo) DeleteTemplate(ctx context.Context, doctorID, templateID int64) error {
	defer r.lock()()
	t, ok := r.state().templates[templateID]
	if !ok || t.DoctorID != doctorID {
		return ErrTemplateNotFound
	}
	delete(r.state().templates, templateID)
	return nil
}

func (r *memRepo) InsertLeave(ctx context.Context, l Leave) (*Leave, error) {
	defer r.lock()()
	st := r.state()
	l.ID = st.id()
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt
	st.leaves[l.ID] = l
	return &l, nil
}

func (r *memRepo) GetLeave(ctx context.Context, id int64) (*Leave, error) {
	defer r.lock()()
	l, ok := r.state().leaves[id]
	if !ok {
		return nil, ErrLeaveNotFound
	}
	return &l, nil
}

func (r *memRepo) GetLeaveForUpdate(ctx context.Context, id int64) (*Leave, error) {
	return r.GetLeave(ctx, id)
}

func (r *memRepo) ListLeaves(ctx context.Context, status LeaveStatus) ([]Leave, error) {
	defer r.lock()()
	var out []Leave
	for _, l := range r.state().leaves {
		if status == "" || l.Status == status {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) LeavesCovering(ctx context.Context, doctorID int64, day time.Time) ([]Leave, error) {
	defer r.lock()()
	var out []Leave
	for _, l := range r.state().leaves {
		if l.DoctorID == doctorID && l.Covers(day) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memRepo) SetLeaveStatus(ctx context.Context, id int64, status LeaveStatus) (*Leave, error) {
	defer r.lock()()
	l, ok := r.state().leaves[id]
	if !ok {
		return nil, ErrLeaveNotFound
	}
	l.Status = status
	l.UpdatedAt = time.Now()
	r.state().leaves[id] = l
	return &l, nil
}

func (r *memRepo) DeleteLeave(ctx context.Context, id int64) error {
	defer r.lock()()
	if _, ok := r.state().leaves[id]; !ok {
		return ErrLeaveNotFound
	}
	delete(r.state().leaves, id)
	return nil
}

func (r *memRepo) TakenSlots(ctx context.Context, doctorID int64, day time.Time) ([]string, error) {
	defer r.lock()()
	var out []string
	for _, a := range r.state().appointments {
		if a.DoctorID == doctorID && a.Date.Equal(calendar.Day(day)) && a.Status != StatusCancelled {
			out = append(out, a.TimeSlot)
		}
	}
	return out, nil
}

// activeClash reports whether another active appointment holds a's slot.
func (st *memState) activeClash(a Appointment) bool {
	for _, other := range st.appointments {
		if other.ID == a.ID || other.Status == StatusCancelled || a.Status == StatusCancelled {
			continue
		}
		if other.DoctorID == a.DoctorID && other.Date.Equal(a.Date) && other.TimeSlot == a.TimeSlot {
			return true
		}
	}
	return false
}

func (r *memRepo) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	defer r.lock()()
	if r.store.beforeInsert != nil {
		r.store.beforeInsert(r.state())
	}
	st := r.state()
	a.Date = calendar.Day(a.Date)
	if st.activeClash(a) {
		return nil, ErrSlotTaken
	}
	a.ID = st.id()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	st.appointments[a.ID] = a
	return &a, nil
}

func (r *memRepo) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	defer r.lock()()
	a, ok := r.state().appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepo) ListAppointmentsByPatient(ctx context.Context, patientID int64, limit, offset int) ([]Appointment, error) {
	defer r.lock()()
	var out []Appointment
	for _, a := range r.state().appointments {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) ListAppointmentsByDoctorDate(ctx context.Context, doctorID int64, day time.Time) ([]Appointment, error) {
	defer r.lock()()
	var out []Appointment
	for _, a := range r.state().appointments {
		if a.DoctorID == doctorID && a.Date.Equal(calendar.Day(day)) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeSlot < out[j].TimeSlot })
	return out, nil
}

func (r *memRepo) UpdateAppointmentStatus(ctx context.Context, id int64, from, to AppointmentStatus) (*Appointment, error) {
	defer r.lock()()
	a, ok := r.state().appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	r.state().appointments[id] = a
	return &a, nil
}

func (r *memRepo) UpcomingInRangeForUpdate(ctx context.Context, doctorID int64, from, to time.Time) ([]Appointment, error) {
	defer r.lock()()
	lf := Leave{FromDate: from, ToDate: to}
	var out []Appointment
	for _, a := range r.state().appointments {
		if a.DoctorID == doctorID && a.Status == StatusUpcoming && lf.Covers(a.Date) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) ReassignAppointments(ctx context.Context, ids []int64, doctorID int64) (int, error) {
	defer r.lock()()
	st := r.state()
	for _, id := range ids {
		a := st.appointments[id]
		a.DoctorID = doctorID
		st.appointments[id] = a
	}
	// the unique index is checked over the statement's final state
	for _, id := range ids {
		if st.activeClash(st.appointments[id]) {
			return 0, ErrSlotTaken
		}
	}
	return len(ids), nil
}

func (r *memRepo) InsertMedicine(ctx context.Context, m Medicine) (*Medicine, error) {
	defer r.lock()()
	st := r.state()
	for _, existing := range st.medicines {
		if existing.Name == m.Name {
			return nil, invalid("medicine name already exists")
		}
	}
	m.ID = st.id()
	st.medicines[m.ID] = m
	return &m, nil
}

func (r *memRepo) ListMedicines(ctx context.Context) ([]Medicine, error) {
	defer r.lock()()
	var out []Medicine
	for _, m := range r.state().medicines {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memRepo) LockMedicines(ctx context.Context, ids []int64) ([]Medicine, error) {
	defer r.lock()()
	var out []Medicine
	for _, id := range ids {
		if m, ok := r.state().medicines[id]; ok {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) AdjustMedicine(ctx context.Context, id int64, delta int) (*Medicine, error) {
	defer r.lock()()
	m, ok := r.state().medicines[id]
	if !ok {
		return nil, ErrMedicineNotFound
	}
	if m.Quantity+delta < 0 {
		return nil, ErrStockExhausted
	}
	m.Quantity += delta
	r.state().medicines[id] = m
	return &m, nil
}

func (r *memRepo) InsertPrescription(ctx context.Context, p Prescription) (*Prescription, error) {
	defer r.lock()()
	st := r.state()
	p.ID = st.id()
	p.CreatedAt = time.Now()
	st.prescriptions[p.ID] = p
	return &p, nil
}

func (r *memRepo) GetPrescription(ctx context.Context, id int64) (*Prescription, error) {
	defer r.lock()()
	p, ok := r.state().prescriptions[id]
	if !ok {
		return nil, ErrPrescriptionNotFound
	}
	return &p, nil
}

func (r *memRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	defer r.lock()()
	if r.store.failEvent != "" && r.store.failEvent == ev.EventType {
		return errEventWrite
	}
	st := r.state()
	ev.ID = st.id()
	st.events = append(st.events, ev)
	return nil
}

// Seeding and inspection helpers

var errEventWrite = errors.New("event store unavailable")

func (s *memStore) addDoctor(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.doctors[id] = Doctor{ID: id, Name: name, Email: name + "@clinic.test"}
}

func (s *memStore) addPatient(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.patients[id] = Patient{ID: id, Name: name, Email: name + "@campus.test", Category: "student"}
}

func (s *memStore) addTemplate(t *testing.T, doctorID int64, day calendar.Weekday, start, end string) {
	t.Helper()
	from, err := calendar.ParseClock(start)
	if err != nil {
		t.Fatal(err)
	}
	to, err := calendar.ParseClock(end)
	if err != nil {
		t.Fatal(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.st.id()
	s.st.templates[id] = AvailabilityTemplate{ID: id, DoctorID: doctorID, Day: day, Start: from, End: to}
}

func (s *memStore) addLeave(doctorID int64, substituteID *int64, from, to time.Time, status LeaveStatus) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.st.id()
	s.st.leaves[id] = Leave{ID: id, DoctorID: doctorID, SubstituteID: substituteID, FromDate: from, ToDate: to, Status: status}
	return id
}

func (s *memStore) addAppointment(doctorID, patientID int64, day time.Time, slot string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.st.id()
	s.st.appointments[id] = Appointment{
		ID: id, DoctorID: doctorID, PatientID: patientID,
		Date: calendar.Day(day), TimeSlot: slot, Status: StatusUpcoming,
	}
	return id
}

func (s *memStore) addMedicine(name string, qty int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.st.id()
	s.st.medicines[id] = Medicine{ID: id, Name: name, Quantity: qty, Unit: "tablet"}
	return id
}

func (s *memStore) appointment(id int64) Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.appointments[id]
}

func (s *memStore) medicine(id int64) Medicine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.medicines[id]
}

func (s *memStore) countAppointments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.appointments)
}

func (s *memStore) countPrescriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.prescriptions)
}

func (s *memStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.st.events))
	for i, ev := range s.st.events {
		out[i] = ev.EventType
	}
	return out
}

// Collaborator fakes

type sentMessage struct {
	to, subject, body string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (n *recordingNotifier) Notify(ctx context.Context, to, subject, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{to, subject, body})
}

func (n *recordingNotifier) recipients() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	for i, m := range n.sent {
		out[i] = m.to
	}
	return out
}

type recordingReminders struct {
	mu        sync.Mutex
	scheduled []int64
	err       error
}

func (r *recordingReminders) ScheduleReminder(ctx context.Context, appt Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.scheduled = append(r.scheduled, appt.ID)
	return nil
}

// fakeLocker grants a lock per key without blocking; a second holder is refused.
type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	err      error
	acquired []string
}

func (l *fakeLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if l.err != nil {
		return l.err
	}
	l.mu.Lock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		l.mu.Unlock()
		return redisclient.ErrLockNotAcquired
	}
	l.held[key] = true
	l.acquired = append(l.acquired, key)
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}

// Fixture

var (
	admin   = identity.Admin{ID: 1}
	drSeven = identity.Doctor{ID: 7, Specialization: "General"}
	drThree = identity.Doctor{ID: 3}
	student = identity.Student{ID: 21, RollNumber: "21CS001"}
)

// fixedNow is a Saturday; 2024-06-03 and 2024-06-10 are the following Mondays.
var fixedNow = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := calendar.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

type fixture struct {
	store     *memStore
	notifier  *recordingNotifier
	reminders *recordingReminders
	svc       *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	store := newMemStore()
	store.addDoctor(3, "asha")
	store.addDoctor(7, "ravi")
	store.addDoctor(9, "meera")
	store.addPatient(21, "kiran")
	store.addPatient(22, "lena")

	f := &fixture{
		store:     store,
		notifier:  &recordingNotifier{},
		reminders: &recordingReminders{},
	}
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithNotifier(f.notifier),
		WithReminders(f.reminders),
	}
	f.svc = NewService(store, nil, append(base, opts...)...)
	return f
}
