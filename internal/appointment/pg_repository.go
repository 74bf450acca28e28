package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-booking/internal/calendar"
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"

	activeSlotIndex       = "appointments_active_slot_idx"
	medicineQuantityCheck = "medicines_quantity_check"
	medicineNameKey       = "medicines_name_key"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db dbtx
}

// PgStore runs repository calls on the pool and units of work in
// read-committed transactions.
type PgStore struct {
	*PgRepository
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{PgRepository: &PgRepository{db: pool}, pool: pool}
}

func (s *PgStore) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(&PgRepository{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return translatePgError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// translatePgError maps constraint violations that carry domain meaning to
// the service's error kinds.
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == activeSlotIndex:
		return ErrSlotTaken
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == medicineNameKey:
		return invalid("medicine name already exists")
	case pgErr.Code == pgCheckViolation && pgErr.ConstraintName == medicineQuantityCheck:
		return ErrStockExhausted
	}
	return err
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Email, &d.Specialization, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Category, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanTemplate(row pgx.Row) (*AvailabilityTemplate, error) {
	var t AvailabilityTemplate
	var day, start, end int16

	err := row.Scan(&t.ID, &t.DoctorID, &day, &start, &end, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	t.Day = calendar.Weekday(day)
	t.Start = calendar.Clock(start)
	t.End = calendar.Clock(end)
	return &t, nil
}

func scanLeave(row pgx.Row) (*Leave, error) {
	var l Leave
	err := row.Scan(
		&l.ID,
		&l.DoctorID,
		&l.SubstituteID,
		&l.FromDate,
		&l.ToDate,
		&l.Status,
		&l.Reason,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeaveNotFound
		}
		return nil, err
	}
	return &l, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&a.TimeSlot,
		&a.Status,
		&a.Description,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.Name, &m.Quantity, &m.Unit, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMedicineNotFound
		}
		return nil, err
	}
	return &m, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const (
	templateColumns    = `id, doctor_id, weekday, start_min, end_min, created_at`
	leaveColumns       = `id, doctor_id, substitute_id, from_date, to_date, status, reason, created_at, updated_at`
	appointmentColumns = `id, doctor_id, patient_id, appointment_date, time_slot, status, description, created_at, updated_at`
	medicineColumns    = `id, name, quantity, unit, updated_at`
)

// Interface methods

func (r *PgRepository) GetDoctor(ctx context.Context, id int64) (*Doctor, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, specialization, created_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, category, created_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) InsertTemplate(ctx context.Context, t AvailabilityTemplate) (*AvailabilityTemplate, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO availability_templates (doctor_id, weekday, start_min, end_min)
		VALUES ($1, $2, $3, $4)
		RETURNING `+templateColumns,
		t.DoctorID, int16(t.Day), int16(t.Start), int16(t.End))
	return scanTemplate(row)
}

func (r *PgRepository) ListTemplates(ctx context.Context, doctorID int64) ([]AvailabilityTemplate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+templateColumns+`
		FROM availability_templates
		WHERE doctor_id = $1
		ORDER BY weekday, start_min
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	return collect(rows, scanTemplate)
}

func (r *PgRepository) ListTemplatesForDay(ctx context.Context, doctorID int64, day calendar.Weekday) ([]AvailabilityTemplate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+templateColumns+`
		FROM availability_templates
		WHERE doctor_id = $1 AND weekday = $2
		ORDER BY start_min
	`, doctorID, int16(day))
	if err != nil {
		return nil, fmt.Errorf("query templates for day: %w", err)
	}
	return collect(rows, scanTemplate)
}

func (r *PgRepository) DeleteTemplate(ctx context.Context, doctorID, templateID int64) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM availability_templates
		WHERE id = $1 AND doctor_id = $2
	`, templateID, doctorID)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func (r *PgRepository) InsertLeave(ctx context.Context, l Leave) (*Leave, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO leaves (doctor_id, substitute_id, from_date, to_date, status, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+leaveColumns,
		l.DoctorID, l.SubstituteID, calendar.Day(l.FromDate), calendar.Day(l.ToDate), l.Status, l.Reason)
	return scanLeave(row)
}

func (r *PgRepository) GetLeave(ctx context.Context, id int64) (*Leave, error) {
	row := r.db.QueryRow(ctx, `SELECT `+leaveColumns+` FROM leaves WHERE id = $1`, id)
	return scanLeave(row)
}

func (r *PgRepository) GetLeaveForUpdate(ctx context.Context, id int64) (*Leave, error) {
	row := r.db.QueryRow(ctx, `SELECT `+leaveColumns+` FROM leaves WHERE id = $1 FOR UPDATE`, id)
	return scanLeave(row)
}

func (r *PgRepository) ListLeaves(ctx context.Context, status LeaveStatus) ([]Leave, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+leaveColumns+`
		FROM leaves
		WHERE $1 = '' OR status = $1
		ORDER BY from_date, id
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("query leaves: %w", err)
	}
	return collect(rows, scanLeave)
}

func (r *PgRepository) LeavesCovering(ctx context.Context, doctorID int64, day time.Time) ([]Leave, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+leaveColumns+`
		FROM leaves
		WHERE doctor_id = $1
		  AND from_date <= $2
		  AND to_date >= $2
	`, doctorID, calendar.Day(day))
	if err != nil {
		return nil, fmt.Errorf("query covering leaves: %w", err)
	}
	return collect(rows, scanLeave)
}

func (r *PgRepository) SetLeaveStatus(ctx context.Context, id int64, status LeaveStatus) (*Leave, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE leaves
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+leaveColumns,
		id, status)
	return scanLeave(row)
}

func (r *PgRepository) DeleteLeave(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM leaves WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete leave: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaveNotFound
	}
	return nil
}

func (r *PgRepository) TakenSlots(ctx context.Context, doctorID int64, day time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT time_slot
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND status <> 'cancelled'
	`, doctorID, calendar.Day(day))
	if err != nil {
		return nil, fmt.Errorf("query taken slots: %w", err)
	}
	defer rows.Close()

	var slots []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (doctor_id, patient_id, appointment_date, time_slot, status, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+appointmentColumns,
		a.DoctorID, a.PatientID, calendar.Day(a.Date), a.TimeSlot, a.Status, a.Description)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, translatePgError(err)
	}
	return appt, nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID int64, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date DESC, time_slot DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query appointments by patient: %w", err)
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) ListAppointmentsByDoctorDate(ctx context.Context, doctorID int64, day time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2
		ORDER BY time_slot
	`, doctorID, calendar.Day(day))
	if err != nil {
		return nil, fmt.Errorf("query appointments by doctor: %w", err)
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id int64, from, to AppointmentStatus) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, translatePgError(err)
	}
	return appt, nil
}

func (r *PgRepository) UpcomingInRangeForUpdate(ctx context.Context, doctorID int64, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date BETWEEN $2 AND $3
		  AND status = 'upcoming'
		ORDER BY appointment_date, time_slot
		FOR UPDATE
	`, doctorID, calendar.Day(from), calendar.Day(to))
	if err != nil {
		return nil, fmt.Errorf("query upcoming appointments: %w", err)
	}
	return collect(rows, scanAppointment)
}

func (r *PgRepository) ReassignAppointments(ctx context.Context, ids []int64, doctorID int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET doctor_id = $2,
		    updated_at = now()
		WHERE id = ANY($1)
	`, ids, doctorID)
	if err != nil {
		return 0, translatePgError(fmt.Errorf("reassign appointments: %w", err))
	}
	return int(tag.RowsAffected()), nil
}

func (r *PgRepository) InsertMedicine(ctx context.Context, m Medicine) (*Medicine, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO medicines (name, quantity, unit)
		VALUES ($1, $2, $3)
		RETURNING `+medicineColumns,
		m.Name, m.Quantity, m.Unit)

	med, err := scanMedicine(row)
	if err != nil {
		return nil, translatePgError(err)
	}
	return med, nil
}

func (r *PgRepository) ListMedicines(ctx context.Context) ([]Medicine, error) {
	rows, err := r.db.Query(ctx, `SELECT `+medicineColumns+` FROM medicines ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query medicines: %w", err)
	}
	return collect(rows, scanMedicine)
}

func (r *PgRepository) LockMedicines(ctx context.Context, ids []int64) ([]Medicine, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+medicineColumns+`
		FROM medicines
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("lock medicines: %w", err)
	}
	return collect(rows, scanMedicine)
}

func (r *PgRepository) AdjustMedicine(ctx context.Context, id int64, delta int) (*Medicine, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE medicines
		SET quantity = quantity + $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+medicineColumns,
		id, delta)

	med, err := scanMedicine(row)
	if err != nil {
		return nil, translatePgError(err)
	}
	return med, nil
}

func (r *PgRepository) InsertPrescription(ctx context.Context, p Prescription) (*Prescription, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO prescriptions (appointment_id, doctor_id, patient_id, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, p.AppointmentID, p.DoctorID, p.PatientID, p.Description).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert prescription: %w", err)
	}

	for _, line := range p.Lines {
		_, err := r.db.Exec(ctx, `
			INSERT INTO prescription_medicines (prescription_id, medicine_id, quantity, dosage, duration, frequency)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, p.ID, line.MedicineID, line.Quantity, line.Dosage, line.Duration, line.Frequency)
		if err != nil {
			return nil, fmt.Errorf("insert prescription line %d: %w", line.MedicineID, err)
		}
	}

	return &p, nil
}

func (r *PgRepository) GetPrescription(ctx context.Context, id int64) (*Prescription, error) {
	var p Prescription
	err := r.db.QueryRow(ctx, `
		SELECT id, appointment_id, doctor_id, patient_id, description, created_at
		FROM prescriptions
		WHERE id = $1
	`, id).Scan(&p.ID, &p.AppointmentID, &p.DoctorID, &p.PatientID, &p.Description, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT medicine_id, quantity, dosage, duration, frequency
		FROM prescription_medicines
		WHERE prescription_id = $1
		ORDER BY medicine_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query prescription lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l PrescriptionLine
		if err := rows.Scan(&l.MedicineID, &l.Quantity, &l.Dosage, &l.Duration, &l.Frequency); err != nil {
			return nil, err
		}
		p.Lines = append(p.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &p, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, aggregate_type, aggregate_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AggregateType, ev.AggregateID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
