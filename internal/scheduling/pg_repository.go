package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Name,
		&d.Specialty,
		&d.Fee,
		&d.Status,
		&d.AvailableDays,
		&d.AvailableHours,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
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

	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.StartTime,
		&s.EndTime,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.SlotID,
		&a.PatientID,
		&a.DoctorID,
		&a.StartTime,
		&a.Status,
		&a.Notes,
		&a.VideoRoomID,
		&a.VideoLink,
		&a.ReminderSentAt,
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

const slotColumns = `id, doctor_id, start_time, end_time, status, created_at, updated_at`

const appointmentColumns = `id, slot_id, patient_id, doctor_id, start_time, status, notes,
	video_room_id, video_link, reminder_sent_at, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, specialty, fee, status, available_days, available_hours, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) ListApprovedDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, name, specialty, fee, status, available_days, available_hours, created_at, updated_at
		FROM doctors
		WHERE status = 'approved'
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	return result, rows.Err()
}

func (r *PgRepository) UpdateDoctorTemplate(ctx context.Context, doctorID uuid.UUID, days, hours string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE doctors
		SET available_days = $2,
		    available_hours = $3,
		    updated_at = now()
		WHERE id = $1
	`, doctorID, days, hours)
	if err != nil {
		return fmt.Errorf("update doctor template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlotsInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE doctor_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSlots(rows)
}

func (r *PgRepository) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE doctor_id = $1
		  AND status = 'available'
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSlots(rows)
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) CreateSlot(ctx context.Context, slot Slot) (*Slot, error) {
	id := slot.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO slots (id, doctor_id, start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+slotColumns+`
	`, id, slot.DoctorID, slot.StartTime, slot.EndTime, slot.Status)

	return scanSlot(row)
}

func (r *PgRepository) DeleteAvailableSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM slots
		WHERE id = $1
		  AND status = 'available'
	`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a booked slot from a missing one.
		if _, err := r.GetSlotByID(ctx, id); err != nil {
			return err
		}
		return ErrSlotNotDeletable
	}
	return nil
}

func (r *PgRepository) UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+slotColumns+`
	`, id, to, from)

	slot, err := scanSlot(row)
	if errors.Is(err, ErrSlotNotFound) {
		return nil, ErrSlotNotAvailable
	}
	return slot, err
}

func (r *PgRepository) ReplaceTemplateSlots(ctx context.Context, doctorID uuid.UUID, deleteIDs []uuid.UUID, inserts []Slot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if len(deleteIDs) > 0 {
		// Never delete a slot that got booked between planning and commit.
		_, err = tx.Exec(ctx, `
			DELETE FROM slots
			WHERE doctor_id = $1
			  AND status = 'available'
			  AND id = ANY($2)
		`, doctorID, deleteIDs)
		if err != nil {
			return fmt.Errorf("delete template slots: %w", err)
		}
	}

	for _, s := range inserts {
		id := s.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO slots (id, doctor_id, start_time, end_time, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'available', now(), now())
		`, id, doctorID, s.StartTime, s.EndTime)
		if err != nil {
			return fmt.Errorf("insert template slot: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) BookSlot(ctx context.Context, slotID, patientID uuid.UUID, notes string, now time.Time) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// The status flip is the atomic check-and-set: whichever booker's
	// UPDATE matches first wins, the loser sees zero rows.
	row := tx.QueryRow(ctx, `
		UPDATE slots
		SET status = 'booked',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'available'
		RETURNING `+slotColumns+`
	`, slotID)

	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			// Distinguish a taken slot from a missing one.
			if _, getErr := r.GetSlotByID(ctx, slotID); getErr != nil {
				return nil, getErr
			}
			return nil, ErrSlotNotAvailable
		}
		return nil, err
	}

	row = tx.QueryRow(ctx, `
		INSERT INTO appointments (id, slot_id, patient_id, doctor_id, start_time, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $7)
		RETURNING `+appointmentColumns+`
	`, uuid.New(), slot.ID, patientID, slot.DoctorID, slot.StartTime, notes, now)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("create pending appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByRoomID(ctx context.Context, roomID string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE video_room_id = $1
	`, roomID)

	appt, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrRoomNotFound
	}
	return appt, err
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, status *AppointmentStatus) ([]Appointment, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status != nil {
		rows, err = r.pool.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE doctor_id = $1
			  AND status = $2
			ORDER BY start_time
		`, doctorID, *status)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE doctor_id = $1
			ORDER BY start_time DESC
		`, doctorID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) AcceptAppointment(ctx context.Context, id uuid.UUID, roomID, link string, now time.Time) (*Appointment, error) {
	// COALESCE keeps any token a previous accept already assigned.
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'accepted',
		    video_room_id = COALESCE(video_room_id, $2),
		    video_link = COALESCE(video_link, $3),
		    updated_at = $4
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+appointmentColumns+`
	`, id, roomID, link, now)

	appt, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrNotPending
	}
	return appt, err
}

func (r *PgRepository) EnsureVideoRoom(ctx context.Context, id uuid.UUID, roomID, link string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET video_room_id = COALESCE(video_room_id, $2),
		    video_link = COALESCE(video_link, $3)
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, roomID, link)
	return scanAppointment(row)
}

func (r *PgRepository) TransitionAndReleaseSlot(ctx context.Context, id uuid.UUID, to AppointmentStatus, now time.Time) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = $3
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+appointmentColumns+`
	`, id, to, now)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrNotPending
		}
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE slots
		SET status = 'available',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'booked'
	`, appt.SlotID)
	if err != nil {
		return nil, fmt.Errorf("release slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) ClaimDueReminders(ctx context.Context, now, until time.Time) ([]ReminderTarget, error) {
	// The conditional UPDATE is the idempotency marker: once a row's
	// reminder_sent_at is set, no later scan can claim it again.
	rows, err := r.pool.Query(ctx, `
		WITH claimed AS (
			UPDATE appointments
			SET reminder_sent_at = $1,
			    updated_at = $1
			WHERE status = 'accepted'
			  AND start_time >= $1
			  AND start_time <= $2
			  AND reminder_sent_at IS NULL
			RETURNING `+appointmentColumns+`
		)
		SELECT c.*, d.user_id, p.user_id, d.name, p.name
		FROM claimed c
		JOIN doctors d ON d.id = c.doctor_id
		JOIN patients p ON p.id = c.patient_id
	`, now, until)
	if err != nil {
		return nil, fmt.Errorf("claim due reminders: %w", err)
	}
	defer rows.Close()

	var result []ReminderTarget
	for rows.Next() {
		var t ReminderTarget
		err := rows.Scan(
			&t.ID,
			&t.SlotID,
			&t.PatientID,
			&t.DoctorID,
			&t.StartTime,
			&t.Status,
			&t.Notes,
			&t.VideoRoomID,
			&t.VideoLink,
			&t.ReminderSentAt,
			&t.CreatedAt,
			&t.UpdatedAt,
			&t.DoctorUserID,
			&t.PatientUserID,
			&t.DoctorName,
			&t.PatientName,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}

	return result, rows.Err()
}
