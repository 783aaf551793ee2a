package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthconnect/scheduling/internal/clock"
	redisclient "github.com/healthconnect/scheduling/internal/redis"
)

// Notification types emitted on lifecycle transitions.
const (
	NotifyTypeAppointment = "appointment"
	NotifyTypeAccepted    = "appointment_accepted"
	NotifyTypeRejected    = "appointment_rejected"
	NotifyTypeCancelled   = "appointment_cancelled"
)

// Actor is the authenticated principal acting on an appointment: the user
// identity plus the linked doctor or patient profile id.
type Actor struct {
	UserID    uuid.UUID
	Name      string
	Role      string // "patient", "doctor", "admin"
	ProfileID uuid.UUID
}

func (a Actor) IsDoctor() bool  { return a.Role == "doctor" }
func (a Actor) IsPatient() bool { return a.Role == "patient" }

// Notifier delivers human-facing notifications for lifecycle transitions.
// Implemented by the notification dispatcher; failures are logged, never
// propagated, since the transition has already committed.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, title, content, ntype string, relatedID *uuid.UUID, urgent bool) error
}

// BookingConfig carries the booking-path policy knobs.
type BookingConfig struct {
	RequireApprovedDoctor bool
}

// Booking converts available slots into appointments and drives the
// appointment lifecycle: pending -> accepted | rejected | cancelled.
type Booking struct {
	repo     Repository
	locker   redisclient.Locker
	notifier Notifier
	clk      clock.Clock
	cfg      BookingConfig
	log      zerolog.Logger
}

func NewBooking(repo Repository, locker redisclient.Locker, notifier Notifier, clk clock.Clock, cfg BookingConfig, log zerolog.Logger) *Booking {
	return &Booking{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		clk:      clk,
		cfg:      cfg,
		log:      log.With().Str("component", "booking").Logger(),
	}
}

// Book reserves a slot for a patient. A distributed per-slot lock plus the
// transactional status check-and-flip guarantee that of two concurrent
// bookers exactly one succeeds; the other gets ErrSlotNotAvailable or
// ErrSlotBeingBooked.
func (b *Booking) Book(ctx context.Context, slotID, patientID uuid.UUID, notes string) (*Appointment, error) {
	patient, err := b.repo.GetPatientByID(ctx, patientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	slot, err := b.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.Status != SlotAvailable {
		return nil, ErrSlotNotAvailable
	}

	doctor, err := b.repo.GetDoctorByID(ctx, slot.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if b.cfg.RequireApprovedDoctor && doctor.Status != DoctorApproved {
		return nil, ErrDoctorNotApproved
	}

	var created *Appointment

	err = b.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		appt, err := b.repo.BookSlot(lockCtx, slotID, patientID, notes, clock.NowNaive(b.clk))
		if err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	b.sendNotification(ctx, doctor.UserID,
		"New appointment request",
		fmt.Sprintf("%s requested an appointment on %s.",
			patient.Name, created.StartTime.Format("2006-01-02 15:04")),
		NotifyTypeAppointment, created.ID, false)

	b.log.Info().
		Stringer("appointment_id", created.ID).
		Stringer("slot_id", slotID).
		Stringer("patient_id", patientID).
		Msg("slot booked")

	return created, nil
}

// Accept moves a pending appointment to accepted, assigns the video room
// token if absent, and notifies the patient. Only the owning doctor may act.
func (b *Booking) Accept(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := b.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsDoctor() || appt.DoctorID != actor.ProfileID {
		return nil, ErrNotOwner
	}

	roomID := uuid.NewString()
	link := "/consultation/" + roomID

	updated, err := b.repo.AcceptAppointment(ctx, id, roomID, link, clock.NowNaive(b.clk))
	if err != nil {
		return nil, err
	}

	// The transition is committed; a failed lookup only costs the
	// notification.
	if doctor, patient, err := b.participants(ctx, updated); err != nil {
		b.log.Error().Err(err).Stringer("appointment_id", id).Msg("accept notification skipped")
	} else {
		b.sendNotification(ctx, patient.UserID,
			"Appointment accepted",
			fmt.Sprintf("%s accepted your appointment on %s.",
				DisplayName(doctor.Name, true), updated.StartTime.Format("2006-01-02 15:04")),
			NotifyTypeAccepted, updated.ID, false)
	}

	b.log.Info().Stringer("appointment_id", id).Msg("appointment accepted")

	return updated, nil
}

// Reject moves a pending appointment to rejected, releases the slot back to
// available in the same transaction, and notifies the patient.
func (b *Booking) Reject(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := b.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsDoctor() || appt.DoctorID != actor.ProfileID {
		return nil, ErrNotOwner
	}

	updated, err := b.repo.TransitionAndReleaseSlot(ctx, id, StatusRejected, clock.NowNaive(b.clk))
	if err != nil {
		return nil, err
	}

	if doctor, patient, err := b.participants(ctx, updated); err != nil {
		b.log.Error().Err(err).Stringer("appointment_id", id).Msg("reject notification skipped")
	} else {
		b.sendNotification(ctx, patient.UserID,
			"Appointment rejected",
			fmt.Sprintf("%s declined your appointment on %s. The slot is open again.",
				DisplayName(doctor.Name, true), updated.StartTime.Format("2006-01-02 15:04")),
			NotifyTypeRejected, updated.ID, false)
	}

	b.log.Info().Stringer("appointment_id", id).Msg("appointment rejected")

	return updated, nil
}

// Cancel lets the owning patient withdraw a still-pending appointment,
// releasing the slot and notifying the doctor.
func (b *Booking) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := b.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsPatient() || appt.PatientID != actor.ProfileID {
		return nil, ErrNotOwner
	}

	updated, err := b.repo.TransitionAndReleaseSlot(ctx, id, StatusCancelled, clock.NowNaive(b.clk))
	if err != nil {
		return nil, err
	}

	if doctor, patient, err := b.participants(ctx, updated); err != nil {
		b.log.Error().Err(err).Stringer("appointment_id", id).Msg("cancel notification skipped")
	} else {
		b.sendNotification(ctx, doctor.UserID,
			"Appointment cancelled",
			fmt.Sprintf("%s cancelled the appointment on %s. The slot is open again.",
				patient.Name, updated.StartTime.Format("2006-01-02 15:04")),
			NotifyTypeCancelled, updated.ID, false)
	}

	b.log.Info().Stringer("appointment_id", id).Msg("appointment cancelled")

	return updated, nil
}

// GetForActor loads an appointment readable by its owning doctor or patient.
func (b *Booking) GetForActor(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := b.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.owns(appt, actor) {
		return nil, ErrNotOwner
	}
	return appt, nil
}

// ListForActor lists the principal's own appointments, newest first for
// patients and doctors alike; doctors may filter by status.
func (b *Booking) ListForActor(ctx context.Context, actor Actor, status *AppointmentStatus) ([]Appointment, error) {
	switch {
	case actor.IsPatient():
		return b.repo.ListAppointmentsByPatient(ctx, actor.ProfileID)
	case actor.IsDoctor():
		return b.repo.ListAppointmentsByDoctor(ctx, actor.ProfileID, status)
	default:
		return nil, ErrNotOwner
	}
}

// participants loads both sides of an appointment for notification copy.
func (b *Booking) participants(ctx context.Context, appt *Appointment) (*Doctor, *Patient, error) {
	doctor, err := b.repo.GetDoctorByID(ctx, appt.DoctorID)
	if err != nil {
		return nil, nil, fmt.Errorf("load doctor: %w", err)
	}
	patient, err := b.repo.GetPatientByID(ctx, appt.PatientID)
	if err != nil {
		return nil, nil, fmt.Errorf("load patient: %w", err)
	}
	return doctor, patient, nil
}

func (b *Booking) owns(appt *Appointment, actor Actor) bool {
	if actor.IsDoctor() && appt.DoctorID == actor.ProfileID {
		return true
	}
	if actor.IsPatient() && appt.PatientID == actor.ProfileID {
		return true
	}
	return false
}

func (b *Booking) sendNotification(ctx context.Context, userID uuid.UUID, title, content, ntype string, relatedID uuid.UUID, urgent bool) {
	if b.notifier == nil {
		return
	}
	rid := relatedID
	if err := b.notifier.Notify(ctx, userID, title, content, ntype, &rid, urgent); err != nil {
		b.log.Error().Err(err).Str("type", ntype).Stringer("user_id", userID).Msg("notification failed")
	}
}
