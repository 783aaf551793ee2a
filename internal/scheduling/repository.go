package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrRoomNotFound        = errors.New("consultation room not found")

	ErrInvalidInterval = errors.New("slot end must be after start")
	ErrOutsideTemplate = errors.New("requested time is outside the doctor's weekly availability")

	ErrSlotOverlap       = errors.New("slot overlaps an existing slot for this doctor")
	ErrSlotNotAvailable  = errors.New("slot is not available")
	ErrSlotBeingBooked   = errors.New("slot is currently being booked, please retry")
	ErrSlotNotDeletable  = errors.New("only available slots can be deleted")
	ErrNotPending        = errors.New("appointment is no longer pending")
	ErrDoctorNotApproved = errors.New("doctor is not approved for booking")

	ErrNotOwner = errors.New("actor does not own this resource")
)

// Repository contains all DB interactions needed by the ledger and booking
// services.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	ListApprovedDoctors(ctx context.Context) ([]Doctor, error)

	// Best-effort weekly template summary sync.
	UpdateDoctorTemplate(ctx context.Context, doctorID uuid.UUID, days, hours string) error

	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)

	// ListSlotsInRange returns every slot regardless of status with
	// start_time in [from, to), ordered by start_time.
	ListSlotsInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Slot, error)
	ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Slot, error)
	CreateSlot(ctx context.Context, slot Slot) (*Slot, error)

	// DeleteAvailableSlot deletes the slot only while it is still available;
	// returns ErrSlotNotDeletable if the row exists in another status.
	DeleteAvailableSlot(ctx context.Context, id uuid.UUID) error

	// UpdateSlotStatus is a compare-and-set; returns ErrSlotNotAvailable
	// when the slot is not in the expected status.
	UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error)

	// ReplaceTemplateSlots atomically deletes and recreates template slots
	// in one transaction; partial failure rolls everything back.
	ReplaceTemplateSlots(ctx context.Context, doctorID uuid.UUID, deleteIDs []uuid.UUID, inserts []Slot) error

	// BookSlot flips the slot available->booked and creates the pending
	// appointment in the same transaction. The status flip is the point of
	// write contention: two concurrent bookers get one success and one
	// ErrSlotNotAvailable.
	BookSlot(ctx context.Context, slotID, patientID uuid.UUID, notes string, now time.Time) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentByRoomID(ctx context.Context, roomID string) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, status *AppointmentStatus) ([]Appointment, error)

	// AcceptAppointment moves pending->accepted and assigns the video room
	// token and link if absent; an already-present token is never replaced.
	AcceptAppointment(ctx context.Context, id uuid.UUID, roomID, link string, now time.Time) (*Appointment, error)

	// TransitionAndReleaseSlot moves the appointment out of pending and the
	// correlated slot back to available in one transaction.
	TransitionAndReleaseSlot(ctx context.Context, id uuid.UUID, to AppointmentStatus, now time.Time) (*Appointment, error)

	// EnsureVideoRoom assigns the room token and link if the appointment has
	// none yet, returning the row with whichever token won.
	EnsureVideoRoom(ctx context.Context, id uuid.UUID, roomID, link string) (*Appointment, error)

	// ClaimDueReminders marks accepted appointments starting in (now, until]
	// whose reminder has not been sent, and returns them hydrated with both
	// parties. The claim is atomic so concurrent scans cannot double-send.
	ClaimDueReminders(ctx context.Context, now, until time.Time) ([]ReminderTarget, error)
}
