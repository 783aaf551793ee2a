package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthconnect/scheduling/internal/clock"
)

// Ledger owns doctor time-slot records: creation, template materialization
// and status transitions other than booking.
type Ledger struct {
	repo Repository
	clk  clock.Clock
	log  zerolog.Logger
}

func NewLedger(repo Repository, clk clock.Clock, log zerolog.Logger) *Ledger {
	return &Ledger{
		repo: repo,
		clk:  clk,
		log:  log.With().Str("component", "ledger").Logger(),
	}
}

// CreateSlot records an explicit slot declared by the doctor. The new
// interval may not overlap any existing slot for that doctor and day,
// whatever its status; an exact duplicate of an available slot is an
// idempotent no-op returning the existing row.
func (l *Ledger) CreateSlot(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (*Slot, error) {
	if !start.Before(end) {
		return nil, ErrInvalidInterval
	}

	if _, err := l.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}

	day := clock.DateOf(start)
	existing, err := l.repo.ListSlotsInRange(ctx, doctorID, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("list slots for day: %w", err)
	}

	for i := range existing {
		s := &existing[i]
		if s.StartTime.Equal(start) && s.EndTime.Equal(end) && s.Status == SlotAvailable {
			return s, nil
		}
		if s.Overlaps(start, end) {
			return nil, fmt.Errorf("%w: %s-%s collides with %s-%s",
				ErrSlotOverlap,
				start.Format("15:04"), end.Format("15:04"),
				s.StartTime.Format("15:04"), s.EndTime.Format("15:04"))
		}
	}

	slot, err := l.repo.CreateSlot(ctx, Slot{
		DoctorID:  doctorID,
		StartTime: start,
		EndTime:   end,
		Status:    SlotAvailable,
	})
	if err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}

	l.syncTemplateSummary(ctx, doctorID, slot)

	return slot, nil
}

// syncTemplateSummary folds the new slot's weekday and hour range into the
// doctor's weekly template. Best-effort: a failure here never fails the
// slot creation.
func (l *Ledger) syncTemplateSummary(ctx context.Context, doctorID uuid.UUID, slot *Slot) {
	doctor, err := l.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		l.log.Warn().Err(err).Stringer("doctor_id", doctorID).Msg("template summary sync skipped")
		return
	}

	days := append(doctor.TemplateDays(), slot.StartTime.Weekday())
	hours := append(doctor.TemplateHours(), HourRange{
		Start: slot.StartTime.Hour(),
		End:   slot.EndTime.Hour(),
	})

	err = l.repo.UpdateDoctorTemplate(ctx, doctorID, FormatWeekdays(days), FormatHourRanges(hours))
	if err != nil {
		l.log.Warn().Err(err).Stringer("doctor_id", doctorID).Msg("template summary sync failed")
	}
}

// SyncFromTemplate regenerates available slots for every (day, hour) the
// doctor's weekly template implies over the horizon. Booked and unavailable
// slots are preserved; available slots covering regenerated times are
// replaced. All deletes and inserts commit in one transaction.
func (l *Ledger) SyncFromTemplate(ctx context.Context, doctorID uuid.UUID, horizonDays int) (int, error) {
	doctor, err := l.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return 0, err
	}

	days := doctor.TemplateDays()
	hours := doctor.TemplateHours()
	if len(days) == 0 || len(hours) == 0 {
		return 0, nil
	}

	now := clock.NowNaive(l.clk)
	from := clock.DateOf(now)
	to := from.AddDate(0, 0, horizonDays)

	existing, err := l.repo.ListSlotsInRange(ctx, doctorID, from, to)
	if err != nil {
		return 0, fmt.Errorf("list slots in horizon: %w", err)
	}

	onDay := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		onDay[d] = true
	}

	var (
		deleteIDs []uuid.UUID
		inserts   []Slot
	)

	// Template hour ranges may overlap (folding explicit slots in appends
	// without merging), so each grid cell is generated at most once.
	seen := make(map[time.Time]struct{})

	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		if !onDay[day.Weekday()] {
			continue
		}
		for _, r := range hours {
			for h := r.Start; h < r.End; h++ {
				start := clock.Combine(day, h, 0)
				end := start.Add(time.Hour)
				if !start.After(now) {
					continue
				}
				if _, dup := seen[start]; dup {
					continue
				}
				seen[start] = struct{}{}

				blocked := false
				for i := range existing {
					s := &existing[i]
					if !s.Overlaps(start, end) {
						continue
					}
					if s.Status == SlotAvailable {
						deleteIDs = append(deleteIDs, s.ID)
					} else {
						blocked = true
					}
				}
				if blocked {
					continue
				}

				inserts = append(inserts, Slot{
					DoctorID:  doctorID,
					StartTime: start,
					EndTime:   end,
					Status:    SlotAvailable,
				})
			}
		}
	}

	if err := l.repo.ReplaceTemplateSlots(ctx, doctorID, deleteIDs, inserts); err != nil {
		return 0, fmt.Errorf("replace template slots: %w", err)
	}

	l.log.Info().
		Stringer("doctor_id", doctorID).
		Int("generated", len(inserts)).
		Int("replaced", len(deleteIDs)).
		Msg("template sync complete")

	return len(inserts), nil
}

// MaterializeTemporary lazily creates a one-hour available slot for a grid
// cell the weekly template implies but no explicit row covers yet. An
// existing slot at the exact interval is reused.
func (l *Ledger) MaterializeTemporary(ctx context.Context, doctorID uuid.UUID, date time.Time, hour int) (*Slot, error) {
	if hour < 0 || hour > 23 {
		return nil, ErrInvalidInterval
	}

	doctor, err := l.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	day := clock.DateOf(date)
	if !doctor.TemplateImplies(day.Weekday(), hour) {
		return nil, ErrOutsideTemplate
	}

	start := clock.Combine(day, hour, 0)
	end := start.Add(time.Hour)

	existing, err := l.repo.ListSlotsInRange(ctx, doctorID, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("list slots for day: %w", err)
	}
	for i := range existing {
		s := &existing[i]
		if s.StartTime.Equal(start) && s.EndTime.Equal(end) {
			return s, nil
		}
	}

	slot, err := l.repo.CreateSlot(ctx, Slot{
		DoctorID:  doctorID,
		StartTime: start,
		EndTime:   end,
		Status:    SlotAvailable,
	})
	if err != nil {
		return nil, fmt.Errorf("materialize slot: %w", err)
	}
	return slot, nil
}

// Release returns a booked slot to available. Used on cancellation and
// rejection paths that do not go through the transactional transition.
func (l *Ledger) Release(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	return l.repo.UpdateSlotStatus(ctx, slotID, SlotBooked, SlotAvailable)
}

// DeleteSlot removes a slot the doctor owns, only while it is available.
func (l *Ledger) DeleteSlot(ctx context.Context, doctorID, slotID uuid.UUID) error {
	slot, err := l.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return err
	}
	if slot.DoctorID != doctorID {
		return ErrNotOwner
	}
	return l.repo.DeleteAvailableSlot(ctx, slotID)
}

// ListAvailable returns the doctor's open slots in [from, to).
func (l *Ledger) ListAvailable(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Slot, error) {
	return l.repo.ListAvailableSlots(ctx, doctorID, from, to)
}

// ApprovedDoctors lists every doctor open for booking.
func (l *Ledger) ApprovedDoctors(ctx context.Context) ([]Doctor, error) {
	return l.repo.ListApprovedDoctors(ctx)
}

// GetDoctor loads one doctor profile.
func (l *Ledger) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return l.repo.GetDoctorByID(ctx, id)
}
