package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthconnect/scheduling/internal/clock"
	"github.com/healthconnect/scheduling/internal/scheduling"
)

// ReminderSource claims accepted appointments due for a reminder. The claim
// must be atomic: once returned, no later scan may see the same appointment.
type ReminderSource interface {
	ClaimDueReminders(ctx context.Context, now, until time.Time) ([]scheduling.ReminderTarget, error)
}

// Reminder scans for imminent appointments and sends one urgent
// notification pair (doctor + patient) per appointment, exactly once.
type Reminder struct {
	source     ReminderSource
	dispatcher *Dispatcher
	clk        clock.Clock
	window     time.Duration
	buffer     time.Duration
	log        zerolog.Logger
}

func NewReminder(source ReminderSource, dispatcher *Dispatcher, clk clock.Clock, window, buffer time.Duration, log zerolog.Logger) *Reminder {
	return &Reminder{
		source:     source,
		dispatcher: dispatcher,
		clk:        clk,
		window:     window,
		buffer:     buffer,
		log:        log.With().Str("component", "reminder").Logger(),
	}
}

// RunOnce is called by the worker every tick. A failure for one appointment
// never aborts the rest of the scan.
func (r *Reminder) RunOnce(ctx context.Context) (int, error) {
	now := clock.NowNaive(r.clk)
	until := now.Add(r.window + r.buffer)

	targets, err := r.source.ClaimDueReminders(ctx, now, until)
	if err != nil {
		return 0, fmt.Errorf("claim due reminders: %w", err)
	}

	sent := 0
	for _, t := range targets {
		if err := r.remind(ctx, t); err != nil {
			r.log.Error().Err(err).Stringer("appointment_id", t.ID).Msg("reminder failed")
			continue
		}
		sent++
	}

	if sent > 0 {
		r.log.Info().Int("appointments", sent).Msg("reminders sent")
	}
	return sent, nil
}

func (r *Reminder) remind(ctx context.Context, t scheduling.ReminderTarget) error {
	startsAt := t.StartTime.Format("15:04")
	apptID := t.ID

	err := r.dispatcher.Notify(ctx, t.DoctorUserID,
		"Upcoming appointment",
		fmt.Sprintf("Your consultation with %s starts in 5 minutes at %s.", t.PatientName, startsAt),
		TypeReminder, &apptID, true)
	if err != nil {
		return fmt.Errorf("notify doctor: %w", err)
	}

	err = r.dispatcher.Notify(ctx, t.PatientUserID,
		"Upcoming appointment",
		fmt.Sprintf("Your consultation with %s starts in 5 minutes at %s.",
			scheduling.DisplayName(t.DoctorName, true), startsAt),
		TypeReminder, &apptID, true)
	if err != nil {
		return fmt.Errorf("notify patient: %w", err)
	}

	return nil
}
