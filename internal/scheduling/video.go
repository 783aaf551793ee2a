package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/healthconnect/scheduling/internal/clock"
)

// Video access denial reasons.
const (
	VideoReasonNotAccepted = "not_accepted"
	VideoReasonTooEarly    = "too_early"
	VideoReasonExpired     = "expired"
)

// VideoAccess is the per-request answer to "may this actor enter the
// consultation room right now".
type VideoAccess struct {
	Allowed bool
	RoomID  string
	Link    string
	Reason  string
}

// VideoWindow bounds room access around the scheduled start.
type VideoWindow struct {
	Early time.Duration // how long before start the room opens
	Late  time.Duration // how long after start the room stays open
}

// VideoAccess evaluates room access for the actor. The room opens
// [start-Early, start+Late] and only for accepted appointments; outside the
// window the reason distinguishes too early from expired. The window is
// checked per request only; it does not disconnect an already-joined client.
func (b *Booking) VideoAccess(ctx context.Context, id uuid.UUID, actor Actor, window VideoWindow) (*VideoAccess, error) {
	appt, err := b.GetForActor(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	if appt.Status != StatusAccepted {
		return &VideoAccess{Reason: VideoReasonNotAccepted}, nil
	}

	now := clock.NowNaive(b.clk)
	opens := appt.StartTime.Add(-window.Early)
	closes := appt.StartTime.Add(window.Late)

	if now.Before(opens) {
		return &VideoAccess{Reason: VideoReasonTooEarly}, nil
	}
	if now.After(closes) {
		return &VideoAccess{Reason: VideoReasonExpired}, nil
	}

	// Normally accept assigned the room already; guard the race where the
	// room is accessed first.
	if appt.VideoRoomID == nil {
		roomID := uuid.NewString()
		appt, err = b.repo.EnsureVideoRoom(ctx, id, roomID, "/consultation/"+roomID)
		if err != nil {
			return nil, fmt.Errorf("ensure video room: %w", err)
		}
	}

	access := &VideoAccess{
		Allowed: true,
		RoomID:  *appt.VideoRoomID,
	}
	if appt.VideoLink != nil {
		access.Link = *appt.VideoLink
	}
	return access, nil
}

// AuthorizeRoom resolves a room token to its appointment and verifies the
// actor is one of its two participants. Used by the realtime hub on join;
// unlike VideoAccess it is not time-gated, so chat and file history load
// as soon as the appointment is accepted.
func (b *Booking) AuthorizeRoom(ctx context.Context, roomID string, actor Actor) (*Appointment, error) {
	appt, err := b.repo.GetAppointmentByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !b.owns(appt, actor) {
		return nil, ErrNotOwner
	}
	return appt, nil
}
