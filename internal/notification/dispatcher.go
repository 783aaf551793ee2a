package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthconnect/scheduling/internal/clock"
)

// Realtime event names pushed to connected clients.
const (
	EventNewNotification     = "new_notification"
	EventAppointmentReminder = "appointment_reminder"
)

var (
	// ErrNotOwner rejects read-state changes on someone else's notification.
	ErrNotOwner = errors.New("notification does not belong to this user")
)

// Pusher is the realtime transport used for fire-and-forget delivery to a
// user's connected sessions. Implemented by the websocket hub.
type Pusher interface {
	PushToUser(userID uuid.UUID, event string, payload any) error
}

// Dispatcher persists notifications, then pushes them to any connected
// session. Persist-then-push ordering is mandatory: a crash after the
// commit loses only the push, and the pull endpoints still see the row.
type Dispatcher struct {
	repo   Repository
	pusher Pusher
	clk    clock.Clock
	log    zerolog.Logger
}

func NewDispatcher(repo Repository, pusher Pusher, clk clock.Clock, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		repo:   repo,
		pusher: pusher,
		clk:    clk,
		log:    log.With().Str("component", "dispatcher").Logger(),
	}
}

// Notify persists a notification and pushes it to the user's sessions.
// Urgent notifications additionally push a distinguished reminder event.
func (d *Dispatcher) Notify(ctx context.Context, userID uuid.UUID, title, content, ntype string, relatedID *uuid.UUID, urgent bool) error {
	created, err := d.repo.CreateNotification(ctx, Notification{
		UserID:    userID,
		Title:     title,
		Content:   content,
		Type:      ntype,
		RelatedID: relatedID,
		IsUrgent:  urgent,
		CreatedAt: clock.NowNaive(d.clk),
	})
	if err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	d.push(userID, EventNewNotification, created)
	if urgent {
		d.push(userID, EventAppointmentReminder, created)
	}

	return nil
}

// push is best-effort; a disconnected user reads the row later via List.
func (d *Dispatcher) push(userID uuid.UUID, event string, n *Notification) {
	if d.pusher == nil {
		return
	}
	if err := d.pusher.PushToUser(userID, event, n); err != nil {
		d.log.Warn().Err(err).Str("event", event).Stringer("user_id", userID).Msg("push skipped")
	}
}

// List returns the user's most recent notifications, newest first.
func (d *Dispatcher) List(ctx context.Context, userID uuid.UUID, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 10 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	return d.repo.ListByUser(ctx, userID, limit)
}

// MarkRead flips one notification to read after verifying ownership.
func (d *Dispatcher) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	n, err := d.repo.GetNotificationByID(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return ErrNotOwner
	}
	return d.repo.MarkRead(ctx, id)
}

// MarkAllRead flips every unread notification of the caller.
func (d *Dispatcher) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return d.repo.MarkAllRead(ctx, userID)
}

// UnreadCount returns the caller's unread total.
func (d *Dispatcher) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return d.repo.CountUnread(ctx, userID)
}
