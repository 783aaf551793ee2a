package notification

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthconnect/scheduling/internal/clock"
)

// memNotifRepo is an in-memory notification store.
type memNotifRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*Notification
}

func newMemNotifRepo() *memNotifRepo {
	return &memNotifRepo{rows: make(map[uuid.UUID]*Notification)}
}

func (m *memNotifRepo) CreateNotification(_ context.Context, n Notification) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	m.rows[n.ID] = &n
	cp := n
	return &cp, nil
}

func (m *memNotifRepo) GetNotificationByID(_ context.Context, id uuid.UUID) (*Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *memNotifRepo) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, n := range m.rows {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memNotifRepo) MarkRead(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return ErrNotificationNotFound
	}
	n.IsRead = true
	return nil
}

func (m *memNotifRepo) MarkAllRead(_ context.Context, userID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.rows {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

func (m *memNotifRepo) CountUnread(_ context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.rows {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

// capturePusher records realtime pushes.
type capturePusher struct {
	mu     sync.Mutex
	pushes []capturedPush
	err    error
}

type capturedPush struct {
	UserID uuid.UUID
	Event  string
}

func (c *capturePusher) PushToUser(userID uuid.UUID, event string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.pushes = append(c.pushes, capturedPush{UserID: userID, Event: event})
	return nil
}

func (c *capturePusher) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.pushes))
	for _, p := range c.pushes {
		out = append(out, p.Event)
	}
	return out
}

var dispatcherNow = time.Date(2026, 9, 7, 8, 0, 0, 0, clock.Zone)

func newTestDispatcher(repo Repository, pusher Pusher) *Dispatcher {
	return NewDispatcher(repo, pusher, clock.Fixed{T: dispatcherNow}, zerolog.Nop())
}

func TestNotifyPersistsThenPushes(t *testing.T) {
	repo := newMemNotifRepo()
	pusher := &capturePusher{}
	d := newTestDispatcher(repo, pusher)

	userID := uuid.New()
	err := d.Notify(context.Background(), userID, "Appointment accepted", "see you soon", "appointment_accepted", nil, false)
	require.NoError(t, err)

	rows, err := repo.ListByUser(context.Background(), userID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].IsRead)

	assert.Equal(t, []string{EventNewNotification}, pusher.events())
}

func TestNotifyUrgentPushesReminderEvent(t *testing.T) {
	repo := newMemNotifRepo()
	pusher := &capturePusher{}
	d := newTestDispatcher(repo, pusher)

	userID := uuid.New()
	err := d.Notify(context.Background(), userID, "Upcoming appointment", "starts soon", TypeReminder, nil, true)
	require.NoError(t, err)

	assert.Equal(t, []string{EventNewNotification, EventAppointmentReminder}, pusher.events())
}

func TestNotifySurvivesPushFailure(t *testing.T) {
	repo := newMemNotifRepo()
	pusher := &capturePusher{err: context.DeadlineExceeded}
	d := newTestDispatcher(repo, pusher)

	userID := uuid.New()
	err := d.Notify(context.Background(), userID, "t", "c", "appointment", nil, false)
	require.NoError(t, err, "push failure must not fail the notification")

	rows, err := repo.ListByUser(context.Background(), userID, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMarkReadEnforcesOwnership(t *testing.T) {
	repo := newMemNotifRepo()
	d := newTestDispatcher(repo, nil)

	owner := uuid.New()
	require.NoError(t, d.Notify(context.Background(), owner, "t", "c", "appointment", nil, false))

	rows, err := repo.ListByUser(context.Background(), owner, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	err = d.MarkRead(context.Background(), rows[0].ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotOwner)

	err = d.MarkRead(context.Background(), rows[0].ID, owner)
	require.NoError(t, err)

	unread, err := d.UnreadCount(context.Background(), owner)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestMarkAllRead(t *testing.T) {
	repo := newMemNotifRepo()
	d := newTestDispatcher(repo, nil)

	userID := uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Notify(context.Background(), userID, "t", "c", "appointment", nil, false))
	}
	require.NoError(t, d.Notify(context.Background(), uuid.New(), "t", "c", "appointment", nil, false))

	updated, err := d.MarkAllRead(context.Background(), userID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, updated)

	unread, err := d.UnreadCount(context.Background(), userID)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestListClampsLimit(t *testing.T) {
	repo := newMemNotifRepo()
	d := newTestDispatcher(repo, nil)

	userID := uuid.New()
	for i := 0; i < 15; i++ {
		require.NoError(t, d.Notify(context.Background(), userID, "t", "c", "appointment", nil, false))
	}

	rows, err := d.List(context.Background(), userID, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 10, "zero limit falls back to the default")

	rows, err = d.List(context.Background(), userID, 500)
	require.NoError(t, err)
	assert.Len(t, rows, 15, "oversized limit is clamped, not rejected")
}
