package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthconnect/scheduling/internal/clock"
	"github.com/healthconnect/scheduling/internal/consultation"
	"github.com/healthconnect/scheduling/internal/notification"
	"github.com/healthconnect/scheduling/internal/scheduling"
)

// roomRepo backs AuthorizeRoom with a single accepted appointment. The
// embedded interface panics on anything the session does not exercise.
type roomRepo struct {
	scheduling.Repository
	appt scheduling.Appointment
}

func (r *roomRepo) GetAppointmentByRoomID(_ context.Context, roomID string) (*scheduling.Appointment, error) {
	if r.appt.VideoRoomID != nil && *r.appt.VideoRoomID == roomID {
		cp := r.appt
		return &cp, nil
	}
	return nil, scheduling.ErrRoomNotFound
}

// memConsultRepo is an in-memory consultation store.
type memConsultRepo struct {
	mu       sync.Mutex
	messages []consultation.Message
	files    []consultation.SharedFile
	notes    map[uuid.UUID]*consultation.Note // by appointment id
}

func newMemConsultRepo() *memConsultRepo {
	return &memConsultRepo{notes: make(map[uuid.UUID]*consultation.Note)}
}

func (m *memConsultRepo) CreateMessage(_ context.Context, msg consultation.Message) (*consultation.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = uuid.New()
	m.messages = append(m.messages, msg)
	return &msg, nil
}

func (m *memConsultRepo) ListMessages(_ context.Context, appointmentID uuid.UUID) ([]consultation.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []consultation.Message
	for _, msg := range m.messages {
		if msg.AppointmentID == appointmentID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *memConsultRepo) CreateSharedFile(_ context.Context, f consultation.SharedFile) (*consultation.SharedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.ID = uuid.New()
	m.files = append(m.files, f)
	return &f, nil
}

func (m *memConsultRepo) ListSharedFiles(_ context.Context, appointmentID uuid.UUID) ([]consultation.SharedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []consultation.SharedFile
	for _, f := range m.files {
		if f.AppointmentID == appointmentID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memConsultRepo) UpsertNote(_ context.Context, n consultation.Note) (*consultation.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.notes[n.AppointmentID]; ok && existing.DoctorID == n.DoctorID {
		existing.Content = n.Content
		existing.UpdatedAt = n.UpdatedAt
		cp := *existing
		return &cp, nil
	}
	n.ID = uuid.New()
	n.CreatedAt = n.UpdatedAt
	m.notes[n.AppointmentID] = &n
	cp := n
	return &cp, nil
}

func (m *memConsultRepo) GetNote(_ context.Context, appointmentID, doctorID uuid.UUID) (*consultation.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[appointmentID]
	if !ok || n.DoctorID != doctorID {
		return nil, consultation.ErrNoteNotFound
	}
	cp := *n
	return &cp, nil
}

// memNotifRepo covers the read_notification path.
type memNotifRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*notification.Notification
}

func newMemNotifRepo() *memNotifRepo {
	return &memNotifRepo{rows: make(map[uuid.UUID]*notification.Notification)}
}

func (m *memNotifRepo) CreateNotification(_ context.Context, n notification.Notification) (*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	m.rows[n.ID] = &n
	cp := n
	return &cp, nil
}

func (m *memNotifRepo) GetNotificationByID(_ context.Context, id uuid.UUID) (*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil, notification.ErrNotificationNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *memNotifRepo) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notification.Notification
	for _, n := range m.rows {
		if n.UserID == userID && len(out) < limit {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (m *memNotifRepo) MarkRead(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return notification.ErrNotificationNotFound
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

type sessionFixture struct {
	hub       *Hub
	session   *Session
	consult   *memConsultRepo
	notifRepo *memNotifRepo
	roomID    string
	appt      scheduling.Appointment
	doctor    *Client
	patient   *Client
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	clk := clock.Fixed{T: time.Date(2026, 9, 7, 10, 30, 0, 0, clock.Zone)}
	roomID := uuid.NewString()
	link := "/consultation/" + roomID

	doctor := newTestClient("doctor")
	patient := newTestClient("patient")
	patient.Actor.Name = "Pat Lee"

	appt := scheduling.Appointment{
		ID:          uuid.New(),
		SlotID:      uuid.New(),
		PatientID:   patient.Actor.ProfileID,
		DoctorID:    doctor.Actor.ProfileID,
		Status:      scheduling.StatusAccepted,
		VideoRoomID: &roomID,
		VideoLink:   &link,
	}

	booking := scheduling.NewBooking(&roomRepo{appt: appt}, nil, nil, clk,
		scheduling.BookingConfig{}, zerolog.Nop())

	consultRepo := newMemConsultRepo()
	consult := consultation.NewService(consultRepo, clk)

	hub := NewHub(zerolog.Nop())
	notifRepo := newMemNotifRepo()
	dispatcher := notification.NewDispatcher(notifRepo, hub, clk, zerolog.Nop())

	session := NewSession(hub, booking, consult, dispatcher, clk, zerolog.Nop())

	hub.Register(doctor)
	hub.Register(patient)

	return &sessionFixture{
		hub:       hub,
		session:   session,
		consult:   consultRepo,
		notifRepo: notifRepo,
		roomID:    roomID,
		appt:      appt,
		doctor:    doctor,
		patient:   patient,
	}
}

func (f *sessionFixture) handle(t *testing.T, client *Client, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(map[string]any{"event": event, "payload": json.RawMessage(data)})
	require.NoError(t, err)
	f.session.HandleMessage(context.Background(), client, frame)
}

func (f *sessionFixture) join(t *testing.T, client *Client) {
	t.Helper()
	f.handle(t, client, "join_room", map[string]string{"room_id": f.roomID})
}

func TestJoinRoomReplaysHistory(t *testing.T) {
	f := newSessionFixture(t)

	// Pre-existing history.
	_, err := f.consult.CreateMessage(context.Background(), consultation.Message{
		AppointmentID: f.appt.ID, Content: "hello",
	})
	require.NoError(t, err)
	_, err = f.consult.UpsertNote(context.Background(), consultation.Note{
		AppointmentID: f.appt.ID, DoctorID: f.appt.DoctorID, Content: "bp stable",
	})
	require.NoError(t, err)

	f.join(t, f.patient)

	ev := recv(t, f.patient)
	assert.Equal(t, "message_history", ev.Event)
	var history struct {
		Messages []consultation.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(ev.Payload, &history))
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "hello", history.Messages[0].Content)

	assert.Equal(t, "file_history", recv(t, f.patient).Event)
	// The patient never receives the doctor's note.
	assertNoEvent(t, f.patient)

	// The doctor additionally gets the saved note.
	f.join(t, f.doctor)
	assert.Equal(t, "user_joined", recv(t, f.patient).Event)
	assert.Equal(t, "message_history", recv(t, f.doctor).Event)
	assert.Equal(t, "file_history", recv(t, f.doctor).Event)
	assert.Equal(t, "load_notes", recv(t, f.doctor).Event)
}

func TestJoinRoomAnnouncesToOthersOnly(t *testing.T) {
	f := newSessionFixture(t)

	f.join(t, f.doctor)
	assert.Equal(t, "message_history", recv(t, f.doctor).Event)
	assert.Equal(t, "file_history", recv(t, f.doctor).Event)

	f.join(t, f.patient)

	ev := recv(t, f.doctor)
	assert.Equal(t, "user_joined", ev.Event)
	var presence struct {
		UserName string `json:"user_name"`
		UserRole string `json:"user_role"`
	}
	require.NoError(t, json.Unmarshal(ev.Payload, &presence))
	assert.Equal(t, "patient", presence.UserRole)

	// The joiner gets history, not its own presence event.
	assert.Equal(t, "message_history", recv(t, f.patient).Event)
	assert.Equal(t, "file_history", recv(t, f.patient).Event)
	assertNoEvent(t, f.patient)
}

func TestJoinRoomRejectsStrangers(t *testing.T) {
	f := newSessionFixture(t)
	stranger := newTestClient("patient")
	f.hub.Register(stranger)

	f.join(t, stranger)

	ev := recv(t, stranger)
	assert.Equal(t, "error", ev.Event)
	assert.Zero(t, f.hub.RoomCount(ConsultationRoom(f.roomID)))
}

func TestJoinUnknownRoom(t *testing.T) {
	f := newSessionFixture(t)
	f.handle(t, f.patient, "join_room", map[string]string{"room_id": "no-such-room"})
	assert.Equal(t, "error", recv(t, f.patient).Event)
}

func TestSendMessagePersistsThenBroadcasts(t *testing.T) {
	f := newSessionFixture(t)
	f.join(t, f.doctor)
	f.join(t, f.patient)
	drain(f.doctor)
	drain(f.patient)

	f.handle(t, f.patient, "send_message", map[string]string{
		"room_id": f.roomID,
		"content": "does tomorrow work?",
	})

	stored, err := f.consult.ListMessages(context.Background(), f.appt.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, f.patient.Actor.UserID, stored[0].SenderID)

	for _, c := range []*Client{f.doctor, f.patient} {
		ev := recv(t, c)
		assert.Equal(t, "new_message", ev.Event)
		var msg consultation.Message
		require.NoError(t, json.Unmarshal(ev.Payload, &msg))
		assert.Equal(t, "does tomorrow work?", msg.Content)
		assert.Equal(t, "Pat Lee", msg.SenderName)
	}
}

func TestShareFileBroadcastsMetadata(t *testing.T) {
	f := newSessionFixture(t)
	f.join(t, f.doctor)
	f.join(t, f.patient)
	drain(f.doctor)
	drain(f.patient)

	f.handle(t, f.doctor, "share_file", map[string]any{
		"room_id":   f.roomID,
		"file_name": "scan.pdf",
		"file_path": "/uploads/scan.pdf",
		"file_type": "application/pdf",
		"file_size": 2048,
	})

	ev := recv(t, f.patient)
	assert.Equal(t, "new_file", ev.Event)
	var file consultation.SharedFile
	require.NoError(t, json.Unmarshal(ev.Payload, &file))
	assert.Equal(t, "scan.pdf", file.FileName)
	assert.Equal(t, "Dr. Tester", file.SenderName)
}

func TestSaveNotesDoctorOnly(t *testing.T) {
	f := newSessionFixture(t)
	f.join(t, f.doctor)
	f.join(t, f.patient)
	drain(f.doctor)
	drain(f.patient)

	// Patients cannot write notes; the frame is dropped.
	f.handle(t, f.patient, "save_notes", map[string]string{
		"room_id": f.roomID,
		"content": "my own notes",
	})
	assertNoEvent(t, f.patient)

	f.handle(t, f.doctor, "save_notes", map[string]string{
		"room_id": f.roomID,
		"content": "follow up in two weeks",
	})

	// Confirmation goes to the author only.
	ev := recv(t, f.doctor)
	assert.Equal(t, "notes_saved", ev.Event)
	assertNoEvent(t, f.patient)

	note, err := f.consult.GetNote(context.Background(), f.appt.ID, f.appt.DoctorID)
	require.NoError(t, err)
	assert.Equal(t, "follow up in two weeks", note.Content)

	// Saving again overwrites in place.
	f.handle(t, f.doctor, "save_notes", map[string]string{
		"room_id": f.roomID,
		"content": "resolved",
	})
	recv(t, f.doctor)

	again, err := f.consult.GetNote(context.Background(), f.appt.ID, f.appt.DoctorID)
	require.NoError(t, err)
	assert.Equal(t, note.ID, again.ID)
	assert.Equal(t, "resolved", again.Content)
}

func TestWebRTCSignalRelaysToPeerOnly(t *testing.T) {
	f := newSessionFixture(t)
	f.join(t, f.doctor)
	f.join(t, f.patient)
	drain(f.doctor)
	drain(f.patient)

	f.handle(t, f.patient, "webrtc_signal", map[string]any{
		"room_id": f.roomID,
		"signal":  map[string]string{"type": "offer", "sdp": "v=0"},
	})

	ev := recv(t, f.doctor)
	assert.Equal(t, "webrtc_signal", ev.Event)
	var relayed struct {
		SenderID uuid.UUID       `json:"sender_id"`
		Signal   json.RawMessage `json:"signal"`
	}
	require.NoError(t, json.Unmarshal(ev.Payload, &relayed))
	assert.Equal(t, f.patient.Actor.UserID, relayed.SenderID)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(relayed.Signal))

	// The sender does not hear its own signal back.
	assertNoEvent(t, f.patient)
}

func TestReadNotificationOverSocket(t *testing.T) {
	f := newSessionFixture(t)

	n, err := f.notifRepo.CreateNotification(context.Background(), notification.Notification{
		UserID: f.patient.Actor.UserID,
		Title:  "Appointment accepted",
		Type:   "appointment_accepted",
	})
	require.NoError(t, err)

	f.handle(t, f.patient, "read_notification", map[string]string{
		"notification_id": n.ID.String(),
	})

	ev := recv(t, f.patient)
	assert.Equal(t, "notification_updated", ev.Event)

	stored, err := f.notifRepo.GetNotificationByID(context.Background(), n.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsRead)

	// Someone else's notification is refused silently.
	other, err := f.notifRepo.CreateNotification(context.Background(), notification.Notification{
		UserID: uuid.New(),
		Title:  "not yours",
	})
	require.NoError(t, err)

	f.handle(t, f.patient, "read_notification", map[string]string{
		"notification_id": other.ID.String(),
	})
	assertNoEvent(t, f.patient)

	stored, err = f.notifRepo.GetNotificationByID(context.Background(), other.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsRead)
}

func TestMalformedFramesAreDropped(t *testing.T) {
	f := newSessionFixture(t)

	f.session.HandleMessage(context.Background(), f.patient, []byte("not json"))
	f.session.HandleMessage(context.Background(), f.patient, []byte(`{"event":"unknown_event","payload":{}}`))
	f.session.HandleMessage(context.Background(), f.patient, []byte(`{"event":"send_message","payload":{"room_id":""}}`))

	assertNoEvent(t, f.patient)
}

func TestLeaveRoomAnnounces(t *testing.T) {
	f := newSessionFixture(t)
	f.join(t, f.doctor)
	f.join(t, f.patient)
	drain(f.doctor)
	drain(f.patient)

	f.handle(t, f.patient, "leave_room", map[string]string{"room_id": f.roomID})

	ev := recv(t, f.doctor)
	assert.Equal(t, "user_left", ev.Event)

	// The leaver is out of the room; later broadcasts skip it.
	f.handle(t, f.doctor, "send_message", map[string]string{
		"room_id": f.roomID,
		"content": "still there?",
	})
	assert.Equal(t, "new_message", recv(t, f.doctor).Event)
	assertNoEvent(t, f.patient)
}

func drain(c *Client) {
	for {
		select {
		case <-c.Send:
		default:
			return
		}
	}
}
