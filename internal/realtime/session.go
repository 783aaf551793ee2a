package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthconnect/scheduling/internal/clock"
	"github.com/healthconnect/scheduling/internal/consultation"
	"github.com/healthconnect/scheduling/internal/notification"
	"github.com/healthconnect/scheduling/internal/scheduling"
)

// Inbound event names.
const (
	evJoinRoom         = "join_room"
	evLeaveRoom        = "leave_room"
	evSendMessage      = "send_message"
	evShareFile        = "share_file"
	evSaveNotes        = "save_notes"
	evWebRTCSignal     = "webrtc_signal"
	evReadNotification = "read_notification"
)

// Outbound event names.
const (
	evUserJoined          = "user_joined"
	evUserLeft            = "user_left"
	evMessageHistory      = "message_history"
	evFileHistory         = "file_history"
	evLoadNotes           = "load_notes"
	evNewMessage          = "new_message"
	evNewFile             = "new_file"
	evNotesSaved          = "notes_saved"
	evNotificationUpdated = "notification_updated"
	evError               = "error"
)

// ClientMessage is an inbound frame: event name plus raw payload, decoded
// per event.
type ClientMessage struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Session routes inbound room events: authorization against the
// appointment, persistence before fan-out, and history replay on join.
type Session struct {
	hub     *Hub
	booking *scheduling.Booking
	consult *consultation.Service
	notif   *notification.Dispatcher
	clk     clock.Clock
	log     zerolog.Logger
}

func NewSession(hub *Hub, booking *scheduling.Booking, consult *consultation.Service, notif *notification.Dispatcher, clk clock.Clock, log zerolog.Logger) *Session {
	return &Session{
		hub:     hub,
		booking: booking,
		consult: consult,
		notif:   notif,
		clk:     clk,
		log:     log.With().Str("component", "session").Logger(),
	}
}

// HandleMessage dispatches one inbound frame from a connected client.
// Unknown and malformed frames are dropped, matching the tolerant behavior
// expected of a realtime channel.
func (s *Session) HandleMessage(ctx context.Context, client *Client, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	switch msg.Event {
	case evJoinRoom:
		s.handleJoin(ctx, client, msg.Payload)
	case evLeaveRoom:
		s.handleLeave(ctx, client, msg.Payload)
	case evSendMessage:
		s.handleSendMessage(ctx, client, msg.Payload)
	case evShareFile:
		s.handleShareFile(ctx, client, msg.Payload)
	case evSaveNotes:
		s.handleSaveNotes(ctx, client, msg.Payload)
	case evWebRTCSignal:
		s.handleSignal(ctx, client, msg.Payload)
	case evReadNotification:
		s.handleReadNotification(ctx, client, msg.Payload)
	}
}

type roomPayload struct {
	RoomID string `json:"room_id"`
}

type presencePayload struct {
	UserID   uuid.UUID `json:"user_id"`
	UserName string    `json:"user_name"`
	UserRole string    `json:"user_role"`
	At       string    `json:"at"`
}

func (s *Session) handleJoin(ctx context.Context, client *Client, raw []byte) {
	var p roomPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" {
		return
	}

	appt, err := s.authorize(ctx, client, p.RoomID)
	if err != nil {
		return
	}

	room := ConsultationRoom(p.RoomID)
	s.hub.Join(client, room)

	s.hub.BroadcastExcept(room, client.ID, Event{
		Event:   evUserJoined,
		Payload: s.presence(client),
	})

	// Replay persisted history to the joiner only; the doctor additionally
	// gets the latest consultation note.
	var doctorID *uuid.UUID
	if client.Actor.IsDoctor() {
		doctorID = &appt.DoctorID
	}
	history, err := s.consult.LoadHistory(ctx, appt.ID, doctorID)
	if err != nil {
		s.log.Error().Err(err).Str("room", p.RoomID).Msg("history replay failed")
		s.sendError(client, "could not load room history")
		return
	}

	s.hub.SendTo(client, Event{Event: evMessageHistory, Payload: map[string]any{"messages": history.Messages}})
	s.hub.SendTo(client, Event{Event: evFileHistory, Payload: map[string]any{"files": history.Files}})
	if history.Note != nil {
		s.hub.SendTo(client, Event{Event: evLoadNotes, Payload: history.Note})
	}

	s.log.Info().
		Str("room", p.RoomID).
		Stringer("user_id", client.Actor.UserID).
		Msg("client joined room")
}

func (s *Session) handleLeave(ctx context.Context, client *Client, raw []byte) {
	var p roomPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" {
		return
	}

	if _, err := s.authorize(ctx, client, p.RoomID); err != nil {
		return
	}

	room := ConsultationRoom(p.RoomID)
	s.hub.Leave(client, room)
	s.hub.Broadcast(room, Event{
		Event:   evUserLeft,
		Payload: s.presence(client),
	})
}

type messagePayload struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
}

func (s *Session) handleSendMessage(ctx context.Context, client *Client, raw []byte) {
	var p messagePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" || p.Content == "" {
		return
	}

	appt, err := s.authorize(ctx, client, p.RoomID)
	if err != nil {
		return
	}

	// Persist first; only then fan out.
	msg, err := s.consult.AppendMessage(ctx, consultation.Message{
		AppointmentID: appt.ID,
		SenderID:      client.Actor.UserID,
		SenderName:    scheduling.DisplayName(client.Actor.Name, client.Actor.IsDoctor()),
		SenderRole:    client.Actor.Role,
		Content:       p.Content,
	})
	if err != nil {
		s.log.Error().Err(err).Str("room", p.RoomID).Msg("persist message failed")
		s.sendError(client, "could not send message")
		return
	}

	s.hub.Broadcast(ConsultationRoom(p.RoomID), Event{Event: evNewMessage, Payload: msg})
}

type filePayload struct {
	RoomID   string `json:"room_id"`
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
}

func (s *Session) handleShareFile(ctx context.Context, client *Client, raw []byte) {
	var p filePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" || p.FileName == "" || p.FilePath == "" {
		return
	}

	appt, err := s.authorize(ctx, client, p.RoomID)
	if err != nil {
		return
	}

	// The storage layer already holds the bytes; only the metadata it
	// returned is recorded here.
	file, err := s.consult.AppendFile(ctx, consultation.SharedFile{
		AppointmentID: appt.ID,
		SenderID:      client.Actor.UserID,
		SenderName:    scheduling.DisplayName(client.Actor.Name, client.Actor.IsDoctor()),
		SenderRole:    client.Actor.Role,
		FileName:      p.FileName,
		FilePath:      p.FilePath,
		FileType:      p.FileType,
		FileSize:      p.FileSize,
	})
	if err != nil {
		s.log.Error().Err(err).Str("room", p.RoomID).Msg("persist shared file failed")
		s.sendError(client, "could not share file")
		return
	}

	s.hub.Broadcast(ConsultationRoom(p.RoomID), Event{Event: evNewFile, Payload: file})
}

type notesPayload struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
}

func (s *Session) handleSaveNotes(ctx context.Context, client *Client, raw []byte) {
	if !client.Actor.IsDoctor() {
		return
	}

	var p notesPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" || p.Content == "" {
		return
	}

	appt, err := s.authorize(ctx, client, p.RoomID)
	if err != nil {
		return
	}

	note, err := s.consult.SaveNote(ctx, appt.ID, appt.DoctorID, p.Content)
	if err != nil {
		s.log.Error().Err(err).Str("room", p.RoomID).Msg("save note failed")
		s.sendError(client, "could not save notes")
		return
	}

	s.hub.SendTo(client, Event{Event: evNotesSaved, Payload: note})
}

type signalPayload struct {
	RoomID string          `json:"room_id"`
	Signal json.RawMessage `json:"signal"`
}

func (s *Session) handleSignal(ctx context.Context, client *Client, raw []byte) {
	var p signalPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" || len(p.Signal) == 0 {
		return
	}

	if _, err := s.authorize(ctx, client, p.RoomID); err != nil {
		return
	}

	// Signals are opaque; relay to everyone else in the room untouched.
	s.hub.BroadcastExcept(ConsultationRoom(p.RoomID), client.ID, Event{
		Event: evWebRTCSignal,
		Payload: map[string]any{
			"signal":    p.Signal,
			"sender_id": client.Actor.UserID,
		},
	})
}

type readNotificationPayload struct {
	NotificationID uuid.UUID `json:"notification_id"`
}

func (s *Session) handleReadNotification(ctx context.Context, client *Client, raw []byte) {
	var p readNotificationPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.NotificationID == uuid.Nil {
		return
	}

	if err := s.notif.MarkRead(ctx, p.NotificationID, client.Actor.UserID); err != nil {
		return
	}

	s.hub.Broadcast(UserRoom(client.Actor.UserID), Event{
		Event: evNotificationUpdated,
		Payload: map[string]any{
			"id":      p.NotificationID,
			"is_read": true,
		},
	})
}

func (s *Session) authorize(ctx context.Context, client *Client, roomID string) (*scheduling.Appointment, error) {
	appt, err := s.booking.AuthorizeRoom(ctx, roomID, client.Actor)
	if err != nil {
		if errors.Is(err, scheduling.ErrNotOwner) {
			s.log.Warn().
				Str("room", roomID).
				Stringer("user_id", client.Actor.UserID).
				Msg("room access denied")
		}
		s.sendError(client, "room access denied")
		return nil, err
	}
	return appt, nil
}

func (s *Session) presence(client *Client) presencePayload {
	return presencePayload{
		UserID:   client.Actor.UserID,
		UserName: scheduling.DisplayName(client.Actor.Name, client.Actor.IsDoctor()),
		UserRole: client.Actor.Role,
		At:       clock.NowNaive(s.clk).Format("15:04"),
	}
}

func (s *Session) sendError(client *Client, message string) {
	s.hub.SendTo(client, Event{Event: evError, Payload: map[string]string{"message": message}})
}
