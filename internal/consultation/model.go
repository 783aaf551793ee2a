// Package consultation persists what happens inside a video room: chat
// messages, shared-file metadata and the doctor's evolving note.
package consultation

import (
	"time"

	"github.com/google/uuid"
)

// Message is append-only, scoped to an appointment's room, ordered by the
// canonical-clock created_at.
type Message struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	SenderID      uuid.UUID `json:"sender_id"`
	SenderName    string    `json:"sender_name"`
	SenderRole    string    `json:"sender_role"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
}

// SharedFile records metadata for a file the external storage layer already
// persisted; the bytes never pass through this service.
type SharedFile struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	SenderID      uuid.UUID `json:"sender_id"`
	SenderName    string    `json:"sender_name"`
	SenderRole    string    `json:"sender_role"`
	FileName      string    `json:"file_name"`
	FilePath      string    `json:"file_path"`
	FileType      string    `json:"file_type"`
	FileSize      int64     `json:"file_size"`
	CreatedAt     time.Time `json:"created_at"`
}

// Note is one evolving consultation note per (appointment, doctor);
// saves upsert and bump updated_at.
type Note struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
