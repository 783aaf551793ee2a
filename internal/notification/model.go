package notification

import (
	"time"

	"github.com/google/uuid"
)

// TypeReminder marks urgent pre-appointment reminders; clients surface
// these with a persistent banner instead of a toast.
const TypeReminder = "appointment_reminder"

// Notification is append-only except for the is_read flip. The persisted
// row is the source of truth; the realtime push is an optimization.
type Notification struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Type      string     `json:"type"`
	RelatedID *uuid.UUID `json:"related_id,omitempty"`
	IsRead    bool       `json:"is_read"`
	IsUrgent  bool       `json:"is_urgent"`
	CreatedAt time.Time  `json:"created_at"`
}
