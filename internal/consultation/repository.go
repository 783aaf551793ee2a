package consultation

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNoteNotFound = errors.New("consultation note not found")
)

// Repository contains all DB interactions for room history.
type Repository interface {
	CreateMessage(ctx context.Context, m Message) (*Message, error)
	ListMessages(ctx context.Context, appointmentID uuid.UUID) ([]Message, error)

	CreateSharedFile(ctx context.Context, f SharedFile) (*SharedFile, error)
	ListSharedFiles(ctx context.Context, appointmentID uuid.UUID) ([]SharedFile, error)

	// UpsertNote creates or updates the single note for the pair, bumping
	// updated_at on every save.
	UpsertNote(ctx context.Context, n Note) (*Note, error)
	GetNote(ctx context.Context, appointmentID, doctorID uuid.UUID) (*Note, error)
}
