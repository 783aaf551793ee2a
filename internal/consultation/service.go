package consultation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/healthconnect/scheduling/internal/clock"
)

// Service timestamps and persists room activity. Persist-before-broadcast
// is the caller's contract: a crash between the two loses only the push.
type Service struct {
	repo Repository
	clk  clock.Clock
}

func NewService(repo Repository, clk clock.Clock) *Service {
	return &Service{repo: repo, clk: clk}
}

// AppendMessage persists a chat message with a canonical-clock timestamp.
func (s *Service) AppendMessage(ctx context.Context, m Message) (*Message, error) {
	m.CreatedAt = clock.NowNaive(s.clk)
	return s.repo.CreateMessage(ctx, m)
}

// AppendFile persists shared-file metadata returned by the storage layer.
func (s *Service) AppendFile(ctx context.Context, f SharedFile) (*SharedFile, error) {
	f.CreatedAt = clock.NowNaive(s.clk)
	return s.repo.CreateSharedFile(ctx, f)
}

// SaveNote upserts the doctor's note for the appointment.
func (s *Service) SaveNote(ctx context.Context, appointmentID, doctorID uuid.UUID, content string) (*Note, error) {
	return s.repo.UpsertNote(ctx, Note{
		AppointmentID: appointmentID,
		DoctorID:      doctorID,
		Content:       content,
		UpdatedAt:     clock.NowNaive(s.clk),
	})
}

// History is everything replayed to a participant on room join, in
// creation order. Note is nil unless the joiner is the owning doctor and
// a note exists.
type History struct {
	Messages []Message
	Files    []SharedFile
	Note     *Note
}

// LoadHistory assembles the room history. doctorID is non-nil only when
// the joiner is the appointment's doctor.
func (s *Service) LoadHistory(ctx context.Context, appointmentID uuid.UUID, doctorID *uuid.UUID) (*History, error) {
	messages, err := s.repo.ListMessages(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	files, err := s.repo.ListSharedFiles(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list shared files: %w", err)
	}

	h := &History{Messages: messages, Files: files}

	if doctorID != nil {
		note, err := s.repo.GetNote(ctx, appointmentID, *doctorID)
		if err != nil && !errors.Is(err, ErrNoteNotFound) {
			return nil, fmt.Errorf("load note: %w", err)
		}
		h.Note = note
	}

	return h, nil
}
