package consultation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(
		&m.ID,
		&m.AppointmentID,
		&m.SenderID,
		&m.SenderName,
		&m.SenderRole,
		&m.Content,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanSharedFile(row pgx.Row) (*SharedFile, error) {
	var f SharedFile
	err := row.Scan(
		&f.ID,
		&f.AppointmentID,
		&f.SenderID,
		&f.SenderName,
		&f.SenderRole,
		&f.FileName,
		&f.FilePath,
		&f.FileType,
		&f.FileSize,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func scanNote(row pgx.Row) (*Note, error) {
	var n Note
	err := row.Scan(
		&n.ID,
		&n.AppointmentID,
		&n.DoctorID,
		&n.Content,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoteNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *PgRepository) CreateMessage(ctx context.Context, m Message) (*Message, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO messages (id, appointment_id, sender_id, sender_name, sender_role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, appointment_id, sender_id, sender_name, sender_role, content, created_at
	`, uuid.New(), m.AppointmentID, m.SenderID, m.SenderName, m.SenderRole, m.Content, m.CreatedAt)

	msg, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (r *PgRepository) ListMessages(ctx context.Context, appointmentID uuid.UUID) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, sender_id, sender_name, sender_role, content, created_at
		FROM messages
		WHERE appointment_id = $1
		ORDER BY created_at
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

func (r *PgRepository) CreateSharedFile(ctx context.Context, f SharedFile) (*SharedFile, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO shared_files (id, appointment_id, sender_id, sender_name, sender_role, file_name, file_path, file_type, file_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, appointment_id, sender_id, sender_name, sender_role, file_name, file_path, file_type, file_size, created_at
	`, uuid.New(), f.AppointmentID, f.SenderID, f.SenderName, f.SenderRole, f.FileName, f.FilePath, f.FileType, f.FileSize, f.CreatedAt)

	file, err := scanSharedFile(row)
	if err != nil {
		return nil, fmt.Errorf("insert shared file: %w", err)
	}
	return file, nil
}

func (r *PgRepository) ListSharedFiles(ctx context.Context, appointmentID uuid.UUID) ([]SharedFile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, appointment_id, sender_id, sender_name, sender_role, file_name, file_path, file_type, file_size, created_at
		FROM shared_files
		WHERE appointment_id = $1
		ORDER BY created_at
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SharedFile
	for rows.Next() {
		f, err := scanSharedFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *f)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpsertNote(ctx context.Context, n Note) (*Note, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO consultation_notes (id, appointment_id, doctor_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (appointment_id, doctor_id)
		DO UPDATE SET content = EXCLUDED.content,
		              updated_at = EXCLUDED.updated_at
		RETURNING id, appointment_id, doctor_id, content, created_at, updated_at
	`, uuid.New(), n.AppointmentID, n.DoctorID, n.Content, n.UpdatedAt)

	note, err := scanNote(row)
	if err != nil {
		return nil, fmt.Errorf("upsert note: %w", err)
	}
	return note, nil
}

func (r *PgRepository) GetNote(ctx context.Context, appointmentID, doctorID uuid.UUID) (*Note, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, appointment_id, doctor_id, content, created_at, updated_at
		FROM consultation_notes
		WHERE appointment_id = $1
		  AND doctor_id = $2
	`, appointmentID, doctorID)
	return scanNote(row)
}
