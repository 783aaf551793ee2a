package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/healthconnect/scheduling/internal/clock"
	"github.com/healthconnect/scheduling/internal/db"
	"github.com/healthconnect/scheduling/internal/scheduling"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, 10)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	if err := generateSlots(context.Background(), pool, doctorIDs); err != nil {
		log.Fatalf("generate slots: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	// Weekday sets and hour ranges in the compact template format.
	dayTemplates := []string{"1,2,3,4,5", "1,3,5", "2,4", "1,2,3,4,5,6"}
	hourTemplates := []string{"9-12,14-17", "9-13", "10-12,15-18", "8-11"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		userID := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		fee := float64(gofakeit.Number(20, 150))
		days := dayTemplates[gofakeit.Number(0, len(dayTemplates)-1)]
		hours := hourTemplates[gofakeit.Number(0, len(hourTemplates)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, user_id, name, specialty, fee, status, available_days, available_hours, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 'approved', $6, $7, now(), now())
		`, id, userID, name, spec, fee, days, hours)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			userID := uuid.New()
			name := gofakeit.Name()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, user_id, name, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, userID, name)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}

// generateSlots runs the template sync for every seeded doctor so the grid
// has bookable slots out of the box.
func generateSlots(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID) error {
	log.Printf("generating slots for %d doctors", len(doctorIDs))

	ledger := scheduling.NewLedger(scheduling.NewPgRepository(pool), clock.System{}, zerolog.Nop())

	total := 0
	for _, id := range doctorIDs {
		n, err := ledger.SyncFromTemplate(ctx, id, 14)
		if err != nil {
			return err
		}
		total += n
	}

	log.Printf("slots generated: %d", total)
	return nil
}
