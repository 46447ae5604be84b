package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cliniqly/clinic-scheduling/internal/db"
	"github.com/cliniqly/clinic-scheduling/internal/schedule"
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

	pool, err := db.ConnectPostgres(ctx, dsn, 4)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	log.Println("schema applied")

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedAvailability(context.Background(), pool, doctorIDs); err != nil {
		log.Fatalf("seed availability: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
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

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, account_id, name, specialty, verified, created_at, updated_at)
			VALUES ($1, $2, $3, $4, true, now(), now())
		`, id, uuid.New(), name, spec)
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

func seedAvailability(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID) error {
	log.Printf("seeding availability for %d doctors", len(doctorIDs))

	weekdaySets := [][]string{
		{string(schedule.Monday), string(schedule.Wednesday), string(schedule.Friday)},
		{string(schedule.Tuesday), string(schedule.Thursday)},
		{string(schedule.Monday), string(schedule.Tuesday), string(schedule.Wednesday), string(schedule.Thursday), string(schedule.Friday)},
		{string(schedule.Saturday)},
	}
	durations := []int{15, 30, 60}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, doctorID := range doctorIDs {
		// A recurring morning wave rule for everyone.
		days := weekdaySets[gofakeit.Number(0, len(weekdaySets)-1)]
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_rules
				(id, doctor_id, kind, weekdays, specific_date, discipline, slot_minutes, start_time, end_time, capacity, is_active, created_at, updated_at)
			VALUES ($1, $2, 'recurring', $3, NULL, 'wave', $4, '09:00', '13:00', $5, true, now(), now())
		`, uuid.New(), doctorID, days, durations[gofakeit.Number(0, len(durations)-1)], gofakeit.Number(1, 4))
		if err != nil {
			return err
		}

		// Roughly half also run an evening stream queue.
		if gofakeit.Bool() {
			_, err := tx.Exec(ctx, `
				INSERT INTO availability_rules
					(id, doctor_id, kind, weekdays, specific_date, discipline, slot_minutes, start_time, end_time, capacity, is_active, created_at, updated_at)
				VALUES ($1, $2, 'recurring', $3, NULL, 'stream', 0, '17:00', '20:00', $4, true, now(), now())
			`, uuid.New(), doctorID, weekdaySets[gofakeit.Number(0, len(weekdaySets)-1)], gofakeit.Number(5, 20))
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("availability seeded")
	return nil
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
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, account_id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, uuid.New(), name, email)
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
