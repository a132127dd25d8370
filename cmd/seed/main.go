package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/carebridge/healthplan-backend/internal/appointment"
	"github.com/carebridge/healthplan-backend/internal/db"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("app", "seed").Logger()
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatal().Err(err).Msg("apply schema")
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedFacilities(context.Background(), pool, log, 50); err != nil {
		log.Fatal().Err(err).Msg("seed facilities")
	}
	if err := seedPatients(context.Background(), pool, log, 5000); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}

	log.Info().Msg("seed complete")
}

func weekdayHours() [7]*appointment.DayHours {
	open, _ := appointment.ParseTimeOfDay("09:00")
	closeWeekday, _ := appointment.ParseTimeOfDay("17:00")
	closeSaturday, _ := appointment.ParseTimeOfDay("13:00")

	var hours [7]*appointment.DayHours
	for wd := time.Monday; wd <= time.Friday; wd++ {
		hours[wd] = &appointment.DayHours{Open: open, Close: closeWeekday}
	}
	hours[time.Saturday] = &appointment.DayHours{Open: open, Close: closeSaturday}
	// Sunday stays nil: closed.
	return hours
}

func seedFacilities(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, count int) error {
	log.Info().Int("count", count).Msg("seeding facilities")

	rawHours, err := appointment.EncodeHours(weekdayHours())
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Company() + " Medical Center"
		address := gofakeit.Street() + ", " + gofakeit.City()
		phone := gofakeit.Phone()

		_, err := tx.Exec(ctx, `
			INSERT INTO facilities (id, name, address, phone, working_hours, slot_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 30, now(), now())
		`, id, name, address, phone, rawHours)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info().Msg("facilities seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, count int) error {
	log.Info().Int("count", count).Msg("seeding patients")

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
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Int("done", end).Int("total", count).Msg("patients seeded batch")
	}

	log.Info().Msg("patients seeded")
	return nil
}
