package archive

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gr-butler/weatherlog/record"
	_ "github.com/lib/pq"
)

// MinuteStore receives the per-minute records of every reduced batch, keyed
// on the minute and the batch file it came from. A minute that straddles two
// batches therefore has a row per batch, like current.csv, and readers sum or
// average them. Writes must be idempotent on that key so a batch that is
// reduced again after a partial failure does not duplicate anything.
type MinuteStore interface {
	UpsertMinutes(ctx context.Context, batch string, minutes []record.ArchiveRecord) error
}

const createMinuteTable = `
	CREATE TABLE IF NOT EXISTS minute_records (
		minute          TIMESTAMPTZ NOT NULL,
		batch           TEXT NOT NULL,
		rain_mm         DOUBLE PRECISION,
		wind_speed_kmh  DOUBLE PRECISION,
		wind_direction  DOUBLE PRECISION,
		temperature_f   DOUBLE PRECISION,
		pressure_hpa    DOUBLE PRECISION,
		humidity_pct    DOUBLE PRECISION,
		PRIMARY KEY (minute, batch)
	)
`

const upsertMinute = `
	INSERT INTO minute_records (minute, batch, rain_mm, wind_speed_kmh, wind_direction, temperature_f, pressure_hpa, humidity_pct)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (minute, batch) DO UPDATE
	SET rain_mm = EXCLUDED.rain_mm,
	    wind_speed_kmh = EXCLUDED.wind_speed_kmh,
	    wind_direction = EXCLUDED.wind_direction,
	    temperature_f = EXCLUDED.temperature_f,
	    pressure_hpa = EXCLUDED.pressure_hpa,
	    humidity_pct = EXCLUDED.humidity_pct
`

// PostgresStore keeps minute records in postgres.
type PostgresStore struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(2)
	s := NewPostgresStore(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createMinuteTable); err != nil {
		return fmt.Errorf("failed to create minute_records: %w", err)
	}
	return nil
}

// UpsertMinutes writes all minutes of one batch in one transaction.
func (s *PostgresStore) UpsertMinutes(ctx context.Context, batch string, minutes []record.ArchiveRecord) error {
	if len(minutes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertMinute)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range minutes {
		if _, err := stmt.ExecContext(ctx,
			m.Minute.UTC(),
			batch,
			m.RainMM,
			m.WindSpeedKmh,
			m.WindDirection,
			m.TemperatureF,
			m.PressurehPa,
			m.HumidityPct,
		); err != nil {
			return fmt.Errorf("failed to upsert minute [%v]: %w", m.Minute.Format(record.MinuteLayout), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit minutes: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
