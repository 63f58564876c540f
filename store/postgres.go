package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"valencia-data-detective/datex"
)

// PostgresSink mirrors accumulated measurements into TimescaleDB for
// the API. The sink is optional; the capture loop runs fine without a
// DSN and keeps everything in the CSV.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects and pings the database.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db pool init failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return &PostgresSink{pool: pool}, nil
}

// Store inserts measurements, skipping rows already present. The
// conflict target matches the CSV dedup key, so both stores agree on
// what counts as a duplicate.
func (s *PostgresSink) Store(ctx context.Context, measurements []datex.Measurement) (int, error) {
	stored := 0
	for _, m := range measurements {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO traffic_measurements (ts, punto_medida, intensidad, velocidad, ocupacion)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (ts, punto_medida) DO NOTHING
		`, m.Time.UTC(), m.PointID, nullable(m.Intensity, m.HasIntensity), nullable(m.Speed, m.HasSpeed), nullable(m.Occupancy, m.HasOccupancy))
		if err != nil {
			return stored, fmt.Errorf("db insert failed: %w", err)
		}
		stored += int(tag.RowsAffected())
	}
	return stored, nil
}

// StoreSituations mirrors filtered situation records into the
// traffic_situations table. The record keeps its creation time as ts,
// so a record still active on the next cycle is not inserted twice.
func (s *PostgresSink) StoreSituations(ctx context.Context, capturedAt time.Time, records []datex.SituationRecord) (int, error) {
	stored := 0
	for _, rec := range records {
		ts := rec.CreationTime
		if ts.IsZero() {
			ts = capturedAt
		}

		var road, municipio, provincia string
		var lat, lon any
		if rec.Location != nil {
			road = rec.Location.RoadName
			if from := rec.Location.From; from != nil {
				municipio = from.Municipality
				provincia = from.Province
				lat = nullable(from.Lat, from.HasCoords)
				lon = nullable(from.Lon, from.HasCoords)
			}
		}

		tag, err := s.pool.Exec(ctx, `
			INSERT INTO traffic_situations (ts, record_id, situation_id, tipo, severidad, probabilidad, carretera, municipio, provincia, lat, lon)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (ts, record_id) DO NOTHING
		`, ts.UTC(), rec.ID, rec.SituationID, rec.RecordType, rec.Severity, rec.Probability, road, municipio, provincia, lat, lon)
		if err != nil {
			return stored, fmt.Errorf("db insert failed: %w", err)
		}
		stored += int(tag.RowsAffected())
	}
	return stored, nil
}

// Close releases the pool.
func (s *PostgresSink) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func nullable(value float64, present bool) any {
	if !present {
		return nil
	}
	return value
}
