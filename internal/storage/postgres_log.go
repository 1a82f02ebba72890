package storage

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
)

type PostgresLog struct {
	db *sql.DB
}

func NewPostgresLog(dsn string) (*PostgresLog, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresLog{db: db}, nil
}

func (p *PostgresLog) Record(ctx context.Context, r RideRecord) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO ride_journal(id, ride_id, driver_id, user_id, fare, distance_m, outcome, recorded_at) VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, r.RideID, r.DriverID, r.UserID, r.Fare, r.DistanceMeters, r.Outcome, r.RecordedAt)
	return err
}

func (p *PostgresLog) Close() error { return p.db.Close() }
