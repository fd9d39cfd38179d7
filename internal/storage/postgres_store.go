package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

// PostgresStore persists rides in a single table; the conditional
// update maps to one UPDATE with a status guard, so the database's
// row-level atomicity is the concurrency control.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

const rideColumns = `id, passenger_id, driver_id, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon, fare, status, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, r *models.Ride) error {
	now := time.Now()
	r.ID = uuid.NewString()
	r.CreatedAt = now
	r.UpdatedAt = now
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO rides(`+rideColumns+`) VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		r.ID, r.PassengerID, r.DriverID, r.Pickup.Lat, r.Pickup.Lon, r.Dropoff.Lat, r.Dropoff.Lon, r.Fare, r.Status, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

func (p *PostgresStore) FindByID(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1`, id)
	return scanRide(row)
}

func (p *PostgresStore) CompareAndSetStatus(ctx context.Context, id string, expected []models.RideStatus, expectedDriver string, next models.RideStatus, driverID string) (*models.Ride, error) {
	exp := make([]string, len(expected))
	for i, s := range expected {
		exp[i] = string(s)
	}
	row := p.db.QueryRowContext(ctx,
		`UPDATE rides SET status=$1, driver_id=$2, updated_at=$3
		 WHERE id=$4 AND status = ANY($5) AND ($6::text = '' OR driver_id = $6::text)
		 RETURNING `+rideColumns,
		string(next), driverID, time.Now(), id, pq.Array(exp), expectedDriver)
	r, err := scanRide(row)
	if errors.Is(err, ErrNotFound) {
		// update matched nothing: distinguish unknown ride from a
		// transition lost to a concurrent winner
		if _, ferr := p.FindByID(ctx, id); ferr != nil {
			return nil, ferr
		}
		return nil, ErrStatusConflict
	}
	return r, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	var status string
	err := row.Scan(&r.ID, &r.PassengerID, &r.DriverID, &r.Pickup.Lat, &r.Pickup.Lon, &r.Dropoff.Lat, &r.Dropoff.Lon, &r.Fare, &status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ride: %w", err)
	}
	r.Status = models.RideStatus(status)
	return &r, nil
}
