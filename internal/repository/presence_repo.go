package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/anirudh/go-ridebid/internal/models"
	"github.com/jmoiron/sqlx"
)

type PresenceRepository interface {
	Get(ctx context.Context, driverID string) (*models.DriverPresence, error)
	SetOnline(ctx context.Context, driverID string, online bool) (*models.DriverPresence, error)
	UpdateLocation(ctx context.Context, driverID string, lat, lng float64) (*models.DriverPresence, error)
}

type presenceRepository struct {
	db *sqlx.DB
}

func NewPresenceRepository(db *sqlx.DB) PresenceRepository {
	return &presenceRepository{db: db}
}

func (r *presenceRepository) Get(ctx context.Context, driverID string) (*models.DriverPresence, error) {
	var p models.DriverPresence
	query := `SELECT * FROM driver_presence WHERE driver_id = $1`
	err := r.db.GetContext(ctx, &p, query, driverID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &p, wrapStorage(err)
}

// SetOnline upserts: presence rows come into being on a driver's first report
// and are only ever superseded, never deleted.
func (r *presenceRepository) SetOnline(ctx context.Context, driverID string, online bool) (*models.DriverPresence, error) {
	var p models.DriverPresence
	query := `
		INSERT INTO driver_presence (driver_id, online, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (driver_id)
		DO UPDATE SET online = EXCLUDED.online, updated_at = EXCLUDED.updated_at
		RETURNING *
	`
	err := r.db.GetContext(ctx, &p, query, driverID, online, time.Now())
	return &p, wrapStorage(err)
}

func (r *presenceRepository) UpdateLocation(ctx context.Context, driverID string, lat, lng float64) (*models.DriverPresence, error) {
	var p models.DriverPresence
	query := `
		INSERT INTO driver_presence (driver_id, online, current_lat, current_lng, updated_at)
		VALUES ($1, false, $2, $3, $4)
		ON CONFLICT (driver_id)
		DO UPDATE SET current_lat = EXCLUDED.current_lat,
			current_lng = EXCLUDED.current_lng,
			updated_at = EXCLUDED.updated_at
		RETURNING *
	`
	err := r.db.GetContext(ctx, &p, query, driverID, lat, lng, time.Now())
	return &p, wrapStorage(err)
}
