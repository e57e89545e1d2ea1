package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "github.com/anirudh/go-ridebid/internal/errors"
	"github.com/anirudh/go-ridebid/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type RideRepository interface {
	Create(ctx context.Context, ride *models.Ride) error
	GetByID(ctx context.Context, id string) (*models.Ride, error)
	// UpdateStatusFrom transitions only when the stored status still matches
	// from. Returns false when the precondition failed.
	UpdateStatusFrom(ctx context.Context, id, from, to string) (bool, error)
	// Cancel carries the same status precondition as UpdateStatusFrom: a
	// competing booking that commits first makes the cancel return false.
	Cancel(ctx context.Context, id, from, cancelledBy, reason string) (bool, error)
	SetPaymentRef(ctx context.Context, id, ref string) error
	GetActiveRideByRiderID(ctx context.Context, riderID string) (*models.Ride, error)
	ListOpenRequests(ctx context.Context, limit int) ([]*models.Ride, error)
	ListOpenRequestsNear(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]*models.Ride, error)
	GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Ride, error)
}

type rideRepository struct {
	db *sqlx.DB
}

func NewRideRepository(db *sqlx.DB) RideRepository {
	return &rideRepository{db: db}
}

func (r *rideRepository) Create(ctx context.Context, ride *models.Ride) error {
	if ride.ID == "" {
		ride.ID = uuid.New().String()
	}
	ride.CreatedAt = time.Now()
	ride.UpdatedAt = time.Now()
	ride.Status = models.RideStatusRequested

	query := `
		INSERT INTO rides (id, rider_id, pickup_lat, pickup_lng, pickup_address,
			dropoff_lat, dropoff_lng, dropoff_address, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		ride.ID, ride.RiderID, ride.PickupLat, ride.PickupLng, ride.PickupAddress,
		ride.DropoffLat, ride.DropoffLng, ride.DropoffAddress, ride.Status,
		ride.CreatedAt, ride.UpdatedAt)

	// The partial unique index on (rider_id) WHERE status NOT IN
	// ('completed','cancelled') closes the race the service-level active-ride
	// check cannot.
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return apperrors.NewAPIError("active_ride_exists", "you already have an active ride", 409)
	}
	return wrapStorage(err)
}

func (r *rideRepository) GetByID(ctx context.Context, id string) (*models.Ride, error) {
	var ride models.Ride
	query := `SELECT * FROM rides WHERE id = $1`
	err := r.db.GetContext(ctx, &ride, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &ride, wrapStorage(err)
}

func (r *rideRepository) UpdateStatusFrom(ctx context.Context, id, from, to string) (bool, error) {
	query := `UPDATE rides SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, to, time.Now(), id, from)
	if err != nil {
		return false, wrapStorage(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapStorage(err)
	}
	return n == 1, nil
}

func (r *rideRepository) Cancel(ctx context.Context, id, from, cancelledBy, reason string) (bool, error) {
	// Clearing driver_id keeps the assigned-driver invariant: only booked,
	// in_progress and completed rides carry an assignee. The status guard
	// stops a cancel read under bidding from landing on a ride another
	// process booked in between.
	query := `
		UPDATE rides
		SET status = $1, cancelled_by = $2, cancellation_reason = $3,
			driver_id = NULL, updated_at = $4
		WHERE id = $5 AND status = $6
	`
	res, err := r.db.ExecContext(ctx, query,
		models.RideStatusCancelled, cancelledBy, reason, time.Now(), id, from)
	if err != nil {
		return false, wrapStorage(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapStorage(err)
	}
	return n == 1, nil
}

func (r *rideRepository) SetPaymentRef(ctx context.Context, id, ref string) error {
	query := `UPDATE rides SET payment_ref = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, ref, time.Now(), id)
	return wrapStorage(err)
}

func (r *rideRepository) GetActiveRideByRiderID(ctx context.Context, riderID string) (*models.Ride, error) {
	var ride models.Ride
	query := `
		SELECT * FROM rides
		WHERE rider_id = $1 AND status NOT IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &ride, query, riderID, models.RideStatusCompleted, models.RideStatusCancelled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &ride, wrapStorage(err)
}

func (r *rideRepository) ListOpenRequests(ctx context.Context, limit int) ([]*models.Ride, error) {
	var rides []*models.Ride
	query := `
		SELECT * FROM rides
		WHERE status IN ($1, $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	err := r.db.SelectContext(ctx, &rides, query, models.RideStatusRequested, models.RideStatusBidding, limit)
	return rides, wrapStorage(err)
}

// ListOpenRequestsNear applies the radius predicate store-side so proximity
// scoping stays out of the coordination core.
func (r *rideRepository) ListOpenRequestsNear(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]*models.Ride, error) {
	var rides []*models.Ride
	query := `
		SELECT * FROM rides
		WHERE status IN ($1, $2)
		AND 6371 * acos(
			least(1.0, cos(radians($3)) * cos(radians(pickup_lat))
				* cos(radians(pickup_lng) - radians($4))
				+ sin(radians($3)) * sin(radians(pickup_lat)))
		) <= $5
		ORDER BY created_at DESC
		LIMIT $6
	`
	err := r.db.SelectContext(ctx, &rides, query,
		models.RideStatusRequested, models.RideStatusBidding, lat, lng, radiusKm, limit)
	return rides, wrapStorage(err)
}

// GetByIDForUpdate reads the ride row with a FOR UPDATE lock inside the
// caller's transaction. Accept attempts on the same ride serialize here
// even across processes.
func (r *rideRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Ride, error) {
	var ride models.Ride
	query := `SELECT * FROM rides WHERE id = $1 FOR UPDATE`
	err := tx.GetContext(ctx, &ride, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &ride, wrapStorage(err)
}
