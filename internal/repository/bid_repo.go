package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/anirudh/go-ridebid/internal/errors"
	"github.com/anirudh/go-ridebid/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// AcceptResult is the state produced by a successful accept: the winning bid,
// the booked ride, and the siblings that were rejected in the same transaction.
type AcceptResult struct {
	Bid      *models.Bid
	Ride     *models.Ride
	Rejected []*models.Bid
}

type BidRepository interface {
	Create(ctx context.Context, bid *models.Bid) error
	GetByID(ctx context.Context, id string) (*models.Bid, error)
	ListByRideID(ctx context.Context, rideID string) ([]*models.Bid, error)
	GetAcceptedByRideID(ctx context.Context, rideID string) (*models.Bid, error)
	// AcceptExclusive performs the whole accept protocol in one transaction:
	// verify no sibling is already accepted, mark the bid accepted, reject
	// every other bid on the ride and book the ride for the winning driver.
	// Concurrent losers get *apperrors.AlreadyBookedError naming the winner.
	AcceptExclusive(ctx context.Context, rideID, bidID string) (*AcceptResult, error)
}

type bidRepository struct {
	db    *sqlx.DB
	rides RideRepository
}

func NewBidRepository(db *sqlx.DB, rides RideRepository) BidRepository {
	return &bidRepository{db: db, rides: rides}
}

func (r *bidRepository) Create(ctx context.Context, bid *models.Bid) error {
	if bid.ID == "" {
		bid.ID = uuid.New().String()
	}
	bid.CreatedAt = time.Now()
	bid.Status = models.BidStatusPending

	query := `
		INSERT INTO bids (id, ride_id, driver_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		bid.ID, bid.RideID, bid.DriverID, bid.Amount, bid.Status, bid.CreatedAt)
	return wrapStorage(err)
}

func (r *bidRepository) GetByID(ctx context.Context, id string) (*models.Bid, error) {
	var bid models.Bid
	query := `SELECT * FROM bids WHERE id = $1`
	err := r.db.GetContext(ctx, &bid, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &bid, wrapStorage(err)
}

func (r *bidRepository) ListByRideID(ctx context.Context, rideID string) ([]*models.Bid, error) {
	var bids []*models.Bid
	// Cheapest first, stable on amount ties by creation time.
	query := `
		SELECT * FROM bids
		WHERE ride_id = $1
		ORDER BY amount ASC, created_at ASC
	`
	err := r.db.SelectContext(ctx, &bids, query, rideID)
	return bids, wrapStorage(err)
}

func (r *bidRepository) GetAcceptedByRideID(ctx context.Context, rideID string) (*models.Bid, error) {
	var bid models.Bid
	query := `SELECT * FROM bids WHERE ride_id = $1 AND status = $2`
	err := r.db.GetContext(ctx, &bid, query, rideID, models.BidStatusAccepted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &bid, wrapStorage(err)
}

func (r *bidRepository) AcceptExclusive(ctx context.Context, rideID, bidID string) (*AcceptResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, wrapStorage(err)
	}
	defer tx.Rollback()

	// Lock the ride row first so every accept attempt on this ride serializes
	// on its lock.
	ride, err := r.rides.GetByIDForUpdate(ctx, tx, rideID)
	if err != nil {
		return nil, err
	}
	if ride == nil {
		return nil, apperrors.ErrNotFound
	}

	if ride.Status != models.RideStatusBidding {
		if winner, werr := r.acceptedInTx(ctx, tx, rideID); werr == nil && winner != nil {
			return nil, &apperrors.AlreadyBookedError{WinningBidID: winner.ID}
		}
		return nil, fmt.Errorf("%w: ride in status %s", apperrors.ErrIllegalTransition, ride.Status)
	}

	// With the ride row held, a sibling can only be accepted by a transaction
	// that already committed; this check is therefore race-free.
	winner, err := r.acceptedInTx(ctx, tx, rideID)
	if err != nil {
		return nil, err
	}
	if winner != nil {
		return nil, &apperrors.AlreadyBookedError{WinningBidID: winner.ID}
	}

	var bid models.Bid
	err = tx.GetContext(ctx, &bid, `SELECT * FROM bids WHERE id = $1 FOR UPDATE`, bidID)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, wrapStorage(err)
	}
	if bid.RideID != rideID {
		return nil, apperrors.ErrInvalidInput
	}

	now := time.Now()

	_, err = tx.ExecContext(ctx,
		`UPDATE bids SET status = $1, resolved_at = $2 WHERE id = $3`,
		models.BidStatusAccepted, now, bid.ID)
	if err != nil {
		return nil, wrapStorage(err)
	}

	var rejected []*models.Bid
	err = tx.SelectContext(ctx, &rejected,
		`UPDATE bids SET status = $1, resolved_at = $2
		 WHERE ride_id = $3 AND id <> $4 AND status = $5
		 RETURNING *`,
		models.BidStatusRejected, now, rideID, bid.ID, models.BidStatusPending)
	if err != nil {
		return nil, wrapStorage(err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE rides SET status = $1, driver_id = $2, accepted_amount = $3,
			booked_at = $4, updated_at = $5 WHERE id = $6`,
		models.RideStatusBooked, bid.DriverID, bid.Amount, now, now, rideID)
	if err != nil {
		return nil, wrapStorage(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapStorage(err)
	}

	bid.Status = models.BidStatusAccepted
	bid.ResolvedAt = &now

	ride.Status = models.RideStatusBooked
	ride.DriverID = &bid.DriverID
	ride.AcceptedAmount = &bid.Amount
	ride.BookedAt = &now
	ride.UpdatedAt = now

	return &AcceptResult{Bid: &bid, Ride: ride, Rejected: rejected}, nil
}

func (r *bidRepository) acceptedInTx(ctx context.Context, tx *sqlx.Tx, rideID string) (*models.Bid, error) {
	var bid models.Bid
	err := tx.GetContext(ctx, &bid,
		`SELECT * FROM bids WHERE ride_id = $1 AND status = $2`, rideID, models.BidStatusAccepted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStorage(err)
	}
	return &bid, nil
}
