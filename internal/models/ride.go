package models

import (
	"time"
)

// Ride status constants
const (
	RideStatusRequested  = "requested"
	RideStatusBidding    = "bidding"
	RideStatusBooked     = "booked"
	RideStatusInProgress = "in_progress"
	RideStatusCompleted  = "completed"
	RideStatusCancelled  = "cancelled"
)

// Valid ride state transitions
var ValidRideTransitions = map[string][]string{
	RideStatusRequested:  {RideStatusBidding, RideStatusCancelled},
	RideStatusBidding:    {RideStatusBooked, RideStatusCancelled},
	RideStatusBooked:     {RideStatusInProgress, RideStatusCancelled},
	RideStatusInProgress: {RideStatusCompleted, RideStatusCancelled},
	RideStatusCompleted:  {},
	RideStatusCancelled:  {},
}

type Location struct {
	Lat     float64 `json:"lat" validate:"required,latitude"`
	Lng     float64 `json:"lng" validate:"required,longitude"`
	Address string  `json:"address" validate:"required"`
}

type Ride struct {
	ID                 string     `db:"id" json:"id"`
	RiderID            string     `db:"rider_id" json:"rider_id"`
	DriverID           *string    `db:"driver_id" json:"driver_id,omitempty"`
	PickupLat          float64    `db:"pickup_lat" json:"pickup_lat"`
	PickupLng          float64    `db:"pickup_lng" json:"pickup_lng"`
	PickupAddress      string     `db:"pickup_address" json:"pickup_address"`
	DropoffLat         float64    `db:"dropoff_lat" json:"dropoff_lat"`
	DropoffLng         float64    `db:"dropoff_lng" json:"dropoff_lng"`
	DropoffAddress     string     `db:"dropoff_address" json:"dropoff_address"`
	Status             string     `db:"status" json:"status"`
	AcceptedAmount     *float64   `db:"accepted_amount" json:"accepted_amount,omitempty"`
	PaymentRef         *string    `db:"payment_ref" json:"-"`
	CancelledBy        *string    `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
	BookedAt           *time.Time `db:"booked_at" json:"booked_at,omitempty"`
}

type CreateRideRequest struct {
	Pickup  Location `json:"pickup" validate:"required"`
	Dropoff Location `json:"dropoff" validate:"required"`
}

type TransitionRideRequest struct {
	Target string `json:"target" validate:"required,oneof=bidding booked in_progress completed cancelled"`
}

type CancelRideRequest struct {
	Reason string `json:"reason,omitempty"`
}

type RideResponse struct {
	ID             string       `json:"id"`
	Status         string       `json:"status"`
	RiderID        string       `json:"rider_id"`
	DriverID       *string      `json:"driver_id,omitempty"`
	Pickup         Location     `json:"pickup"`
	Dropoff        Location     `json:"dropoff"`
	AcceptedAmount *float64     `json:"accepted_amount,omitempty"`
	WinningBid     *BidResponse `json:"winning_bid,omitempty"`
	DriverLat      *float64     `json:"driver_lat,omitempty"`
	DriverLng      *float64     `json:"driver_lng,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (r *Ride) ToResponse() *RideResponse {
	return &RideResponse{
		ID:       r.ID,
		Status:   r.Status,
		RiderID:  r.RiderID,
		DriverID: r.DriverID,
		Pickup: Location{
			Lat:     r.PickupLat,
			Lng:     r.PickupLng,
			Address: r.PickupAddress,
		},
		Dropoff: Location{
			Lat:     r.DropoffLat,
			Lng:     r.DropoffLng,
			Address: r.DropoffAddress,
		},
		AcceptedAmount: r.AcceptedAmount,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// CanTransitionTo checks if a ride can transition to a new status
func (r *Ride) CanTransitionTo(newStatus string) bool {
	validNextStates, exists := ValidRideTransitions[r.Status]
	if !exists {
		return false
	}

	for _, state := range validNextStates {
		if state == newStatus {
			return true
		}
	}
	return false
}

// IsActive returns true if the ride is not in a terminal state
func (r *Ride) IsActive() bool {
	return r.Status != RideStatusCompleted && r.Status != RideStatusCancelled
}

// IsBiddable returns true while drivers may still submit bids
func (r *Ride) IsBiddable() bool {
	return r.Status == RideStatusRequested || r.Status == RideStatusBidding
}

func IsValidRideStatus(status string) bool {
	_, ok := ValidRideTransitions[status]
	return ok
}
