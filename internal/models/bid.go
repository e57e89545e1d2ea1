package models

import (
	"math"
	"time"
)

// Bid status constants
const (
	BidStatusPending  = "pending"
	BidStatusAccepted = "accepted"
	BidStatusRejected = "rejected"
)

type Bid struct {
	ID          string     `db:"id" json:"id"`
	RideID      string     `db:"ride_id" json:"ride_id"`
	DriverID    string     `db:"driver_id" json:"driver_id"`
	Amount      float64    `db:"amount" json:"amount"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt  *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

type PlaceBidRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

type BidResponse struct {
	ID         string    `json:"id"`
	RideID     string    `json:"ride_id"`
	DriverID   string    `json:"driver_id"`
	Amount     float64   `json:"amount"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	DriverLat  *float64  `json:"driver_lat,omitempty"`
	DriverLng  *float64  `json:"driver_lng,omitempty"`
}

func (b *Bid) ToResponse() *BidResponse {
	return &BidResponse{
		ID:        b.ID,
		RideID:    b.RideID,
		DriverID:  b.DriverID,
		Amount:    b.Amount,
		Status:    b.Status,
		CreatedAt: b.CreatedAt,
	}
}

func (b *Bid) IsResolved() bool {
	return b.Status != BidStatusPending
}

// HasCentPrecision reports whether amount carries at most two decimal places.
func HasCentPrecision(amount float64) bool {
	cents := amount * 100
	return math.Abs(cents-math.Round(cents)) < 1e-6
}
