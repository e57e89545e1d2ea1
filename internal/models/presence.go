package models

import (
	"time"
)

// DriverPresence is the latest known state of a driver: online flag plus
// last reported position. Rows are upserted on every report and never deleted.
type DriverPresence struct {
	DriverID   string    `db:"driver_id" json:"driver_id"`
	Online     bool      `db:"online" json:"online"`
	CurrentLat *float64  `db:"current_lat" json:"current_lat,omitempty"`
	CurrentLng *float64  `db:"current_lng" json:"current_lng,omitempty"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

type SetOnlineRequest struct {
	Online bool `json:"online"`
}

type ReportLocationRequest struct {
	Lat float64 `json:"lat" validate:"required,latitude"`
	Lng float64 `json:"lng" validate:"required,longitude"`
}

type PresenceResponse struct {
	DriverID   string    `json:"driver_id"`
	Online     bool      `json:"online"`
	CurrentLat *float64  `json:"current_lat,omitempty"`
	CurrentLng *float64  `json:"current_lng,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (p *DriverPresence) ToResponse() *PresenceResponse {
	return &PresenceResponse{
		DriverID:   p.DriverID,
		Online:     p.Online,
		CurrentLat: p.CurrentLat,
		CurrentLng: p.CurrentLng,
		UpdatedAt:  p.UpdatedAt,
	}
}
