package feed

import (
	"time"

	"github.com/anirudh/go-ridebid/internal/models"
	"github.com/anirudh/go-ridebid/pkg/utils"
)

// Record kinds carried by the feed.
const (
	KindRide     = "rides"
	KindBid      = "bids"
	KindPresence = "presence"
)

// Feed operations.
const (
	OpInsert = "insert"
	OpUpdate = "update"
)

// Event is one change notification. Delivery is at-least-once and unordered
// across different records; consumers de-duplicate on ID.
type Event struct {
	ID       string                 `json:"id"`
	Kind     string                 `json:"kind"`
	Op       string                 `json:"op"`
	Ride     *models.Ride           `json:"ride,omitempty"`
	Bid      *models.Bid            `json:"bid,omitempty"`
	Presence *models.DriverPresence `json:"presence,omitempty"`
	At       time.Time              `json:"at"`
}

func NewRideEvent(op string, ride *models.Ride) Event {
	return Event{
		ID:   utils.GenerateID(),
		Kind: KindRide,
		Op:   op,
		Ride: ride,
		At:   time.Now(),
	}
}

func NewBidEvent(op string, bid *models.Bid) Event {
	return Event{
		ID:   utils.GenerateID(),
		Kind: KindBid,
		Op:   op,
		Bid:  bid,
		At:   time.Now(),
	}
}

func NewPresenceEvent(presence *models.DriverPresence) Event {
	return Event{
		ID:       utils.GenerateID(),
		Kind:     KindPresence,
		Op:       OpUpdate,
		Presence: presence,
		At:       time.Now(),
	}
}

// RecordID identifies the record the event is about, for partitioning and
// archive keys.
func (e Event) RecordID() string {
	switch {
	case e.Ride != nil:
		return e.Ride.ID
	case e.Bid != nil:
		return e.Bid.ID
	case e.Presence != nil:
		return e.Presence.DriverID
	}
	return e.ID
}
