package stream

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/anirudh/go-ridebid/internal/cache"
	"github.com/anirudh/go-ridebid/internal/feed"
	"github.com/anirudh/go-ridebid/internal/models"
	"github.com/anirudh/go-ridebid/internal/observability"
)

// Typed events delivered to connected actors.
const (
	EventRideUpdated     = "ride_updated"
	EventBidCreated      = "bid_created"
	EventBidResolved     = "bid_resolved"
	EventPresenceChanged = "presence_changed"
)

// Actor roles.
const (
	RoleRider  = "rider"
	RoleDriver = "driver"
)

// Interest kinds.
const (
	InterestOpenRequests   = "open_requests"
	InterestRide           = "ride"
	InterestDriverPresence = "driver_presence"
)

// Event is what a subscriber receives: a typed view of one feed event.
type Event struct {
	Type     string                 `json:"type"`
	Ride     *models.Ride           `json:"ride,omitempty"`
	Bid      *models.Bid            `json:"bid,omitempty"`
	Presence *models.DriverPresence `json:"presence,omitempty"`
	At       time.Time              `json:"at"`
}

// Interest is one filter in an actor's subscription set.
type Interest struct {
	Kind     string `json:"kind"`
	RideID   string `json:"ride_id,omitempty"`
	DriverID string `json:"driver_id,omitempty"`
}

// PresenceSource scopes new-request fan-out to online drivers near the
// pickup point.
type PresenceSource interface {
	NearbyOnline(ctx context.Context, lat, lng, radiusKm float64) ([]cache.DriverWithDistance, error)
}

// presenceLookupTimeout bounds the proximity lookup so a slow redis cannot
// stall the dispatch goroutine.
const presenceLookupTimeout = 2 * time.Second

const defaultOpenRequestRadiusKm = 10

// seenCap bounds the per-actor redelivery window.
const seenCap = 1024

type subscriber struct {
	actorID string
	role    string
	ch      chan Event

	mu        sync.Mutex
	interests map[Interest]struct{}
	seen      map[string]struct{}
	seenQueue []string
	closed    bool
}

// Router maps feed events onto per-actor subscription sets and delivers at
// most one copy per actor per event. One connection per actor; a reconnect
// replaces the previous subscription wholesale.
type Router struct {
	mu       sync.RWMutex
	subs     map[string]*subscriber
	presence PresenceSource
	buffer   int
	radiusKm float64
}

func NewRouter(presence PresenceSource, buffer int, radiusKm float64) *Router {
	if buffer <= 0 {
		buffer = 32
	}
	if radiusKm <= 0 {
		radiusKm = defaultOpenRequestRadiusKm
	}
	return &Router{
		subs:     make(map[string]*subscriber),
		presence: presence,
		buffer:   buffer,
		radiusKm: radiusKm,
	}
}

// Subscription is an actor's live event stream plus its filter set.
type Subscription struct {
	router *Router
	sub    *subscriber
}

// Connect registers actorID and returns its subscription. An existing
// connection for the same actor is torn down first.
func (r *Router) Connect(actorID, role string) *Subscription {
	sub := &subscriber{
		actorID:   actorID,
		role:      role,
		ch:        make(chan Event, r.buffer),
		interests: make(map[Interest]struct{}),
		seen:      make(map[string]struct{}),
	}

	r.mu.Lock()
	if prev, ok := r.subs[actorID]; ok {
		prev.close()
	}
	r.subs[actorID] = sub
	r.mu.Unlock()

	observability.StreamClients.Inc()
	return &Subscription{router: r, sub: sub}
}

func (s *Subscription) Events() <-chan Event {
	return s.sub.ch
}

// Add registers an interest. Adding the same interest twice is a no-op.
func (s *Subscription) Add(interest Interest) {
	s.sub.mu.Lock()
	defer s.sub.mu.Unlock()
	s.sub.interests[interest] = struct{}{}
}

// Remove is idempotent: removing an interest never subscribed is a no-op,
// not an error.
func (s *Subscription) Remove(interest Interest) {
	s.sub.mu.Lock()
	defer s.sub.mu.Unlock()
	delete(s.sub.interests, interest)
}

// Close disconnects the actor and discards every associated filter.
func (s *Subscription) Close() {
	s.router.mu.Lock()
	if current, ok := s.router.subs[s.sub.actorID]; ok && current == s.sub {
		delete(s.router.subs, s.sub.actorID)
	}
	s.router.mu.Unlock()
	s.sub.close()
}

func (sub *subscriber) close() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	sub.interests = make(map[Interest]struct{})
	close(sub.ch)
	observability.StreamClients.Dec()
}

// AddInterest registers an interest for a connected actor. Returns false when
// the actor has no live subscription.
func (r *Router) AddInterest(actorID string, interest Interest) bool {
	r.mu.RLock()
	sub, ok := r.subs[actorID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return false
	}
	sub.interests[interest] = struct{}{}
	return true
}

// RemoveInterest drops an interest. Removing twice, or removing an interest
// never subscribed, is a no-op — never an error.
func (r *Router) RemoveInterest(actorID string, interest Interest) {
	r.mu.RLock()
	sub, ok := r.subs[actorID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	delete(sub.interests, interest)
}

// Dispatch evaluates one feed event against every connected actor. It is
// called from the single feed listener goroutine, so per-actor delivery order
// follows feed order for events matching the same filter.
func (r *Router) Dispatch(event feed.Event) {
	r.mu.RLock()
	subs := make([]*subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	// One proximity lookup per new request, not one per interested driver.
	var nearby map[string]struct{}
	if isOpenRequest(event) {
		nearby = r.nearbyDrivers(event.Ride)
	}

	for _, sub := range subs {
		eventType, ok := r.match(sub, event, nearby)
		if !ok {
			continue
		}
		sub.deliver(event.ID, Event{
			Type:     eventType,
			Ride:     event.Ride,
			Bid:      event.Bid,
			Presence: event.Presence,
			At:       event.At,
		})
	}
}

func isOpenRequest(event feed.Event) bool {
	return event.Kind == feed.KindRide && event.Op == feed.OpInsert &&
		event.Ride != nil && event.Ride.Status == models.RideStatusRequested
}

func (r *Router) nearbyDrivers(ride *models.Ride) map[string]struct{} {
	ctx, cancel := context.WithTimeout(context.Background(), presenceLookupTimeout)
	defer cancel()

	drivers, err := r.presence.NearbyOnline(ctx, ride.PickupLat, ride.PickupLng, r.radiusKm)
	if err != nil {
		log.Printf("stream: proximity lookup failed for ride %s: %v", ride.ID, err)
		return nil
	}
	nearby := make(map[string]struct{}, len(drivers))
	for _, d := range drivers {
		nearby[d.DriverID] = struct{}{}
	}
	return nearby
}

func (r *Router) match(sub *subscriber, event feed.Event, nearby map[string]struct{}) (string, bool) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return "", false
	}
	interests := make([]Interest, 0, len(sub.interests))
	for i := range sub.interests {
		interests = append(interests, i)
	}
	sub.mu.Unlock()

	switch event.Kind {
	case feed.KindRide:
		return r.matchRide(sub, interests, event, nearby)
	case feed.KindBid:
		return r.matchBid(sub, interests, event)
	case feed.KindPresence:
		for _, i := range interests {
			if i.Kind == InterestDriverPresence && event.Presence != nil && i.DriverID == event.Presence.DriverID {
				return EventPresenceChanged, true
			}
		}
	}
	return "", false
}

func (r *Router) matchRide(sub *subscriber, interests []Interest, event feed.Event, nearby map[string]struct{}) (string, bool) {
	ride := event.Ride
	if ride == nil {
		return "", false
	}

	// A rider always hears about their own rides; a driver about rides
	// assigned to them.
	if sub.role == RoleRider && ride.RiderID == sub.actorID {
		return EventRideUpdated, true
	}
	if sub.role == RoleDriver && ride.DriverID != nil && *ride.DriverID == sub.actorID {
		return EventRideUpdated, true
	}

	for _, i := range interests {
		switch i.Kind {
		case InterestRide:
			if i.RideID == ride.ID {
				return EventRideUpdated, true
			}
		case InterestOpenRequests:
			if sub.role != RoleDriver || nearby == nil {
				continue
			}
			if _, ok := nearby[sub.actorID]; !ok {
				continue
			}
			return EventRideUpdated, true
		}
	}
	return "", false
}

func (r *Router) matchBid(sub *subscriber, interests []Interest, event feed.Event) (string, bool) {
	bid := event.Bid
	if bid == nil {
		return "", false
	}

	eventType := EventBidCreated
	if event.Op == feed.OpUpdate || bid.IsResolved() {
		eventType = EventBidResolved
	}

	// The bidding driver always hears the fate of their own bid.
	if sub.role == RoleDriver && bid.DriverID == sub.actorID {
		return eventType, true
	}

	for _, i := range interests {
		if i.Kind == InterestRide && i.RideID == bid.RideID {
			return eventType, true
		}
	}
	return "", false
}

// deliver sends at most one copy of a feed event to this actor, keyed by
// event id. Slow consumers lose events rather than blocking the feed.
func (sub *subscriber) deliver(eventID string, event Event) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	if _, dup := sub.seen[eventID]; dup {
		sub.mu.Unlock()
		return
	}
	sub.seen[eventID] = struct{}{}
	sub.seenQueue = append(sub.seenQueue, eventID)
	if len(sub.seenQueue) > seenCap {
		oldest := sub.seenQueue[0]
		sub.seenQueue = sub.seenQueue[1:]
		delete(sub.seen, oldest)
	}

	// Send under the lock: close() also takes it, so the channel cannot be
	// closed out from under the send.
	select {
	case sub.ch <- event:
		observability.StreamEventsDelivered.Inc()
	default:
		observability.StreamEventsDropped.Inc()
	}
	sub.mu.Unlock()
}
