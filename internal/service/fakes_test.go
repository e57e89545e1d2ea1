package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/anirudh/go-ridebid/internal/cache"
	apperrors "github.com/anirudh/go-ridebid/internal/errors"
	"github.com/anirudh/go-ridebid/internal/feed"
	"github.com/anirudh/go-ridebid/internal/models"
	"github.com/anirudh/go-ridebid/internal/repository"
	"github.com/jmoiron/sqlx"
)

// memStore backs the fake repositories with one shared mutex so the accept
// protocol is atomic the same way the real transaction is.
type memStore struct {
	mu    sync.Mutex
	rides map[string]*models.Ride
	bids  map[string]*models.Bid
	seq   int
}

func newMemStore() *memStore {
	return &memStore{
		rides: make(map[string]*models.Ride),
		bids:  make(map[string]*models.Bid),
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

type fakeRideRepo struct {
	s *memStore

	lastNearLat    float64
	lastNearLng    float64
	lastNearRadius float64
	nearCalls      int
}

func (r *fakeRideRepo) Create(ctx context.Context, ride *models.Ride) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ride.ID == "" {
		ride.ID = r.s.nextID("ride")
	}
	ride.Status = models.RideStatusRequested
	ride.CreatedAt = time.Now()
	ride.UpdatedAt = ride.CreatedAt
	stored := *ride
	r.s.rides[ride.ID] = &stored
	return nil
}

func (r *fakeRideRepo) GetByID(ctx context.Context, id string) (*models.Ride, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ride, ok := r.s.rides[id]
	if !ok {
		return nil, nil
	}
	copied := *ride
	return &copied, nil
}

func (r *fakeRideRepo) UpdateStatusFrom(ctx context.Context, id, from, to string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ride, ok := r.s.rides[id]
	if !ok || ride.Status != from {
		return false, nil
	}
	ride.Status = to
	ride.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeRideRepo) Cancel(ctx context.Context, id, from, cancelledBy, reason string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ride, ok := r.s.rides[id]
	if !ok || ride.Status != from {
		return false, nil
	}
	ride.Status = models.RideStatusCancelled
	ride.CancelledBy = &cancelledBy
	if reason != "" {
		ride.CancellationReason = &reason
	}
	ride.DriverID = nil
	ride.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeRideRepo) SetPaymentRef(ctx context.Context, id, ref string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ride, ok := r.s.rides[id]; ok {
		ride.PaymentRef = &ref
	}
	return nil
}

func (r *fakeRideRepo) GetActiveRideByRiderID(ctx context.Context, riderID string) (*models.Ride, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ride := range r.s.rides {
		if ride.RiderID == riderID && ride.IsActive() {
			copied := *ride
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeRideRepo) ListOpenRequests(ctx context.Context, limit int) ([]*models.Ride, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var open []*models.Ride
	for _, ride := range r.s.rides {
		if ride.IsBiddable() && len(open) < limit {
			copied := *ride
			open = append(open, &copied)
		}
	}
	return open, nil
}

func (r *fakeRideRepo) ListOpenRequestsNear(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]*models.Ride, error) {
	r.nearCalls++
	r.lastNearLat = lat
	r.lastNearLng = lng
	r.lastNearRadius = radiusKm
	return r.ListOpenRequests(ctx, limit)
}

func (r *fakeRideRepo) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Ride, error) {
	return r.GetByID(ctx, id)
}

type fakeBidRepo struct {
	s *memStore
}

func (r *fakeBidRepo) Create(ctx context.Context, bid *models.Bid) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if bid.ID == "" {
		bid.ID = r.s.nextID("bid")
	}
	bid.Status = models.BidStatusPending
	bid.CreatedAt = time.Now()
	stored := *bid
	r.s.bids[bid.ID] = &stored
	return nil
}

func (r *fakeBidRepo) GetByID(ctx context.Context, id string) (*models.Bid, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	bid, ok := r.s.bids[id]
	if !ok {
		return nil, nil
	}
	copied := *bid
	return &copied, nil
}

func (r *fakeBidRepo) ListByRideID(ctx context.Context, rideID string) ([]*models.Bid, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var bids []*models.Bid
	for _, bid := range r.s.bids {
		if bid.RideID == rideID {
			copied := *bid
			bids = append(bids, &copied)
		}
	}
	sort.Slice(bids, func(i, j int) bool {
		if bids[i].Amount != bids[j].Amount {
			return bids[i].Amount < bids[j].Amount
		}
		return bids[i].CreatedAt.Before(bids[j].CreatedAt)
	})
	return bids, nil
}

func (r *fakeBidRepo) GetAcceptedByRideID(ctx context.Context, rideID string) (*models.Bid, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.acceptedLocked(rideID), nil
}

func (r *fakeBidRepo) acceptedLocked(rideID string) *models.Bid {
	for _, bid := range r.s.bids {
		if bid.RideID == rideID && bid.Status == models.BidStatusAccepted {
			copied := *bid
			return &copied
		}
	}
	return nil
}

func (r *fakeBidRepo) AcceptExclusive(ctx context.Context, rideID, bidID string) (*repository.AcceptResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ride, ok := r.s.rides[rideID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if ride.Status != models.RideStatusBidding {
		if winner := r.acceptedLocked(rideID); winner != nil {
			return nil, &apperrors.AlreadyBookedError{WinningBidID: winner.ID}
		}
		return nil, fmt.Errorf("%w: ride in status %s", apperrors.ErrIllegalTransition, ride.Status)
	}
	if winner := r.acceptedLocked(rideID); winner != nil {
		return nil, &apperrors.AlreadyBookedError{WinningBidID: winner.ID}
	}

	bid, ok := r.s.bids[bidID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if bid.RideID != rideID {
		return nil, apperrors.ErrInvalidInput
	}

	now := time.Now()
	bid.Status = models.BidStatusAccepted
	bid.ResolvedAt = &now

	var rejected []*models.Bid
	for _, other := range r.s.bids {
		if other.RideID == rideID && other.ID != bidID && other.Status == models.BidStatusPending {
			other.Status = models.BidStatusRejected
			other.ResolvedAt = &now
			copied := *other
			rejected = append(rejected, &copied)
		}
	}

	ride.Status = models.RideStatusBooked
	ride.DriverID = &bid.DriverID
	ride.AcceptedAmount = &bid.Amount
	ride.BookedAt = &now
	ride.UpdatedAt = now

	bidCopy := *bid
	rideCopy := *ride
	return &repository.AcceptResult{Bid: &bidCopy, Ride: &rideCopy, Rejected: rejected}, nil
}

type fakePresenceCache struct {
	mu        sync.Mutex
	online    map[string]bool
	locations map[string]cache.DriverLocation
}

func newFakePresenceCache() *fakePresenceCache {
	return &fakePresenceCache{
		online:    make(map[string]bool),
		locations: make(map[string]cache.DriverLocation),
	}
}

func (c *fakePresenceCache) SetOnline(ctx context.Context, driverID string, online bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online[driverID] = online
	return nil
}

func (c *fakePresenceCache) IsOnline(ctx context.Context, driverID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online[driverID], nil
}

func (c *fakePresenceCache) UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locations[driverID] = cache.DriverLocation{Lat: lat, Lng: lng, UpdatedAt: time.Now().Unix()}
	return nil
}

func (c *fakePresenceCache) GetLocation(ctx context.Context, driverID string) (*cache.DriverLocation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loc, ok := c.locations[driverID]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}

func (c *fakePresenceCache) NearbyOnline(ctx context.Context, lat, lng, radiusKm float64) ([]cache.DriverWithDistance, error) {
	return nil, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []feed.Event
}

func (p *fakePublisher) Publish(ctx context.Context, event feed.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) published() []feed.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]feed.Event, len(p.events))
	copy(out, p.events)
	return out
}

type fakeGateway struct {
	mu       sync.Mutex
	holds    []string
	captures []string
	releases []string
	holdErr  error
}

func (g *fakeGateway) Hold(ctx context.Context, rideID string, amount float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.holdErr != nil {
		return "", g.holdErr
	}
	ref := "hold-" + rideID
	g.holds = append(g.holds, ref)
	return ref, nil
}

func (g *fakeGateway) Capture(ctx context.Context, holdRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captures = append(g.captures, holdRef)
	return nil
}

func (g *fakeGateway) Release(ctx context.Context, holdRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.releases = append(g.releases, holdRef)
	return nil
}
