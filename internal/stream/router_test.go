package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/anirudh/go-ridebid/internal/cache"
	"github.com/anirudh/go-ridebid/internal/feed"
	"github.com/anirudh/go-ridebid/internal/models"
)

type stubPresence struct {
	nearby []string
	err    error

	calls      int
	lastLat    float64
	lastLng    float64
	lastRadius float64
}

func (p *stubPresence) NearbyOnline(ctx context.Context, lat, lng, radiusKm float64) ([]cache.DriverWithDistance, error) {
	p.calls++
	p.lastLat = lat
	p.lastLng = lng
	p.lastRadius = radiusKm
	if p.err != nil {
		return nil, p.err
	}
	drivers := make([]cache.DriverWithDistance, 0, len(p.nearby))
	for i, id := range p.nearby {
		drivers = append(drivers, cache.DriverWithDistance{DriverID: id, Distance: float64(i)})
	}
	return drivers, nil
}

func newTestRouter(nearby ...string) *Router {
	return NewRouter(&stubPresence{nearby: nearby}, 8, 5)
}

func drain(sub *Subscription) []Event {
	var events []Event
	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, event)
		default:
			return events
		}
	}
}

func rideEvent(op string, ride *models.Ride) feed.Event {
	return feed.NewRideEvent(op, ride)
}

func TestRiderHearsOwnRides(t *testing.T) {
	router := newTestRouter()
	sub := router.Connect("rider-1", RoleRider)
	defer sub.Close()

	router.Dispatch(rideEvent(feed.OpUpdate, &models.Ride{ID: "ride-1", RiderID: "rider-1", Status: models.RideStatusBidding}))
	router.Dispatch(rideEvent(feed.OpUpdate, &models.Ride{ID: "ride-2", RiderID: "rider-2", Status: models.RideStatusBidding}))

	events := drain(sub)
	if len(events) != 1 {
		t.Fatalf("expected 1 event for own ride, got %d", len(events))
	}
	if events[0].Type != EventRideUpdated || events[0].Ride.ID != "ride-1" {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestDriverHearsAssignedRides(t *testing.T) {
	router := newTestRouter()
	sub := router.Connect("driver-1", RoleDriver)
	defer sub.Close()

	assigned := "driver-1"
	router.Dispatch(rideEvent(feed.OpUpdate, &models.Ride{ID: "ride-1", RiderID: "rider-1", DriverID: &assigned, Status: models.RideStatusBooked}))

	other := "driver-2"
	router.Dispatch(rideEvent(feed.OpUpdate, &models.Ride{ID: "ride-2", RiderID: "rider-1", DriverID: &other, Status: models.RideStatusBooked}))

	events := drain(sub)
	if len(events) != 1 || events[0].Ride.ID != "ride-1" {
		t.Fatalf("expected only the assigned ride, got %+v", events)
	}
}

func TestOpenRequestsReachOnlyOnlineDrivers(t *testing.T) {
	router := newTestRouter("driver-online")

	online := router.Connect("driver-online", RoleDriver)
	defer online.Close()
	online.Add(Interest{Kind: InterestOpenRequests})

	offline := router.Connect("driver-offline", RoleDriver)
	defer offline.Close()
	offline.Add(Interest{Kind: InterestOpenRequests})

	router.Dispatch(rideEvent(feed.OpInsert, &models.Ride{ID: "ride-1", RiderID: "rider-1", Status: models.RideStatusRequested}))

	if events := drain(online); len(events) != 1 {
		t.Errorf("online driver should hear the new request, got %d events", len(events))
	}
	if events := drain(offline); len(events) != 0 {
		t.Errorf("offline driver should hear nothing, got %d events", len(events))
	}
}

func TestOpenRequestsIgnoreNonInsertOps(t *testing.T) {
	router := newTestRouter("driver-1")
	sub := router.Connect("driver-1", RoleDriver)
	defer sub.Close()
	sub.Add(Interest{Kind: InterestOpenRequests})

	router.Dispatch(rideEvent(feed.OpUpdate, &models.Ride{ID: "ride-1", RiderID: "rider-1", Status: models.RideStatusRequested}))

	if events := drain(sub); len(events) != 0 {
		t.Errorf("updates should not fan out as open requests, got %d events", len(events))
	}
}

func TestOpenRequestsScopedToPickupProximity(t *testing.T) {
	presence := &stubPresence{nearby: []string{"driver-near"}}
	router := NewRouter(presence, 8, 5)

	near := router.Connect("driver-near", RoleDriver)
	defer near.Close()
	near.Add(Interest{Kind: InterestOpenRequests})

	far := router.Connect("driver-far", RoleDriver)
	defer far.Close()
	far.Add(Interest{Kind: InterestOpenRequests})

	router.Dispatch(rideEvent(feed.OpInsert, &models.Ride{
		ID: "ride-1", RiderID: "rider-1", Status: models.RideStatusRequested,
		PickupLat: 12.97, PickupLng: 77.59,
	}))

	if presence.calls != 1 {
		t.Errorf("expected one proximity lookup per event, got %d", presence.calls)
	}
	if presence.lastLat != 12.97 || presence.lastLng != 77.59 || presence.lastRadius != 5 {
		t.Errorf("lookup should use the pickup point and configured radius, got (%v, %v, %v)",
			presence.lastLat, presence.lastLng, presence.lastRadius)
	}
	if events := drain(near); len(events) != 1 {
		t.Errorf("nearby driver should hear the new request, got %d events", len(events))
	}
	if events := drain(far); len(events) != 0 {
		t.Errorf("far driver should hear nothing, got %d events", len(events))
	}
}

func TestOpenRequestsSkippedWhenLookupFails(t *testing.T) {
	presence := &stubPresence{err: errors.New("redis down")}
	router := NewRouter(presence, 8, 5)

	driverSub := router.Connect("driver-1", RoleDriver)
	defer driverSub.Close()
	driverSub.Add(Interest{Kind: InterestOpenRequests})

	riderSub := router.Connect("rider-1", RoleRider)
	defer riderSub.Close()

	router.Dispatch(rideEvent(feed.OpInsert, &models.Ride{ID: "ride-1", RiderID: "rider-1", Status: models.RideStatusRequested}))

	if events := drain(driverSub); len(events) != 0 {
		t.Errorf("failed lookup should suppress open-request fan-out, got %d events", len(events))
	}
	if events := drain(riderSub); len(events) != 1 {
		t.Errorf("implicit own-ride match should be unaffected, got %d events", len(events))
	}
}

func TestRideInterestMatchesByID(t *testing.T) {
	router := newTestRouter()
	sub := router.Connect("rider-2", RoleRider)
	defer sub.Close()
	sub.Add(Interest{Kind: InterestRide, RideID: "ride-1"})

	router.Dispatch(rideEvent(feed.OpUpdate, &models.Ride{ID: "ride-1", RiderID: "rider-1", Status: models.RideStatusBidding}))
	router.Dispatch(rideEvent(feed.OpUpdate, &models.Ride{ID: "ride-9", RiderID: "rider-1", Status: models.RideStatusBidding}))

	events := drain(sub)
	if len(events) != 1 || events[0].Ride.ID != "ride-1" {
		t.Fatalf("expected only ride-1 updates, got %+v", events)
	}
}

func TestBidEventsType(t *testing.T) {
	router := newTestRouter()
	sub := router.Connect("driver-1", RoleDriver)
	defer sub.Close()

	router.Dispatch(feed.NewBidEvent(feed.OpInsert, &models.Bid{ID: "bid-1", RideID: "ride-1", DriverID: "driver-1", Status: models.BidStatusPending}))
	router.Dispatch(feed.NewBidEvent(feed.OpUpdate, &models.Bid{ID: "bid-1", RideID: "ride-1", DriverID: "driver-1", Status: models.BidStatusRejected}))

	events := drain(sub)
	if len(events) != 2 {
		t.Fatalf("expected 2 bid events, got %d", len(events))
	}
	if events[0].Type != EventBidCreated {
		t.Errorf("insert should surface as %s, got %s", EventBidCreated, events[0].Type)
	}
	if events[1].Type != EventBidResolved {
		t.Errorf("resolution should surface as %s, got %s", EventBidResolved, events[1].Type)
	}
}

func TestDuplicateEventsDeliveredOnce(t *testing.T) {
	router := newTestRouter()
	sub := router.Connect("rider-1", RoleRider)
	defer sub.Close()

	event := rideEvent(feed.OpUpdate, &models.Ride{ID: "ride-1", RiderID: "rider-1", Status: models.RideStatusBidding})
	router.Dispatch(event)
	router.Dispatch(event)

	if events := drain(sub); len(events) != 1 {
		t.Errorf("redelivered event should reach the actor once, got %d", len(events))
	}
}

func TestDuplicateAcrossOverlappingInterests(t *testing.T) {
	router := newTestRouter()
	sub := router.Connect("rider-1", RoleRider)
	defer sub.Close()
	// Explicit interest overlaps the implicit own-ride match.
	sub.Add(Interest{Kind: InterestRide, RideID: "ride-1"})

	router.Dispatch(rideEvent(feed.OpUpdate, &models.Ride{ID: "ride-1", RiderID: "rider-1", Status: models.RideStatusBidding}))

	if events := drain(sub); len(events) != 1 {
		t.Errorf("overlapping filters should yield one copy, got %d", len(events))
	}
}

func TestPresenceInterest(t *testing.T) {
	router := newTestRouter()
	sub := router.Connect("rider-1", RoleRider)
	defer sub.Close()
	sub.Add(Interest{Kind: InterestDriverPresence, DriverID: "driver-1"})

	router.Dispatch(feed.NewPresenceEvent(&models.DriverPresence{DriverID: "driver-1", Online: true}))
	router.Dispatch(feed.NewPresenceEvent(&models.DriverPresence{DriverID: "driver-2", Online: true}))

	events := drain(sub)
	if len(events) != 1 || events[0].Type != EventPresenceChanged {
		t.Fatalf("expected one presence event for driver-1, got %+v", events)
	}
}

func TestRemoveInterestIdempotent(t *testing.T) {
	router := newTestRouter()
	sub := router.Connect("rider-1", RoleRider)
	defer sub.Close()

	interest := Interest{Kind: InterestRide, RideID: "ride-1"}
	sub.Add(interest)
	router.RemoveInterest("rider-1", interest)
	router.RemoveInterest("rider-1", interest)
	router.RemoveInterest("rider-1", Interest{Kind: InterestRide, RideID: "never-subscribed"})
	router.RemoveInterest("no-such-actor", interest)

	router.Dispatch(rideEvent(feed.OpUpdate, &models.Ride{ID: "ride-1", RiderID: "rider-9", Status: models.RideStatusBidding}))
	if events := drain(sub); len(events) != 0 {
		t.Errorf("removed interest should not deliver, got %d events", len(events))
	}
}

func TestAddInterestRequiresLiveStream(t *testing.T) {
	router := newTestRouter()
	sub := router.Connect("rider-1", RoleRider)
	if !router.AddInterest("rider-1", Interest{Kind: InterestRide, RideID: "ride-1"}) {
		t.Error("AddInterest should succeed for a connected actor")
	}
	sub.Close()
	if router.AddInterest("rider-1", Interest{Kind: InterestRide, RideID: "ride-1"}) {
		t.Error("AddInterest should fail after disconnect")
	}
}

func TestReconnectReplacesSubscription(t *testing.T) {
	router := newTestRouter()
	first := router.Connect("rider-1", RoleRider)
	second := router.Connect("rider-1", RoleRider)
	defer second.Close()

	select {
	case _, ok := <-first.Events():
		if ok {
			t.Error("first connection should be closed, not delivering")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("first connection channel should be closed on reconnect")
	}

	router.Dispatch(rideEvent(feed.OpUpdate, &models.Ride{ID: "ride-1", RiderID: "rider-1", Status: models.RideStatusBidding}))
	if events := drain(second); len(events) != 1 {
		t.Errorf("replacement connection should receive events, got %d", len(events))
	}
}

func TestDispatchAfterCloseIsSafe(t *testing.T) {
	router := newTestRouter()
	sub := router.Connect("rider-1", RoleRider)
	sub.Close()

	router.Dispatch(rideEvent(feed.OpUpdate, &models.Ride{ID: "ride-1", RiderID: "rider-1", Status: models.RideStatusBidding}))
}

func TestSlowConsumerDropsInsteadOfBlocking(t *testing.T) {
	router := newTestRouter()
	sub := router.Connect("rider-1", RoleRider)
	defer sub.Close()

	// Buffer is 8; everything past it must be dropped, not block Dispatch.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			router.Dispatch(rideEvent(feed.OpUpdate, &models.Ride{ID: "ride-1", RiderID: "rider-1", Status: models.RideStatusBidding}))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a slow consumer")
	}

	if events := drain(sub); len(events) != 8 {
		t.Errorf("expected the buffer's worth of events, got %d", len(events))
	}
}
