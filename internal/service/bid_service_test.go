package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anirudh/go-ridebid/internal/auth"
	apperrors "github.com/anirudh/go-ridebid/internal/errors"
	"github.com/anirudh/go-ridebid/internal/locker"
	"github.com/anirudh/go-ridebid/internal/models"
)

type fixture struct {
	rides     *fakeRideRepo
	bids      *fakeBidRepo
	presence  *fakePresenceCache
	publisher *fakePublisher
	gateway   *fakeGateway
	locks     *locker.RideLocks
	lifecycle LifecycleService
	svc       BidService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	f := &fixture{
		rides:     &fakeRideRepo{s: store},
		bids:      &fakeBidRepo{s: store},
		presence:  newFakePresenceCache(),
		publisher: &fakePublisher{},
		gateway:   &fakeGateway{},
		locks:     locker.New(time.Second),
	}
	f.lifecycle = NewLifecycleService(f.rides, f.bids, f.presence, f.locks, f.publisher, f.gateway)
	f.svc = NewBidService(f.bids, f.rides, f.presence, f.lifecycle, f.locks, f.publisher)
	return f
}

func rider(id string) auth.Actor  { return auth.Actor{ID: id, Role: auth.RoleRider} }
func driver(id string) auth.Actor { return auth.Actor{ID: id, Role: auth.RoleDriver} }

func (f *fixture) createRide(t *testing.T, riderID string) *models.Ride {
	t.Helper()
	ride, err := f.lifecycle.CreateRide(context.Background(), rider(riderID), &models.CreateRideRequest{
		Pickup:  models.Location{Lat: 12.97, Lng: 77.59, Address: "MG Road"},
		Dropoff: models.Location{Lat: 12.93, Lng: 77.62, Address: "Koramangala"},
	})
	if err != nil {
		t.Fatalf("CreateRide failed: %v", err)
	}
	return ride
}

func (f *fixture) driverOnline(t *testing.T, driverID string) {
	t.Helper()
	if err := f.presence.SetOnline(context.Background(), driverID, true); err != nil {
		t.Fatalf("SetOnline failed: %v", err)
	}
}

func apiCode(t *testing.T, err error) string {
	t.Helper()
	var apiErr *apperrors.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	return apiErr.Code
}

func TestPlaceBidRejectsNonDriver(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide(t, "rider-1")

	_, err := f.svc.PlaceBid(context.Background(), ride.ID, rider("rider-1"), 20)
	if code := apiCode(t, err); code != "unauthorized" {
		t.Errorf("expected unauthorized, got %s", code)
	}
}

func TestPlaceBidRejectsInvalidAmounts(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide(t, "rider-1")
	f.driverOnline(t, "driver-1")

	for _, amount := range []float64{0, -5, 10.001} {
		_, err := f.svc.PlaceBid(context.Background(), ride.ID, driver("driver-1"), amount)
		if code := apiCode(t, err); code != "invalid_amount" {
			t.Errorf("amount %v: expected invalid_amount, got %s", amount, code)
		}
	}
}

func TestPlaceBidRejectsOfflineDriver(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide(t, "rider-1")

	_, err := f.svc.PlaceBid(context.Background(), ride.ID, driver("driver-1"), 20)
	if code := apiCode(t, err); code != "unauthorized" {
		t.Errorf("expected unauthorized for offline driver, got %s", code)
	}
}

func TestPlaceBidUnknownRide(t *testing.T) {
	f := newFixture(t)
	f.driverOnline(t, "driver-1")

	_, err := f.svc.PlaceBid(context.Background(), "no-such-ride", driver("driver-1"), 20)
	if code := apiCode(t, err); code != "not_found" {
		t.Errorf("expected not_found, got %s", code)
	}
}

func TestPlaceBidMovesRideIntoBidding(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide(t, "rider-1")
	f.driverOnline(t, "driver-1")

	bid, err := f.svc.PlaceBid(context.Background(), ride.ID, driver("driver-1"), 25)
	if err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}
	if bid.Status != models.BidStatusPending {
		t.Errorf("new bid should be pending, got %s", bid.Status)
	}

	stored, _ := f.rides.GetByID(context.Background(), ride.ID)
	if stored.Status != models.RideStatusBidding {
		t.Errorf("first bid should move ride to bidding, got %s", stored.Status)
	}

	// A second bid leaves the status alone.
	f.driverOnline(t, "driver-2")
	if _, err := f.svc.PlaceBid(context.Background(), ride.ID, driver("driver-2"), 22); err != nil {
		t.Fatalf("second PlaceBid failed: %v", err)
	}
	stored, _ = f.rides.GetByID(context.Background(), ride.ID)
	if stored.Status != models.RideStatusBidding {
		t.Errorf("ride should stay bidding, got %s", stored.Status)
	}
}

func TestPlaceBidAfterBookingRejected(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide(t, "rider-1")
	f.driverOnline(t, "driver-1")
	f.driverOnline(t, "driver-2")

	bid, err := f.svc.PlaceBid(context.Background(), ride.ID, driver("driver-1"), 20)
	if err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}
	if _, err := f.svc.AcceptBid(context.Background(), bid.ID, rider("rider-1")); err != nil {
		t.Fatalf("AcceptBid failed: %v", err)
	}

	_, err = f.svc.PlaceBid(context.Background(), ride.ID, driver("driver-2"), 18)
	if code := apiCode(t, err); code != "ride_not_biddable" {
		t.Errorf("expected ride_not_biddable after booking, got %s", code)
	}
}

func TestAcceptBidBooksRideAndRejectsSiblings(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide(t, "rider-1")
	f.driverOnline(t, "driver-1")
	f.driverOnline(t, "driver-2")

	bid1, err := f.svc.PlaceBid(context.Background(), ride.ID, driver("driver-1"), 25.00)
	if err != nil {
		t.Fatalf("driver-1 PlaceBid failed: %v", err)
	}
	bid2, err := f.svc.PlaceBid(context.Background(), ride.ID, driver("driver-2"), 20.00)
	if err != nil {
		t.Fatalf("driver-2 PlaceBid failed: %v", err)
	}

	// Cheapest first.
	listed, err := f.svc.ListBids(context.Background(), ride.ID)
	if err != nil {
		t.Fatalf("ListBids failed: %v", err)
	}
	if len(listed) != 2 || listed[0].Amount != 20.00 || listed[1].Amount != 25.00 {
		t.Fatalf("expected bids ordered [20, 25], got %+v", listed)
	}

	resp, err := f.svc.AcceptBid(context.Background(), bid2.ID, rider("rider-1"))
	if err != nil {
		t.Fatalf("AcceptBid failed: %v", err)
	}
	if resp.Status != models.RideStatusBooked {
		t.Errorf("ride should be booked, got %s", resp.Status)
	}
	if resp.DriverID == nil || *resp.DriverID != "driver-2" {
		t.Errorf("ride should be assigned to driver-2, got %v", resp.DriverID)
	}
	if resp.AcceptedAmount == nil || *resp.AcceptedAmount != 20.00 {
		t.Errorf("accepted amount should be 20.00, got %v", resp.AcceptedAmount)
	}

	loser, _ := f.bids.GetByID(context.Background(), bid1.ID)
	if loser.Status != models.BidStatusRejected {
		t.Errorf("losing bid should be rejected, got %s", loser.Status)
	}

	// Accepting the losing bid afterwards names the winner.
	_, err = f.svc.AcceptBid(context.Background(), bid1.ID, rider("rider-1"))
	if code := apiCode(t, err); code != "already_booked" {
		t.Errorf("expected already_booked, got %s", code)
	}
}

func TestAcceptBidRequiresOwningRider(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide(t, "rider-1")
	f.driverOnline(t, "driver-1")

	bid, err := f.svc.PlaceBid(context.Background(), ride.ID, driver("driver-1"), 20)
	if err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}

	if _, err := f.svc.AcceptBid(context.Background(), bid.ID, rider("rider-2")); err == nil {
		t.Error("another rider should not accept the bid")
	}
	if _, err := f.svc.AcceptBid(context.Background(), bid.ID, driver("driver-1")); err == nil {
		t.Error("a driver should not accept bids")
	}
}

func TestAcceptBidConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide(t, "rider-1")

	const drivers = 8
	bidIDs := make([]string, drivers)
	for i := 0; i < drivers; i++ {
		id := driver("driver-" + string(rune('a'+i)))
		f.driverOnline(t, id.ID)
		bid, err := f.svc.PlaceBid(context.Background(), ride.ID, id, float64(20+i))
		if err != nil {
			t.Fatalf("PlaceBid %d failed: %v", i, err)
		}
		bidIDs[i] = bid.ID
	}

	var (
		wg            sync.WaitGroup
		mu            sync.Mutex
		accepted      int
		alreadyBooked int
	)
	for _, bidID := range bidIDs {
		wg.Add(1)
		go func(bidID string) {
			defer wg.Done()
			_, err := f.svc.AcceptBid(context.Background(), bidID, rider("rider-1"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			default:
				var apiErr *apperrors.APIError
				if errors.As(err, &apiErr) && apiErr.Code == "already_booked" {
					alreadyBooked++
				} else {
					t.Errorf("unexpected accept error: %v", err)
				}
			}
		}(bidID)
	}
	wg.Wait()

	if accepted != 1 {
		t.Errorf("exactly one accept should win, got %d", accepted)
	}
	if alreadyBooked != drivers-1 {
		t.Errorf("expected %d already_booked losers, got %d", drivers-1, alreadyBooked)
	}

	// Every non-winning bid must be resolved as rejected.
	listed, _ := f.bids.ListByRideID(context.Background(), ride.ID)
	var pending, wins int
	for _, b := range listed {
		switch b.Status {
		case models.BidStatusPending:
			pending++
		case models.BidStatusAccepted:
			wins++
		}
	}
	if pending != 0 || wins != 1 {
		t.Errorf("expected 0 pending and 1 accepted bid, got %d pending, %d accepted", pending, wins)
	}
}

func TestAcceptBidHoldsPayment(t *testing.T) {
	f := newFixture(t)
	ride := f.createRide(t, "rider-1")
	f.driverOnline(t, "driver-1")

	bid, err := f.svc.PlaceBid(context.Background(), ride.ID, driver("driver-1"), 20)
	if err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}
	if _, err := f.svc.AcceptBid(context.Background(), bid.ID, rider("rider-1")); err != nil {
		t.Fatalf("AcceptBid failed: %v", err)
	}

	if len(f.gateway.holds) != 1 {
		t.Fatalf("expected one payment hold, got %d", len(f.gateway.holds))
	}
	stored, _ := f.rides.GetByID(context.Background(), ride.ID)
	if stored.PaymentRef == nil || *stored.PaymentRef != f.gateway.holds[0] {
		t.Errorf("hold ref should be stored on the ride, got %v", stored.PaymentRef)
	}
}

func TestAcceptBidBusyWhenSectionHeld(t *testing.T) {
	store := newMemStore()
	f := &fixture{
		rides:     &fakeRideRepo{s: store},
		bids:      &fakeBidRepo{s: store},
		presence:  newFakePresenceCache(),
		publisher: &fakePublisher{},
		gateway:   &fakeGateway{},
		locks:     locker.New(20 * time.Millisecond),
	}
	f.lifecycle = NewLifecycleService(f.rides, f.bids, f.presence, f.locks, f.publisher, f.gateway)
	f.svc = NewBidService(f.bids, f.rides, f.presence, f.lifecycle, f.locks, f.publisher)

	ride := f.createRide(t, "rider-1")
	f.driverOnline(t, "driver-1")
	bid, err := f.svc.PlaceBid(context.Background(), ride.ID, driver("driver-1"), 20)
	if err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}

	release, err := f.locks.Acquire(context.Background(), ride.ID)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer release()

	_, err = f.svc.AcceptBid(context.Background(), bid.ID, rider("rider-1"))
	if code := apiCode(t, err); code != "busy" {
		t.Errorf("expected busy while the section is held, got %s", code)
	}
}

func TestListBidsUnknownRide(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ListBids(context.Background(), "no-such-ride")
	if code := apiCode(t, err); code != "not_found" {
		t.Errorf("expected not_found, got %s", code)
	}
}
