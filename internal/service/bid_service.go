package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/anirudh/go-ridebid/internal/auth"
	"github.com/anirudh/go-ridebid/internal/cache"
	apperrors "github.com/anirudh/go-ridebid/internal/errors"
	"github.com/anirudh/go-ridebid/internal/feed"
	"github.com/anirudh/go-ridebid/internal/locker"
	"github.com/anirudh/go-ridebid/internal/models"
	"github.com/anirudh/go-ridebid/internal/observability"
	"github.com/anirudh/go-ridebid/internal/repository"
)

// BidService owns bid creation and the accept-one-of-many protocol. All
// mutations to a single ride's bid set serialize through the per-ride section.
type BidService interface {
	PlaceBid(ctx context.Context, rideID string, actor auth.Actor, amount float64) (*models.Bid, error)
	AcceptBid(ctx context.Context, bidID string, actor auth.Actor) (*models.RideResponse, error)
	ListBids(ctx context.Context, rideID string) ([]*models.BidResponse, error)
}

type bidService struct {
	bidRepo       repository.BidRepository
	rideRepo      repository.RideRepository
	presenceCache cache.PresenceCache
	lifecycle     LifecycleService
	locks         *locker.RideLocks
	publisher     feed.Publisher
}

func NewBidService(
	bidRepo repository.BidRepository,
	rideRepo repository.RideRepository,
	presenceCache cache.PresenceCache,
	lifecycle LifecycleService,
	locks *locker.RideLocks,
	publisher feed.Publisher,
) BidService {
	return &bidService{
		bidRepo:       bidRepo,
		rideRepo:      rideRepo,
		presenceCache: presenceCache,
		lifecycle:     lifecycle,
		locks:         locks,
		publisher:     publisher,
	}
}

func (s *bidService) PlaceBid(ctx context.Context, rideID string, actor auth.Actor, amount float64) (*models.Bid, error) {
	if !actor.IsDriver() {
		return nil, apperrors.Unauthorized("only drivers place bids")
	}
	if amount <= 0 || !models.HasCentPrecision(amount) {
		return nil, apperrors.InvalidAmount()
	}

	// An offline driver must not participate in matching.
	online, err := s.presenceCache.IsOnline(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if !online {
		return nil, apperrors.Unauthorized("driver is offline")
	}

	release, err := s.locks.Acquire(ctx, rideID)
	if err != nil {
		return nil, err
	}
	defer release()

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride == nil {
		return nil, apperrors.NotFound("ride")
	}
	if !ride.IsBiddable() {
		return nil, apperrors.RideNotBiddable(ride.Status)
	}

	bid := &models.Bid{
		RideID:   rideID,
		DriverID: actor.ID,
		Amount:   amount,
	}
	if err := s.bidRepo.Create(ctx, bid); err != nil {
		return nil, err
	}

	// First bid moves the ride into bidding.
	if ride.Status == models.RideStatusRequested {
		if _, err := s.lifecycle.BeginBidding(ctx, ride); err != nil {
			log.Printf("bids: marking ride %s bidding failed: %v", rideID, err)
		}
	}

	observability.BidsPlacedTotal.Inc()
	s.publish(ctx, feed.NewBidEvent(feed.OpInsert, bid))
	return bid, nil
}

func (s *bidService) AcceptBid(ctx context.Context, bidID string, actor auth.Actor) (*models.RideResponse, error) {
	start := time.Now()

	bid, err := s.bidRepo.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid == nil {
		return nil, apperrors.NotFound("bid")
	}

	ride, err := s.rideRepo.GetByID(ctx, bid.RideID)
	if err != nil {
		return nil, err
	}
	if ride == nil {
		return nil, apperrors.NotFound("ride")
	}
	if !actor.IsRider() || ride.RiderID != actor.ID {
		return nil, apperrors.Unauthorized("only the requesting rider may accept a bid")
	}

	release, err := s.locks.Acquire(ctx, ride.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrBusy) {
			observability.BidAcceptsTotal.WithLabelValues("busy").Inc()
			return nil, apperrors.Busy()
		}
		return nil, err
	}
	defer release()

	result, err := s.bidRepo.AcceptExclusive(ctx, ride.ID, bidID)
	if err != nil {
		var booked *apperrors.AlreadyBookedError
		switch {
		case errors.As(err, &booked):
			observability.BidAcceptsTotal.WithLabelValues("already_booked").Inc()
			return nil, apperrors.AlreadyBooked(booked.WinningBidID)
		case errors.Is(err, apperrors.ErrIllegalTransition):
			observability.BidAcceptsTotal.WithLabelValues("not_biddable").Inc()
			return nil, apperrors.RideNotBiddable(ride.Status)
		case errors.Is(err, apperrors.ErrNotFound):
			return nil, apperrors.NotFound("bid")
		default:
			observability.BidAcceptsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	observability.BidAcceptsTotal.WithLabelValues("accepted").Inc()
	observability.AcceptLatency.Observe(time.Since(start).Seconds())

	// Winner first, then the rejections, then the booked ride.
	s.publish(ctx, feed.NewBidEvent(feed.OpUpdate, result.Bid))
	for _, rejected := range result.Rejected {
		s.publish(ctx, feed.NewBidEvent(feed.OpUpdate, rejected))
	}
	s.lifecycle.ConfirmBooking(ctx, result.Ride)

	return result.Ride.ToResponse(), nil
}

func (s *bidService) ListBids(ctx context.Context, rideID string) ([]*models.BidResponse, error) {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride == nil {
		return nil, apperrors.NotFound("ride")
	}

	bids, err := s.bidRepo.ListByRideID(ctx, rideID)
	if err != nil {
		return nil, err
	}

	responses := make([]*models.BidResponse, 0, len(bids))
	for _, bid := range bids {
		resp := bid.ToResponse()
		if loc, err := s.presenceCache.GetLocation(ctx, bid.DriverID); err == nil && loc != nil {
			resp.DriverLat = &loc.Lat
			resp.DriverLng = &loc.Lng
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

func (s *bidService) publish(ctx context.Context, event feed.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("feed: publish failed for event %s: %v", event.ID, err)
	}
}
