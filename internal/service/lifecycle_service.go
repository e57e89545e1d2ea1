package service

import (
	"context"
	"log"
	"strings"

	"github.com/anirudh/go-ridebid/internal/auth"
	"github.com/anirudh/go-ridebid/internal/cache"
	apperrors "github.com/anirudh/go-ridebid/internal/errors"
	"github.com/anirudh/go-ridebid/internal/feed"
	"github.com/anirudh/go-ridebid/internal/locker"
	"github.com/anirudh/go-ridebid/internal/models"
	"github.com/anirudh/go-ridebid/internal/observability"
	"github.com/anirudh/go-ridebid/internal/payments"
	"github.com/anirudh/go-ridebid/internal/repository"
)

// NearbyFilter narrows open-request listings to a pickup radius. The distance
// predicate itself is evaluated store-side.
type NearbyFilter struct {
	Lat      float64
	Lng      float64
	RadiusKm float64
}

const openRequestsLimit = 100

// LifecycleService owns the ride state machine. Cancels and driver progress
// marks come in through Transition; BeginBidding and ConfirmBooking are the
// coordinator-facing edges that need no external actor.
type LifecycleService interface {
	CreateRide(ctx context.Context, actor auth.Actor, req *models.CreateRideRequest) (*models.Ride, error)
	GetRide(ctx context.Context, id string) (*models.RideResponse, error)
	Transition(ctx context.Context, rideID, target string, actor auth.Actor, reason string) (*models.Ride, error)
	ListOpenRequests(ctx context.Context, near *NearbyFilter) ([]*models.RideResponse, error)
	BeginBidding(ctx context.Context, ride *models.Ride) (*models.Ride, error)
	ConfirmBooking(ctx context.Context, ride *models.Ride)
}

type lifecycleService struct {
	rideRepo      repository.RideRepository
	bidRepo       repository.BidRepository
	presenceCache cache.PresenceCache
	locks         *locker.RideLocks
	publisher     feed.Publisher
	gateway       payments.Gateway
}

func NewLifecycleService(
	rideRepo repository.RideRepository,
	bidRepo repository.BidRepository,
	presenceCache cache.PresenceCache,
	locks *locker.RideLocks,
	publisher feed.Publisher,
	gateway payments.Gateway,
) LifecycleService {
	return &lifecycleService{
		rideRepo:      rideRepo,
		bidRepo:       bidRepo,
		presenceCache: presenceCache,
		locks:         locks,
		publisher:     publisher,
		gateway:       gateway,
	}
}

func (s *lifecycleService) CreateRide(ctx context.Context, actor auth.Actor, req *models.CreateRideRequest) (*models.Ride, error) {
	if !actor.IsRider() {
		return nil, apperrors.Unauthorized("only riders create ride requests")
	}
	if strings.TrimSpace(req.Pickup.Address) == "" || strings.TrimSpace(req.Dropoff.Address) == "" {
		return nil, apperrors.InvalidInput("pickup and dropoff addresses are required")
	}
	if req.Pickup.Lat == 0 && req.Pickup.Lng == 0 || req.Dropoff.Lat == 0 && req.Dropoff.Lng == 0 {
		return nil, apperrors.InvalidInput("pickup and dropoff coordinates are required")
	}

	active, err := s.rideRepo.GetActiveRideByRiderID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apperrors.NewAPIError("active_ride_exists", "you already have an active ride", 409)
	}

	ride := &models.Ride{
		RiderID:        actor.ID,
		PickupLat:      req.Pickup.Lat,
		PickupLng:      req.Pickup.Lng,
		PickupAddress:  req.Pickup.Address,
		DropoffLat:     req.Dropoff.Lat,
		DropoffLng:     req.Dropoff.Lng,
		DropoffAddress: req.Dropoff.Address,
	}

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		return nil, err
	}

	observability.RidesCreatedTotal.Inc()
	s.publish(ctx, feed.NewRideEvent(feed.OpInsert, ride))
	return ride, nil
}

func (s *lifecycleService) GetRide(ctx context.Context, id string) (*models.RideResponse, error) {
	ride, err := s.rideRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ride == nil {
		return nil, apperrors.NotFound("ride")
	}

	resp := ride.ToResponse()
	if ride.DriverID != nil {
		// Best effort: the booking stands even when the bid row or the
		// cached coordinate is momentarily unavailable.
		if bid, err := s.bidRepo.GetAcceptedByRideID(ctx, id); err == nil && bid != nil {
			resp.WinningBid = bid.ToResponse()
		}
		if loc, err := s.presenceCache.GetLocation(ctx, *ride.DriverID); err == nil && loc != nil {
			resp.DriverLat = &loc.Lat
			resp.DriverLng = &loc.Lng
		}
	}
	return resp, nil
}

func (s *lifecycleService) ListOpenRequests(ctx context.Context, near *NearbyFilter) ([]*models.RideResponse, error) {
	var (
		rides []*models.Ride
		err   error
	)
	if near != nil {
		rides, err = s.rideRepo.ListOpenRequestsNear(ctx, near.Lat, near.Lng, near.RadiusKm, openRequestsLimit)
	} else {
		rides, err = s.rideRepo.ListOpenRequests(ctx, openRequestsLimit)
	}
	if err != nil {
		return nil, err
	}

	responses := make([]*models.RideResponse, 0, len(rides))
	for _, ride := range rides {
		responses = append(responses, ride.ToResponse())
	}
	return responses, nil
}

func (s *lifecycleService) Transition(ctx context.Context, rideID, target string, actor auth.Actor, reason string) (*models.Ride, error) {
	if !models.IsValidRideStatus(target) {
		return nil, apperrors.InvalidInput("unknown target state " + target)
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

	if !ride.CanTransitionTo(target) {
		return nil, apperrors.IllegalTransition(ride.Status, target)
	}
	if err := authorizeTransition(ride, target, actor); err != nil {
		return nil, err
	}

	wasBooked := ride.Status == models.RideStatusBooked || ride.Status == models.RideStatusInProgress

	if target == models.RideStatusCancelled {
		cancelledBy := actor.Role
		ok, err := s.rideRepo.Cancel(ctx, rideID, ride.Status, cancelledBy, reason)
		if err != nil {
			return nil, err
		}
		if !ok {
			// A competing process moved the ride on, typically a booking
			// that committed after our read.
			return nil, apperrors.IllegalTransition(ride.Status, models.RideStatusCancelled)
		}
		if wasBooked && ride.PaymentRef != nil {
			if err := s.gateway.Release(ctx, *ride.PaymentRef); err != nil {
				log.Printf("payments: release failed for ride %s: %v", rideID, err)
			}
		}
		ride.Status = models.RideStatusCancelled
		ride.CancelledBy = &cancelledBy
		ride.DriverID = nil
	} else {
		ok, err := s.rideRepo.UpdateStatusFrom(ctx, rideID, ride.Status, target)
		if err != nil {
			return nil, err
		}
		if !ok {
			// The stored row moved on under a competing process.
			return nil, apperrors.IllegalTransition(ride.Status, target)
		}
		ride.Status = target

		if target == models.RideStatusCompleted && ride.PaymentRef != nil {
			// Completion is the earliest legal moment to capture.
			if err := s.gateway.Capture(ctx, *ride.PaymentRef); err != nil {
				log.Printf("payments: capture failed for ride %s: %v", rideID, err)
			}
		}
	}

	observability.RideTransitionsTotal.WithLabelValues(target).Inc()
	s.publish(ctx, feed.NewRideEvent(feed.OpUpdate, ride))
	return ride, nil
}

// BeginBidding moves a ride out of requested when its first bid lands.
// The caller (the bid coordinator) already holds the per-ride section.
func (s *lifecycleService) BeginBidding(ctx context.Context, ride *models.Ride) (*models.Ride, error) {
	ok, err := s.rideRepo.UpdateStatusFrom(ctx, ride.ID, models.RideStatusRequested, models.RideStatusBidding)
	if err != nil {
		return nil, err
	}
	if ok {
		ride.Status = models.RideStatusBidding
		observability.RideTransitionsTotal.WithLabelValues(models.RideStatusBidding).Inc()
		s.publish(ctx, feed.NewRideEvent(feed.OpUpdate, ride))
	}
	return ride, nil
}

// ConfirmBooking runs the ride-side effects of a successful accept: hold the
// accepted amount with the payment collaborator and announce the booked ride.
// The status write itself already happened inside the accept transaction.
func (s *lifecycleService) ConfirmBooking(ctx context.Context, ride *models.Ride) {
	if ride.AcceptedAmount != nil {
		ref, err := s.gateway.Hold(ctx, ride.ID, *ride.AcceptedAmount)
		if err != nil {
			log.Printf("payments: hold failed for ride %s: %v", ride.ID, err)
		} else if ref != "" {
			if err := s.rideRepo.SetPaymentRef(ctx, ride.ID, ref); err != nil {
				log.Printf("payments: storing hold ref failed for ride %s: %v", ride.ID, err)
			}
			ride.PaymentRef = &ref
		}
	}

	observability.RideTransitionsTotal.WithLabelValues(models.RideStatusBooked).Inc()
	s.publish(ctx, feed.NewRideEvent(feed.OpUpdate, ride))
}

func (s *lifecycleService) publish(ctx context.Context, event feed.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("feed: publish failed for event %s: %v", event.ID, err)
	}
}

// authorizeTransition enforces who may drive each edge: the rider for
// pre-booking cancels, the assigned driver for pickup/dropoff marks, either
// party for post-booking cancels. Bidding and booked edges belong to the bid
// coordinator, not outside callers.
func authorizeTransition(ride *models.Ride, target string, actor auth.Actor) error {
	switch target {
	case models.RideStatusCancelled:
		if ride.IsBiddable() {
			if !actor.IsRider() || ride.RiderID != actor.ID {
				return apperrors.Unauthorized("only the requesting rider may cancel before booking")
			}
			return nil
		}
		if actor.IsRider() && ride.RiderID == actor.ID {
			return nil
		}
		if actor.IsDriver() && ride.DriverID != nil && *ride.DriverID == actor.ID {
			return nil
		}
		return apperrors.Unauthorized("only the rider or the assigned driver may cancel")
	case models.RideStatusInProgress, models.RideStatusCompleted:
		if !actor.IsDriver() || ride.DriverID == nil || *ride.DriverID != actor.ID {
			return apperrors.Unauthorized("only the assigned driver may mark ride progress")
		}
		return nil
	default:
		return apperrors.Unauthorized("transition is driven by the bid coordinator")
	}
}
