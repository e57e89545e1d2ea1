package service

import (
	"context"
	"log"

	"github.com/anirudh/go-ridebid/internal/auth"
	"github.com/anirudh/go-ridebid/internal/cache"
	apperrors "github.com/anirudh/go-ridebid/internal/errors"
	"github.com/anirudh/go-ridebid/internal/feed"
	"github.com/anirudh/go-ridebid/internal/models"
	"github.com/anirudh/go-ridebid/internal/repository"
)

// PresenceService tracks each driver's online flag and latest position.
// Rate limiting of location reports is the caller's job; this component only
// stores the latest report.
type PresenceService interface {
	SetOnline(ctx context.Context, actor auth.Actor, online bool) (*models.DriverPresence, error)
	ReportLocation(ctx context.Context, actor auth.Actor, lat, lng float64) (*models.DriverPresence, error)
	GetPresence(ctx context.Context, driverID string) (*models.DriverPresence, error)
}

type presenceService struct {
	presenceRepo  repository.PresenceRepository
	presenceCache cache.PresenceCache
	publisher     feed.Publisher
}

func NewPresenceService(
	presenceRepo repository.PresenceRepository,
	presenceCache cache.PresenceCache,
	publisher feed.Publisher,
) PresenceService {
	return &presenceService{
		presenceRepo:  presenceRepo,
		presenceCache: presenceCache,
		publisher:     publisher,
	}
}

func (s *presenceService) SetOnline(ctx context.Context, actor auth.Actor, online bool) (*models.DriverPresence, error) {
	if !actor.IsDriver() {
		return nil, apperrors.Unauthorized("only drivers report presence")
	}

	presence, err := s.presenceRepo.SetOnline(ctx, actor.ID, online)
	if err != nil {
		return nil, err
	}

	// Flipping offline takes effect immediately for fan-out; bids already
	// placed stay in play.
	if err := s.presenceCache.SetOnline(ctx, actor.ID, online); err != nil {
		log.Printf("presence: cache update failed for driver %s: %v", actor.ID, err)
	}

	s.publish(ctx, feed.NewPresenceEvent(presence))
	return presence, nil
}

func (s *presenceService) ReportLocation(ctx context.Context, actor auth.Actor, lat, lng float64) (*models.DriverPresence, error) {
	if !actor.IsDriver() {
		return nil, apperrors.Unauthorized("only drivers report presence")
	}

	presence, err := s.presenceRepo.UpdateLocation(ctx, actor.ID, lat, lng)
	if err != nil {
		return nil, err
	}

	if err := s.presenceCache.UpdateLocation(ctx, actor.ID, lat, lng); err != nil {
		log.Printf("presence: cache update failed for driver %s: %v", actor.ID, err)
	}

	s.publish(ctx, feed.NewPresenceEvent(presence))
	return presence, nil
}

func (s *presenceService) GetPresence(ctx context.Context, driverID string) (*models.DriverPresence, error) {
	presence, err := s.presenceRepo.Get(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if presence == nil {
		return nil, apperrors.NotFound("driver presence")
	}

	if loc, err := s.presenceCache.GetLocation(ctx, driverID); err == nil && loc != nil {
		presence.CurrentLat = &loc.Lat
		presence.CurrentLng = &loc.Lng
	}
	return presence, nil
}

func (s *presenceService) publish(ctx context.Context, event feed.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("feed: publish failed for event %s: %v", event.ID, err)
	}
}
