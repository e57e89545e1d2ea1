package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceGeoKey  = "presence:geo"
	presenceMetaKey = "presence:meta:"
	presenceLocKey  = "presence:loc:"
	locationTTL     = 5 * time.Minute
)

type DriverLocation struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	UpdatedAt int64   `json:"updated_at"`
}

type DriverWithDistance struct {
	DriverID string
	Distance float64
}

// PresenceCache is the fast path for presence checks: the durable row lives
// in Postgres, the flag and latest coordinate live here.
type PresenceCache interface {
	SetOnline(ctx context.Context, driverID string, online bool) error
	IsOnline(ctx context.Context, driverID string) (bool, error)
	UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error
	GetLocation(ctx context.Context, driverID string) (*DriverLocation, error)
	NearbyOnline(ctx context.Context, lat, lng, radiusKm float64) ([]DriverWithDistance, error)
}

type presenceCache struct {
	redis *redis.Client
}

func NewPresenceCache(redisClient *redis.Client) PresenceCache {
	return &presenceCache{redis: redisClient}
}

func (c *presenceCache) SetOnline(ctx context.Context, driverID string, online bool) error {
	status := "offline"
	if online {
		status = "online"
	}
	if err := c.redis.HSet(ctx, presenceMetaKey+driverID, "status", status).Err(); err != nil {
		return err
	}
	if !online {
		// An offline driver must not surface in proximity lookups.
		return c.redis.ZRem(ctx, presenceGeoKey, driverID).Err()
	}
	return nil
}

func (c *presenceCache) IsOnline(ctx context.Context, driverID string) (bool, error) {
	status, err := c.redis.HGet(ctx, presenceMetaKey+driverID, "status").Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status == "online", nil
}

func (c *presenceCache) UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error {
	online, err := c.IsOnline(ctx, driverID)
	if err != nil {
		return err
	}
	if online {
		if err := c.redis.GeoAdd(ctx, presenceGeoKey, &redis.GeoLocation{
			Name:      driverID,
			Longitude: lng,
			Latitude:  lat,
		}).Err(); err != nil {
			return err
		}
	}

	loc := DriverLocation{
		Lat:       lat,
		Lng:       lng,
		UpdatedAt: time.Now().Unix(),
	}
	locJSON, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, presenceLocKey+driverID, locJSON, locationTTL).Err()
}

func (c *presenceCache) GetLocation(ctx context.Context, driverID string) (*DriverLocation, error) {
	data, err := c.redis.Get(ctx, presenceLocKey+driverID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var loc DriverLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, err
	}
	return &loc, nil
}

func (c *presenceCache) NearbyOnline(ctx context.Context, lat, lng, radiusKm float64) ([]DriverWithDistance, error) {
	locations, err := c.redis.GeoRadius(ctx, presenceGeoKey, lng, lat, &redis.GeoRadiusQuery{
		Radius:   radiusKm,
		Unit:     "km",
		WithDist: true,
		Count:    100,
		Sort:     "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}

	result := make([]DriverWithDistance, 0, len(locations))
	for _, loc := range locations {
		online, err := c.IsOnline(ctx, loc.Name)
		if err != nil || !online {
			continue
		}
		result = append(result, DriverWithDistance{
			DriverID: loc.Name,
			Distance: loc.Dist,
		})
	}
	return result, nil
}
