//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/anirudh/go-ridebid/internal/cache"
	"github.com/anirudh/go-ridebid/internal/config"
	"github.com/anirudh/go-ridebid/internal/database"
	"github.com/anirudh/go-ridebid/internal/models"
	"github.com/anirudh/go-ridebid/internal/repository"
)

// Bangalore coordinates
const (
	baseLat = 12.9716
	baseLng = 77.5946
)

var areas = []string{"MG Road", "Koramangala", "Indiranagar", "Whitefield", "Jayanagar",
	"HSR Layout", "BTM Layout", "Malleshwaram", "Electronic City", "Hebbal"}

func main() {
	rand.Seed(time.Now().UnixNano())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.DatabaseURL, cfg.DBMaxConnections, cfg.DBMaxIdleConnections)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	redis, err := database.NewRedis(cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	ctx := context.Background()

	rideRepo := repository.NewRideRepository(db.DB)
	bidRepo := repository.NewBidRepository(db.DB, rideRepo)
	presenceRepo := repository.NewPresenceRepository(db.DB)
	presenceCache := cache.NewPresenceCache(redis.Client)

	// Put 40 drivers online around the city
	log.Println("Seeding 40 online drivers...")
	driverIDs := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		driverID := fmt.Sprintf("driver-%03d", i)
		lat := baseLat + (rand.Float64()-0.5)*0.1 // +/- 0.05 degrees (~5km)
		lng := baseLng + (rand.Float64()-0.5)*0.1

		if _, err := presenceRepo.SetOnline(ctx, driverID, true); err != nil {
			log.Printf("Failed to set driver online: %v", err)
			continue
		}
		presenceRepo.UpdateLocation(ctx, driverID, lat, lng)
		presenceCache.SetOnline(ctx, driverID, true)
		presenceCache.UpdateLocation(ctx, driverID, lat, lng)
		driverIDs = append(driverIDs, driverID)
	}
	log.Printf("Seeded %d drivers", len(driverIDs))

	// Publish 25 open ride requests
	log.Println("Seeding 25 ride requests...")
	rideIDs := make([]string, 0, 25)
	for i := 0; i < 25; i++ {
		ride := &models.Ride{
			RiderID:        fmt.Sprintf("rider-%03d", i),
			PickupLat:      baseLat + (rand.Float64()-0.5)*0.1,
			PickupLng:      baseLng + (rand.Float64()-0.5)*0.1,
			PickupAddress:  areas[rand.Intn(len(areas))],
			DropoffLat:     baseLat + (rand.Float64()-0.5)*0.1,
			DropoffLng:     baseLng + (rand.Float64()-0.5)*0.1,
			DropoffAddress: areas[rand.Intn(len(areas))],
		}
		if err := rideRepo.Create(ctx, ride); err != nil {
			log.Printf("Failed to create ride: %v", err)
			continue
		}
		rideIDs = append(rideIDs, ride.ID)
	}
	log.Printf("Seeded %d ride requests", len(rideIDs))

	// Attach a couple of bids to the first few rides
	log.Println("Seeding bids on the first 10 rides...")
	bids := 0
	for i := 0; i < 10 && i < len(rideIDs); i++ {
		for j := 0; j < 2+rand.Intn(3); j++ {
			bid := &models.Bid{
				RideID:   rideIDs[i],
				DriverID: driverIDs[rand.Intn(len(driverIDs))],
				Amount:   float64(100+rand.Intn(300)) + float64(rand.Intn(100))/100,
			}
			if err := bidRepo.Create(ctx, bid); err != nil {
				log.Printf("Failed to create bid: %v", err)
				continue
			}
			bids++
		}
		rideRepo.UpdateStatusFrom(ctx, rideIDs[i], models.RideStatusRequested, models.RideStatusBidding)
	}
	log.Printf("Seeded %d bids", bids)

	// Summary
	log.Println("\n=== Seed Data Summary ===")
	log.Printf("Drivers online: %d", len(driverIDs))
	log.Printf("Ride requests: %d", len(rideIDs))
	log.Printf("Bids placed: %d", bids)
	log.Println("\nSample Ride ID:", rideIDs[0])
	log.Println("Sample Driver ID:", driverIDs[0])
	log.Println("\nYou can now test with these IDs!")
}
