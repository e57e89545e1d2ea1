package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anirudh/go-ridebid/internal/cache"
	"github.com/anirudh/go-ridebid/internal/config"
	"github.com/anirudh/go-ridebid/internal/database"
	"github.com/anirudh/go-ridebid/internal/feed"
	"github.com/anirudh/go-ridebid/internal/handler"
	"github.com/anirudh/go-ridebid/internal/locker"
	"github.com/anirudh/go-ridebid/internal/middleware"
	"github.com/anirudh/go-ridebid/internal/payments"
	"github.com/anirudh/go-ridebid/internal/repository"
	"github.com/anirudh/go-ridebid/internal/service"
	"github.com/anirudh/go-ridebid/internal/stream"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize New Relic (optional)
	var nrApp *newrelic.Application
	if cfg.NewRelicEnabled && cfg.NewRelicLicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelicAppName),
			newrelic.ConfigLicense(cfg.NewRelicLicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
			newrelic.ConfigInfoLogger(os.Stdout),
		)
		if err != nil {
			log.Printf("Warning: Failed to initialize New Relic: %v", err)
		} else {
			log.Println("New Relic initialized successfully")
			if err := nrApp.WaitForConnection(10 * time.Second); err != nil {
				log.Printf("Warning: New Relic connection timeout: %v", err)
			}
		}
	}

	// Initialize PostgreSQL
	db, err := database.NewPostgres(
		cfg.DatabaseURL,
		cfg.DBMaxConnections,
		cfg.DBMaxIdleConnections,
	)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	// Initialize Redis
	redis, err := database.NewRedis(cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()
	log.Println("Connected to Redis")

	// Initialize presence cache
	presenceCache := cache.NewPresenceCache(redis.Client)

	// Initialize repositories
	rideRepo := repository.NewRideRepository(db.DB)
	bidRepo := repository.NewBidRepository(db.DB, rideRepo)
	presenceRepo := repository.NewPresenceRepository(db.DB)

	// Per-ride critical sections for bid placement and acceptance
	rideLocks := locker.New(cfg.RideLockWait)

	// Event feed: redis pub/sub, with an optional Kafka archive
	var archive *feed.KafkaArchive
	if len(cfg.KafkaBrokers) > 0 {
		archive = feed.NewKafkaArchive(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer archive.Close()
		log.Printf("Kafka archive enabled (topic %s)", cfg.KafkaTopic)
	}
	publisher := feed.NewPublisher(redis.Client, archive)

	// Payment gateway
	var gateway payments.Gateway = payments.NopGateway{}
	if cfg.StripeAPIKey != "" {
		gateway = payments.NewStripeGateway(cfg.StripeAPIKey)
		log.Println("Stripe payment gateway enabled")
	}

	// Initialize services
	lifecycleService := service.NewLifecycleService(rideRepo, bidRepo, presenceCache, rideLocks, publisher, gateway)
	bidService := service.NewBidService(bidRepo, rideRepo, presenceCache, lifecycleService, rideLocks, publisher)
	presenceService := service.NewPresenceService(presenceRepo, presenceCache, publisher)

	// Subscription router fed by the feed listener
	streamRouter := stream.NewRouter(presenceCache, cfg.StreamBufferSize, cfg.OpenRequestRadiusKm)
	listenerCtx, stopListener := context.WithCancel(context.Background())
	defer stopListener()
	listener := feed.NewListener(redis.Client, streamRouter.Dispatch)
	go listener.Run(listenerCtx)

	// Initialize handlers
	rideHandler := handler.NewRideHandler(lifecycleService)
	bidHandler := handler.NewBidHandler(bidService)
	driverHandler := handler.NewDriverHandler(presenceService)
	streamHandler := handler.NewStreamHandler(streamRouter)

	// Create router
	r := chi.NewRouter()

	// Apply middleware
	r.Use(middleware.Recovery)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", middleware.ActorIDHeader, middleware.ActorRoleHeader},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// New Relic middleware
	if nrApp != nil {
		r.Use(middleware.NewRelicMiddleware(nrApp))
	}

	// Rate limiter (100 requests per minute per actor)
	rateLimiter := middleware.NewRateLimiter(redis.Client, 100, time.Minute)
	r.Use(rateLimiter.Handler)

	// Idempotency middleware
	idempotencyMw := middleware.NewIdempotencyMiddleware(redis.Client)
	r.Use(idempotencyMw.Handler)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if err := db.Health(ctx); err != nil {
			http.Error(w, "database unhealthy", http.StatusServiceUnavailable)
			return
		}
		if err := redis.Health(ctx); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","services":{"database":"up","redis":"up"}}`))
	})

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1 routes (actor identity required)
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Actor)

		rideHandler.RegisterRoutes(r)
		bidHandler.RegisterRoutes(r)
		driverHandler.RegisterRoutes(r)
		streamHandler.RegisterRoutes(r)
	})

	// Create server
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		stopListener()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	log.Println("API endpoints:")
	log.Println("  POST /v1/rides                  - Publish ride request")
	log.Println("  GET  /v1/rides/open             - List open requests")
	log.Println("  GET  /v1/rides/{id}             - Get ride")
	log.Println("  POST /v1/rides/{id}/cancel      - Cancel ride")
	log.Println("  POST /v1/rides/{id}/transition  - Advance ride status")
	log.Println("  POST /v1/rides/{id}/bids        - Place bid")
	log.Println("  GET  /v1/rides/{id}/bids        - List bids")
	log.Println("  POST /v1/bids/{id}/accept       - Accept bid")
	log.Println("  POST /v1/drivers/{id}/online    - Set driver presence")
	log.Println("  POST /v1/drivers/{id}/location  - Report driver location")
	log.Println("  GET  /v1/drivers/{id}/presence  - Get driver presence")
	log.Println("  GET  /v1/stream                 - SSE event stream")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped gracefully")
}
