package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/richxcame/dispatch/internal/dispatch"
	"github.com/richxcame/dispatch/internal/drivers"
	"github.com/richxcame/dispatch/internal/geo"
	"github.com/richxcame/dispatch/internal/payments"
	"github.com/richxcame/dispatch/internal/realtime"
	"github.com/richxcame/dispatch/internal/riders"
	"github.com/richxcame/dispatch/internal/rides"
	"github.com/richxcame/dispatch/internal/simulator"
	"github.com/richxcame/dispatch/internal/trips"
	"github.com/richxcame/dispatch/pkg/cache"
	"github.com/richxcame/dispatch/pkg/common"
	"github.com/richxcame/dispatch/pkg/config"
	"github.com/richxcame/dispatch/pkg/database"
	"github.com/richxcame/dispatch/pkg/eventbus"
	"github.com/richxcame/dispatch/pkg/lock"
	"github.com/richxcame/dispatch/pkg/logger"
	"github.com/richxcame/dispatch/pkg/metrics"
	"github.com/richxcame/dispatch/pkg/middleware"
	redisclient "github.com/richxcame/dispatch/pkg/redis"
	"github.com/richxcame/dispatch/pkg/websocket"
)

const (
	serviceName = "dispatch"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting dispatch service",
		zap.String("service", serviceName),
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
	)

	if err := database.RunMigrations(&cfg.Database); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	db, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to database")

	redisClient, err := redisclient.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}()
	logger.Info("Connected to redis")

	bus, err := eventbus.New(eventbus.Config{
		URL:        cfg.NATS.URL,
		Name:       serviceName,
		StreamName: cfg.NATS.StreamName,
	})
	if err != nil {
		logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer bus.Close()

	cacheManager := cache.NewManager(redisClient)
	locker := lock.NewLocker(redisClient)

	// Location ingest: geo index in Redis, batched history writes, driver
	// metadata through the cache.
	geoRepo := geo.NewRepository(db)
	locationBuffer := geo.NewLocationBuffer(geoRepo, geo.DefaultLocationBufferConfig())
	driverIndex := geo.NewDriverIndex(redisClient)
	driversRepo := drivers.NewRepository(db)
	geoService := geo.NewService(driverIndex, cacheManager, locationBuffer, bus, driversRepo)

	// The simulator is created before the rides service (which stops it on
	// cancellation) and bound to it afterwards (it advances ride statuses).
	sim := simulator.New(driverIndex, locationBuffer, cacheManager, bus, cfg.Simulator)

	ridesRepo := rides.NewRepository(db)
	ridesService := rides.NewService(ridesRepo, db, cacheManager, bus, geoService, sim)
	sim.BindRides(ridesService)

	driversService := drivers.NewService(driversRepo, geoService, cacheManager)

	ridersRepo := riders.NewRepository(db)
	ridersService := riders.NewService(ridersRepo, cacheManager)

	offersRepo := dispatch.NewOfferRepository(db)
	dispatchService := dispatch.NewService(db, offersRepo, ridesService, driversRepo, geoService, cacheManager, locker, bus, sim, cfg.Dispatch)
	ridesService.SetMatcher(dispatchService)

	tripsRepo := trips.NewRepository(db)
	tripsService := trips.NewService(tripsRepo, ridesService, db, bus, sim)

	paymentsRepo := payments.NewRepository(db)
	psp := payments.NewMockPSP(cfg.Payments.CardSuccessProbability)
	paymentsService := payments.NewService(db, paymentsRepo, psp, cacheManager, locker, bus, cfg.Payments, cfg.Timeouts.PSP)

	hub := websocket.NewHub()
	go hub.Run()
	realtimeService := realtime.NewService(hub, geoService)

	rootCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()
	if err := realtimeService.Start(rootCtx, bus); err != nil {
		logger.Fatal("Failed to start realtime consumer", zap.Error(err))
	}

	startCtx, cancelStart := context.WithTimeout(rootCtx, 30*time.Second)
	if err := geoService.RestoreIndex(startCtx, geoRepo); err != nil {
		logger.Warn("Failed to restore geo index", zap.Error(err))
	}
	cancelStart()

	sweeper := dispatch.NewSweeper(dispatchService, cfg.Dispatch.SweepInterval)
	sweeper.Start()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(middleware.CORS())
	router.Use(metrics.HTTPMetrics())
	router.Use(middleware.Identity())

	health := common.NewHealthChecker(serviceName, db, redisClient, bus)
	router.GET("/health", health.Liveness)
	router.GET("/ready", health.Readiness)
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": serviceName, "version": version})
	})
	router.GET("/metrics", metrics.Handler())

	v1 := router.Group("/api/v1")
	v1.Use(middleware.RequestTimeout(cfg.Timeouts.Request))
	v1.Use(middleware.RateLimit(redisClient, 600))

	rides.NewHandler(ridesService).RegisterRoutes(v1, middleware.Idempotency(redisClient))
	drivers.NewHandler(driversService, ridesService).RegisterRoutes(v1)
	riders.NewHandler(ridersService, ridesService).RegisterRoutes(v1)
	geo.NewHandler(geoService).RegisterRoutes(v1)
	dispatch.NewHandler(dispatchService).RegisterRoutes(v1)
	trips.NewHandler(tripsService).RegisterRoutes(v1)
	payments.NewHandler(paymentsService).RegisterRoutes(v1)
	realtime.NewHandler(hub).RegisterRoutes(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	sweeper.Stop()
	sim.StopAll()
	stopConsumers()
	geoService.Stop() // flush buffered location samples

	logger.Info("Server stopped")
}
