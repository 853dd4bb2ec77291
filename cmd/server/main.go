package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"card-stock-tracker/config"
	"card-stock-tracker/domain"
	"card-stock-tracker/handlers"
	"card-stock-tracker/models"
	"card-stock-tracker/repositories"
	"card-stock-tracker/services"
)

func main() {
	cfg := config.MustLoad()

	redisClient := repositories.NewRedisClient(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	userRepo := repositories.NewUserRepository(db)
	catalogRepo := repositories.NewCatalogRepository(db, cfg.Database.BatchSize)
	cache := repositories.NewAvailabilityCache(redisClient, cfg.Scraper.CacheTTL)
	notifier := repositories.NewRedisNotifier(redisClient)
	catalogWriter := services.NewCatalogWriter(catalogRepo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The server persists everything the workers publish on the result
	// channel: availability results into the cache, catalog chunks into
	// the database.
	resultHandlers := services.NewResultHandlers(cache, catalogWriter, notifier)
	listener := services.NewChannelListener(domain.ChannelWorkerResults, redisClient, resultHandlers.HandlerMap())
	listener.Start(ctx)

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to access database handle: %v", err)
	}
	handler := handlers.New(redisClient, cache, userRepo,
		handlers.HealthCheck{Name: "redis", Probe: redisClient.Ping},
		handlers.HealthCheck{Name: "database", Probe: sqlDB.PingContext},
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handlers.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal %v, initiating shutdown...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	listener.Stop(10 * time.Second)
	cancel()
	log.Println("Shutdown complete.")
}
