package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config_aws "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"card-stock-tracker/config"
	"card-stock-tracker/domain"
	"card-stock-tracker/repositories"
	"card-stock-tracker/services"
)

const (
	jobIDAvailabilitySweep = "recurring-availability-sweep"
	jobIDCatalogUpdate     = "recurring-catalog-update"
)

func main() {
	cfg := config.MustLoad()

	awsCfg, err := config_aws.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}
	sqsClient := repositories.NewSQSClient(sqs.NewFromConfig(awsCfg))

	redisClient := repositories.NewRedisClient(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	userRepo := repositories.NewUserRepository(db)
	notifier := repositories.NewRedisNotifier(redisClient)

	// The scheduler only translates requests into queued jobs; the task
	// bodies live in the worker role.
	registry := services.NewTaskRegistry()
	services.RegisterTaskIDs(registry)
	dispatcher := services.NewDispatcher(registry, sqsClient, cfg.Queue.JobQueueURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	requestHandlers := services.NewRequestHandlers(dispatcher, userRepo, notifier)
	listener := services.NewChannelListener(domain.ChannelSchedulerRequests, redisClient, requestHandlers.HandlerMap())
	listener.Start(ctx)

	recurring := services.NewRecurringScheduler(dispatcher, redisClient, 0)
	recurring.ScheduleEvery(ctx, jobIDAvailabilitySweep, domain.TaskUpdateWantedCards, cfg.Scheduler.AvailabilityInterval, "")
	recurring.ScheduleEvery(ctx, jobIDCatalogUpdate, domain.TaskUpdateFullCatalog, cfg.Scheduler.CatalogInterval)

	log.Println("Scheduler started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal %v, initiating shutdown...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	recurring.Stop(shutdownCtx)
	listener.Stop(10 * time.Second)
	cancel()
	log.Println("Shutdown complete.")
}
