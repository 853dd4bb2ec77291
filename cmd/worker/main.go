package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	config_aws "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"card-stock-tracker/config"
	"card-stock-tracker/repositories"
	"card-stock-tracker/services"
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
	catalogRepo := repositories.NewCatalogRepository(db, cfg.Database.BatchSize)

	pageFetcher := repositories.NewPageFetcher(
		repositories.RetryPolicy{Retries: cfg.Scraper.Retries, BackoffBase: cfg.Scraper.BackoffBase},
		cfg.Scraper.FetchTimeout,
	)
	setLookup := repositories.NewSetCodeLookup(catalogRepo)

	storefronts := services.NewStorefrontRegistry()
	storefronts.Register(services.TemplateFamilyCrystalCommerce, services.NewCrystalCommerceStrategy(pageFetcher, setLookup))
	scraper := services.NewScraperService(services.WithStorefrontRegistry(storefronts))

	cache := repositories.NewAvailabilityCache(redisClient, cfg.Scraper.CacheTTL)
	notifier := repositories.NewRedisNotifier(redisClient)

	availabilityService := services.NewAvailabilityService(
		services.WithAvailabilityStore(cache),
		services.WithUserDirectory(userRepo),
		services.WithCardScraper(scraper),
		services.WithResultPublisher(redisClient),
		services.WithNotifier(notifier),
	)

	feed := repositories.NewCatalogFeed(cfg.Catalog.BulkIndexURL, cfg.Catalog.CardNamesURL, cfg.Catalog.SetsURL)
	catalogService := services.NewCatalogService(
		services.WithCatalogFeed(feed),
		services.WithCatalogPublisher(redisClient),
		services.WithCatalogCache(redisClient),
		services.WithChunkSize(cfg.Catalog.ChunkSize),
		services.WithNamesCacheTTL(cfg.Catalog.NamesCacheTTL),
	)

	registry := services.NewTaskRegistry()
	services.RegisterTasks(registry, availabilityService, catalogService)

	worker := services.NewWorkerService(registry, sqsClient, cfg.Queue.JobQueueURL, redisClient,
		services.WithReceiveWait(cfg.Queue.WaitTimeSeconds),
		services.WithReceiveBackoff(cfg.Queue.ReceiveBackoff),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, initiating shutdown...", sig)
		cancel()
	}()

	worker.Run(ctx)
	log.Println("Shutdown complete.")
}
