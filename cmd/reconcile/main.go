package main

import (
	"context"
	"os"

	"github.com/julienschmidt/httprouter"

	aliasrepository "clubsync/internal/alias/repository"
	aliasservice "clubsync/internal/alias/service"
	importerhandler "clubsync/internal/importer/handler"
	importerservice "clubsync/internal/importer/service"
	"clubsync/internal/matching"
	"clubsync/internal/notify"
	"clubsync/internal/reconcile/consumer"
	reconcilehandler "clubsync/internal/reconcile/handler"
	reconcileservice "clubsync/internal/reconcile/service"
	recordsrepository "clubsync/internal/records/repository"
	slotshandler "clubsync/internal/slots/handler"
	slotsrepository "clubsync/internal/slots/repository"
	slotsservice "clubsync/internal/slots/service"
	"clubsync/pkg/app"
	"clubsync/pkg/config"
	"clubsync/pkg/contracts"
	"clubsync/pkg/kafka"
	kafka_config "clubsync/pkg/kafka/config"
	kafka_middleware "clubsync/pkg/kafka/middleware"
)

const ServiceName = "reconcile"

// compositeHandler mounts several route groups on one router.
type compositeHandler []contracts.Handler

func (h compositeHandler) RegisterRoutes(router *httprouter.Router) {
	for _, handler := range h {
		handler.RegisterRoutes(router)
	}
}

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.Client.SetDirectory(cfg.Log, cfg.DirectoryBaseURL, cfg.DirectoryCacheTTL, cfg.DirectoryRetryMax, cfg.DirectoryRetryBackoff)
	cfg.Client.SetBookings(cfg.Log, cfg.BookingAPIBaseURL)

	cfg.Log.Info("Starting reconciliation service")

	serverApp := app.NewApplication()

	publisher, producer := initPublisher(cfg)

	recordRepo := recordsrepository.NewMongoRecordRepository(cfg)
	runRepo := recordsrepository.NewMongoImportRunRepository(cfg)
	lockRepo := recordsrepository.NewMongoImportLockRepository(cfg)
	aliasRepo := aliasrepository.NewMongoAliasRepository(cfg)
	assignmentRepo := slotsrepository.NewMongoAssignmentRepository(cfg)

	aliasService := aliasservice.NewAliasService(aliasRepo, cfg)
	matcher := matching.NewMatcher(cfg.Client.Directory, cfg)
	engine := reconcileservice.NewReconcileService(
		recordRepo,
		aliasService,
		matcher,
		cfg.Client.Bookings,
		cfg.Client.Directory,
		publisher,
		cfg,
	)
	slotService := slotsservice.NewSlotService(assignmentRepo, recordRepo, cfg)
	importService := importerservice.NewImportService(engine, recordRepo, runRepo, lockRepo, publisher, cfg)

	appHandler := compositeHandler{
		reconcilehandler.NewReconcileHandler(engine, aliasService, cfg.Log),
		slotshandler.NewSlotHandler(slotService, cfg.Log),
		importerhandler.NewImportHandler(importService, cfg),
	}
	webhookHandler := reconcilehandler.NewWebhookHandler(engine, cfg.Log)

	serverApp.SetApp(cfg, appHandler, webhookHandler)

	startConsumer(cfg, serverApp, engine)
	if producer != nil {
		serverApp.AddShutdownHook(func() {
			if err := producer.Close(); err != nil {
				cfg.Log.Error("Failed to close Kafka producer", "error", err)
			}
		})
	}
	serverApp.AddShutdownHook(cfg.GracefulShutdown)

	serverApp.Run()
}

// initPublisher wires the event stream when a broker is configured and falls
// back to a no-op publisher otherwise.
func initPublisher(cfg *config.Config) (notify.Publisher, *kafka.Producer) {
	if os.Getenv("KAFKA_ENABLED") != "true" {
		cfg.Log.Info("Kafka disabled, domain events will not be published")
		return notify.NewNoopPublisher(), nil
	}

	kafkaCfg := kafka_config.Load()
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	producer, err := kafka.NewProducer(kafkaCfg, "clubsync.events", "clubsync.events.dlq")
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))

	return notify.NewKafkaPublisher(producer, cfg.Log), producer
}

// startConsumer drains scheduler events pushed through the broker. The HTTP
// webhook stays available either way; the consumer covers deployments where
// the scheduler integration publishes to Kafka instead of calling us.
func startConsumer(cfg *config.Config, serverApp *app.Application, engine reconcileservice.ReconcileService) {
	if os.Getenv("KAFKA_ENABLED") != "true" {
		return
	}

	kafkaCfg := kafka_config.Load()
	bookingConsumer, err := consumer.NewBookingEventConsumer(kafkaCfg, engine, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create booking event consumer", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := bookingConsumer.Start(ctx); err != nil && ctx.Err() == nil {
			cfg.Log.Error("Booking event consumer stopped", "error", err)
		}
	}()

	serverApp.AddShutdownHook(func() {
		cancel()
		if err := bookingConsumer.Close(); err != nil {
			cfg.Log.Error("Failed to close booking event consumer", "error", err)
		}
	})
}
