package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/farmolink/farmolink-backend/internal/bootstrap"
	"github.com/farmolink/farmolink-backend/internal/notifications"
	"github.com/farmolink/farmolink-backend/internal/pharmacies"
	"github.com/farmolink/farmolink-backend/pkg/metrics"
	"github.com/farmolink/farmolink-backend/pkg/outbox/idempotency"
	"github.com/farmolink/farmolink-backend/pkg/outbox/registry"
)

func main() {
	app, err := bootstrap.New("worker")
	if err != nil {
		bootstrap.Fatal(nil, "failed to load config", err)
	}
	err = run(app)
	if closeErr := app.Close(); closeErr != nil {
		app.Logger.Error(context.Background(), "error releasing resources", closeErr)
	}
	if err != nil {
		bootstrap.Fatal(app.Logger, "worker stopped unexpectedly", err)
	}
}

func run(app *bootstrap.App) error {
	ctx, stop := app.SignalContext()
	defer stop()

	dbClient, err := app.Database(ctx)
	if err != nil {
		return err
	}
	redisClient, err := app.Redis(ctx)
	if err != nil {
		return err
	}
	pubsubClient, err := app.PubSub(ctx)
	if err != nil {
		return err
	}

	eventRegistry, err := registry.NewEventRegistry(app.Config.PubSub.DomainTopic)
	if err != nil {
		return fmt.Errorf("build event registry: %w", err)
	}
	tracker, err := idempotency.NewManager(redisClient, app.Config.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		return fmt.Errorf("create idempotency manager: %w", err)
	}
	consumer, err := notifications.NewConsumer(notifications.ConsumerParams{
		Repo:         notifications.NewRepository(dbClient.DB()),
		Subscription: pubsubClient.DomainSubscription(),
		Decoder:      eventRegistry,
		Idempotency:  tracker,
		Owners:       pharmacies.NewRepository(dbClient.DB()),
		Metrics:      metrics.NewMarketplace(prometheus.DefaultRegisterer),
		Logger:       app.Logger,
	})
	if err != nil {
		return fmt.Errorf("create notification consumer: %w", err)
	}

	service, err := NewService(ServiceParams{
		Logger:   app.Logger,
		Consumer: consumer,
		Dependencies: map[string]pinger{
			"database": dbClient,
			"redis":    redisClient,
			"pubsub":   pubsubClient,
		},
	})
	if err != nil {
		return fmt.Errorf("create worker service: %w", err)
	}

	app.Logger.Info(ctx, "starting worker")
	err = app.RunWorker(ctx, prometheus.DefaultGatherer, service.Run)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	app.Logger.Info(ctx, "worker shutting down gracefully")
	return nil
}
