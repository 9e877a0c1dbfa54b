package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/farmolink/farmolink-backend/internal/bootstrap"
	"github.com/farmolink/farmolink-backend/pkg/metrics"
	"github.com/farmolink/farmolink-backend/pkg/outbox"
	"github.com/farmolink/farmolink-backend/pkg/outbox/registry"
)

const serviceName = "outbox-publisher"

func main() {
	app, err := bootstrap.New(serviceName)
	if err != nil {
		bootstrap.Fatal(nil, "failed to load config", err)
	}
	err = run(app)
	if closeErr := app.Close(); closeErr != nil {
		app.Logger.Error(context.Background(), "error releasing resources", closeErr)
	}
	if err != nil {
		bootstrap.Fatal(app.Logger, "outbox publisher stopped unexpectedly", err)
	}
}

func run(app *bootstrap.App) error {
	ctx, stop := app.SignalContext()
	defer stop()

	dbClient, err := app.Database(ctx)
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

	service, err := NewService(ServiceParams{
		Config:        app.Config,
		Logger:        app.Logger,
		DB:            dbClient,
		PubSub:        pubsubClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Registry:      eventRegistry,
		Metrics:       metrics.NewMarketplace(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return fmt.Errorf("create outbox publisher: %w", err)
	}

	app.Logger.Info(ctx, "starting outbox publisher")
	err = app.RunWorker(ctx, prometheus.DefaultGatherer, service.Run)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	app.Logger.Info(ctx, "outbox publisher shutting down gracefully")
	return nil
}
