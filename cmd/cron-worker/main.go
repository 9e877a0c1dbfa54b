package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/farmolink/farmolink-backend/internal/bootstrap"
	"github.com/farmolink/farmolink-backend/internal/cron"
	"github.com/farmolink/farmolink-backend/internal/notifications"
	"github.com/farmolink/farmolink-backend/internal/settlement"
	"github.com/farmolink/farmolink-backend/pkg/metrics"
	"github.com/farmolink/farmolink-backend/pkg/outbox"
)

type flags struct {
	once bool
	jobs []string
}

func main() {
	var opts flags
	only := flag.String("jobs", "", "comma-separated job names to run (default all)")
	flag.BoolVar(&opts.once, "once", false, "run a single locked cycle and exit")
	flag.Parse()
	opts.jobs = splitJobs(*only)

	app, err := bootstrap.New("cron-worker")
	if err != nil {
		bootstrap.Fatal(nil, "failed to load config", err)
	}
	err = run(app, opts)
	if closeErr := app.Close(); closeErr != nil {
		app.Logger.Error(context.Background(), "error releasing resources", closeErr)
	}
	if err != nil {
		bootstrap.Fatal(app.Logger, "cron worker stopped unexpectedly", err)
	}
}

func run(app *bootstrap.App, opts flags) error {
	ctx, stop := app.SignalContext()
	defer stop()
	cfg := app.Config
	logg := app.Logger

	dbClient, err := app.Database(ctx)
	if err != nil {
		return err
	}
	redisClient, err := app.Redis(ctx)
	if err != nil {
		return err
	}
	defaultRate, err := decimal.NewFromString(cfg.Orders.DefaultCommissionRate)
	if err != nil {
		return fmt.Errorf("invalid default commission rate: %w", err)
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)
	settlementService, err := settlement.NewService(settlement.ServiceParams{
		Repo:          settlement.NewRepository(dbClient.DB()),
		Tx:            dbClient,
		Outbox:        outboxService,
		DefaultRate:   defaultRate,
		RequireReport: cfg.Settlement.RequireReport,
		Logger:        logg,
	})
	if err != nil {
		return fmt.Errorf("create settlement service: %w", err)
	}

	reminderJob, err := cron.NewSettlementReminderJob(cron.SettlementReminderJobParams{
		Logger:     logg,
		DB:         dbClient,
		Settlement: settlementService,
		Outbox:     outboxService,
	})
	if err != nil {
		return fmt.Errorf("create settlement reminder job: %w", err)
	}
	notificationJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notifications.NewRepository(dbClient.DB()),
		Retention:  cfg.Cron.NotificationRetentionDays,
	})
	if err != nil {
		return fmt.Errorf("create notification cleanup job: %w", err)
	}
	outboxJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:              logg,
		DB:                  dbClient,
		Events:              outboxRepo,
		DeadLetters:         outbox.NewDLQRepository(dbClient.DB()),
		Retention:           cfg.Cron.OutboxRetentionDays,
		DeadLetterRetention: cfg.Cron.DeadLetterRetentionDays,
		MaxAttempts:         cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("create outbox retention job: %w", err)
	}

	registry, err := cron.NewRegistry(reminderJob, notificationJob, outboxJob).Select(opts.jobs...)
	if err != nil {
		return fmt.Errorf("invalid -jobs flag: %w", err)
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("create cron lock: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("create cron service: %w", err)
	}

	if opts.once {
		if err := service.RunOnce(ctx); err != nil {
			return fmt.Errorf("cron cycle: %w", err)
		}
		logg.Info(ctx, "cron cycle complete")
		return nil
	}

	logg.Info(ctx, "starting cron worker")
	err = app.RunWorker(ctx, prometheus.DefaultGatherer, service.Run)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func splitJobs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
