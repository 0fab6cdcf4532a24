package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/taskpulse/taskpulse/internal/config"
	"github.com/taskpulse/taskpulse/internal/consumer"
	"github.com/taskpulse/taskpulse/internal/delivery"
	"github.com/taskpulse/taskpulse/internal/events"
	"github.com/taskpulse/taskpulse/internal/generation"
	"github.com/taskpulse/taskpulse/internal/platform/gemini"
	"github.com/taskpulse/taskpulse/internal/platform/postgres"
	"github.com/taskpulse/taskpulse/internal/scheduler"
	"github.com/taskpulse/taskpulse/internal/service"
	"github.com/taskpulse/taskpulse/internal/store"
)

// application holds the wired components of the reminder pipeline.
type application struct {
	config *config.Config
	logger *slog.Logger

	db  *sql.DB
	bus *events.InMemoryBus

	consumer    *consumer.Consumer
	scheduler   *scheduler.ReminderScheduler
	maintenance *scheduler.Maintenance
	deadLetters store.DeadLetterStore
}

// newApplication connects the database, applies migrations, and wires all
// services of the pipeline.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	db, err := setupDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := postgres.RunMigrations(ctx, db, logger); err != nil {
		return nil, err
	}

	reminderStore := postgres.NewReminderStore(db)
	idempotencyStore := postgres.NewIdempotencyStore(db)
	stateStore := postgres.NewRecurringStateStore(db)
	deadLetterStore := postgres.NewDeadLetterStore(db)
	scheduledStore := postgres.NewScheduledReminderStore(db)
	idAllocator := postgres.NewIDAllocator(db)

	bus := events.NewInMemoryBus(logger)

	guard, err := service.NewDuplicateGuard(reminderStore, cfg.Scheduler.ToleranceWindow, logger)
	if err != nil {
		return nil, err
	}

	cascade, err := setupGeneration(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	deliverer, err := delivery.NewLogDeliverer(logger)
	if err != nil {
		return nil, err
	}

	reminderService, err := service.NewReminderService(
		guard, cascade, deliverer, delivery.StaticUserDirectory{}, logger)
	if err != nil {
		return nil, err
	}

	recurrenceService, err := service.NewRecurrenceService(
		db, stateStore, idempotencyStore, idAllocator, bus, nil, logger)
	if err != nil {
		return nil, err
	}

	// The scheduler's trigger dispatches into the consumer, which is
	// constructed right after; the closure resolves the cycle. No timer
	// can fire before the consumer starts.
	var eventConsumer *consumer.Consumer
	reminderScheduler, err := scheduler.New(
		func(ctx context.Context, ev *events.ReminderEvent) {
			eventConsumer.HandleReminderTrigger(ctx, ev)
		},
		cfg.Scheduler.FirePastDue,
		logger,
	)
	if err != nil {
		return nil, err
	}

	eventConsumer, err = consumer.New(cfg.Consumer, consumer.Deps{
		Idempotency: idempotencyStore,
		DeadLetters: deadLetterStore,
		Reminders:   reminderStore,
		Scheduled:   scheduledStore,
		Recurrence:  recurrenceService,
		Reminder:    reminderService,
		Scheduler:   reminderScheduler,
		Publisher:   bus,
	}, logger)
	if err != nil {
		return nil, err
	}

	maintenance, err := scheduler.NewMaintenance(
		cfg.Scheduler.SweepSchedule,
		idempotencyStore,
		deadLetterStore,
		scheduledStore,
		func(ctx context.Context, ev *events.ReminderEvent) error {
			eventConsumer.HandleReminderTrigger(ctx, ev)
			return nil
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	return &application{
		config:      cfg,
		logger:      logger,
		db:          db,
		bus:         bus,
		consumer:    eventConsumer,
		scheduler:   reminderScheduler,
		maintenance: maintenance,
		deadLetters: deadLetterStore,
	}, nil
}

// setupGeneration builds the content generation cascade. Without a Gemini
// API key the primary path is disabled and every reminder renders through
// the template.
func setupGeneration(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*generation.Cascade, error) {
	fallback := generation.NewTemplateGenerator(cfg.LLM.SenderName)

	var primary generation.Generator
	if cfg.LLM.GeminiAPIKey != "" {
		g, err := gemini.NewGeminiGenerator(ctx, logger, cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Gemini generator: %w", err)
		}
		primary = g
	} else {
		logger.Warn("no Gemini API key configured, using template generation only")
	}

	return generation.NewCascade(primary, fallback, cfg.LLM.RequestTimeout, logger)
}

// Run starts the pipeline and the HTTP surface, blocking until shutdown.
func (app *application) Run(ctx context.Context) error {
	app.consumer.Start(app.bus)
	if err := app.consumer.RestoreScheduled(ctx); err != nil {
		app.logger.Error("failed to restore scheduled reminders", "error", err)
	}
	app.maintenance.Start()

	return app.startHTTPServer(ctx, app.setupRouter())
}

// cleanup tears the pipeline down in dependency order: stop accepting
// events, disarm timers, halt sweeps, then release the database.
func (app *application) cleanup() {
	app.consumer.Stop()
	app.scheduler.Stop()
	app.maintenance.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database", "error", err)
	}
}
