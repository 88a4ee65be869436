package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"restaurant_asset_tracker/internal/app"
	"restaurant_asset_tracker/internal/domain/notify"
	"restaurant_asset_tracker/internal/domain/reminder"
	"restaurant_asset_tracker/internal/infra/config"
	idb "restaurant_asset_tracker/internal/infra/database"
	"restaurant_asset_tracker/internal/infra/logger"
	"restaurant_asset_tracker/internal/infra/memory"
	"restaurant_asset_tracker/internal/infra/scheduler"
	"restaurant_asset_tracker/internal/infra/telegram"
	"restaurant_asset_tracker/internal/infra/web"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// application holds the wired components shared by the commands.
type application struct {
	cfg       *config.AppConfig
	db        *sql.DB
	bot       *telebot.Bot // nil when Telegram is not configured
	overview  *app.OverviewService
	scheduler *scheduler.MaintenanceScheduler
}

func buildApp(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("could not load application configuration: %w", err)
	}
	logger.Init(cfg)
	log := logger.For("main")
	log.WithFields(logrus.Fields{
		"environment":    cfg.Environment,
		"ledger_backend": cfg.LedgerBackend,
		"cron_spec":      cfg.CronSpecCycle,
	}).Info("Configuration loaded")

	// Initialize Database Connection
	pool := idb.DefaultPoolConfig()
	pool.MaxOpenConns = cfg.DBMaxOpenConns
	db, err := idb.Open(ctx, cfg.DatabaseURL, pool)
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	log.Info("Database connection established successfully.")

	deviceRepo := idb.NewPostgresDeviceRepository(db)

	var reminderRepo reminder.Repository
	switch cfg.LedgerBackend {
	case config.LedgerBackendMemory:
		reminderRepo = memory.NewReminderRepository()
		log.Warn("Reminder ledger is in memory; cool-downs reset on restart")
	default:
		reminderRepo = idb.NewPostgresReminderRepository(db)
	}

	var (
		bot        *telebot.Bot
		dispatcher notify.Dispatcher
	)
	if cfg.TelegramToken != "" {
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) { // Global error handler
				entry := logger.For("telebot").WithError(err)
				if c != nil && c.Sender() != nil {
					entry = entry.WithField("sender_id", c.Sender().ID)
				}
				entry.Error("Telegram handler error")
			},
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("could not create Telegram bot: %w", err)
		}
		dispatcher = telegram.NewDispatcher(telegram.NewTelebotAdapter(bot), cfg.MaintenanceChatID, cfg.DispatchRatePerSec)
		log.WithField("chat_id", cfg.MaintenanceChatID).Info("Telegram dispatcher initialized.")
	} else {
		dispatcher = telegram.NewLogDispatcher(logger.For("dispatch"))
		log.Warn("TELEGRAM_TOKEN not set; reminders will only be logged")
	}

	ledger := app.NewLedger(reminderRepo, app.LedgerPolicy{
		UpcomingCooldown: cfg.UpcomingCooldown,
		OverdueCooldown:  cfg.OverdueCooldown,
	})
	cycles := app.NewCycleService(deviceRepo, ledger, dispatcher, logger.For("app"), app.CycleOptions{
		Workers:         cfg.CycleWorkers,
		FetchTimeout:    cfg.FetchTimeout,
		DispatchTimeout: cfg.DispatchTimeout,
	})
	sched := scheduler.NewMaintenanceScheduler(cycles, logger.For("scheduler"), cfg.CronSpecCycle, cfg.CycleTimeout)

	return &application{
		cfg:       cfg,
		db:        db,
		bot:       bot,
		overview:  app.NewOverviewService(deviceRepo, ledger, cycles, cfg.AdminTelegramID),
		scheduler: sched,
	}, nil
}

func (a *application) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func serve(ctx context.Context) error {
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	log := logger.For("main")

	if err := a.scheduler.Start(); err != nil {
		return err
	}

	if a.bot != nil {
		botLogger := logger.For("telegram")
		telegram.RegisterBotCommands(ctx, a.bot, a.overview, a.cfg.AdminTelegramID, botLogger)
		telegram.RegisterAdminHandlers(ctx, a.bot, a.overview, botLogger)
		log.Info("Bot command handlers registered.")
		// Start bot in a goroutine so it doesn't block graceful shutdown handling
		go a.bot.Start()
	}

	srv := &http.Server{
		Addr:         a.cfg.HTTPAddr,
		Handler:      web.NewRouter(a.scheduler, a.overview, a.cfg.CORSOrigins, logger.For("http")),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: a.cfg.HTTPWriteTimeout(), // POST /api/v1/cycles runs a full cycle
		IdleTimeout:  60 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", a.cfg.HTTPAddr).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	log.Info("Application setup complete. Scheduler, HTTP API and bot are running.")
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.WithError(err).Error("HTTP server failed")
	}

	log.Info("Shutting down application...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP shutdown error")
	}
	if a.bot != nil {
		a.bot.Stop()
	}
	a.scheduler.Stop()
	log.Info("Application shut down gracefully.")
	return nil
}
