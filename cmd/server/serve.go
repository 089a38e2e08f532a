package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/example/campusdelivery/internal/cache"
	"github.com/example/campusdelivery/internal/config"
	"github.com/example/campusdelivery/internal/database"
	"github.com/example/campusdelivery/internal/handlers"
	"github.com/example/campusdelivery/internal/jobs"
	"github.com/example/campusdelivery/internal/messaging"
	"github.com/example/campusdelivery/internal/routes"
	"github.com/example/campusdelivery/internal/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and background jobs",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	redisCache := openCache(cfg)
	defer redisCache.Close()

	sinks, closeNotifier := buildNotifier(cfg)
	defer closeNotifier()

	outbox := services.NewOutbox(db, cfg.OutboxMaxAttempts, sinks...)
	svc, err := buildServices(cfg, db, redisCache, outbox)
	if err != nil {
		return err
	}

	scheduler, err := jobs.New(ctx, jobs.Config{
		OutboxInterval:      cfg.OutboxInterval,
		CartTTL:             cfg.CartTTL,
		CodeUtilizationWarn: cfg.CodeUtilizationWarn,
	}, outbox, svc.Carts, svc.Orders)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:      "Campus Delivery",
		ErrorHandler: handlers.ErrorHandler,
	})
	app.Use(recover.New())
	app.Use(logger.New())

	routes.Register(app, db, cfg, svc)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.AppPort).Str("zone_strategy", cfg.ZoneStrategy).Msg("starting server")
		return errors.Wrap(app.Listen(":"+cfg.AppPort), "fiber.Listen")
	})

	g.Go(func() error {
		outbox.Run(ctx)
		return nil
	})

	g.Go(func() error {
		return scheduler.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	// Deliver anything left over from a previous run.
	outbox.Kick()

	return g.Wait()
}

func buildServices(cfg *config.Config, db *gorm.DB, redisCache *cache.RedisCache, outbox *services.Outbox) (routes.Services, error) {
	var zoneCache services.Cache
	var pinger handlers.Pinger
	if redisCache.Enabled() {
		zoneCache = redisCache
		pinger = redisCache
	}

	zones, err := services.NewZoneResolver(cfg.ZoneStrategy, db, zoneCache, cfg.ZoneCacheTTL)
	if err != nil {
		return routes.Services{}, err
	}

	if cfg.GeofenceBypass && !cfg.BypassGeofence() {
		log.Warn().Msg("GEOFENCE_BYPASS is ignored in production")
	}

	policy := services.DefaultCodePolicy()
	if cfg.CodeRandomAttempts > 0 {
		policy.RandomAttempts = cfg.CodeRandomAttempts
	}
	if cfg.OrderInsertAttempts > 0 {
		policy.InsertAttempts = cfg.OrderInsertAttempts
	}

	audit := services.NewLogAudit()
	stock := services.NewStockLedger(db)

	orders := services.NewOrderService(db, zones, stock, services.NewCodeAllocator(policy), outbox, audit, services.OrderOptions{
		MinOrderAmount: decimal.NewFromFloat(cfg.MinOrderAmount),
		Currency:       cfg.Currency,
		BypassGeofence: cfg.BypassGeofence(),
	})

	return routes.Services{
		Zones:      zones,
		Stock:      stock,
		Carts:      services.NewCartService(db),
		Orders:     orders,
		Deliveries: services.NewDeliveryService(db, stock, outbox, audit),
		Cache:      pinger,
	}, nil
}

// buildNotifier always logs, and adds Telegram and Service Bus when configured.
func buildNotifier(cfg *config.Config) ([]services.Sink, func()) {
	notifiers := []services.Sink{{Name: "log", Notifier: services.LogNotifier{}}}
	closeFn := func() {}

	telegram := services.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	if telegram.Enabled() {
		notifiers = append(notifiers, services.Sink{Name: "telegram", Notifier: telegram})
	}

	if cfg.ServiceBusConnectionString != "" {
		bus, err := messaging.NewServiceBusNotifier(cfg.ServiceBusConnectionString, cfg.ServiceBusQueue)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize Service Bus, continuing without it")
		} else {
			notifiers = append(notifiers, services.Sink{Name: "servicebus", Notifier: bus})
			closeFn = func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := bus.Close(ctx); err != nil {
					log.Error().Err(err).Msg("failed to close Service Bus sender")
				}
			}
		}
	}

	log.Info().Int("sinks", len(notifiers)).Msg("notification sinks ready")
	return notifiers, closeFn
}
