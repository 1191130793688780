package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	httpadapter "github.com/suchimauz/testdrive-scheduler/internal/adapters/in/http"
	rabbitmqin "github.com/suchimauz/testdrive-scheduler/internal/adapters/in/rabbitmq"
	"github.com/suchimauz/testdrive-scheduler/internal/adapters/out/cache"
	"github.com/suchimauz/testdrive-scheduler/internal/adapters/out/directory"
	"github.com/suchimauz/testdrive-scheduler/internal/adapters/out/hours"
	"github.com/suchimauz/testdrive-scheduler/internal/adapters/out/logger"
	"github.com/suchimauz/testdrive-scheduler/internal/adapters/out/notifier"
	rabbitmqout "github.com/suchimauz/testdrive-scheduler/internal/adapters/out/rabbitmq"
	"github.com/suchimauz/testdrive-scheduler/internal/adapters/out/store/memory"
	"github.com/suchimauz/testdrive-scheduler/internal/adapters/out/store/postgres"
	"github.com/suchimauz/testdrive-scheduler/internal/config"
	"github.com/suchimauz/testdrive-scheduler/internal/core/ports/out"
	"github.com/suchimauz/testdrive-scheduler/internal/core/services"
)

const shutdownTimeout = 20 * time.Second

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	mainLogger, err := logger.NewConsoleLogger(cfg.App.Timezone, out.ParseLogLevel(cfg.App.LogLevel))
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := mainLogger.WithModule("Main")

	log.Info("app.starting", out.LogFields{
		"version":         cfg.App.Version,
		"env":             cfg.App.Env,
		"timezone":        cfg.App.Timezone,
		"storage":         cfg.Storage.Backend,
		"rabbitmqEnabled": cfg.RabbitMQ.Enabled,
		"cacheEnabled":    cfg.Cache.Enabled,
	})

	if err := run(cfg, mainLogger); err != nil {
		log.Error("app.failed", out.LogFields{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	log.Info("app.stopped", out.LogFields{})
}

func run(cfg *config.Config, rootLogger out.LoggerPort) error {
	log := rootLogger.WithModule("Main")

	if cfg.IsNotLocal() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newAppointmentStore(cfg, rootLogger)
	if err != nil {
		return err
	}

	operatingHours, err := hours.LoadFile(cfg.Scheduling.HoursFile, rootLogger)
	if err != nil {
		return err
	}

	var calendarCache out.CalendarCachePort
	lruCache, err := cache.NewLRUCalendarCache(cfg, rootLogger)
	if err != nil {
		return err
	}
	if lruCache != nil {
		calendarCache = lruCache
	}

	var directoryPort out.DirectoryPort = &directory.StaticDirectory{}
	if cfg.Directory.URL != "" {
		directoryPort = directory.NewConsoleDirectory(cfg, rootLogger)
	}

	channels := []out.NotifierPort{}
	if cfg.Mail.Enabled {
		channels = append(channels, notifier.NewEmailNotifier(cfg, rootLogger))
	}
	if cfg.Push.Enabled {
		channels = append(channels, notifier.NewPushNotifier(cfg, rootLogger))
	}

	conn, err := rabbitmqout.Dial(cfg, rootLogger)
	if err != nil {
		return err
	}
	var events out.AppointmentEventsPort
	if conn != nil {
		defer conn.Close()

		publisher, err := rabbitmqout.NewEventPublisher(conn, cfg, rootLogger)
		if err != nil {
			return err
		}
		defer publisher.Close()

		events = publisher
		channels = append(channels, publisher)
	}

	var notifierPort out.NotifierPort
	if len(channels) > 0 {
		notifierPort = notifier.NewFanoutNotifier(rootLogger, channels...)
	}

	settings := services.SettingsFromConfig(cfg)
	schedulingService := services.NewSchedulingService(services.Dependencies{
		Store:         store,
		Hours:         operatingHours,
		Directory:     directoryPort,
		Notifier:      notifierPort,
		Events:        events,
		CalendarCache: calendarCache,
		Logger:        rootLogger,
	}, settings)

	if conn != nil {
		listener, err := rabbitmqin.NewStoreEventListener(conn, schedulingService, cfg, settings.InstanceID, rootLogger)
		if err != nil {
			return err
		}
		if err := listener.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := listener.Stop(); err != nil {
				log.Error("app.rabbitmq.stop_failed", out.LogFields{
					"error": err.Error(),
				})
			}
		}()
	}

	router := gin.Default()
	controller := httpadapter.NewSchedulingController(schedulingService, cfg, rootLogger)
	controller.RegisterRoutes(router)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("app.http.starting", out.LogFields{
			"host": cfg.HTTP.Host,
			"port": cfg.HTTP.Port,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("app.shutdown.initiated", out.LogFields{})
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("app.http.failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("app.http.shutdown_failed", out.LogFields{
			"error": err.Error(),
		})
	}

	// let in-flight notifications finish before the broker connection closes
	schedulingService.WaitBackground()
	return nil
}

func newAppointmentStore(cfg *config.Config, rootLogger out.LoggerPort) (out.AppointmentStorePort, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendPostgres:
		db, err := postgres.NewPostgresDB(cfg)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			return nil, err
		}
		return postgres.NewAppointmentStore(db, rootLogger), nil
	default:
		rootLogger.WithModule("Main").Warn("app.storage.memory", out.LogFields{
			"message": "Appointments are kept in memory and lost on restart",
		})
		return memory.NewAppointmentStore(), nil
	}
}
