package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"flightdash/app"
	"flightdash/config"
	"flightdash/db"
	fhttp "flightdash/http"
	"flightdash/logger"
	"flightdash/monitoring"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// 1. Load config
	path := *configPath
	if path == "" {
		path = config.Locate()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logger
	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync()
	zap.ReplaceGlobals(lg)

	// 3. Database
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		lg.Fatal("failed to open database", zap.String("path", cfg.Database.Path), zap.Error(err))
	}
	defer store.Close()
	lg.Info("database initialized", zap.String("path", cfg.Database.Path))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Metrics and websocket hub
	metrics := monitoring.NewMetrics()
	hub := monitoring.NewHub(lg, metrics, cfg.HTTP.AllowedOrigins)
	alerts := monitoring.NewAlertSystem(lg, hub, cfg.Alerts.Cooldown)

	svc := app.New(app.Options{
		Dataset:   cfg.Dataset,
		ML:        cfg.ML,
		CacheSize: cfg.Cache.PredictionSize,
		Logger:    lg,
		Metrics:   metrics,
		Recorder:  store,
		Notifier:  hub,

		Alerts:     alerts,
		AlertRules: cfg.Alerts,
	})
	hub.SetGreeting(func() (monitoring.MessageType, interface{}, bool) {
		snap := svc.Current()
		if snap == nil {
			return "", nil, false
		}
		return monitoring.KPIUpdate, snap.Store.SummaryStats(), true
	})
	go hub.Run(ctx)

	// 5. Load the dataset and train; a bad dataset at startup is fatal
	if err := svc.Bootstrap(ctx); err != nil {
		lg.Fatal("failed to build dashboard", zap.String("dataset", cfg.Dataset.Path), zap.Error(err))
	}

	if cfg.Dataset.Watch {
		go func() {
			if err := svc.Watch(ctx); err != nil {
				lg.Error("dataset watcher stopped", zap.Error(err))
			}
		}()
	}
	if cfg.ML.RetrainSchedule != "" {
		scheduler, err := svc.Schedule(cfg.ML.RetrainSchedule)
		if err != nil {
			lg.Fatal("invalid retrain schedule", zap.Error(err))
		}
		defer scheduler.Stop()
	}

	// 6. HTTP server
	server := fhttp.NewServer(fhttp.ServerConfigFrom(cfg.HTTP), fhttp.NewHandlers(svc, hub, metrics, alerts, lg))
	errc := make(chan error, 1)
	go func() {
		errc <- server.Start()
	}()

	// 7. Graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			lg.Error("HTTP server failed", zap.Error(err))
		}
	}
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		lg.Warn("server forced to shutdown", zap.Error(err))
	}
	stop()
	<-hub.Done()

	lg.Info("exiting")
}
