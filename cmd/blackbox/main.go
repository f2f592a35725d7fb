package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm/logger"

	"github.com/industriq/blackbox/internal/config"
	"github.com/industriq/blackbox/internal/database"
	"github.com/industriq/blackbox/internal/handlers"
	"github.com/industriq/blackbox/internal/jobs"
	"github.com/industriq/blackbox/internal/metrics"
	"github.com/industriq/blackbox/internal/middleware"
	"github.com/industriq/blackbox/internal/notify"
	"github.com/industriq/blackbox/internal/rules"
	"github.com/industriq/blackbox/internal/services"
	"github.com/industriq/blackbox/internal/sources"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting Blackbox event correlation engine...")

	if err := database.Connect(cfg.DatabaseURL, dbLogLevel(cfg.DBLogLevel)); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db := database.GetDB()

	// Causal rules: built-ins first, then operator packs on top.
	if err := rules.SeedBuiltinRules(db); err != nil {
		log.Fatalf("Failed to seed system rules: %v", err)
	}
	if err := rules.NewLoader(db).LoadDir(cfg.RulesDir); err != nil {
		log.Fatalf("Failed to load rule packs: %v", err)
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(registry); err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	// Notification sinks: the platform inbox always, Slack when configured.
	sinks := []services.NotificationSink{notify.NewStoreSink(db)}
	if cfg.SlackToken != "" {
		sinks = append(sinks, notify.NewSlackSink(cfg.SlackToken, cfg.SlackChannel))
		log.Printf("Slack notifications enabled on %s", cfg.SlackChannel)
	}
	fanout := notify.NewFanout(sinks...)

	// Pipeline wiring
	assets := sources.NewAssetLookup(db)
	costs := sources.NewCostModelLookup(db)
	users := sources.NewUserLookup(db)

	collector := services.NewCollectorService(db,
		sources.NewAlertStore(db),
		sources.NewWorkOrderStore(db),
		sources.NewAIScoreStore(db),
	)
	detector := services.NewDetectorService(db).WithWindow(cfg.WindowBefore, cfg.WindowAfter)
	rca := services.NewRCAService(db, assets, costs).WithWindow(cfg.WindowBefore)
	dispatcher := services.NewDispatcherService(db, assets, users, fanout)
	pipeline := services.NewPipeline(collector, detector, rca, dispatcher)

	// HTTP server
	mux := http.NewServeMux()
	handlers.NewAPIHandler(db, pipeline).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	corsMiddleware := middleware.NewCORSMiddleware()
	handler := corsMiddleware.Wrap(middleware.RequestIDMiddleware(mux))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Scheduled pipeline
	stop := make(chan struct{})
	if cfg.PipelineEnabled {
		job := jobs.NewPipelineJob(db, pipeline, cfg.PipelineInterval)
		go job.Start(stop)
		log.Printf("Scheduled pipeline enabled, interval %s", cfg.PipelineInterval)
	} else {
		log.Println("Scheduled pipeline disabled, running in API-only mode")
	}

	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)
	log.Printf("API base URL: http://localhost:%d/api", cfg.HTTPPort)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Received shutdown signal, cleaning up...")
	close(stop)
	if err := httpServer.Close(); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}
	// Give in-flight pipeline work a moment to finish
	time.Sleep(100 * time.Millisecond)
	log.Println("Shutdown complete")
}

func dbLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
