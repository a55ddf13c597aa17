package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"StudyChat/internal/api"
	"StudyChat/internal/config"
	"StudyChat/internal/engine"
	"StudyChat/internal/export"
	"StudyChat/internal/lecture"
	"StudyChat/internal/ocr"
	"StudyChat/internal/ollama"
	"StudyChat/internal/screenshot"
	"StudyChat/internal/session"
	"StudyChat/internal/slides"
	"StudyChat/internal/telemetry"

	"github.com/joho/godotenv"
)

func main() {
	var configPath string
	var addr string
	var dbPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to YAML config file")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides config)")
	flag.StringVar(&dbPath, "db", "studychat.db", "Path to the SQLite audit database")
	flag.Parse()

	// Secrets and test-mode toggles come from the environment; a missing
	// .env file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger, err := telemetry.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, _, telemetryCleanup, err := telemetry.InitTelemetry(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize telemetry: %v\n", err)
		os.Exit(1)
	}
	defer telemetryCleanup()

	db, err := telemetry.InitDB(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gateway := ollama.New(
		cfg.Ollama.BaseURL,
		cfg.Ollama.GenerateModel,
		cfg.Ollama.EmbedModel,
		cfg.Ollama.EmbedDimension,
		time.Duration(cfg.Ollama.TimeoutSecs)*time.Second,
		logger,
	)

	registry := session.NewRegistry(logger)
	ocrExtractor := ocr.New("", logger)
	eng := engine.New(registry, gateway, gateway, engine.Options{
		OCR:         ocrExtractor,
		Slides:      slides.New(logger),
		Screenshots: screenshot.New("", logger),
		AuditDB:     db,
		ScratchDir:  cfg.Server.ScratchDir,
		Logger:      logger,
	})

	lectures, err := lecture.NewService(cfg.Lectures.SchedulePath, cfg.Lectures.TestMode, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load lecture schedule: %v\n", err)
		os.Exit(1)
	}
	refreshEvery := time.Minute
	if cfg.Lectures.TestMode {
		refreshEvery = 5 * time.Second
	}
	go lectures.Start(ctx, refreshEvery)

	// Bound registry growth and reclaim temp files orphaned by crashes:
	// neither shrinks on its own.
	idleTimeout := time.Duration(cfg.Sessions.IdleTimeoutHours) * time.Hour
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := registry.EvictIdle(idleTimeout); n > 0 {
					logger.Info("evicted idle sessions", "count", n)
				}
				ocrExtractor.Sweep(24 * time.Hour)
			}
		}
	}()

	smtp := export.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		To:       cfg.SMTP.To,
	}
	server := api.NewServer(eng, lectures, gateway, smtp, db, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shut down HTTP server", "error", err)
		}
	}()

	logger.Info("studychat listening", "addr", cfg.Server.Addr, "ollama", cfg.Ollama.BaseURL)
	fmt.Printf("studychat listening on %s\n", cfg.Server.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
