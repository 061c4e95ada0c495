package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibin/derma-chat/config"
	httpHandler "github.com/vibin/derma-chat/internal/adapters/primary/http"
	"github.com/vibin/derma-chat/internal/adapters/primary/whatsapp"
	"github.com/vibin/derma-chat/internal/adapters/secondary/llm"
	"github.com/vibin/derma-chat/internal/adapters/secondary/repository"
	"github.com/vibin/derma-chat/internal/core/ports"
	"github.com/vibin/derma-chat/internal/core/services"
	"github.com/vibin/derma-chat/internal/logger"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file")
	levelName := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	debugMode := flag.Bool("debug", false, "Enable debug logging, overrides -log-level")
	flag.Parse()

	// Setup logger
	logLevel, err := resolveLevel(*levelName, *debugMode)
	if err != nil {
		logger.Default().Error("Invalid log level", "error", err)
		os.Exit(2)
	}
	log := logger.New(logLevel, os.Stdout)
	log.Info("Starting skin analysis assistant")

	// Load configuration
	var cfg *config.Config

	if *configPath != "" {
		log.Info("Loading configuration", "path", *configPath)
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Error("Failed to load configuration", "error", err)
			os.Exit(1)
		}
		// admin changes are written back to the file we started from
		os.Setenv("CONFIG_PATH", *configPath)
	} else {
		log.Info("Using default configuration")
		cfg = config.DefaultConfig()
	}

	log.Info("Initializing adapters", "provider", cfg.LLM.Provider)

	model, err := llm.NewModelCapability(&cfg.LLM, log)
	if err != nil {
		log.Error("Failed to initialize model capability", "error", err)
		os.Exit(1)
	}

	registry := repository.NewInMemoryRegistry(log)
	analysisService := services.NewAnalysisService(model, registry, cfg, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// WhatsApp runs alongside the HTTP API on the same sessions
	var whatsappAdapter ports.WhatsAppPort
	if cfg.WhatsApp.Enabled {
		log.Info("Initializing WhatsApp adapter", "store_dir", cfg.WhatsApp.StoreDir)
		adapter, err := whatsapp.NewWhatsAppAdapter(analysisService, cfg, log)
		if err != nil {
			log.Error("Failed to initialize WhatsApp adapter", "error", err)
			os.Exit(1)
		}
		whatsappAdapter = adapter

		go func() {
			if err := adapter.Start(ctx); err != nil {
				log.Error("WhatsApp adapter stopped", "error", err)
			}
		}()
	}

	handler := httpHandler.NewHandler(analysisService, cfg, whatsappAdapter, log)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	llmTimeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2*llmTimeout + 30*time.Second, // a turn can make two model calls
		IdleTimeout:  60 * time.Second,
	}

	// Start the server in a goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Create a channel to listen for OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Block until a signal is received
	<-stop
	log.Info("Shutting down server...")
	cancel()

	// Create a deadline context for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server exited")
}

// resolveLevel applies -debug on top of -log-level
func resolveLevel(name string, debug bool) (slog.Level, error) {
	level, err := logger.ParseLevel(name)
	if err != nil {
		return level, err
	}
	if debug {
		return slog.LevelDebug, nil
	}
	return level, nil
}
