package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/crawlrun/internal/infrastructure/config"
	"github.com/GriffinCanCode/crawlrun/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment.
	port := flag.String("port", cfg.Server.Port, "Server port")
	host := flag.String("host", cfg.Server.Host, "Listen address")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development logging")
	level := flag.String("log-level", cfg.Logging.Level, "Log level (debug, info, warn, error)")
	rateLimit := flag.Bool("rate-limit", cfg.RateLimit.Enabled, "Enable per-IP rate limiting")
	flag.Parse()

	cfg.Server.Port = *port
	cfg.Server.Host = *host
	cfg.Logging.Development = *dev
	cfg.Logging.Level = *level
	cfg.RateLimit.Enabled = *rateLimit

	logger, err := server.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Shutting down gracefully", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
	case err := <-errChan:
		if err != nil {
			logger.Fatal("Server error", zap.Error(err))
		}
	}
}
