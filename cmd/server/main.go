package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/diysmart/productinfo/config"
	httpDelivery "github.com/diysmart/productinfo/internal/delivery/http"
	"github.com/diysmart/productinfo/internal/app"
	"github.com/diysmart/productinfo/internal/infrastructure/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("productinfo: %v", err)
	}
}

func run() error {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	appLogger.Info("Starting productinfo service",
		logger.String("version", "1.0.0"),
		logger.String("environment", cfg.Server.Environment),
		logger.String("port", cfg.Server.Port),
		logger.String("llm_provider", cfg.LLM.Provider),
		logger.String("quota_store", cfg.Quota.Store))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg, appLogger)
	if err != nil {
		return err
	}
	defer application.Close()

	handler := httpDelivery.NewHandler(application.Service, appLogger)
	router := httpDelivery.SetupRouter(cfg, handler, appLogger, application.Metrics)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info("Server listening", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	appLogger.Info("Shutting down", logger.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
