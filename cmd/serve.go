package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/usta-go-api/config"
	"github.com/kendall-kelly/usta-go-api/logger"
	"github.com/kendall-kelly/usta-go-api/metrics"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/realtime"
	"github.com/kendall-kelly/usta-go-api/routes"
	"github.com/kendall-kelly/usta-go-api/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func buildServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Log.Info("Starting Usta Go API server...", zap.String("env", cfg.GoEnv))

	// Auto-migrate database models
	db := config.GetDB()
	if err := models.Migrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Log.Info("Database migration completed successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := services.NewImageService(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize image storage: %w", err)
	}

	var collector *metrics.Collector
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector()
		metrics.Set(collector)
	}

	hub := realtime.NewHub()
	svc := services.New(db, cfg, hub, collector)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := routes.NewRouter(routes.Dependencies{
		Config:   cfg,
		Services: svc,
		Hub:      hub,
		Metrics:  collector,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Server is running", zap.String("addr", "http://localhost"+srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if err := <-errCh; err != nil {
		return err
	}
	logger.Log.Info("Server stopped")
	return nil
}
