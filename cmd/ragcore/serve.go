package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/di"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		container, err := di.InitializeContainer(cfg)
		if err != nil {
			return fmt.Errorf("initialize container: %w", err)
		}
		logger := container.Logger

		watcher, err := config.NewWatcher(cfg, logger)
		if err != nil {
			return fmt.Errorf("watch configuration: %w", err)
		}
		defer watcher.Stop()
		watcher.OnChange(func(*config.Config) {
			// The container is wired once at startup.
			logger.Info("Configuration changed on disk, restart to apply")
		})

		if err := container.Janitor.Start(); err != nil {
			return fmt.Errorf("start janitor: %w", err)
		}

		srv := &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      container.Handler,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		}

		go func() {
			logger.Info("Starting server",
				zap.String("address", srv.Addr),
				zap.String("environment", string(cfg.Environment)),
			)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}
		container.Shutdown(shutdownCtx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
