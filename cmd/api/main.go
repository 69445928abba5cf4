// Package main runs the kaaj API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kaaj/internal/app"
	"kaaj/internal/config"
	"kaaj/internal/database"
	"kaaj/internal/logging"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "kaaj-api",
	Short:        "kaaj task management API server",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the mail worker",
	RunE:  runServe,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Migrate the schema and build the todo owner index",
	Long: `Migrate the schema and build the (user_id, created_at desc) index that
todo listing depends on. Until it exists the API answers index_building.`,
	RunE: runIndex,
}

var shutdownTimeout time.Duration

func init() {
	rootCmd.AddCommand(serveCmd, indexCmd)
	rootCmd.PersistentFlags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "How long to wait for requests to drain")
}

func setup() (*config.Config, *log.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(os.Stderr, logging.Options{
		Level:           cfg.Log.Level,
		Format:          cfg.Log.Format,
		Prefix:          "kaaj-api",
		ReportTimestamp: true,
	})
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	logger.Info("config loaded, connecting to database and redis", "driver", cfg.Database.Driver, "env", cfg.Server.Environment)

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("app init", "err", err)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	application.Start(ctx)

	server := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      application.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server error", "err", err)
			_ = application.Close(context.Background())
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", "err", err)
	}
	return application.Close(shutdownCtx)
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	pool, err := database.NewDatabasePool(database.PoolConfigFrom(cfg, logger))
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Migrate(); err != nil {
		return err
	}
	start := time.Now()
	if err := pool.EnsureIndexes(cmd.Context()); err != nil {
		return err
	}
	logger.Info("todo index ready", "took", time.Since(start).Round(time.Millisecond))
	return nil
}
