package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/concord/internal/api"
	"github.com/Harshitk-cp/concord/internal/buildconfig"
	"github.com/Harshitk-cp/concord/internal/config"
	"github.com/Harshitk-cp/concord/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const programName = "concord"

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(config.LogLevel()); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger.With(zap.String("component", programName))
}

func connect(ctx context.Context, logger *zap.Logger) (*pgxpool.Pool, error) {
	dbURL := config.DatabaseURL()
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("connected to database")
	return pool, nil
}

func main() {
	_ = config.Load()
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	rootCmd := &cobra.Command{
		Use:     programName,
		Short:   "Decentralized trust and corroboration consensus engine",
		Version: buildconfig.Version(),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), logger)
		},
		SilenceUsage: true,
	}
	rootCmd.AddCommand(
		serveCommand(logger),
		migrateCommand(logger),
		sweepCommand(logger),
	)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func serveCommand(logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), logger)
		},
	}
}

func migrateCommand(logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := connect(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := store.Migrate(cmd.Context(), pool)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", zap.Strings("files", applied))
			return nil
		},
	}
}

func sweepCommand(logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiry and maturity sweep and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := connect(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			res := api.NewServices(pool, logger).Sweeper.RunOnce(cmd.Context())
			logger.Info("sweep complete",
				zap.Int64("no_reveal", res.NoReveal),
				zap.Int64("edges_deleted", res.EdgesDeleted),
				zap.Int("slashes_executed", res.SlashesExecuted))
			return nil
		},
	}
}

func serve(ctx context.Context, logger *zap.Logger) error {
	pool, err := connect(ctx, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	app := api.NewApp(pool, logger)

	// Start background services
	app.Sweeper.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", addr), zap.String("version", buildconfig.Version()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-quit:
		logger.Info("shutting down server")
	case err := <-errCh:
		app.Sweeper.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	app.Sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
