package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-tracker/internal/config"
	"github.com/BuzzLyutic/task-tracker/internal/handler"
	"github.com/BuzzLyutic/task-tracker/internal/metrics"
	"github.com/BuzzLyutic/task-tracker/internal/repo"
	"github.com/BuzzLyutic/task-tracker/internal/service"
	"github.com/BuzzLyutic/task-tracker/internal/worker"
	"github.com/BuzzLyutic/task-tracker/migrations"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "task-tracker",
		Short:        "Task tracker API with idempotent create, optimistic locking and audit trail",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (env vars take precedence)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), configPath)
		},
	})
	return root
}

// setup загружает конфиг, поднимает логгер и пул соединений
func setup(ctx context.Context, configPath string) (config.Config, *zap.Logger, *pgxpool.Pool, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, nil, err
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	logger, err := zcfg.Build()
	if err != nil {
		return cfg, nil, nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Invalid DATABASE_URL", zap.Error(err))
		return cfg, nil, nil, err
	}
	poolCfg.MaxConns = cfg.DBMaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg) // Создаем новое соединение к БД
	if err != nil {
		logger.Error("Failed to connect to Database", zap.Error(err))
		return cfg, nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil { // Пытаемся пингануть БД
		pool.Close()
		logger.Error("Failed to ping the Database", zap.Error(err))
		return cfg, nil, nil, err
	}
	logger.Info("Successfully connected to the Database!")

	return cfg, logger, pool, nil
}

func migrate(ctx context.Context, configPath string) error {
	_, logger, pool, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer pool.Close()

	n, err := migrations.Apply(ctx, pool, logger)
	if err != nil {
		logger.Error("Migration failed", zap.Error(err))
		return err
	}
	logger.Info("Migrations applied", zap.Int("count", n))
	return nil
}

func serve(ctx context.Context, configPath string) error {
	cfg, logger, pool, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer pool.Close() // Запланированное закрытие соединения

	m := metrics.New(prometheus.DefaultRegisterer)

	taskRepo := repo.NewTaskRepo(pool)
	taskService := service.NewTaskService(taskRepo,
		service.WithIdempotencyTTL(cfg.IdempotencyTTL),
		service.WithMetrics(m),
	)
	taskHandler := handler.NewTaskHandler(taskService, logger)

	janitor, err := worker.NewJanitor(taskRepo, logger, cfg.PurgeSchedule, cfg.IdempotencyTTL)
	if err != nil {
		logger.Error("Failed to create janitor", zap.Error(err))
		return err
	}
	janitor.Start(ctx)
	defer janitor.Stop()

	srv := http.Server{ // Создаем сервер
		Addr:         ":" + cfg.Port,
		Handler:      handler.NewRouter(taskHandler, m, prometheus.DefaultGatherer),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() { // Запуск сервера и обработка ошибок
		logger.Info("Server started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	select {
	case <-quit:
	case err := <-serverErr:
		logger.Error("Server failed", zap.Error(err))
		return err
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
		return err
	}
	logger.Info("Server stopped successfully!")
	return nil
}
