// Helmsman Reconciler — периодическая сверка executions и maintenance mode.
//
// Reconciler:
//   - Помечает зависшие executions как timed_out
//   - Переводит maintenance mode из activating в activated,
//     если отчёты о завершении были потеряны
//
// Работает только с PostgreSQL. Из нескольких экземпляров сверку
// выполняет один: лидер держит pg_try_advisory_lock на выделенном соединении.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Helmsman/internal/maintenance"
	"github.com/shaiso/Helmsman/internal/repo"
	"github.com/shaiso/Helmsman/internal/scheduler"
	"github.com/shaiso/Helmsman/internal/telemetry"
)

// leaderLockKey — ключ advisory lock лидера сверки.
const leaderLockKey int64 = 0x48_454c_4d52 // "HELMR"

// leaderRetry — пауза между попытками стать лидером.
const leaderRetry = 5 * time.Second

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting helmsman-reconciler")

	if err := run(logger); err != nil {
		logger.Error("helmsman-reconciler failed", "error", err)
		os.Exit(1)
	}
	logger.Info("helmsman-reconciler stopped")
}

func run(logger *slog.Logger) error {
	var timeout time.Duration
	if v := os.Getenv("EXECUTION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("EXECUTION_TIMEOUT: %w", err)
		}
		timeout = d
	}

	spec := os.Getenv("RECONCILE_SCHEDULE")
	if spec != "" {
		if err := scheduler.ValidateSchedule(spec); err != nil {
			return fmt.Errorf("RECONCILE_SCHEDULE: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx, os.Getenv("DB_URL"))
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("database connected")

	if err := repo.Migrate(ctx, pool); err != nil {
		return err
	}

	executions := repo.NewExecutionRepo(pool)
	rec := scheduler.New(scheduler.Config{
		Gate:             maintenance.New(maintenance.Config{Store: executions, Logger: logger}),
		Executions:       executions,
		ExecutionTimeout: timeout,
		Logger:           logger,
	})

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8081"
	if v := os.Getenv("RECONCILER_PORT"); v != "" {
		port = ":" + v
	}
	server := &http.Server{Addr: port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return leadAndRun(ctx, pool, rec, spec, logger)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// leadAndRun ждёт лидерства и выполняет сверку до отмены ctx.
// Advisory lock сессионный, поэтому соединение удерживается всё время лидерства.
func leadAndRun(ctx context.Context, pool *pgxpool.Pool, rec *scheduler.Reconciler, spec string, logger *slog.Logger) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire leader connection: %w", err)
	}
	defer conn.Release()

	for {
		var leader bool
		if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", leaderLockKey).Scan(&leader); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("leader lock failed", "error", err)
		}
		if leader {
			break
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(leaderRetry):
		}
	}

	logger.Info("became leader")
	defer func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", leaderLockKey)
	}()

	return rec.Run(ctx, spec)
}
