// Helmsman Server — REST API и приём отчётов workers.
//
// Server:
//   - Обслуживает /api/v2.1 и /api/v3 (deployment updates, maintenance, executions)
//   - Отправляет задачи workflows в RabbitMQ
//   - Потребляет отчёты о завершении executions
//
// При STORE_DRIVER=memory сверка (reconciler) выполняется в этом же процессе.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Helmsman/internal/api"
	"github.com/shaiso/Helmsman/internal/deployupdate"
	"github.com/shaiso/Helmsman/internal/dispatch"
	"github.com/shaiso/Helmsman/internal/domain"
	"github.com/shaiso/Helmsman/internal/maintenance"
	"github.com/shaiso/Helmsman/internal/memstore"
	"github.com/shaiso/Helmsman/internal/mq"
	"github.com/shaiso/Helmsman/internal/repo"
	"github.com/shaiso/Helmsman/internal/scheduler"
	"github.com/shaiso/Helmsman/internal/telemetry"
)

// stores — хранилища, выбранные STORE_DRIVER.
type stores struct {
	updates     domain.UpdateRepository
	deployments domain.DeploymentRepository
	executions  interface {
		domain.ExecutionRepository
		domain.GateStore
	}
	close func()
}

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting helmsman-server")

	if err := run(logger); err != nil {
		logger.Error("helmsman-server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("helmsman-server stopped")
}

func run(logger *slog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	// RabbitMQ
	mqConn, err := mq.NewConnection(cfg.rabbitURL, logger)
	if err != nil {
		return err
	}
	defer mqConn.Close()

	if err := mq.SetupTopology(ctx, mqConn); err != nil {
		return err
	}
	logger.Debug("rabbitmq topology ready", "topology", mq.TopologyInfo())

	// Control plane
	gate := maintenance.New(maintenance.Config{Store: st.executions, Logger: logger})

	dispatcher := dispatch.New(dispatch.Config{
		Channel:     mq.NewPublisher(mqConn, logger),
		Credentials: credentials(cfg),
		Gate:        gate,
		Logger:      logger,
	})

	updates := deployupdate.New(deployupdate.Config{
		Updates:          st.updates,
		Deployments:      st.deployments,
		Executions:       st.executions,
		Dispatcher:       dispatcher,
		Tracker:          gate,
		ExecutionTimeout: cfg.executionTimeout,
		Logger:           logger,
	})

	handler := api.NewHandler(api.Config{
		Updates:     updates,
		Maintenance: gate,
		Dispatcher:  dispatcher,
		Deployments: st.deployments,
		Executions:  st.executions,
		Broker:      mqConn,
		Token:       cfg.restToken,
		Logger:      logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              ":" + cfg.apiPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	consumer := mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
		Queue:    mq.QueueExecutionsCompleted,
		Handler:  mq.ReportHandler(dispatch.NewIntake(gate, logger)),
		Prefetch: 10,
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if cfg.storeDriver == driverMemory {
		rec := scheduler.New(scheduler.Config{
			Gate:             gate,
			Executions:       st.executions,
			ExecutionTimeout: cfg.executionTimeout,
			Logger:           logger,
		})
		g.Go(func() error { return rec.Run(ctx, cfg.reconcileSpec) })
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStores(ctx context.Context, cfg config, logger *slog.Logger) (*stores, error) {
	if cfg.storeDriver == driverMemory {
		logger.Warn("using in-memory store, state is lost on restart")
		mem := memstore.New()
		return &stores{
			updates:     mem.Updates,
			deployments: mem.Deployments,
			executions:  mem.Executions,
			close:       func() {},
		}, nil
	}

	pool, err := repo.NewPool(ctx, cfg.dbURL)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database")

	if err := repo.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &stores{
		updates:     repo.NewUpdateRepo(pool),
		deployments: repo.NewDeploymentRepo(pool),
		executions:  repo.NewExecutionRepo(pool),
		close:       pool.Close,
	}, nil
}

func credentials(cfg config) dispatch.CredentialProvider {
	if cfg.credentialSource == credentialsKeyring {
		return dispatch.KeyringCredentials{Service: cfg.keyringService, User: cfg.keyringUser}
	}
	return dispatch.StaticCredentials{Value: cfg.restToken}
}
