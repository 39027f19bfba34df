// Command orchestratord is the task orchestrator's service entrypoint: it
// wires configuration, storage, the broker connection, and the RPC server
// together and runs until an interrupt or a fatal listen error.
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/chintakjoshi/LLM-task-orchestrator/internal/config"
	"github.com/chintakjoshi/LLM-task-orchestrator/internal/dispatch/natsdispatch"
	"github.com/chintakjoshi/LLM-task-orchestrator/internal/domain/task"
	"github.com/chintakjoshi/LLM-task-orchestrator/internal/logging"
	"github.com/chintakjoshi/LLM-task-orchestrator/internal/repository/postgres"
	"github.com/chintakjoshi/LLM-task-orchestrator/internal/rpc"
	"github.com/chintakjoshi/LLM-task-orchestrator/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "orchestratord: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, meta, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	_ = meta // provenance is not consulted or logged here

	os.Setenv("ORCHESTRATOR_LOG_LEVEL", cfg.LogLevel)
	log := logging.NewComponentLogger("orchestratord")
	log.Info("starting orchestratord", "listen_addr", cfg.ListenAddr, "log_level", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool, logging.NewComponentLogger("postgres"))
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	natsConn, err := nats.Connect(cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	defer natsConn.Close()

	dispatcher := natsdispatch.New(natsConn, logging.NewComponentLogger("natsdispatch"))
	templates := task.NewTemplateRegistry()
	svc := service.New(store, dispatcher, templates,
		cfg.BatchSizeLimit, cfg.LineageDepthLimit, cfg.DefaultMaxRetries,
		nil, nil, logging.NewComponentLogger("service"))

	server := rpc.NewServer(svc, logging.NewComponentLogger("rpc"))
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  120 * time.Second,
	}

	return serveUntilShutdown(ctx, httpServer, log)
}

// serveUntilShutdown runs httpServer until ctx is cancelled (on SIGINT/
// SIGTERM) or ListenAndServe fails for a reason other than a graceful
// shutdown, then drains in-flight requests for up to 10 seconds.
func serveUntilShutdown(ctx context.Context, httpServer *http.Server, log logging.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)

	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.Warn("listener returned an error during shutdown", "error", serveErr)
		}
		if shutdownErr != nil {
			return fmt.Errorf("shutdown: %w", shutdownErr)
		}
		return nil
	}
}
