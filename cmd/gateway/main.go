// The gateway exposes the provenance API over HTTP and relays writes to
// the ledger through a single signing identity.
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

	"github.com/Hidas2004/duanmoihomnay/internal/config"
	"github.com/Hidas2004/duanmoihomnay/internal/idempotency"
	"github.com/Hidas2004/duanmoihomnay/internal/ledger"
	"github.com/Hidas2004/duanmoihomnay/internal/provenance"
	"github.com/Hidas2004/duanmoihomnay/internal/server"
	"github.com/Hidas2004/duanmoihomnay/internal/txqueue"
	"github.com/Hidas2004/duanmoihomnay/pkg/db"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("gateway failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := ledger.Dial(ctx, cfg.NodeURL, ledger.Options{
		ContractAddress: cfg.ContractAddress,
		PrivateKey:      cfg.PrivateKey,
		ChainID:         cfg.ChainID,
		SubmitTimeout:   cfg.SubmitTimeout,
		CallTimeout:     cfg.CallTimeout,
	})
	if err != nil {
		return err
	}
	logger.Info("ledger client ready",
		"node", cfg.NodeURL,
		"contract", cfg.ContractAddress,
		"signer", client.Signer().Hex())

	queue := txqueue.New(client, txqueue.Options{
		MaxAttempts: cfg.MaxSubmitAttempts,
		RetryDelay:  cfg.RetryDelay,
		Logger:      logger,
	})
	// The queue outlives the HTTP drain so in-flight writes can finish.
	queueCtx, stopQueue := context.WithCancel(context.Background())
	defer stopQueue()
	go queue.Run(queueCtx)

	var idemStore idempotency.Store
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		idemStore = idempotency.NewPGStore(pool)
		logger.Info("idempotency store enabled")
	}

	svc := provenance.NewService(queue, client, provenance.GasLimits{
		Create: cfg.CreateGasLimit,
		Scan:   cfg.ScanGasLimit,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.New(svc, idemStore, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("server shutdown", "error", err)
	}
	stopQueue()
	return nil
}
