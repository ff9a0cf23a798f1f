// Package app assembles the API server process and, in single-node mode,
// the consumer and compactor alongside it.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"heartbeat/pkg/api"
	"heartbeat/pkg/compactor"
	"heartbeat/pkg/config"
	"heartbeat/pkg/consumer"
	"heartbeat/pkg/logger"
	"heartbeat/pkg/queue"
)

// Options control which components run inside this process.
type Options struct {
	// All runs the consumer and compactor in-process next to the API
	// server. Meant for single-node deployments with an embedded queue.
	All bool
}

// Run starts the API server and blocks until ctx is cancelled, then shuts
// down gracefully.
func Run(ctx context.Context, cfg *config.Config, opts Options) error {
	q, err := queue.Open(cfg.QueueURL)
	if err != nil {
		return err
	}
	defer q.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewServer(cfg, q).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	if opts.All {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := consumer.New(q, consumer.Options{
				QueueKey:      cfg.QueueKey,
				ProcessingKey: cfg.ProcessingKey,
				DataDir:       cfg.DataDir,
				MaxBatch:      cfg.MaxBatch,
				MaxBatchTime:  cfg.MaxBatchTime,
				PollTimeout:   cfg.PollTimeout,
			})
			if err := c.Run(ctx); err != nil {
				logger.Error("consumer_exited", "error", err)
			}
		}()
		go func() {
			defer wg.Done()
			cp := compactor.New(compactor.Options{
				DataDir:    cfg.DataDir,
				ArchiveDir: cfg.ArchiveDir,
				MinParts:   cfg.MinPartsToCompact,
				Interval:   cfg.CompactInterval,
				Cron:       cfg.CompactCron,
			})
			if err := cp.Run(ctx); err != nil {
				logger.Error("compactor_exited", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error("server_shutdown_failed", "error", err)
	}
	wg.Wait()
	logger.Info("server_stopped")
	return nil
}
