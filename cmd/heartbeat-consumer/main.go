// heartbeat-consumer drains the queue into part files. Run exactly one
// instance per queue: the in-flight recovery at startup assumes a single
// consumer.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"heartbeat/pkg/config"
	"heartbeat/pkg/consumer"
	"heartbeat/pkg/logger"
	"heartbeat/pkg/queue"
	"heartbeat/pkg/shutdown"
)

func main() {
	cfgPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)

	q, err := queue.Open(cfg.QueueURL)
	if err != nil {
		logger.Error("queue_open_failed", "url", cfg.QueueURL, "error", err)
		os.Exit(1)
	}
	defer q.Close()

	ctx, cancel := shutdown.Context()
	defer cancel()

	c := consumer.New(q, consumer.Options{
		QueueKey:      cfg.QueueKey,
		ProcessingKey: cfg.ProcessingKey,
		DataDir:       cfg.DataDir,
		MaxBatch:      cfg.MaxBatch,
		MaxBatchTime:  cfg.MaxBatchTime,
		PollTimeout:   cfg.PollTimeout,
	})
	if err := c.Run(ctx); err != nil {
		logger.Error("consumer_failed", "error", err)
		os.Exit(1)
	}
}
