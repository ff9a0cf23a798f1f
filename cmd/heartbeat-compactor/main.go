// heartbeat-compactor merges part files into compacted.parquet on a fixed
// interval or cron schedule. --once runs a single pass and exits, which is
// handy under an external scheduler.
package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"heartbeat/pkg/compactor"
	"heartbeat/pkg/config"
	"heartbeat/pkg/logger"
	"heartbeat/pkg/shutdown"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "path to YAML config file")
		once    = flag.Bool("once", false, "run one compaction pass and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)

	c := compactor.New(compactor.Options{
		DataDir:    cfg.DataDir,
		ArchiveDir: cfg.ArchiveDir,
		MinParts:   cfg.MinPartsToCompact,
		Interval:   cfg.CompactInterval,
		Cron:       cfg.CompactCron,
	})

	if *once {
		if err := c.RunOnce(context.Background()); err != nil {
			logger.Error("compaction_failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := shutdown.Context()
	defer cancel()
	if err := c.Run(ctx); err != nil {
		logger.Error("compactor_failed", "error", err)
		os.Exit(1)
	}
}
