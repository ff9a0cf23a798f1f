// heartbeatd serves the ingest and query API. With --all it also runs the
// consumer and compactor in-process, which together with an embedded queue
// (QUEUE_URL=pebble://...) gives a complete single-node pipeline.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"heartbeat/internal/app"
	"heartbeat/pkg/banner"
	"heartbeat/pkg/config"
	"heartbeat/pkg/logger"
	"heartbeat/pkg/shutdown"
)

// set via ldflags at release time
var version = "dev"

func main() {
	var (
		cfgPath = flag.String("config", "", "path to YAML config file")
		addr    = flag.String("addr", "", "listen address (overrides config)")
		all     = flag.Bool("all", false, "run consumer and compactor in-process")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	logger.Init(cfg.LogLevel)
	banner.Print(cfg, version, *all)

	ctx, cancel := shutdown.Context()
	defer cancel()

	if err := app.Run(ctx, cfg, app.Options{All: *all}); err != nil {
		logger.Error("server_failed", "error", err)
		os.Exit(1)
	}
}
