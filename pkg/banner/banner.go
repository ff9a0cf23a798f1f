// Package banner prints the startup summary for the API server.
package banner

import (
	"fmt"
	"strings"

	"heartbeat/pkg/config"
)

const banner = `
██╗  ██╗███████╗ █████╗ ██████╗ ████████╗██████╗ ███████╗ █████╗ ████████╗
██║  ██║██╔════╝██╔══██╗██╔══██╗╚══██╔══╝██╔══██╗██╔════╝██╔══██╗╚══██╔══╝
███████║█████╗  ███████║██████╔╝   ██║   ██████╔╝█████╗  ███████║   ██║
██╔══██║██╔══╝  ██╔══██║██╔══██╗   ██║   ██╔══██╗██╔══╝  ██╔══██║   ██║
██║  ██║███████╗██║  ██║██║  ██║   ██║   ██████╔╝███████╗██║  ██║   ██║
╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚═════╝ ╚══════╝╚═╝  ╚═╝   ╚═╝
`

// Print writes the startup banner with the effective configuration.
func Print(cfg *config.Config, version string, all bool) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:     %s\n", cfg.Addr)
	fmt.Printf("Queue:      %s (%s -> %s)\n", redactURL(cfg.QueueURL), cfg.QueueKey, cfg.ProcessingKey)
	fmt.Printf("Data dir:   %s\n", cfg.DataDir)
	fmt.Printf("Archive:    %s\n", cfg.ArchiveDir)
	if version != "" {
		fmt.Printf("Version:    %s\n", version)
	}
	if all {
		fmt.Printf("Mode:       all-in-one (consumer + compactor in-process)\n")
	} else {
		fmt.Printf("Mode:       api only\n")
	}
	if cfg.RateRPS > 0 {
		fmt.Printf("Rate limit: %.1f req/s (burst %d)\n", cfg.RateRPS, cfg.RateBurst)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /metrics/heart-rate - ingest a sample (JSON: device_id, user_id, timestamp, heart_rate)")
	fmt.Println("GET  /metrics/heart-rate?user_id=<id>&start=<iso>&end=<iso>[&device_id=<id>] - query aggregates")
	fmt.Println("GET  /health  - readiness (queue + storage)")
	fmt.Println("GET  /metrics - prometheus scrape")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://localhost%s/metrics/heart-rate' -d '{\"device_id\":\"device_a\",\"user_id\":\"u1\",\"timestamp\":\"2025-01-15T10:00:00Z\",\"heart_rate\":72}'\n", cfg.Addr)
	fmt.Printf("curl 'http://localhost%s/metrics/heart-rate?user_id=u1&start=2025-01-15T00:00:00Z&end=2025-01-16T00:00:00Z'\n", cfg.Addr)
	fmt.Println()
}

// redactURL strips credentials from a queue URL before printing.
func redactURL(url string) string {
	if at := strings.LastIndex(url, "@"); at >= 0 {
		if scheme := strings.Index(url, "://"); scheme >= 0 && scheme+3 < at {
			return url[:scheme+3] + "***@" + url[at+1:]
		}
	}
	return url
}
