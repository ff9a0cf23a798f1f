// Package health performs the deep readiness check: reachability of the
// queue store and writability of the data directory.
package health

import (
	"context"
	"time"

	"heartbeat/pkg/queue"
	"heartbeat/pkg/storage"
)

// Report is the health response body.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Healthy reports whether every check passed.
func (r Report) Healthy() bool {
	return r.Status == "healthy"
}

// Check probes the queue store and the data directory. Each check is
// reported independently; the overall status is healthy only when all pass.
func Check(ctx context.Context, q queue.Queue, dataDir string) Report {
	r := Report{
		Status: "healthy",
		Checks: map[string]string{"service": "healthy"},
	}

	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := q.Ping(pctx); err != nil {
		r.Checks["queue"] = "unhealthy: " + err.Error()
		r.Status = "unhealthy"
	} else {
		r.Checks["queue"] = "healthy"
	}

	if err := storage.Probe(dataDir); err != nil {
		r.Checks["storage"] = "unhealthy: " + err.Error()
		r.Status = "unhealthy"
	} else {
		r.Checks["storage"] = "healthy"
	}
	return r
}
