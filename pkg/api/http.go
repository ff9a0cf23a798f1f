// Package api exposes the HTTP surface: the ingest and query endpoints,
// health probes and the prometheus scrape handler.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"heartbeat/pkg/config"
	"heartbeat/pkg/health"
	"heartbeat/pkg/logger"
	"heartbeat/pkg/models"
	"heartbeat/pkg/producer"
	"heartbeat/pkg/queue"
	"heartbeat/pkg/reader"
	"heartbeat/pkg/telemetry"
	"heartbeat/pkg/timeutil"
)

// Server holds the handler dependencies.
type Server struct {
	cfg  *config.Config
	q    queue.Queue
	prod *producer.Producer
	rd   *reader.Reader
}

// NewServer wires the ingest and query handlers over the given queue.
func NewServer(cfg *config.Config, q queue.Queue) *Server {
	return &Server{
		cfg:  cfg,
		q:    q,
		prod: producer.New(q, cfg.QueueKey),
		rd:   reader.New(cfg.DataDir),
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/metrics/heart-rate", s.handleIngest).Methods(http.MethodPost)
	r.HandleFunc("/metrics/heart-rate", s.handleQuery).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleLiveness).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	var h http.Handler = r
	if s.cfg.RateRPS > 0 {
		h = rateLimit(s.cfg.RateRPS, s.cfg.RateBurst, h)
	}
	return telemetry.Middleware(h)
}

// rateLimit applies a process-wide token bucket to the whole surface.
func rateLimit(rps float64, burst int, next http.Handler) http.Handler {
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	lim := rate.NewLimiter(rate.Limit(rps), burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !lim.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var sample models.Sample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	if err := s.prod.Enqueue(r.Context(), sample); err != nil {
		if errors.Is(err, producer.ErrInvalidSample) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		logger.Error("enqueue_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enqueue sample")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	userID := qs.Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	startRaw, endRaw := qs.Get("start"), qs.Get("end")
	if startRaw == "" || endRaw == "" {
		writeError(w, http.StatusBadRequest, "start and end are required")
		return
	}
	start, err := timeutil.ParseISO(startRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start timestamp")
		return
	}
	end, err := timeutil.ParseISO(endRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end timestamp")
		return
	}
	if !start.Before(end) {
		writeError(w, http.StatusBadRequest, "start must be before end")
		return
	}

	points, err := s.rd.Query(userID, start, end, qs.Get("device_id"))
	if err != nil {
		logger.Error("query_failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"data":    points, // never null: the reader returns an empty slice
		"count":   len(points),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rep := health.Check(r.Context(), s.q, s.cfg.DataDir)
	code := http.StatusOK
	if !rep.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response_encode_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
