package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/newsbell/internal/domain"
	"github.com/aristath/newsbell/internal/notify"
	"github.com/aristath/newsbell/internal/scheduler"
)

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status         string  `json:"status"`
	Service        string  `json:"service"`
	UptimeSeconds  int64   `json:"uptime_seconds"`
	LedgerSize     int     `json:"ledger_size"`
	LedgerDegraded bool    `json:"ledger_degraded"`
	PendingAlerts  int     `json:"pending_alerts"`
	Database       string  `json:"database"`
	CPUPercent     float64 `json:"cpu_percent"`
	RAMPercent     float64 `json:"ram_percent"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "healthy",
		Service:       "newsbell",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Database:      "ok",
	}

	if s.cfg.Ledger != nil {
		resp.LedgerSize = s.cfg.Ledger.Len()
		resp.LedgerDegraded = s.cfg.Ledger.Degraded()
		if resp.LedgerDegraded {
			resp.Status = "degraded"
		}
	}
	if s.cfg.Alerts != nil {
		resp.PendingAlerts = len(s.cfg.Alerts.Pending())
	}
	if s.cfg.Database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.cfg.Database.HealthCheck(ctx); err != nil {
			resp.Database = err.Error()
			resp.Status = "degraded"
		}
	} else {
		resp.Database = "disabled"
	}
	resp.CPUPercent, resp.RAMPercent = s.systemStats()

	s.writeJSON(w, http.StatusOK, resp)
}

// systemStats returns CPU and RAM usage percentages. CPU is sampled over
// 100ms to keep the endpoint fast.
func (s *Server) systemStats() (float64, float64) {
	cpuAvg := 0.0
	if percents, err := cpu.Percent(100*time.Millisecond, false); err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	} else if len(percents) > 0 {
		cpuAvg = percents[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuAvg, 0
	}
	return cpuAvg, memStat.UsedPercent
}

// JobsResponse is returned by GET /api/jobs.
type JobsResponse struct {
	Jobs  []scheduler.JobStatus `json:"jobs"`
	Count int                   `json:"count"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Jobs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "scheduler not available")
		return
	}
	jobs := s.cfg.Jobs.Jobs()
	s.writeJSON(w, http.StatusOK, JobsResponse{Jobs: jobs, Count: len(jobs)})
}

// handleRunJob starts a job in the background and returns immediately;
// digests can take longer than a request may.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Jobs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "scheduler not available")
		return
	}

	name := chi.URLParam(r, "name")
	if !s.cfg.Jobs.Has(name) {
		s.writeError(w, http.StatusNotFound, "unknown job: "+name)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := s.cfg.Jobs.RunNow(ctx, name); err != nil {
			s.log.Error().Err(err).Str("job", name).Msg("Manually triggered job failed")
		}
	}()

	s.log.Info().Str("job", name).Msg("Job triggered manually")
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "job": name})
}

// PendingAlertsResponse is returned by GET /api/alerts/pending.
type PendingAlertsResponse struct {
	Alerts []domain.TimerHandle `json:"alerts"`
	Count  int                  `json:"count"`
}

func (s *Server) handlePendingAlerts(w http.ResponseWriter, r *http.Request) {
	var pending []domain.TimerHandle
	if s.cfg.Alerts != nil {
		pending = s.cfg.Alerts.Pending()
	}
	if pending == nil {
		pending = []domain.TimerHandle{}
	}
	s.writeJSON(w, http.StatusOK, PendingAlertsResponse{Alerts: pending, Count: len(pending)})
}

// QuoteResponse is returned by GET /api/quote.
type QuoteResponse struct {
	Available bool                  `json:"available"`
	Quote     *domain.QuoteSnapshot `json:"quote,omitempty"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Quote == nil {
		s.writeError(w, http.StatusServiceUnavailable, "quote resolver not available")
		return
	}
	snap, ok := s.cfg.Quote.Quote(r.Context())
	s.writeJSON(w, http.StatusOK, QuoteResponse{Available: ok, Quote: snap})
}

// DeliveriesResponse is returned by GET /api/deliveries.
type DeliveriesResponse struct {
	Deliveries []notify.Delivery `json:"deliveries"`
	Count      int               `json:"count"`
}

func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Deliveries == nil {
		s.writeError(w, http.StatusServiceUnavailable, "delivery log not available")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, 1000)
	}

	deliveries, err := s.cfg.Deliveries.Recent(r.Context(), limit)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.log.Error().Err(err).Msg("Failed to read delivery log")
		s.writeError(w, http.StatusInternalServerError, "failed to read delivery log")
		return
	}
	if deliveries == nil {
		deliveries = []notify.Delivery{}
	}
	s.writeJSON(w, http.StatusOK, DeliveriesResponse{Deliveries: deliveries, Count: len(deliveries)})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
