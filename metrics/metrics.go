// Package metrics exposes the service's Prometheus collectors and the
// standalone metrics listener.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// VaultsCreated counts vault creations.
	VaultsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deadhand_vaults_created_total",
		Help: "Number of vaults created.",
	})

	// HeartbeatsAccepted counts verified heartbeats.
	HeartbeatsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deadhand_heartbeats_accepted_total",
		Help: "Number of heartbeats accepted.",
	})

	// HeartbeatsRejected counts heartbeats rejected by token or state,
	// labeled by reason.
	HeartbeatsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deadhand_heartbeats_rejected_total",
		Help: "Number of heartbeats rejected.",
	}, []string{"reason"})

	// Escalations counts state machine escalations, labeled by target
	// state.
	Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deadhand_escalations_total",
		Help: "Number of escalation transitions applied.",
	}, []string{"to"})

	// ReleaseDeliveries counts completed custodial share deliveries.
	ReleaseDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deadhand_release_deliveries_total",
		Help: "Number of custodial share deliveries confirmed.",
	})

	// ReleaseFailures counts delivery attempts that exhausted retries.
	ReleaseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deadhand_release_failures_total",
		Help: "Number of release deliveries that exhausted retries.",
	})

	// CASConflicts counts optimistic-concurrency conflicts, labeled by
	// the operation that lost the race.
	CASConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deadhand_cas_conflicts_total",
		Help: "Number of compare-and-swap conflicts.",
	}, []string{"op"})

	// SchedulerTickDuration observes the duration of full scheduler
	// sweeps.
	SchedulerTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deadhand_scheduler_tick_duration_seconds",
		Help:    "Duration of scheduler sweeps.",
		Buckets: prometheus.DefBuckets,
	})
)

// Server serves the Prometheus scrape endpoint on its own listener.
type Server struct {
	srv *http.Server
	log *slog.Logger
}

// NewServer creates a metrics listener on addr.
func NewServer(addr string, log *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// RunInBackground starts the listener in a goroutine.
func (s *Server) RunInBackground() {
	go func() {
		s.log.Info("Metrics server starting", slog.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("Metrics server failed", "err", err)
		}
	}()
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
