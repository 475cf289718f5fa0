package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bilal/orion-agent/internal/alert"
	"github.com/bilal/orion-agent/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes /health and the agent's own Prometheus metrics.
type Server struct {
	running     int32
	lastCycleOk int32
	lastCycle   atomic.Int64 // unix nanos
	openAlerts  func() int

	registry      *prometheus.Registry
	cycles        prometheus.Counter
	cycleFailures prometheus.Counter
	cycleDuration prometheus.Histogram
	alertsFired   *prometheus.CounterVec
	remediations  *prometheus.CounterVec
	snapshot      *prometheus.GaugeVec

	srv *http.Server
}

func New(listen string) *Server {
	s := &Server{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orion_agent",
			Name:      "cycles_total",
			Help:      "Monitoring cycles run.",
		}),
		cycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "orion_agent",
			Name:      "cycle_failures_total",
			Help:      "Monitoring cycles that ended in a recovered fault.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "orion_agent",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one monitoring cycle.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		alertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orion_agent",
			Name:      "alerts_fired_total",
			Help:      "Alerts opened, by severity.",
		}, []string{"severity"}),
		remediations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orion_agent",
			Name:      "remediations_total",
			Help:      "Remediation attempts, by outcome.",
		}, []string{"outcome"}),
		snapshot: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orion_agent",
			Name:      "snapshot_value",
			Help:      "Values of the most recent metrics snapshot.",
		}, []string{"field"}),
	}
	s.registry.MustRegister(s.cycles, s.cycleFailures, s.cycleDuration, s.alertsFired, s.remediations, s.snapshot)
	s.srv = &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) SetRunning(ok bool) {
	if ok {
		atomic.StoreInt32(&s.running, 1)
	} else {
		atomic.StoreInt32(&s.running, 0)
	}
}

// SetAlertSource registers the function used to report the open alert count.
func (s *Server) SetAlertSource(open func() int) {
	s.openAlerts = open
}

func (s *Server) RecordCycle(d time.Duration, failed bool) {
	s.cycles.Inc()
	s.cycleDuration.Observe(d.Seconds())
	s.lastCycle.Store(time.Now().UnixNano())
	if failed {
		s.cycleFailures.Inc()
		atomic.StoreInt32(&s.lastCycleOk, 0)
	} else {
		atomic.StoreInt32(&s.lastCycleOk, 1)
	}
}

func (s *Server) RecordSnapshot(snap metrics.Snapshot) {
	s.snapshot.WithLabelValues("wan_bandwidth_mbps").Set(snap.WANBandwidthMbps)
	s.snapshot.WithLabelValues("lan_bandwidth_mbps").Set(snap.LANBandwidthMbps)
	s.snapshot.WithLabelValues("bgp_sessions_up").Set(float64(snap.BGPSessionsUp))
	s.snapshot.WithLabelValues("bgp_sessions_total").Set(float64(snap.BGPSessionsTotal))
	s.snapshot.WithLabelValues("latency_ms").Set(snap.LatencyMs)
	s.snapshot.WithLabelValues("active_connections").Set(float64(snap.ActiveConnections))
	s.snapshot.WithLabelValues("cpu_usage_percent").Set(snap.CPUUsagePercent)
	s.snapshot.WithLabelValues("memory_usage_percent").Set(snap.MemoryUsagePercent)
}

func (s *Server) RecordRemediation(outcome string) {
	s.remediations.WithLabelValues(outcome).Inc()
}

// Notify counts opened alerts; it lets the server sit in the notifier chain.
func (s *Server) Notify(a alert.Alert) {
	s.alertsFired.WithLabelValues(a.Severity.String()).Inc()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) Serve() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"running":       atomic.LoadInt32(&s.running) == 1,
		"last_cycle_ok": atomic.LoadInt32(&s.lastCycleOk) == 1,
	}
	if ns := s.lastCycle.Load(); ns > 0 {
		resp["last_cycle_at"] = time.Unix(0, ns).UTC().Format(time.RFC3339)
	}
	if s.openAlerts != nil {
		resp["open_alerts"] = s.openAlerts()
	}

	w.Header().Set("Content-Type", "application/json")
	if atomic.LoadInt32(&s.running) != 1 {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}
