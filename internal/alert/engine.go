package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/bilal/orion-agent/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Thresholds struct {
	CPUPercent    float64
	MemoryPercent float64
	LatencyMs     float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{CPUPercent: 90, MemoryPercent: 95, LatencyMs: 100}
}

// Engine applies threshold rules to snapshots and owns the open alert set.
// Alerts are appended and never removed or resolved.
type Engine struct {
	mu sync.Mutex

	alerts     []*Alert
	thresholds Thresholds
	notifier   Notifier
	log        zerolog.Logger
	now        func() time.Time
}

func NewEngine(t Thresholds, notifier Notifier, log zerolog.Logger) *Engine {
	if notifier == nil {
		notifier = Notifiers{}
	}
	return &Engine{
		thresholds: t,
		notifier:   notifier,
		log:        log.With().Str("component", "alert").Logger(),
		now:        time.Now,
	}
}

// Analyze evaluates every rule against snap and returns the alerts it newly
// opened. Rules are independent; several may fire in one call.
func (e *Engine) Analyze(snap metrics.Snapshot) []Alert {
	var fired []Alert
	raise := func(sev Severity, title, msg string) {
		if a, ok := e.Raise(sev, title, msg); ok {
			fired = append(fired, a)
		}
	}

	if snap.BGPSessionsUp < snap.BGPSessionsTotal {
		raise(Critical, TitleBGPDown,
			fmt.Sprintf("Only %d/%d BGP sessions are established", snap.BGPSessionsUp, snap.BGPSessionsTotal))
	}
	if snap.CPUUsagePercent > e.thresholds.CPUPercent {
		raise(Warning, TitleHighCPU,
			fmt.Sprintf("CPU usage is %.1f%%", snap.CPUUsagePercent))
	}
	if snap.MemoryUsagePercent > e.thresholds.MemoryPercent {
		raise(Critical, TitleCriticalMem,
			fmt.Sprintf("Memory usage is %.1f%%", snap.MemoryUsagePercent))
	}
	if snap.LatencyMs > e.thresholds.LatencyMs {
		raise(Warning, TitleHighLatency,
			fmt.Sprintf("Network latency is %.1fms", snap.LatencyMs))
	}
	return fired
}

// Raise opens an alert unless an unresolved one with the same title exists.
// It reports whether a new alert was created; only new alerts are notified.
func (e *Engine) Raise(sev Severity, title, message string) (Alert, bool) {
	e.mu.Lock()
	for _, existing := range e.alerts {
		if existing.Title == title && !existing.Resolved {
			e.mu.Unlock()
			e.log.Debug().Str("title", title).Msg("alert already exists")
			return Alert{}, false
		}
	}
	a := &Alert{
		ID:        uuid.New().String(),
		Severity:  sev,
		Title:     title,
		Message:   message,
		CreatedAt: e.now(),
	}
	e.alerts = append(e.alerts, a)
	e.mu.Unlock()

	e.logEvent(*a)
	e.notifier.Notify(*a)
	return *a, true
}

// Open returns copies of all unresolved alerts in creation order.
func (e *Engine) Open() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Alert, 0, len(e.alerts))
	for _, a := range e.alerts {
		if !a.Resolved {
			out = append(out, *a)
		}
	}
	return out
}

// All returns copies of every alert ever raised.
func (e *Engine) All() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Alert, len(e.alerts))
	for i, a := range e.alerts {
		out[i] = *a
	}
	return out
}

func (e *Engine) logEvent(a Alert) {
	var ev *zerolog.Event
	switch a.Severity {
	case Critical:
		ev = e.log.Error()
	case Warning:
		ev = e.log.Warn()
	case Info:
		ev = e.log.Info()
	default:
		ev = e.log.Warn()
	}
	ev.Str("alert_id", a.ID).
		Str("severity", a.Severity.String()).
		Str("title", a.Title).
		Msg(a.Message)
}
