// Package agent drives the sample, analyze, remediate, report cycle.
package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bilal/orion-agent/internal/alert"
	"github.com/bilal/orion-agent/internal/metrics"
	"github.com/bilal/orion-agent/internal/remediation"
	"github.com/rs/zerolog"
)

var ErrAlreadyRunning = errors.New("agent loop already running")

type State string

const (
	Stopped State = "STOPPED"
	Running State = "RUNNING"
)

type Collector interface {
	Collect(ctx context.Context) metrics.Snapshot
}

type Analyzer interface {
	Analyze(snap metrics.Snapshot) []alert.Alert
	Open() []alert.Alert
}

type Remediator interface {
	Remediate(ctx context.Context, snap metrics.Snapshot) remediation.Outcome
}

type Reporter interface {
	Render(snap metrics.Snapshot, open []alert.Alert) string
}

// SnapshotSink receives every snapshot after collection. Errors are logged.
type SnapshotSink interface {
	PublishSnapshot(ctx context.Context, snap metrics.Snapshot) error
}

// Observer is told about every cycle; the health server implements it.
type Observer interface {
	RecordCycle(d time.Duration, failed bool)
	RecordSnapshot(snap metrics.Snapshot)
	RecordRemediation(outcome string)
}

type Components struct {
	Collector  Collector
	Alerts     Analyzer
	Remediator Remediator
	Reporter   Reporter
	Sinks      []SnapshotSink
	Observer   Observer
}

type Options struct {
	Interval     time.Duration
	ReportMinute int
}

// Loop runs one cycle at a time until stopped. Cycles never overlap.
type Loop struct {
	c            Components
	interval     time.Duration
	reportMinute int
	log          zerolog.Logger
	now          func() time.Time

	mu         sync.Mutex
	state      State
	stopCh     chan struct{}
	stopOnce   *sync.Once
	lastReport string
}

func New(c Components, opts Options, log zerolog.Logger) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	return &Loop{
		c:            c,
		interval:     opts.Interval,
		reportMinute: opts.ReportMinute,
		log:          log.With().Str("component", "agent").Logger(),
		now:          time.Now,
		state:        Stopped,
	}
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Start runs cycles until Stop is called or ctx is cancelled, then returns
// nil. It returns ErrAlreadyRunning if the loop is active.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state == Running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.state = Running
	l.stopCh = make(chan struct{})
	l.stopOnce = new(sync.Once)
	stopCh := l.stopCh
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.state = Stopped
		l.mu.Unlock()
		l.log.Info().Msg("ORION autonomous agent stopped")
	}()

	l.log.Info().Dur("interval", l.interval).Msg("ORION autonomous agent starting")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stopCh:
			return nil
		case <-timer.C:
		}

		if err := l.RunCycle(ctx); err != nil {
			l.log.Error().Err(err).Msg("monitoring cycle failed")
		}
		timer.Reset(l.interval)
	}
}

// Stop ends the loop and interrupts the wait between cycles. It is safe to
// call repeatedly. Stop only affects a running loop: a call made before Start
// has switched to RUNNING is dropped, so callers that may race Start should
// cancel Start's context instead.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Running {
		return
	}
	l.log.Info().Msg("ORION autonomous agent stopping")
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// RunCycle performs one sample, analyze, remediate, report pass. A panic
// inside the cycle is returned as an error.
func (l *Loop) RunCycle(ctx context.Context) (err error) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
			l.log.Debug().Str("stack", string(debug.Stack())).Msg("recovered cycle panic")
		}
		l.c.Observer.RecordCycle(time.Since(started), err != nil)
	}()

	snap := l.c.Collector.Collect(ctx)
	l.c.Observer.RecordSnapshot(snap)

	for _, sink := range l.c.Sinks {
		if err := sink.PublishSnapshot(ctx, snap); err != nil {
			l.log.Warn().Err(err).Msg("publish snapshot failed")
		}
	}

	fired := l.c.Alerts.Analyze(snap)
	if len(fired) > 0 {
		l.log.Debug().Int("count", len(fired)).Msg("new alerts")
	}

	if out := l.c.Remediator.Remediate(ctx, snap); out != remediation.NotNeeded {
		l.c.Observer.RecordRemediation(out.String())
	}

	if now := l.now(); l.reportDue(now) {
		report := l.c.Reporter.Render(snap, l.c.Alerts.Open())
		l.log.Info().Msg(report)
	}
	return nil
}

// reportDue fires once per hour, on the configured minute.
func (l *Loop) reportDue(now time.Time) bool {
	if now.Minute() != l.reportMinute {
		return false
	}
	hour := now.Format("2006-01-02T15")
	if l.lastReport == hour {
		return false
	}
	l.lastReport = hour
	return true
}

type nopObserver struct{}

func (nopObserver) RecordCycle(time.Duration, bool) {}
func (nopObserver) RecordSnapshot(metrics.Snapshot) {}
func (nopObserver) RecordRemediation(string) {}
