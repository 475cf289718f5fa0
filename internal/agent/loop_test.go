package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bilal/orion-agent/internal/alert"
	"github.com/bilal/orion-agent/internal/metrics"
	"github.com/bilal/orion-agent/internal/remediation"
	"github.com/bilal/orion-agent/internal/remote"
	"github.com/bilal/orion-agent/internal/remote/remotetest"
	"github.com/bilal/orion-agent/internal/report"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const restartCmd = "sudo systemctl restart bird2"

type fakeCollector struct {
	calls   atomic.Int32
	snap    metrics.Snapshot
	panicOn int32
}

func (f *fakeCollector) Collect(ctx context.Context) metrics.Snapshot {
	n := f.calls.Add(1)
	if n == f.panicOn {
		panic("collector exploded")
	}
	return f.snap
}

type countingReporter struct {
	calls atomic.Int32
}

func (r *countingReporter) Render(snap metrics.Snapshot, open []alert.Alert) string {
	r.calls.Add(1)
	return "report"
}

type recordingObserver struct {
	mu           sync.Mutex
	cycles       int
	failed       int
	snapshots    int
	remediations []string
}

func (o *recordingObserver) RecordCycle(d time.Duration, failed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cycles++
	if failed {
		o.failed++
	}
}

func (o *recordingObserver) RecordSnapshot(metrics.Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snapshots++
}

func (o *recordingObserver) RecordRemediation(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.remediations = append(o.remediations, outcome)
}

type sink struct {
	got []metrics.Snapshot
	err error
}

func (s *sink) PublishSnapshot(ctx context.Context, snap metrics.Snapshot) error {
	s.got = append(s.got, snap)
	return s.err
}

type fixture struct {
	loop      *Loop
	collector *fakeCollector
	alerts    *alert.Engine
	router    *remotetest.Executor
	observer  *recordingObserver
}

func newFixture(snap metrics.Snapshot, interval time.Duration, reporter Reporter) *fixture {
	log := zerolog.Nop()
	collector := &fakeCollector{snap: snap}
	alerts := alert.NewEngine(alert.DefaultThresholds(), nil, log)
	router := remotetest.New().On(restartCmd, remote.Result{}, nil)
	observer := &recordingObserver{}
	if reporter == nil {
		reporter = report.NewGenerator(394955)
	}

	loop := New(Components{
		Collector:  collector,
		Alerts:     alerts,
		Remediator: remediation.NewEngine(router, restartCmd, 30*time.Second, alerts, log),
		Reporter:   reporter,
		Observer:   observer,
	}, Options{Interval: interval}, log)
	// keep reports out of the way unless a test wants them
	loop.now = func() time.Time { return time.Date(2026, 10, 17, 10, 30, 0, 0, time.UTC) }

	return &fixture{loop: loop, collector: collector, alerts: alerts, router: router, observer: observer}
}

func healthy() metrics.Snapshot {
	return metrics.Snapshot{BGPSessionsUp: 3, BGPSessionsTotal: 3, CPUUsagePercent: 10, MemoryUsagePercent: 10, LatencyMs: 5}
}

func startAsync(t *testing.T, l *Loop, ctx context.Context) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()
	require.Eventually(t, func() bool { return l.State() == Running }, time.Second, 5*time.Millisecond)
	return done
}

func TestLoop_StopInterruptsSleep(t *testing.T) {
	f := newFixture(healthy(), time.Hour, nil)
	done := startAsync(t, f.loop, context.Background())

	require.Eventually(t, func() bool { return f.collector.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	f.loop.Stop()
	f.loop.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	assert.Equal(t, Stopped, f.loop.State())
	assert.Equal(t, int32(1), f.collector.calls.Load())

	// stopping a stopped loop is a no-op
	f.loop.Stop()
}

func TestLoop_ContextCancelStops(t *testing.T) {
	f := newFixture(healthy(), time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := startAsync(t, f.loop, ctx)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestLoop_AlreadyRunning(t *testing.T) {
	f := newFixture(healthy(), time.Hour, nil)
	done := startAsync(t, f.loop, context.Background())

	assert.ErrorIs(t, f.loop.Start(context.Background()), ErrAlreadyRunning)

	f.loop.Stop()
	<-done
}

func TestLoop_RestartAfterStop(t *testing.T) {
	f := newFixture(healthy(), time.Hour, nil)
	done := startAsync(t, f.loop, context.Background())
	f.loop.Stop()
	<-done

	done = startAsync(t, f.loop, context.Background())
	f.loop.Stop()
	assert.NoError(t, <-done)
}

func TestLoop_StopBeforeStartIsDropped(t *testing.T) {
	f := newFixture(healthy(), time.Hour, nil)
	f.loop.Stop()
	assert.Equal(t, Stopped, f.loop.State())

	ctx, cancel := context.WithCancel(context.Background())
	done := startAsync(t, f.loop, ctx)

	select {
	case <-done:
		t.Fatal("an earlier Stop must not end a later Start")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, Running, f.loop.State())

	cancel()
	assert.NoError(t, <-done)
}

func TestLoop_CycleFaultDoesNotStopLoop(t *testing.T) {
	f := newFixture(healthy(), 10*time.Millisecond, nil)
	f.collector.panicOn = 1
	done := startAsync(t, f.loop, context.Background())

	require.Eventually(t, func() bool { return f.collector.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	f.loop.Stop()
	<-done

	f.observer.mu.Lock()
	defer f.observer.mu.Unlock()
	assert.Equal(t, 1, f.observer.failed)
	assert.GreaterOrEqual(t, f.observer.cycles, 3)
}

func TestRunCycle_PanicBecomesError(t *testing.T) {
	f := newFixture(healthy(), time.Hour, nil)
	f.collector.panicOn = 1

	err := f.loop.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collector exploded")
	assert.NoError(t, f.loop.RunCycle(context.Background()))
}

func TestRunCycle_PartialOutageNoRemediation(t *testing.T) {
	f := newFixture(metrics.Snapshot{BGPSessionsUp: 1, BGPSessionsTotal: 3, CPUUsagePercent: 50, MemoryUsagePercent: 40, LatencyMs: 20}, time.Hour, nil)

	require.NoError(t, f.loop.RunCycle(context.Background()))

	open := f.alerts.Open()
	require.Len(t, open, 1)
	assert.Equal(t, alert.TitleBGPDown, open[0].Title)
	assert.Equal(t, alert.Critical, open[0].Severity)
	assert.Empty(t, f.router.Calls())
	assert.Empty(t, f.observer.remediations)
}

func TestRunCycle_TotalOutageRestartsBGP(t *testing.T) {
	f := newFixture(metrics.Snapshot{BGPSessionsUp: 0, BGPSessionsTotal: 3, CPUUsagePercent: 10, MemoryUsagePercent: 10, LatencyMs: 5}, time.Hour, nil)

	require.NoError(t, f.loop.RunCycle(context.Background()))
	require.NoError(t, f.loop.RunCycle(context.Background()))

	var titles []string
	for _, a := range f.alerts.Open() {
		titles = append(titles, a.Title)
	}
	assert.Equal(t, []string{alert.TitleBGPDown, alert.TitleBGPRestarted}, titles)
	assert.Equal(t, 2, f.router.CallCount(restartCmd))
	assert.Equal(t, []string{"restarted", "restarted"}, f.observer.remediations)
}

func TestRunCycle_MemoryAlertDeduplicated(t *testing.T) {
	snap := healthy()
	snap.MemoryUsagePercent = 99
	f := newFixture(snap, time.Hour, nil)

	require.NoError(t, f.loop.RunCycle(context.Background()))
	require.NoError(t, f.loop.RunCycle(context.Background()))

	open := f.alerts.Open()
	require.Len(t, open, 1)
	assert.Equal(t, alert.TitleCriticalMem, open[0].Title)
}

func TestRunCycle_ReportOncePerHourOnReportMinute(t *testing.T) {
	rep := &countingReporter{}
	f := newFixture(healthy(), time.Hour, rep)

	now := time.Date(2026, 10, 17, 10, 0, 5, 0, time.UTC)
	f.loop.now = func() time.Time { return now }

	require.NoError(t, f.loop.RunCycle(context.Background()))
	now = now.Add(30 * time.Second)
	require.NoError(t, f.loop.RunCycle(context.Background()))
	assert.Equal(t, int32(1), rep.calls.Load())

	now = now.Add(time.Minute)
	require.NoError(t, f.loop.RunCycle(context.Background()))
	assert.Equal(t, int32(1), rep.calls.Load())

	now = time.Date(2026, 10, 17, 11, 0, 0, 0, time.UTC)
	require.NoError(t, f.loop.RunCycle(context.Background()))
	assert.Equal(t, int32(2), rep.calls.Load())
}

func TestRunCycle_PublishesSnapshots(t *testing.T) {
	f := newFixture(healthy(), time.Hour, nil)
	ok, failing := &sink{}, &sink{err: errors.New("broker down")}
	f.loop.c.Sinks = []SnapshotSink{failing, ok}

	require.NoError(t, f.loop.RunCycle(context.Background()))
	assert.Len(t, ok.got, 1)
	assert.Len(t, failing.got, 1)
	assert.Equal(t, 1, f.observer.snapshots)
}
