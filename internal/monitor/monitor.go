package monitor

import (
	"context"
	"math"
	"time"

	"github.com/bilal/orion-agent/internal/config"
	"github.com/bilal/orion-agent/internal/metrics"
	"github.com/bilal/orion-agent/internal/remote"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Deps are the collaborators a Collector samples from. Resources may be nil,
// in which case CPU and memory come from the telemetry backend.
type Deps struct {
	Querier     Querier
	Router      remote.Executor
	Prober      Prober
	Connections ConnectionCounter
	Resources   ResourceSampler
}

// Collector gathers one Snapshot per call. Every sub-query is independent and
// falls back to its default on failure, so Collect never fails.
type Collector struct {
	deps          Deps
	queries       config.QueryConfig
	bgp           config.BGPConfig
	queryTimeout  time.Duration
	routerTimeout time.Duration
	probeTimeout  time.Duration
	log           zerolog.Logger
	now           func() time.Time
}

func New(cfg *config.Config, deps Deps, log zerolog.Logger) *Collector {
	return &Collector{
		deps:          deps,
		queries:       cfg.Prometheus.Queries,
		bgp:           cfg.BGP,
		queryTimeout:  cfg.QueryTimeout(),
		routerTimeout: cfg.RouterTimeout(),
		probeTimeout:  time.Duration(cfg.Probe.Count)*cfg.ProbeWait() + 5*time.Second,
		log:           log.With().Str("component", "monitor").Logger(),
		now:           time.Now,
	}
}

func (c *Collector) Collect(ctx context.Context) metrics.Snapshot {
	c.log.Debug().Msg("collecting network metrics")

	var (
		wanRx, lanRx float64
		cpuPct       float64
		memPct       float64
		latency      float64
		conns        int
		bgp          BGPStatus
	)

	// No goroutine returns an error; the group is only a join point.
	var g errgroup.Group
	g.Go(func() error { wanRx = c.query(ctx, "wan_rx", c.queries.WANRx); return nil })
	g.Go(func() error { lanRx = c.query(ctx, "lan_rx", c.queries.LANRx); return nil })
	g.Go(func() error { cpuPct, memPct = c.resources(ctx); return nil })
	g.Go(func() error { bgp = c.checkBGP(ctx); return nil })
	g.Go(func() error { latency = c.measureLatency(ctx); return nil })
	g.Go(func() error { conns = c.countConnections(ctx); return nil })
	_ = g.Wait()

	snap := metrics.Snapshot{
		Timestamp:          c.now(),
		WANBandwidthMbps:   metrics.BytesToMbps(nonNegative(wanRx)),
		LANBandwidthMbps:   metrics.BytesToMbps(nonNegative(lanRx)),
		BGPSessionsUp:      bgp.Up,
		BGPSessionsTotal:   bgp.Total,
		PacketLossPercent:  0,
		LatencyMs:          nonNegative(latency),
		ActiveConnections:  conns,
		CPUUsagePercent:    percent(cpuPct),
		MemoryUsagePercent: percent(memPct),
	}

	c.log.Info().
		Float64("wan_mbps", snap.WANBandwidthMbps).
		Int("bgp_up", snap.BGPSessionsUp).
		Int("bgp_total", snap.BGPSessionsTotal).
		Float64("cpu_pct", snap.CPUUsagePercent).
		Float64("mem_pct", snap.MemoryUsagePercent).
		Float64("latency_ms", snap.LatencyMs).
		Msgf("Metrics: WAN=%.2fMbps, BGP=%d/%d, CPU=%.1f%%, MEM=%.1f%%",
			snap.WANBandwidthMbps, snap.BGPSessionsUp, snap.BGPSessionsTotal,
			snap.CPUUsagePercent, snap.MemoryUsagePercent)

	return snap
}

func (c *Collector) query(ctx context.Context, name, expr string) float64 {
	if c.deps.Querier == nil || expr == "" {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()

	v, err := c.deps.Querier.Query(ctx, expr)
	if err != nil {
		c.log.Error().Err(err).Str("query", name).Msg("prometheus query failed")
		return 0
	}
	return v
}

func (c *Collector) resources(ctx context.Context) (float64, float64) {
	if c.deps.Resources == nil {
		var cpuPct, memPct float64
		var g errgroup.Group
		g.Go(func() error { cpuPct = c.query(ctx, "cpu", c.queries.CPU); return nil })
		g.Go(func() error { memPct = c.query(ctx, "memory", c.queries.Memory); return nil })
		_ = g.Wait()
		return cpuPct, memPct
	}

	ctx, cancel := context.WithTimeout(ctx, c.queryTimeout)
	defer cancel()
	cpuPct, memPct, err := c.deps.Resources.Sample(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("local resource sampling failed")
		return 0, 0
	}
	return cpuPct, memPct
}

func (c *Collector) checkBGP(ctx context.Context) BGPStatus {
	fallback := BGPStatus{Up: 0, Total: c.bgp.FallbackTotal}
	if c.deps.Router == nil {
		return fallback
	}

	res, err := c.deps.Router.Run(ctx, c.bgp.StatusCommand, c.routerTimeout)
	if err != nil {
		c.log.Error().Err(err).Msg("BGP check failed")
		return fallback
	}
	if !res.OK() {
		c.log.Error().Int("exit_code", res.ExitCode).Str("stderr", res.Stderr).Msg("BGP check failed")
		return fallback
	}
	return ParseBGPProtocols(res.Stdout, c.bgp.PeerGroup)
}

func (c *Collector) measureLatency(ctx context.Context) float64 {
	if c.deps.Prober == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	ms, err := c.deps.Prober.Probe(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("latency measurement failed")
		return 0
	}
	return ms
}

func (c *Collector) countConnections(ctx context.Context) int {
	if c.deps.Connections == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := c.deps.Connections.Count(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("connection count failed")
		return 0
	}
	if n < 0 {
		return 0
	}
	return n
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func percent(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
