package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bilal/orion-agent/internal/config"
	"github.com/bilal/orion-agent/internal/metrics"
	"github.com/bilal/orion-agent/internal/remote"
	"github.com/bilal/orion-agent/internal/remote/remotetest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const birdOutput = `BIRD 2.0.12 ready.
Name       Proto      Table      State  Since         Info
device1    Device     ---        up     2024-01-01
kernel1    Kernel     master4    up     2024-01-01
telus_gw1  BGP        ---        up     2024-01-01    Established
telus_gw2  BGP        ---        start  2024-01-01    Active        Socket: Connection refused
telus_gw3  BGP        ---        up     2024-01-01    Established
other_peer BGP        ---        up     2024-01-01    Established
`

type fakeQuerier map[string]float64

func (f fakeQuerier) Query(ctx context.Context, expr string) (float64, error) {
	v, ok := f[expr]
	if !ok {
		return 0, errors.New("no such series")
	}
	return v, nil
}

type fakeProber struct {
	ms  float64
	err error
}

func (f fakeProber) Probe(ctx context.Context) (float64, error) { return f.ms, f.err }

type fakeCounter struct {
	n   int
	err error
}

func (f fakeCounter) Count(ctx context.Context) (int, error) { return f.n, f.err }

type fakeResources struct {
	cpu, mem float64
	err      error
}

func (f fakeResources) Sample(ctx context.Context) (float64, float64, error) { return f.cpu, f.mem, f.err }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Prometheus.TimeoutSeconds = 1
	cfg.Router.TimeoutSeconds = 1
	return cfg
}

func TestParseBGPProtocols(t *testing.T) {
	st := ParseBGPProtocols(birdOutput, "telus_gw")
	assert.Equal(t, BGPStatus{Up: 2, Total: 3}, st)

	assert.Equal(t, BGPStatus{}, ParseBGPProtocols("", "telus_gw"))
	assert.Equal(t, BGPStatus{Up: 1, Total: 1}, ParseBGPProtocols(birdOutput, "other_peer"))
}

func TestParsePingAverage(t *testing.T) {
	linux := `PING 8.8.8.8 (8.8.8.8) 56(84) bytes of data.
64 bytes from 8.8.8.8: icmp_seq=1 ttl=117 time=14.1 ms

--- 8.8.8.8 ping statistics ---
3 packets transmitted, 3 received, 0% packet loss, time 2003ms
rtt min/avg/max/mdev = 14.123/15.234/16.345/0.901 ms
`
	v, err := ParsePingAverage(linux)
	require.NoError(t, err)
	assert.Equal(t, 15.234, v)

	bsd := "round-trip min/avg/max/stddev = 9.1/10.5/12.0/1.1 ms\n"
	v, err = ParsePingAverage(bsd)
	require.NoError(t, err)
	assert.Equal(t, 10.5, v)

	_, err = ParsePingAverage("3 packets transmitted, 0 received, 100% packet loss\n")
	assert.Error(t, err)
}

func TestCountSSLines(t *testing.T) {
	out := "Recv-Q Send-Q Local Address:Port Peer Address:Port\n0 0 10.0.0.2:22 10.0.0.9:51234\n0 0 10.0.0.2:443 10.0.0.7:40000\n"
	assert.Equal(t, 2, CountSSLines(out))
	assert.Equal(t, 0, CountSSLines("Recv-Q Send-Q Local Address:Port Peer Address:Port\n"))
	assert.Equal(t, 0, CountSSLines(""))
}

func TestCommandProber(t *testing.T) {
	exec := remotetest.New().On("ping -c 3 -W 2 8.8.8.8", remote.Result{
		Stdout: "rtt min/avg/max/mdev = 1.0/2.5/3.0/0.2 ms\n",
	}, nil)

	p := CommandProber{Exec: exec, Target: "8.8.8.8", Count: 3, Wait: 2 * time.Second, Timeout: 10 * time.Second}
	ms, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.5, ms)

	exec.On("ping -c 3 -W 2 8.8.8.8", remote.Result{ExitCode: 1}, nil)
	_, err = p.Probe(context.Background())
	assert.Error(t, err)
}

func TestCommandCounter(t *testing.T) {
	exec := remotetest.New().On("ss -tan state established", remote.Result{
		Stdout: "header\na\nb\nc\n",
	}, nil)
	n, err := CommandCounter{Exec: exec, Timeout: time.Second}.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCollect_AllSourcesHealthy(t *testing.T) {
	cfg := testConfig(t)
	q := cfg.Prometheus.Queries
	router := remotetest.New().On(cfg.BGP.StatusCommand, remote.Result{Stdout: birdOutput}, nil)

	c := New(cfg, Deps{
		Querier: fakeQuerier{
			q.WANRx:  12_500_000, // 100 Mbps
			q.LANRx:  1_250_000,  // 10 Mbps
			q.CPU:    42,
			q.Memory: 63.5,
		},
		Router:      router,
		Prober:      fakeProber{ms: 18.2},
		Connections: fakeCounter{n: 57},
	}, zerolog.Nop())
	fixed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	snap := c.Collect(context.Background())

	assert.Equal(t, metrics.Snapshot{
		Timestamp:          fixed,
		WANBandwidthMbps:   100,
		LANBandwidthMbps:   10,
		BGPSessionsUp:      2,
		BGPSessionsTotal:   3,
		LatencyMs:          18.2,
		ActiveConnections:  57,
		CPUUsagePercent:    42,
		MemoryUsagePercent: 63.5,
	}, snap)
	assert.Equal(t, []string{cfg.BGP.StatusCommand}, router.Calls())
}

func TestCollect_EverythingFailsFallsBackToDefaults(t *testing.T) {
	cfg := testConfig(t)
	router := remotetest.New()
	router.Default = remotetest.Response{Err: remote.ErrTimeout}

	c := New(cfg, Deps{
		Querier:     fakeQuerier{},
		Router:      router,
		Prober:      fakeProber{err: ErrNoReply},
		Connections: fakeCounter{err: errors.New("permission denied")},
	}, zerolog.Nop())

	snap := c.Collect(context.Background())

	assert.False(t, snap.Timestamp.IsZero())
	assert.Zero(t, snap.WANBandwidthMbps)
	assert.Zero(t, snap.LANBandwidthMbps)
	assert.Zero(t, snap.CPUUsagePercent)
	assert.Zero(t, snap.MemoryUsagePercent)
	assert.Zero(t, snap.LatencyMs)
	assert.Zero(t, snap.ActiveConnections)
	assert.Zero(t, snap.PacketLossPercent)
	assert.Equal(t, 0, snap.BGPSessionsUp)
	assert.Equal(t, 3, snap.BGPSessionsTotal)
}

func TestCollect_NonZeroExitFallsBack(t *testing.T) {
	cfg := testConfig(t)
	router := remotetest.New().On(cfg.BGP.StatusCommand, remote.Result{ExitCode: 255, Stderr: "connection refused"}, nil)

	snap := New(cfg, Deps{Router: router}, zerolog.Nop()).Collect(context.Background())
	assert.Equal(t, 0, snap.BGPSessionsUp)
	assert.Equal(t, 3, snap.BGPSessionsTotal)
}

func TestCollect_LocalResources(t *testing.T) {
	cfg := testConfig(t)
	c := New(cfg, Deps{Resources: fakeResources{cpu: 97, mem: 12}}, zerolog.Nop())
	snap := c.Collect(context.Background())
	assert.Equal(t, 97.0, snap.CPUUsagePercent)
	assert.Equal(t, 12.0, snap.MemoryUsagePercent)

	c = New(cfg, Deps{Resources: fakeResources{err: errors.New("boom")}}, zerolog.Nop())
	snap = c.Collect(context.Background())
	assert.Zero(t, snap.CPUUsagePercent)
	assert.Zero(t, snap.MemoryUsagePercent)
}

func TestCollect_BGPInvariant(t *testing.T) {
	cfg := testConfig(t)
	outputs := []string{"", birdOutput, "telus_gw1 BGP --- up Established\n", "telus_gw1 BGP --- start Active\n"}
	for _, out := range outputs {
		router := remotetest.New().On(cfg.BGP.StatusCommand, remote.Result{Stdout: out}, nil)
		snap := New(cfg, Deps{Router: router}, zerolog.Nop()).Collect(context.Background())
		assert.GreaterOrEqual(t, snap.BGPSessionsUp, 0)
		assert.LessOrEqual(t, snap.BGPSessionsUp, snap.BGPSessionsTotal)
	}
}

func TestCollect_ClampsOutOfRangeValues(t *testing.T) {
	cfg := testConfig(t)
	q := cfg.Prometheus.Queries
	snap := New(cfg, Deps{
		Querier: fakeQuerier{q.WANRx: -5, q.CPU: 130, q.Memory: -1},
		Prober:  fakeProber{ms: -3},
	}, zerolog.Nop()).Collect(context.Background())

	assert.Zero(t, snap.WANBandwidthMbps)
	assert.Equal(t, 100.0, snap.CPUUsagePercent)
	assert.Zero(t, snap.MemoryUsagePercent)
	assert.Zero(t, snap.LatencyMs)
}
