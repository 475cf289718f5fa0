package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bilal/orion-agent/internal/remote"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// Querier evaluates an instant expression against the telemetry backend.
type Querier interface {
	Query(ctx context.Context, expr string) (float64, error)
}

// ConnectionCounter reports the number of established TCP connections.
type ConnectionCounter interface {
	Count(ctx context.Context) (int, error)
}

// ResourceSampler reports CPU and memory usage in percent.
type ResourceSampler interface {
	Sample(ctx context.Context) (cpuPct, memPct float64, err error)
}

// SocketCounter reads the kernel socket table.
type SocketCounter struct{}

func (SocketCounter) Count(ctx context.Context) (int, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range conns {
		if c.Status == "ESTABLISHED" {
			n++
		}
	}
	return n, nil
}

// CommandCounter runs ss and counts its output lines.
type CommandCounter struct {
	Exec    remote.Executor
	Timeout time.Duration
}

func (c CommandCounter) Count(ctx context.Context) (int, error) {
	res, err := c.Exec.Run(ctx, "ss -tan state established", c.Timeout)
	if err != nil {
		return 0, err
	}
	if !res.OK() {
		return 0, fmt.Errorf("ss exited %d", res.ExitCode)
	}
	return CountSSLines(res.Stdout), nil
}

// CountSSLines discounts the header and the trailing empty line.
func CountSSLines(out string) int {
	n := len(strings.Split(out, "\n")) - 2
	if n < 0 {
		return 0
	}
	return n
}

// LocalResources samples this host instead of querying the backend.
type LocalResources struct{}

func (LocalResources) Sample(ctx context.Context) (float64, float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, 0, fmt.Errorf("cpu percent: %w", err)
	}
	if len(pcts) == 0 {
		return 0, 0, fmt.Errorf("cpu percent: no data")
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("virtual memory: %w", err)
	}
	return pcts[0], vm.UsedPercent, nil
}
