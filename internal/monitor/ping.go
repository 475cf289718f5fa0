package monitor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bilal/orion-agent/internal/remote"
	"github.com/go-ping/ping"
)

var ErrNoReply = errors.New("no echo replies received")

// Prober measures round-trip latency to a fixed host, in milliseconds.
type Prober interface {
	Probe(ctx context.Context) (float64, error)
}

// ICMPProber sends echo requests directly from the agent process.
type ICMPProber struct {
	Target     string
	Count      int
	Wait       time.Duration
	Privileged bool
}

func (p ICMPProber) Probe(ctx context.Context) (float64, error) {
	pinger, err := ping.NewPinger(p.Target)
	if err != nil {
		return 0, fmt.Errorf("ping create: %w", err)
	}

	pinger.Count = p.Count
	pinger.Timeout = time.Duration(p.Count) * p.Wait
	pinger.SetPrivileged(p.Privileged)

	done := make(chan error, 1)
	go func() { done <- pinger.Run() }()

	select {
	case <-ctx.Done():
		pinger.Stop()
		<-done
		return 0, ctx.Err()
	case err := <-done:
		if err != nil {
			return 0, fmt.Errorf("ping run: %w", err)
		}
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, ErrNoReply
	}
	return float64(stats.AvgRtt) / float64(time.Millisecond), nil
}

// CommandProber shells out to the system ping binary and parses its summary.
type CommandProber struct {
	Exec    remote.Executor
	Target  string
	Count   int
	Wait    time.Duration
	Timeout time.Duration
}

func (p CommandProber) Probe(ctx context.Context) (float64, error) {
	waitSec := int(p.Wait / time.Second)
	if waitSec < 1 {
		waitSec = 1
	}
	cmd := fmt.Sprintf("ping -c %d -W %d %s", p.Count, waitSec, p.Target)

	res, err := p.Exec.Run(ctx, cmd, p.Timeout)
	if err != nil {
		return 0, err
	}
	if !res.OK() {
		return 0, fmt.Errorf("ping exited %d", res.ExitCode)
	}
	return ParsePingAverage(res.Stdout)
}

// ParsePingAverage extracts the average from a summary line such as
// "rtt min/avg/max/mdev = 14.1/15.2/16.3/0.9 ms".
func ParsePingAverage(out string) (float64, error) {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "avg") && !strings.Contains(line, "rtt") {
			continue
		}
		parts := strings.Split(line, "/")
		if len(parts) < 5 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[4]), 64)
		if err != nil {
			return 0, fmt.Errorf("parse ping average %q: %w", parts[4], err)
		}
		return v, nil
	}
	return 0, errors.New("ping summary line not found")
}
