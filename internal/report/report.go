// Package report renders the periodic human-readable status report.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/bilal/orion-agent/internal/alert"
	"github.com/bilal/orion-agent/internal/metrics"
)

type Generator struct {
	LocalAS int
	now     func() time.Time
}

func NewGenerator(localAS int) *Generator {
	return &Generator{LocalAS: localAS, now: time.Now}
}

// Render returns the full report, stamped with the current time.
func (g *Generator) Render(snap metrics.Snapshot, open []alert.Alert) string {
	return fmt.Sprintf("ORION Network Status Report\nGenerated: %s\n\n%s",
		g.now().Format("2006-01-02 15:04:05"), g.Body(snap, open))
}

// Body renders everything below the generated-at header. It depends only on
// its arguments. Resolved alerts in open are skipped.
func (g *Generator) Body(snap metrics.Snapshot, open []alert.Alert) string {
	var b strings.Builder

	b.WriteString("=== Network Performance ===\n")
	fmt.Fprintf(&b, "WAN Bandwidth: %.2f Mbps\n", snap.WANBandwidthMbps)
	fmt.Fprintf(&b, "LAN Bandwidth: %.2f Mbps\n", snap.LANBandwidthMbps)
	fmt.Fprintf(&b, "Latency: %.1f ms\n", snap.LatencyMs)
	fmt.Fprintf(&b, "Packet Loss: %.2f%%\n", snap.PacketLossPercent)
	fmt.Fprintf(&b, "Active Connections: %d\n", snap.ActiveConnections)

	b.WriteString("\n=== BGP Routing ===\n")
	fmt.Fprintf(&b, "Sessions Up: %d/%d\n", snap.BGPSessionsUp, snap.BGPSessionsTotal)
	if g.LocalAS > 0 {
		fmt.Fprintf(&b, "AS Number: %d\n", g.LocalAS)
	}

	b.WriteString("\n=== System Resources ===\n")
	fmt.Fprintf(&b, "CPU Usage: %.1f%%\n", snap.CPUUsagePercent)
	fmt.Fprintf(&b, "Memory Usage: %.1f%%\n", snap.MemoryUsagePercent)

	b.WriteString("\n=== Active Alerts ===\n")
	n := 0
	for _, a := range open {
		if a.Resolved {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", strings.ToUpper(a.Severity.String()), a.Title, a.Message)
		n++
	}
	if n == 0 {
		b.WriteString("No active alerts\n")
	}
	return b.String()
}
