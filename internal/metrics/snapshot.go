// Package metrics holds the per-cycle telemetry snapshot.
package metrics

import "time"

// Snapshot is one sampling round. It is built once by the collector and
// never modified afterwards; pass it by value.
type Snapshot struct {
	Timestamp          time.Time `json:"timestamp"`
	WANBandwidthMbps   float64   `json:"wan_bandwidth_mbps"`
	LANBandwidthMbps   float64   `json:"lan_bandwidth_mbps"`
	BGPSessionsUp      int       `json:"bgp_sessions_up"`
	BGPSessionsTotal   int       `json:"bgp_sessions_total"`
	PacketLossPercent  float64   `json:"packet_loss_percent"` // always 0, not measured yet
	LatencyMs          float64   `json:"latency_ms"`          // 0 means unmeasured
	ActiveConnections  int       `json:"active_connections"`
	CPUUsagePercent    float64   `json:"cpu_usage_percent"`
	MemoryUsagePercent float64   `json:"memory_usage_percent"`
}

// BytesToMbps converts a byte rate to megabits per second.
func BytesToMbps(bytesPerSec float64) float64 {
	return bytesPerSec * 8 / 1_000_000
}
