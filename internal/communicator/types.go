package communicator

import (
	"time"

	"github.com/bilal/orion-agent/internal/alert"
	"github.com/bilal/orion-agent/internal/metrics"
)

// Notification is the JSON payload posted to the webhook and written to the
// alerts topic.
type Notification struct {
	AgentName     string         `json:"agent_name"`
	AlertID       string         `json:"alert_id"`
	Severity      alert.Severity `json:"severity"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	CreatedAt     time.Time      `json:"created_at"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

func newNotification(agent string, a alert.Alert) Notification {
	return Notification{
		AgentName: agent,
		AlertID:   a.ID,
		Severity:  a.Severity,
		Title:     a.Title,
		Message:   a.Message,
		CreatedAt: a.CreatedAt,
	}
}

// SnapshotPayload is written to the metrics topic once per cycle.
type SnapshotPayload struct {
	AgentName     string           `json:"agent_name"`
	Snapshot      metrics.Snapshot `json:"snapshot"`
	CorrelationID string           `json:"correlation_id"`
}
