package alert

import (
	"fmt"
	"time"
)

type Severity int

const (
	Info Severity = iota
	Warning
	Critical
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	switch s {
	case Info, Warning, Critical:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("unknown severity %d", int(s))
	}
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "info":
		*s = Info
	case "warning":
		*s = Warning
	case "critical":
		*s = Critical
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// Alert titles double as the deduplication key.
const (
	TitleBGPDown      = "BGP Sessions Down"
	TitleHighCPU      = "High CPU Usage"
	TitleCriticalMem  = "Critical Memory Usage"
	TitleHighLatency  = "High Latency"
	TitleBGPRestarted = "BGP Service Restarted"
)

// Alert is identified by its Title among unresolved alerts.
type Alert struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Resolved  bool      `json:"resolved"`
}

// Notifier receives every newly opened alert exactly once.
type Notifier interface {
	Notify(a Alert)
}

// Notifiers fans an alert out to several notifiers in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(a Alert) {
	for _, n := range ns {
		n.Notify(a)
	}
}
