package communicator

import (
	"github.com/bilal/orion-agent/internal/alert"
	"github.com/rs/zerolog"
)

// LogNotifier records each notification dispatch in the agent log. It is
// always part of the notifier chain.
type LogNotifier struct {
	Log zerolog.Logger
}

func (l LogNotifier) Notify(a alert.Alert) {
	l.Log.Info().Str("alert_id", a.ID).Str("title", a.Title).Msg("notification sent")
}
