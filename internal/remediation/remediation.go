// Package remediation issues bounded corrective actions against the
// routing host.
package remediation

import (
	"context"
	"time"

	"github.com/bilal/orion-agent/internal/alert"
	"github.com/bilal/orion-agent/internal/metrics"
	"github.com/bilal/orion-agent/internal/remote"
	"github.com/rs/zerolog"
)

type Outcome int

const (
	NotNeeded Outcome = iota
	Restarted
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NotNeeded:
		return "not_needed"
	case Restarted:
		return "restarted"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Raiser opens an alert through the deduplicating alert path.
type Raiser interface {
	Raise(sev alert.Severity, title, message string) (alert.Alert, bool)
}

type Engine struct {
	router  remote.Executor
	command string
	timeout time.Duration
	alerts  Raiser
	log     zerolog.Logger
}

func NewEngine(router remote.Executor, restartCommand string, timeout time.Duration, alerts Raiser, log zerolog.Logger) *Engine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Engine{
		router:  router,
		command: restartCommand,
		timeout: timeout,
		alerts:  alerts,
		log:     log.With().Str("component", "remediation").Logger(),
	}
}

// NeedsBGPRestart reports whether every configured BGP session is down.
func NeedsBGPRestart(snap metrics.Snapshot) bool {
	return snap.BGPSessionsTotal > 0 && snap.BGPSessionsUp == 0
}

// Remediate runs at most one restart attempt. Failures are only logged; the
// next cycle tries again if the condition persists.
func (e *Engine) Remediate(ctx context.Context, snap metrics.Snapshot) Outcome {
	if !NeedsBGPRestart(snap) {
		return NotNeeded
	}

	e.log.Warn().
		Int("bgp_total", snap.BGPSessionsTotal).
		Msg("all BGP sessions down, attempting restart")

	res, err := e.router.Run(ctx, e.command, e.timeout)
	if err != nil {
		e.log.Error().Err(err).Str("command", e.command).Msg("BGP restart failed")
		return Failed
	}
	if !res.OK() {
		e.log.Error().
			Int("exit_code", res.ExitCode).
			Str("stderr", res.Stderr).
			Str("command", e.command).
			Msg("BGP restart failed")
		return Failed
	}

	e.log.Info().Msg("BGP service restarted successfully")
	e.alerts.Raise(alert.Info, alert.TitleBGPRestarted,
		"Automatically restarted BGP service due to all sessions being down")
	return Restarted
}
