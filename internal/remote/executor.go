// Package remote runs shell commands, locally or on the routing host over SSH.
package remote

import (
	"context"
	"errors"
	"time"
)

var ErrTimeout = errors.New("command timed out")

// Result is the outcome of a command that ran to completion.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (r Result) OK() bool { return r.ExitCode == 0 }

// Executor runs a command and waits at most timeout for it. A non-nil error
// means the command could not be run or did not finish; a non-zero exit code
// is reported through Result.
type Executor interface {
	Run(ctx context.Context, command string, timeout time.Duration) (Result, error)
}
