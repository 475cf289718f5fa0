// Package remotetest provides a scripted remote.Executor for tests.
package remotetest

import (
	"context"
	"sync"
	"time"

	"github.com/bilal/orion-agent/internal/remote"
)

// Response is the canned answer for one command.
type Response struct {
	Result remote.Result
	Err    error
}

// Executor answers commands from a table and records every call. Unknown
// commands fail with Default.
type Executor struct {
	mu        sync.Mutex
	Responses map[string]Response
	Default   Response
	calls     []string
}

func New() *Executor {
	return &Executor{Responses: make(map[string]Response)}
}

// On registers the response for command.
func (e *Executor) On(command string, res remote.Result, err error) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Responses[command] = Response{Result: res, Err: err}
	return e
}

func (e *Executor) Run(ctx context.Context, command string, timeout time.Duration) (remote.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, command)
	if r, ok := e.Responses[command]; ok {
		return r.Result, r.Err
	}
	return e.Default.Result, e.Default.Err
}

// Calls returns the commands run so far, in order.
func (e *Executor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// CallCount returns how often command was run.
func (e *Executor) CallCount(command string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == command {
			n++
		}
	}
	return n
}
