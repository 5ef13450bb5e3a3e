package toolexec

import (
	"context"
	"sync"
)

// FakeRunner records commands and answers them from a handler. It is
// exported so other packages' tests can substitute it for ExecRunner.
type FakeRunner struct {
	mu       sync.Mutex
	Commands []Command
	Handler  func(cmd Command) ([]byte, error)
}

// Run records cmd and delegates to Handler.
func (f *FakeRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	f.mu.Lock()
	f.Commands = append(f.Commands, cmd)
	handler := f.Handler
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, nil
	}
	return handler(cmd)
}

// Calls returns a copy of the recorded commands.
func (f *FakeRunner) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.Commands...)
}
