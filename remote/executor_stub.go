package remote

import (
	"context"
	"sync"
)

type StubExecutorCall struct {
	Target  Target
	Command string
}

// StubExecutor returns RunResponse. With Hang set, Run blocks until ctx
// ends and returns its error.
type StubExecutor struct {
	RunResponse error
	Hang        bool

	mutex sync.Mutex
	calls []StubExecutorCall
}

func (executor *StubExecutor) Run(ctx context.Context, target Target, command string) error {
	executor.mutex.Lock()
	executor.calls = append(executor.calls, StubExecutorCall{Target: target, Command: command})
	hang, response := executor.Hang, executor.RunResponse
	executor.mutex.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return response
}

func (executor *StubExecutor) Calls() []StubExecutorCall {
	executor.mutex.Lock()
	defer executor.mutex.Unlock()
	return append([]StubExecutorCall{}, executor.calls...)
}
