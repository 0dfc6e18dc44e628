package manager

import (
	"errors"
	"fmt"
	"subuk/gamemango/compute"
	"time"
)

var ErrOperationInProgress = errors.New("another operation is already in progress for this server")

// NotRunningError means the operation needs a running instance.
type NotRunningError struct {
	Server    string
	Operation string
	State     compute.InstanceState
}

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("server %s: cannot %s, instance is %s", e.Server, e.Operation, e.State)
}

// TimeoutError means the game server did not answer a ping in time.
type TimeoutError struct {
	Server string
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("server %s did not answer within %s", e.Server, e.After)
}

type UnsupportedServerError struct {
	Type string
}

func (e *UnsupportedServerError) Error() string {
	return fmt.Sprintf("unknown/unsupported server type: %s", e.Type)
}
