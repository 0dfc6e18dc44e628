package compute

import (
	"context"
	"fmt"
)

type InstanceState int

// Codes follow the EC2 instance state contract.
const (
	InstanceStatePending      = InstanceState(0)
	InstanceStateRunning      = InstanceState(16)
	InstanceStateShuttingDown = InstanceState(32)
	InstanceStateTerminated   = InstanceState(48)
	InstanceStateStopping     = InstanceState(64)
	InstanceStateStopped      = InstanceState(80)
)

func (state InstanceState) String() string {
	switch state {
	default:
		return "other"
	case InstanceStatePending:
		return "pending"
	case InstanceStateRunning:
		return "running"
	case InstanceStateShuttingDown:
		return "shutting-down"
	case InstanceStateTerminated:
		return "terminated"
	case InstanceStateStopping:
		return "stopping"
	case InstanceStateStopped:
		return "stopped"
	}
}

type Instance struct {
	Id              string
	State           InstanceState
	PublicIpAddress string
}

func (instance *Instance) IsRunning() bool {
	return instance.State == InstanceStateRunning
}

// Startable reports whether a start command makes sense in the current state.
func (instance *Instance) Startable() bool {
	return instance.State == InstanceStateStopped
}

// InstanceRepository describes, starts and stops one cloud instance by id.
// Start and Stop return once the provider accepted the command.
type InstanceRepository interface {
	Get(ctx context.Context, id string) (*Instance, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
}

type LookupError struct {
	InstanceId string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("no instance found for id %s", e.InstanceId)
}
