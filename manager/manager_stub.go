package manager

import (
	"context"
	"subuk/gamemango/compute"
	"subuk/gamemango/config"
	"subuk/gamemango/schedule"
	"sync"
)

type StubInfoResponse struct {
	Info  *ServerInfo
	Error error
}

// StubManager answers from canned responses. GetInfoResponses are consumed
// in order and the last one repeats.
type StubManager struct {
	ServerConfig        *config.ServerConfig
	Instances           *compute.StubInstanceRepository
	GetInfoResponses    []StubInfoResponse
	CloseServerResponse error
	BusyResponse        bool

	mutex              sync.Mutex
	interval           *schedule.Interval
	getInfoCalls       int
	closeCalls         int
	startIntervalCalls int
	closed             bool
}

func NewStubManager(server *config.ServerConfig, instances *compute.StubInstanceRepository) *StubManager {
	manager := &StubManager{ServerConfig: server, Instances: instances}
	manager.interval = schedule.NewInterval(0, func() {})
	return manager
}

func (manager *StubManager) Name() string {
	return manager.ServerConfig.Name
}

func (manager *StubManager) Config() *config.ServerConfig {
	return manager.ServerConfig
}

func (manager *StubManager) Interval() *schedule.Interval {
	return manager.interval
}

func (manager *StubManager) GetInstance(ctx context.Context) (*compute.Instance, error) {
	return manager.Instances.Get(ctx, manager.ServerConfig.InstanceId)
}

func (manager *StubManager) StartInstance(ctx context.Context) error {
	return manager.Instances.Start(ctx, manager.ServerConfig.InstanceId)
}

func (manager *StubManager) StartInterval() bool {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	manager.startIntervalCalls++
	return true
}

func (manager *StubManager) CheckShouldClose(ctx context.Context) {}

func (manager *StubManager) CloseServer(ctx context.Context) error {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	manager.closeCalls++
	return manager.CloseServerResponse
}

func (manager *StubManager) GetInfo(ctx context.Context) (*ServerInfo, error) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	if len(manager.GetInfoResponses) == 0 {
		return nil, &NotRunningError{Server: manager.Name(), Operation: "get info", State: compute.InstanceStateStopped}
	}
	idx := manager.getInfoCalls
	if idx >= len(manager.GetInfoResponses) {
		idx = len(manager.GetInfoResponses) - 1
	}
	manager.getInfoCalls++
	response := manager.GetInfoResponses[idx]
	return response.Info, response.Error
}

func (manager *StubManager) Busy() bool {
	return manager.BusyResponse
}

func (manager *StubManager) Close() {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	manager.closed = true
}

func (manager *StubManager) GetInfoCalls() int {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return manager.getInfoCalls
}

func (manager *StubManager) CloseCalls() int {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return manager.closeCalls
}

// StartIntervalCalls counts StartInterval calls.
func (manager *StubManager) StartIntervalCalls() int {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return manager.startIntervalCalls
}

func (manager *StubManager) Closed() bool {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return manager.closed
}
