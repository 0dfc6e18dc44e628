package compute

import (
	"context"
	"sync"
)

type StubInstanceResponse struct {
	Instance *Instance
	Error    error
}

// StubInstanceRepository answers Get from GetResponses in order, repeating
// the last one once exhausted.
type StubInstanceRepository struct {
	GetResponses  []StubInstanceResponse
	StartResponse error
	StopResponse  error

	mutex      sync.Mutex
	getCalls   int
	startCalls int
	stopCalls  int
}

func (repo *StubInstanceRepository) Get(ctx context.Context, id string) (*Instance, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	if id == "" {
		panic("no id specified")
	}
	if len(repo.GetResponses) == 0 {
		return nil, &LookupError{InstanceId: id}
	}
	idx := repo.getCalls
	if idx >= len(repo.GetResponses) {
		idx = len(repo.GetResponses) - 1
	}
	repo.getCalls++
	response := repo.GetResponses[idx]
	if response.Instance == nil {
		return nil, response.Error
	}
	instance := *response.Instance
	instance.Id = id
	return &instance, response.Error
}

func (repo *StubInstanceRepository) Start(ctx context.Context, id string) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	repo.startCalls++
	return repo.StartResponse
}

func (repo *StubInstanceRepository) Stop(ctx context.Context, id string) error {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	repo.stopCalls++
	return repo.StopResponse
}

func (repo *StubInstanceRepository) GetCalls() int {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	return repo.getCalls
}

func (repo *StubInstanceRepository) StartCalls() int {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	return repo.startCalls
}

func (repo *StubInstanceRepository) StopCalls() int {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()
	return repo.stopCalls
}
