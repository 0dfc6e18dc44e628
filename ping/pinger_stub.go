package ping

import (
	"context"
	"sync"
)

type StubPingResponse struct {
	Status *Status
	Error  error
	// Hang blocks the ping until the channel is closed, ignoring the context.
	Hang chan struct{}
}

// StubPinger answers from PingResponses in order, repeating the last one.
type StubPinger struct {
	PingResponses []StubPingResponse

	mutex sync.Mutex
	calls int
	hosts []string
}

func (pinger *StubPinger) Ping(ctx context.Context, host string, port int) (*Status, error) {
	pinger.mutex.Lock()
	pinger.hosts = append(pinger.hosts, host)
	response := StubPingResponse{Status: &Status{}}
	if len(pinger.PingResponses) > 0 {
		idx := pinger.calls
		if idx >= len(pinger.PingResponses) {
			idx = len(pinger.PingResponses) - 1
		}
		response = pinger.PingResponses[idx]
	}
	pinger.calls++
	pinger.mutex.Unlock()

	if response.Hang != nil {
		<-response.Hang
	}
	return response.Status, response.Error
}

func (pinger *StubPinger) Calls() int {
	pinger.mutex.Lock()
	defer pinger.mutex.Unlock()
	return pinger.calls
}

func (pinger *StubPinger) Hosts() []string {
	pinger.mutex.Lock()
	defer pinger.mutex.Unlock()
	return append([]string{}, pinger.hosts...)
}
