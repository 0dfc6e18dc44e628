package web

import (
	"subuk/gamemango/lifecycle"
	"sync"

	"github.com/rs/zerolog"
)

const subscriberBuffer = 16

// Hub fans lifecycle notices out to websocket subscribers. Slow
// subscribers lose notices instead of blocking the sender.
type Hub struct {
	mutex       sync.Mutex
	subscribers map[chan lifecycle.Notice]string
	logger      zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{subscribers: map[chan lifecycle.Notice]string{}, logger: logger}
}

// Subscribe returns notices of one server, all servers when server is empty.
func (hub *Hub) Subscribe(server string) (<-chan lifecycle.Notice, func()) {
	notices := make(chan lifecycle.Notice, subscriberBuffer)
	hub.mutex.Lock()
	hub.subscribers[notices] = server
	hub.mutex.Unlock()
	unsubscribe := func() {
		hub.mutex.Lock()
		delete(hub.subscribers, notices)
		hub.mutex.Unlock()
	}
	return notices, unsubscribe
}

func (hub *Hub) Notify(notice lifecycle.Notice) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	for subscriber, server := range hub.subscribers {
		if server != "" && server != notice.Server {
			continue
		}
		select {
		case subscriber <- notice:
		default:
			hub.logger.Debug().Str("server", notice.Server).Msg("subscriber too slow, notice dropped")
		}
	}
}
