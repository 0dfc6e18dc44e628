package ping

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/Tnze/go-mc/bot"
)

type pingFunc func(addr string, timeout time.Duration) ([]byte, time.Duration, error)

type serverListResponse struct {
	Players *struct {
		Max    int `json:"max"`
		Online int `json:"online"`
		Sample []struct {
			Name string `json:"name"`
		} `json:"sample"`
	} `json:"players"`
}

// MinecraftPinger runs the server list ping. Timeout bounds the dial and
// each read; the caller's context bounds the whole exchange.
type MinecraftPinger struct {
	Timeout time.Duration
	ping    pingFunc
}

func NewMinecraftPinger(timeout time.Duration) *MinecraftPinger {
	return &MinecraftPinger{Timeout: timeout, ping: bot.PingAndListTimeout}
}

type pingResult struct {
	response []byte
	err      error
}

func (pinger *MinecraftPinger) Ping(ctx context.Context, host string, port int) (*Status, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	// buffered so a late answer never blocks the probe goroutine
	results := make(chan pingResult, 1)
	go func() {
		response, _, err := pinger.ping(addr, pinger.Timeout)
		results <- pingResult{response: response, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, &ProbeError{Code: CodeTimeout, Err: ctx.Err()}
	case result := <-results:
		if result.err != nil {
			return nil, &ProbeError{Code: ErrorCode(result.err), Err: result.err}
		}
		return parseStatus(result.response)
	}
}

func parseStatus(response []byte) (*Status, error) {
	parsed := serverListResponse{}
	if err := json.Unmarshal(response, &parsed); err != nil {
		return nil, &ProbeError{Code: CodeProtocol, Err: err}
	}
	if parsed.Players == nil {
		return nil, &ProbeError{Code: CodeProtocol, Err: errors.New("response has no players section")}
	}
	status := &Status{Online: parsed.Players.Online, Max: parsed.Players.Max}
	if parsed.Players.Sample != nil {
		status.Sample = []string{}
		for _, player := range parsed.Players.Sample {
			status.Sample = append(status.Sample, player.Name)
		}
	}
	return status, nil
}
