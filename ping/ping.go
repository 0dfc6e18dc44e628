// Package ping probes game servers for their occupancy.
package ping

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

type Status struct {
	Online int
	Max    int
	// Sample is nil when the server does not report one.
	Sample []string
}

type Pinger interface {
	Ping(ctx context.Context, host string, port int) (*Status, error)
}

// ProbeError is a failed ping with the transport error code attached.
type ProbeError struct {
	Code string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("ping failed (%s): %s", e.Code, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

const (
	CodeUnknown     = "EUNKNOWN"
	CodeNotFound    = "ENOTFOUND"
	CodeTimeout     = "ETIMEDOUT"
	CodeRefused     = "ECONNREFUSED"
	CodeReset       = "ECONNRESET"
	CodeHostUnreach = "EHOSTUNREACH"
	CodeNetUnreach  = "ENETUNREACH"
	CodeProtocol    = "EPROTO"
)

// ErrorCode maps a dial or read error to a short errno style code.
func ErrorCode(err error) string {
	probeErr := &ProbeError{}
	if errors.As(err, &probeErr) {
		return probeErr.Code
	}
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeRefused
	case errors.Is(err, syscall.ECONNRESET):
		return CodeReset
	case errors.Is(err, syscall.EHOSTUNREACH):
		return CodeHostUnreach
	case errors.Is(err, syscall.ENETUNREACH):
		return CodeNetUnreach
	case errors.Is(err, syscall.ETIMEDOUT), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	}
	dnsErr := &net.DNSError{}
	if errors.As(err, &dnsErr) {
		return CodeNotFound
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}
	return CodeUnknown
}
