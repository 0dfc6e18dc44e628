package web

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type LogRequestMiddleware struct {
	logger          zerolog.Logger
	excludePrefixes []string
	trustedProxies  []string
}

func NewLogRequestMiddleware(logger zerolog.Logger, trustedProxies, exclude []string) *LogRequestMiddleware {
	return &LogRequestMiddleware{
		logger:          logger,
		excludePrefixes: exclude,
		trustedProxies:  trustedProxies,
	}
}

func (mw *LogRequestMiddleware) getRemoteAddr(req *http.Request) string {
	remoteHost, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	trusted := false
	for _, trustedAddr := range mw.trustedProxies {
		if trustedAddr == remoteHost {
			trusted = true
			break
		}
	}
	if !trusted {
		return remoteHost
	}
	if realIP := req.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if xForwardedFor := req.Header.Get("X-Forwarded-For"); xForwardedFor != "" {
		splitted := strings.SplitN(xForwardedFor, ",", 2)
		return strings.TrimSpace(splitted[0])
	}
	return remoteHost
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (recorder *statusRecorder) WriteHeader(status int) {
	recorder.status = status
	recorder.ResponseWriter.WriteHeader(status)
}

// Hijack keeps websocket upgrades working behind the recorder.
func (recorder *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := recorder.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	recorder.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (mw *LogRequestMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		for _, prefix := range mw.excludePrefixes {
			if strings.HasPrefix(req.URL.Path, prefix) {
				next.ServeHTTP(rw, req)
				return
			}
		}
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: rw, status: http.StatusOK}
		next.ServeHTTP(recorder, req)
		mw.logger.Info().
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Str("remote", mw.getRemoteAddr(req)).
			Int("status", recorder.status).
			Dur("latency", time.Since(start)).
			Msg("completed handling request")
	})
}
