package web

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"subuk/gamemango/config"
	"subuk/gamemango/lifecycle"
	"subuk/gamemango/manager"
	"subuk/gamemango/messages"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/unrolled/render"
)

type Environ struct {
	render  *render.Render
	logger  zerolog.Logger
	router  *mux.Router
	service *lifecycle.Service
	catalog *messages.Catalog
	hub     *Hub
	ws      *websocket.Upgrader
	token   string
}

// New builds the HTTP API. Every /api route requires the bearer token.
func New(cfg *config.WebConfig, token string, logger zerolog.Logger, service *lifecycle.Service, catalog *messages.Catalog, gatherer prometheus.Gatherer) *Environ {
	env := &Environ{
		render:  render.New(render.Options{IndentJSON: true}),
		logger:  logger.With().Str("component", "web").Logger(),
		router:  mux.NewRouter(),
		service: service,
		catalog: catalog,
		ws:      &websocket.Upgrader{},
		token:   token,
	}
	env.hub = NewHub(env.logger)
	service.Observe(env.hub)

	router := env.router
	router.Use(NewLogRequestMiddleware(env.logger, cfg.TrustedProxies, []string{"/metrics"}).Middleware)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Name("metrics")

	router.HandleFunc("/api/servers/", env.authenticated(env.ServerList)).Methods("GET").Name("server-list")
	router.HandleFunc("/api/servers/{name}/", env.authenticated(env.ServerStats)).Methods("GET").Name("server-stats")
	router.HandleFunc("/api/servers/{name}/open/", env.authenticated(env.ServerOpen)).Methods("POST").Name("server-open")
	router.HandleFunc("/api/servers/{name}/stop/", env.authenticated(env.ServerStop)).Methods("POST").Name("server-stop")
	router.HandleFunc("/api/servers/{name}/events/", env.authenticated(env.ServerEvents)).Methods("GET").Name("server-events")
	return env
}

func (env *Environ) Hub() *Hub {
	return env.hub
}

type errorResponse struct {
	Error string `json:"error"`
}

func (env *Environ) error(rw http.ResponseWriter, req *http.Request, err error, status int) {
	if status >= http.StatusInternalServerError {
		env.logger.Warn().Int("status", status).Err(err).Str("path", req.URL.Path).Msg("request error occured")
	}
	if renderErr := env.render.JSON(rw, status, errorResponse{Error: err.Error()}); renderErr != nil {
		http.Error(rw, "failed to render response", http.StatusInternalServerError)
	}
}

// statusFor maps operation errors to HTTP statuses.
func statusFor(err error) int {
	notRunning := &manager.NotRunningError{}
	timeout := &manager.TimeoutError{}
	switch {
	case errors.Is(err, lifecycle.ErrUnknownServer):
		return http.StatusNotFound
	case errors.Is(err, manager.ErrOperationInProgress), errors.As(err, &notRunning):
		return http.StatusConflict
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (env *Environ) bearer(req *http.Request) string {
	header := req.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// browsers cannot set headers on websocket requests
	return req.URL.Query().Get("token")
}

func (env *Environ) authenticated(handler http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		given := env.bearer(req)
		if env.token == "" || subtle.ConstantTimeCompare([]byte(given), []byte(env.token)) != 1 {
			env.error(rw, req, errors.New("unauthorized"), http.StatusUnauthorized)
			return
		}
		handler(rw, req)
	}
}

func (env *Environ) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	env.router.ServeHTTP(rw, req)
}
