package web

import (
	"net/http"
	"subuk/gamemango/lifecycle"
	"subuk/gamemango/manager"
	"sync"

	"github.com/gorilla/mux"
)

type infoResponse struct {
	Online  int      `json:"online"`
	Max     int      `json:"max,omitempty"`
	Players []string `json:"players,omitempty"`
	Ip      string   `json:"ip"`
	Port    int      `json:"port"`
}

func newInfoResponse(info *manager.ServerInfo) *infoResponse {
	if info == nil {
		return nil
	}
	return &infoResponse{Online: info.Online, Max: info.Max, Players: info.Players, Ip: info.Ip, Port: info.Port}
}

type noticeResponse struct {
	Kind    string        `json:"kind"`
	Server  string        `json:"server"`
	Op      string        `json:"op"`
	Message string        `json:"message"`
	Info    *infoResponse `json:"info,omitempty"`
}

func (env *Environ) noticeResponse(notice lifecycle.Notice) noticeResponse {
	return noticeResponse{
		Kind:    notice.Kind.String(),
		Server:  notice.Server,
		Op:      notice.Op,
		Message: env.catalog.Render(notice),
		Info:    newInfoResponse(notice.Info),
	}
}

type operationResponse struct {
	Notices []noticeResponse `json:"notices"`
	Error   string           `json:"error,omitempty"`
}

// noticeCollector keeps the notices emitted while a request is served.
type noticeCollector struct {
	mutex   sync.Mutex
	env     *Environ
	notices []noticeResponse
}

func (collector *noticeCollector) Notify(notice lifecycle.Notice) {
	collector.mutex.Lock()
	defer collector.mutex.Unlock()
	collector.notices = append(collector.notices, collector.env.noticeResponse(notice))
}

func (collector *noticeCollector) response(err error) operationResponse {
	collector.mutex.Lock()
	defer collector.mutex.Unlock()
	response := operationResponse{Notices: append([]noticeResponse{}, collector.notices...)}
	if err != nil {
		response.Error = err.Error()
	}
	return response
}

type serverResponse struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	ModpackLink string `json:"modpack_link,omitempty"`
	Busy        bool   `json:"busy"`
	Watch       string `json:"watch,omitempty"`
	IdleCheck   bool   `json:"idle_check"`
}

func (env *Environ) ServerList(rw http.ResponseWriter, req *http.Request) {
	servers := []serverResponse{}
	for _, name := range env.service.Names() {
		mgr, err := env.service.Manager(name)
		if err != nil {
			continue
		}
		server := serverResponse{
			Name:        name,
			Type:        mgr.Config().Type,
			ModpackLink: mgr.Config().ModpackLink,
			Busy:        mgr.Busy(),
			IdleCheck:   mgr.Interval().Active(),
		}
		if watch := env.service.Watch(name); watch != nil {
			server.Watch = watch.State().String()
		}
		servers = append(servers, server)
	}
	if err := env.render.JSON(rw, http.StatusOK, servers); err != nil {
		env.error(rw, req, err, http.StatusInternalServerError)
	}
}

func (env *Environ) ServerStats(rw http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	info, err := env.service.Stats(req.Context(), name, nil)
	if err != nil {
		env.error(rw, req, err, statusFor(err))
		return
	}
	if err := env.render.JSON(rw, http.StatusOK, newInfoResponse(info)); err != nil {
		env.error(rw, req, err, http.StatusInternalServerError)
	}
}

// ServerOpen answers once the instance start is accepted; progress is
// streamed on the events endpoint.
func (env *Environ) ServerOpen(rw http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	collector := &noticeCollector{env: env}
	err := env.service.Open(req.Context(), name, collector)
	status := http.StatusAccepted
	if err != nil {
		status = statusFor(err)
	}
	if err := env.render.JSON(rw, status, collector.response(err)); err != nil {
		env.error(rw, req, err, http.StatusInternalServerError)
	}
}

func (env *Environ) ServerStop(rw http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	collector := &noticeCollector{env: env}
	err := env.service.Stop(req.Context(), name, collector)
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	} else {
		for _, notice := range collector.response(nil).Notices {
			if notice.Kind == lifecycle.NoticeServerNotEmpty.String() {
				status = http.StatusConflict
			}
		}
	}
	if err := env.render.JSON(rw, status, collector.response(err)); err != nil {
		env.error(rw, req, err, http.StatusInternalServerError)
	}
}

func (env *Environ) ServerEvents(rw http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	if _, err := env.service.Manager(name); err != nil {
		env.error(rw, req, err, statusFor(err))
		return
	}
	conn, err := env.ws.Upgrade(rw, req, nil)
	if err != nil {
		env.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	notices, unsubscribe := env.hub.Subscribe(name)
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case notice := <-notices:
			if err := conn.WriteJSON(env.noticeResponse(notice)); err != nil {
				env.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}
