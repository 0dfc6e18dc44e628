// Package lifecycle implements the open, stop and stats operations on
// named servers and the watches that follow a server while it boots.
package lifecycle

import (
	"context"
	"errors"
	"subuk/gamemango/compute"
	"subuk/gamemango/manager"
	"subuk/gamemango/metrics"
	"subuk/gamemango/schedule"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrUnknownServer = errors.New("unknown server")

type Service struct {
	registry  *manager.Registry
	scheduler schedule.Scheduler
	options   WatchOptions
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	mutex     sync.Mutex
	watches   map[string]*Watch
	opening   map[string]bool
	observers []Notifier
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewService(registry *manager.Registry, scheduler schedule.Scheduler, options WatchOptions, logger zerolog.Logger, metrics *metrics.Metrics) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		registry:  registry,
		scheduler: scheduler,
		options:   options,
		metrics:   metrics,
		logger:    logger.With().Str("component", "lifecycle").Logger(),
		watches:   map[string]*Watch{},
		opening:   map[string]bool{},
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Observe registers a notifier receiving the notices of every operation.
func (service *Service) Observe(notifier Notifier) {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	service.observers = append(service.observers, notifier)
}

func (service *Service) Names() []string {
	return service.registry.Names()
}

func (service *Service) Manager(name string) (manager.Manager, error) {
	mgr, ok := service.registry.Get(name)
	if !ok {
		return nil, ErrUnknownServer
	}
	return mgr, nil
}

// Watch returns the active watch of a server, nil if there is none.
func (service *Service) Watch(name string) *Watch {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	return service.watches[name]
}

type request struct {
	name     string
	op       string
	logger   zerolog.Logger
	notifier Notifier
}

func (service *Service) begin(name string, action string, notifier Notifier) request {
	service.mutex.Lock()
	notifiers := multiNotifier{notifier}
	notifiers = append(notifiers, service.observers...)
	service.mutex.Unlock()
	op := uuid.NewString()
	return request{
		name:     name,
		op:       op,
		logger:   service.logger.With().Str("server", name).Str("op", op).Str("action", action).Logger(),
		notifier: notifiers,
	}
}

func (operation request) notify(notice Notice) {
	notice.Server = operation.name
	notice.Op = operation.op
	operation.notifier.Notify(notice)
}

// Open boots a server: it starts the instance when stopped and watches it
// until the game server answers.
func (service *Service) Open(ctx context.Context, name string, notifier Notifier) error {
	mgr, err := service.Manager(name)
	if err != nil {
		return err
	}
	operation := service.begin(name, "open", notifier)

	service.mutex.Lock()
	// a close sequence may still see the instance running during its grace
	if service.opening[name] || service.watches[name] != nil || mgr.Busy() {
		service.mutex.Unlock()
		operation.logger.Debug().Msg("open already in progress")
		operation.notify(Notice{Kind: NoticeOperationInProgress})
		return manager.ErrOperationInProgress
	}
	service.opening[name] = true
	service.mutex.Unlock()
	defer func() {
		service.mutex.Lock()
		delete(service.opening, name)
		service.mutex.Unlock()
	}()

	instance, err := mgr.GetInstance(ctx)
	if err != nil {
		operation.logger.Error().Err(err).Msg("cannot describe instance")
		operation.notify(Notice{Kind: NoticeErrorDescribing, Err: err})
		return err
	}

	switch {
	case instance.IsRunning():
		operation.logger.Debug().Msg("instance already running, waiting for server")
		operation.notify(Notice{Kind: NoticeInstanceStartedWaitingServer})
		service.startWatch(mgr, operation, WatchAwaitingService)
	case instance.Startable():
		if err := mgr.StartInstance(ctx); err != nil {
			operation.logger.Error().Err(err).Msg("cannot start instance")
			operation.notify(Notice{Kind: NoticeErrorStarting, Err: err})
			return err
		}
		operation.logger.Info().Msg("instance starting")
		operation.notify(Notice{Kind: NoticeInstanceStarting})
		service.startWatch(mgr, operation, WatchAwaitingInstance)
	default:
		operation.logger.Debug().Str("state", instance.State.String()).Msg("instance busy")
		operation.notify(Notice{Kind: NoticePleaseWaitInstanceState, State: instance.State})
	}
	return nil
}

func (service *Service) startWatch(mgr manager.Manager, operation request, state WatchState) {
	watch := newWatch(service.ctx, mgr, service.scheduler, service.options, operation.notifier, operation.logger, operation.op)
	watch.onFinish = func(state WatchState) {
		service.mutex.Lock()
		if service.watches[operation.name] == watch {
			delete(service.watches, operation.name)
		}
		service.mutex.Unlock()
		service.metrics.WatchOutcome(operation.name, state.String())
	}
	service.mutex.Lock()
	service.watches[operation.name] = watch
	service.mutex.Unlock()
	watch.begin(state)
}

func (service *Service) cancelWatch(name string) {
	service.mutex.Lock()
	watch := service.watches[name]
	service.mutex.Unlock()
	if watch != nil {
		watch.Cancel()
	}
}

// Stop closes a server if nobody is playing on it.
func (service *Service) Stop(ctx context.Context, name string, notifier Notifier) error {
	mgr, err := service.Manager(name)
	if err != nil {
		return err
	}
	operation := service.begin(name, "stop", notifier)

	info, err := mgr.GetInfo(ctx)
	if err != nil {
		notRunning := &manager.NotRunningError{}
		if errors.As(err, &notRunning) {
			service.cancelWatch(name)
		}
		return service.infoFailed(operation, err)
	}
	if info.Online > 0 {
		operation.logger.Debug().Int("online", info.Online).Msg("server not empty")
		operation.notify(Notice{Kind: NoticeServerNotEmpty, Online: info.Online, Info: info})
		return nil
	}

	operation.notify(Notice{Kind: NoticeClosingServer, Info: info})
	service.cancelWatch(name)
	// the close sequence must not die with the request that asked for it
	err = mgr.CloseServer(service.ctx)
	notRunning := &manager.NotRunningError{}
	switch {
	case err == nil:
		operation.logger.Info().Msg("server closed")
		operation.notify(Notice{Kind: NoticeServerClosed})
	case errors.Is(err, manager.ErrOperationInProgress):
		operation.logger.Debug().Msg("close already in progress")
		operation.notify(Notice{Kind: NoticeOperationInProgress})
	case errors.As(err, &notRunning):
		operation.notify(Notice{Kind: NoticeInstanceNotRunning, State: notRunning.State})
	default:
		operation.logger.Error().Err(err).Msg("cannot close server")
		operation.notify(Notice{Kind: NoticeErrorClosing, Err: err})
	}
	return err
}

// Stats reports the occupancy of a running server.
func (service *Service) Stats(ctx context.Context, name string, notifier Notifier) (*manager.ServerInfo, error) {
	mgr, err := service.Manager(name)
	if err != nil {
		return nil, err
	}
	operation := service.begin(name, "stats", notifier)
	info, err := mgr.GetInfo(ctx)
	if err != nil {
		return nil, service.infoFailed(operation, err)
	}
	operation.notify(Notice{Kind: NoticeStats, Info: info, Online: info.Online})
	return info, nil
}

func (service *Service) infoFailed(operation request, err error) error {
	notRunning := &manager.NotRunningError{}
	if errors.As(err, &notRunning) {
		operation.logger.Debug().Str("state", notRunning.State.String()).Msg("instance not running")
		operation.notify(Notice{Kind: NoticeInstanceNotRunning, State: notRunning.State})
		return err
	}
	operation.logger.Error().Err(err).Msg("cannot get server info")
	operation.notify(Notice{Kind: NoticeGenericError, Err: err})
	return err
}

// Resume arms the idle check of every server whose instance already runs.
func (service *Service) Resume(ctx context.Context) {
	for _, mgr := range service.registry.All() {
		logger := service.logger.With().Str("server", mgr.Name()).Logger()
		instance, err := mgr.GetInstance(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("cannot describe instance on startup")
			continue
		}
		if instance.State != compute.InstanceStateRunning {
			logger.Debug().Str("state", instance.State.String()).Msg("instance not running")
			continue
		}
		logger.Info().Msg("instance running, arming idle check")
		mgr.StartInterval()
	}
}

// Shutdown cancels all watches and disarms every idle check.
func (service *Service) Shutdown() {
	service.cancel()
	service.mutex.Lock()
	watches := []*Watch{}
	for _, watch := range service.watches {
		watches = append(watches, watch)
	}
	service.mutex.Unlock()
	for _, watch := range watches {
		watch.Cancel()
	}
	service.registry.Close()
}
