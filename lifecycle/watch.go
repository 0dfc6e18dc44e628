package lifecycle

import (
	"context"
	"errors"
	"subuk/gamemango/compute"
	"subuk/gamemango/manager"
	"subuk/gamemango/schedule"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type WatchState int

const (
	WatchAwaitingInstance = WatchState(iota)
	WatchAwaitingService
	WatchDone
	WatchFailed
	WatchCancelled
)

func (state WatchState) String() string {
	switch state {
	default:
		return "unknown"
	case WatchAwaitingInstance:
		return "awaiting-instance"
	case WatchAwaitingService:
		return "awaiting-service"
	case WatchDone:
		return "done"
	case WatchFailed:
		return "failed"
	case WatchCancelled:
		return "cancelled"
	}
}

func (state WatchState) terminal() bool {
	return state == WatchDone || state == WatchFailed || state == WatchCancelled
}

type WatchOptions struct {
	InstancePoll time.Duration
	ServicePoll  time.Duration
	// Zero means unbounded.
	MaxInstancePolls int
	MaxServicePolls  int
}

func DefaultWatchOptions() WatchOptions {
	return WatchOptions{InstancePoll: 8 * time.Second, ServicePoll: 20 * time.Second}
}

// Watch follows a server from instance start until the game server answers.
// Every step is scheduled through the scheduler, never run in a loop.
type Watch struct {
	mutex     sync.Mutex
	manager   manager.Manager
	scheduler schedule.Scheduler
	options   WatchOptions
	notifier  Notifier
	logger    zerolog.Logger
	op        string
	onFinish  func(state WatchState)

	state   WatchState
	polls   int
	timer   schedule.Timer
	started time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func newWatch(ctx context.Context, mgr manager.Manager, scheduler schedule.Scheduler, options WatchOptions, notifier Notifier, logger zerolog.Logger, op string) *Watch {
	watchCtx, cancel := context.WithCancel(ctx)
	return &Watch{
		manager:   mgr,
		scheduler: scheduler,
		options:   options,
		notifier:  notifier,
		logger:    logger,
		op:        op,
		started:   time.Now(),
		ctx:       watchCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (watch *Watch) begin(state WatchState) {
	watch.mutex.Lock()
	watch.state = state
	watch.polls = 0
	watch.mutex.Unlock()
	watch.logger.Debug().Str("state", state.String()).Msg("watch started")
	watch.schedule(0)
}

func (watch *Watch) State() WatchState {
	watch.mutex.Lock()
	defer watch.mutex.Unlock()
	return watch.state
}

// Done is closed once the watch reaches a terminal state.
func (watch *Watch) Done() <-chan struct{} {
	return watch.done
}

func (watch *Watch) Cancel() {
	watch.finish(WatchCancelled, nil)
}

func (watch *Watch) schedule(delay time.Duration) {
	watch.mutex.Lock()
	defer watch.mutex.Unlock()
	if watch.state.terminal() {
		return
	}
	watch.timer = watch.scheduler.AfterFunc(delay, watch.step)
}

func (watch *Watch) transition(state WatchState) {
	watch.mutex.Lock()
	defer watch.mutex.Unlock()
	if watch.state.terminal() {
		return
	}
	watch.state = state
	watch.polls = 0
}

func (watch *Watch) finish(state WatchState, notice *Notice) {
	watch.mutex.Lock()
	if watch.state.terminal() {
		watch.mutex.Unlock()
		return
	}
	watch.state = state
	if watch.timer != nil {
		watch.timer.Stop()
		watch.timer = nil
	}
	watch.cancel()
	close(watch.done)
	watch.mutex.Unlock()

	watch.logger.Debug().Str("state", state.String()).Dur("elapsed", time.Since(watch.started)).Msg("watch finished")
	if notice != nil {
		watch.notify(*notice)
	}
	if watch.onFinish != nil {
		watch.onFinish(state)
	}
}

func (watch *Watch) notify(notice Notice) {
	notice.Server = watch.manager.Name()
	notice.Op = watch.op
	watch.notifier.Notify(notice)
}

// nextPoll counts a poll and reports whether the bound allows it.
func (watch *Watch) nextPoll() (WatchState, bool) {
	watch.mutex.Lock()
	defer watch.mutex.Unlock()
	watch.timer = nil
	watch.polls++
	limit := watch.options.MaxInstancePolls
	if watch.state == WatchAwaitingService {
		limit = watch.options.MaxServicePolls
	}
	return watch.state, limit == 0 || watch.polls <= limit
}

func (watch *Watch) step() {
	if watch.ctx.Err() != nil {
		return
	}
	state, allowed := watch.nextPoll()
	if state.terminal() {
		return
	}
	if !allowed {
		watch.logger.Warn().Str("state", state.String()).Msg("watch poll limit reached")
		watch.finish(WatchFailed, &Notice{Kind: NoticeWatchGaveUp})
		return
	}
	switch state {
	case WatchAwaitingInstance:
		watch.pollInstance()
	case WatchAwaitingService:
		watch.pollService()
	}
}

func (watch *Watch) pollInstance() {
	instance, err := watch.manager.GetInstance(watch.ctx)
	if watch.ctx.Err() != nil {
		return
	}
	if err != nil {
		watch.logger.Error().Err(err).Msg("cannot describe instance while waiting for it")
		watch.finish(WatchFailed, &Notice{Kind: NoticeErrorDescribing, Err: err})
		return
	}
	switch instance.State {
	case compute.InstanceStateRunning:
		watch.logger.Debug().Msg("instance running, waiting for server")
		watch.transition(WatchAwaitingService)
		watch.notify(Notice{Kind: NoticeInstanceStartedWaitingServer})
		watch.schedule(0)
	case compute.InstanceStatePending, compute.InstanceStateStopped:
		watch.logger.Debug().Str("state", instance.State.String()).Dur("retry", watch.options.InstancePoll).Msg("instance not running yet")
		watch.schedule(watch.options.InstancePoll)
	default:
		watch.logger.Info().Str("state", instance.State.String()).Msg("unexpected instance state while starting")
		watch.finish(WatchFailed, &Notice{Kind: NoticePleaseWaitInstanceState, State: instance.State})
	}
}

func (watch *Watch) pollService() {
	info, err := watch.manager.GetInfo(watch.ctx)
	if watch.ctx.Err() != nil {
		return
	}
	if err == nil {
		watch.logger.Info().Int("online", info.Online).Msg("server opened")
		watch.finish(WatchDone, &Notice{Kind: NoticeServerOpened, Info: info, Online: info.Online, Elapsed: time.Since(watch.started)})
		return
	}
	notRunning := &manager.NotRunningError{}
	if errors.As(err, &notRunning) {
		watch.logger.Info().Str("state", notRunning.State.String()).Msg("instance left running state while waiting for server")
		watch.finish(WatchFailed, &Notice{Kind: NoticeInstanceNotRunning, State: notRunning.State})
		return
	}
	timeoutErr := &manager.TimeoutError{}
	if errors.As(err, &timeoutErr) {
		// the probe already spent its wait
		watch.logger.Debug().Err(err).Msg("server still opening")
		watch.schedule(0)
		return
	}
	watch.logger.Debug().Err(err).Dur("retry", watch.options.ServicePoll).Msg("server not answering")
	watch.schedule(watch.options.ServicePoll)
}
