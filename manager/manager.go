// Package manager binds configured game servers to their cloud instances
// and reaps idle ones.
package manager

import (
	"context"
	"errors"
	"subuk/gamemango/compute"
	"subuk/gamemango/config"
	"subuk/gamemango/metrics"
	"subuk/gamemango/ping"
	"subuk/gamemango/remote"
	"subuk/gamemango/schedule"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type ServerInfo struct {
	Online int
	// Max is zero when the server does not report it.
	Max int
	// Players is nil unless the probe returned a sample.
	Players []string
	Ip      string
	Port    int
}

type Manager interface {
	Name() string
	Config() *config.ServerConfig
	Interval() *schedule.Interval
	GetInstance(ctx context.Context) (*compute.Instance, error)
	StartInstance(ctx context.Context) error
	StartInterval() bool
	CheckShouldClose(ctx context.Context)
	CloseServer(ctx context.Context) error
	GetInfo(ctx context.Context) (*ServerInfo, error)
	Busy() bool
	Close()
}

type Timings struct {
	PingTimeout   time.Duration
	ShutdownGrace time.Duration

	// CloseTimeout bounds the remote close script.
	CloseTimeout time.Duration
}

func DefaultTimings() Timings {
	return Timings{PingTimeout: 20 * time.Second, ShutdownGrace: 10 * time.Second, CloseTimeout: 5 * time.Minute}
}

type Params struct {
	Logger        *zerolog.Logger
	CheckInterval time.Duration
	Config        *config.ServerConfig
	Credentials   config.Credentials
	Instances     compute.InstanceRepository
	Pinger        ping.Pinger
	Executor      remote.Executor
	Metrics       *metrics.Metrics
	Timings       Timings
}

func (params Params) validate() error {
	if params.Logger == nil {
		return errors.New("logger not specified")
	}
	if params.CheckInterval < 0 {
		return errors.New("check interval must not be negative")
	}
	if params.Config == nil {
		return errors.New("server config not specified")
	}
	if !params.Credentials.HasAWS() {
		return errors.New("aws credentials not found in environment")
	}
	return nil
}

// Base holds what every server flavor shares: the instance binding, the
// idle check interval and the operation gate.
type Base struct {
	name      string
	config    *config.ServerConfig
	instances compute.InstanceRepository
	interval  *schedule.Interval
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	inFlight int32
	ctx      context.Context
	cancel   context.CancelFunc
}

func newBase(params Params, check func(ctx context.Context)) (*Base, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if params.Instances == nil {
		return nil, errors.New("instance repository not specified")
	}
	ctx, cancel := context.WithCancel(context.Background())
	base := &Base{
		name:      params.Config.Name,
		config:    params.Config,
		instances: params.Instances,
		metrics:   params.Metrics,
		logger:    params.Logger.With().Str("component", "manager").Str("server", params.Config.Name).Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
	base.interval = schedule.NewInterval(params.CheckInterval, func() {
		check(base.ctx)
	})
	return base, nil
}

func (base *Base) Name() string {
	return base.name
}

func (base *Base) Config() *config.ServerConfig {
	return base.config
}

func (base *Base) Interval() *schedule.Interval {
	return base.interval
}

func (base *Base) GetInstance(ctx context.Context) (*compute.Instance, error) {
	return base.instances.Get(ctx, base.config.InstanceId)
}

// StartInstance returns once the start command is accepted. The idle check
// is armed whatever the outcome.
func (base *Base) StartInstance(ctx context.Context) error {
	err := base.instances.Start(ctx, base.config.InstanceId)
	base.metrics.InstanceOperation(base.name, "start", err)
	base.interval.Start()
	if err != nil {
		base.logger.Error().Err(err).Msg("instance start failed")
		return err
	}
	base.logger.Info().Msg("instance starting")
	return nil
}

func (base *Base) StartInterval() bool {
	base.logger.Debug().Dur("period", base.interval.Period()).Msg("arming idle check")
	return base.interval.Start()
}

// stopInstance disarms the idle check only when the stop was accepted.
func (base *Base) stopInstance(ctx context.Context) error {
	err := base.instances.Stop(ctx, base.config.InstanceId)
	base.metrics.InstanceOperation(base.name, "stop", err)
	if err != nil {
		base.logger.Error().Err(err).Msg("instance stop failed")
		return err
	}
	base.interval.Stop()
	base.logger.Info().Msg("instance stopping")
	return nil
}

func (base *Base) acquire() bool {
	return atomic.CompareAndSwapInt32(&base.inFlight, 0, 1)
}

func (base *Base) release() {
	atomic.StoreInt32(&base.inFlight, 0)
}

// Busy reports whether a close sequence or idle check is running.
func (base *Base) Busy() bool {
	return atomic.LoadInt32(&base.inFlight) == 1
}

// Close disarms the idle check and aborts whatever it is doing.
func (base *Base) Close() {
	base.interval.Stop()
	base.cancel()
}
