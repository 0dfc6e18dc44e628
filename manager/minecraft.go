package manager

import (
	"context"
	"errors"
	"subuk/gamemango/ping"
	"subuk/gamemango/remote"
	"subuk/gamemango/util"
	"time"
)

type MinecraftManager struct {
	*Base
	pinger   ping.Pinger
	executor remote.Executor
	timings  Timings
}

func NewMinecraftManager(params Params) (*MinecraftManager, error) {
	if params.Pinger == nil {
		return nil, errors.New("pinger not specified")
	}
	if params.Executor == nil {
		return nil, errors.New("remote executor not specified")
	}
	timings := params.Timings
	defaults := DefaultTimings()
	if timings.PingTimeout <= 0 {
		timings.PingTimeout = defaults.PingTimeout
	}
	if timings.ShutdownGrace <= 0 {
		timings.ShutdownGrace = defaults.ShutdownGrace
	}
	if timings.CloseTimeout <= 0 {
		timings.CloseTimeout = defaults.CloseTimeout
	}
	manager := &MinecraftManager{
		pinger:   params.Pinger,
		executor: params.Executor,
		timings:  timings,
	}
	base, err := newBase(params, manager.CheckShouldClose)
	if err != nil {
		return nil, err
	}
	manager.Base = base
	return manager, nil
}

type pingResult struct {
	status *ping.Status
	err    error
}

// GetInfo pings the server. The wait is bounded by the ping timeout even
// if the pinger itself never returns.
func (manager *MinecraftManager) GetInfo(ctx context.Context) (*ServerInfo, error) {
	instance, err := manager.GetInstance(ctx)
	if err != nil {
		return nil, err
	}
	if !instance.IsRunning() {
		return nil, &NotRunningError{Server: manager.name, Operation: "get info", State: instance.State}
	}

	pingCtx, cancel := context.WithTimeout(ctx, manager.timings.PingTimeout)
	defer cancel()
	started := time.Now()
	results := make(chan pingResult, 1)
	go func() {
		status, err := manager.pinger.Ping(pingCtx, instance.PublicIpAddress, manager.config.Port)
		results <- pingResult{status: status, err: err}
	}()

	var result pingResult
	select {
	case <-pingCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result.err = &TimeoutError{Server: manager.name, After: manager.timings.PingTimeout}
	case result = <-results:
	}
	if result.err != nil {
		if errors.Is(result.err, context.DeadlineExceeded) && ctx.Err() == nil {
			result.err = &TimeoutError{Server: manager.name, After: manager.timings.PingTimeout}
		}
		manager.metrics.ProbeFailure(manager.name, ping.ErrorCode(result.err))
		manager.logger.Debug().Err(result.err).Msg("ping failed")
		return nil, result.err
	}

	manager.metrics.Probe(manager.name, time.Since(started), result.status.Online)
	return &ServerInfo{
		Online:  result.status.Online,
		Max:     result.status.Max,
		Players: result.status.Sample,
		Ip:      instance.PublicIpAddress,
		Port:    manager.config.Port,
	}, nil
}

// CloseServer runs the close script, waits the grace period and stops the
// instance. Only one close sequence runs at a time per server.
func (manager *MinecraftManager) CloseServer(ctx context.Context) error {
	if !manager.acquire() {
		return ErrOperationInProgress
	}
	defer manager.release()
	return manager.closeServer(ctx)
}

func (manager *MinecraftManager) closeServer(ctx context.Context) error {
	instance, err := manager.GetInstance(ctx)
	if err != nil {
		return err
	}
	if !instance.IsRunning() {
		return &NotRunningError{Server: manager.name, Operation: "close server", State: instance.State}
	}

	target := remote.Target{
		User:           manager.config.SSHUser,
		Host:           instance.PublicIpAddress,
		Port:           manager.config.SSHPort,
		KeyPath:        manager.config.SSHKeyPath,
		KnownHostsPath: manager.config.KnownHosts,
	}
	manager.logger.Info().Str("host", instance.PublicIpAddress).Str("script", manager.config.CloseScriptPath).Msg("running close script")
	runCtx, cancel := context.WithTimeout(ctx, manager.timings.CloseTimeout)
	err = manager.executor.Run(runCtx, target, manager.config.CloseScriptPath)
	cancel()
	if err != nil {
		if !manager.config.StopOnCloseFailure || ctx.Err() != nil {
			return util.NewError(err, "cannot run close script on %s", manager.name)
		}
		manager.logger.Warn().Err(err).Msg("close script failed, stopping instance anyway")
	}

	grace := time.NewTimer(manager.timings.ShutdownGrace)
	defer grace.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-grace.C:
	}
	return manager.stopInstance(ctx)
}

// CheckShouldClose closes the server when nobody is online. Failures only
// skip the cycle.
func (manager *MinecraftManager) CheckShouldClose(ctx context.Context) {
	if !manager.acquire() {
		manager.logger.Debug().Msg("operation in progress, skipping idle check")
		return
	}
	defer manager.release()

	info, err := manager.GetInfo(ctx)
	if err != nil {
		notRunning := &NotRunningError{}
		if errors.As(err, &notRunning) {
			manager.logger.Debug().Str("state", notRunning.State.String()).Msg("instance not running, skipping idle check")
		} else {
			manager.logger.Warn().Err(err).Msg("idle check failed")
		}
		return
	}
	if info.Online > 0 {
		manager.logger.Debug().Int("online", info.Online).Msg("server in use")
		return
	}

	manager.logger.Info().Msg("server empty, closing")
	if err := manager.closeServer(ctx); err != nil {
		manager.logger.Error().Err(err).Msg("idle close failed")
		return
	}
	manager.metrics.IdleShutdown(manager.name)
}
