package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"subuk/gamemango/compute"
	"subuk/gamemango/config"
	"subuk/gamemango/ping"
	"subuk/gamemango/remote"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
)

type ManagerTestSuite struct {
	suite.Suite
	Logger         zerolog.Logger
	Server         *config.ServerConfig
	Instances      *compute.StubInstanceRepository
	Pinger         *ping.StubPinger
	Executor       *remote.StubExecutor
	Factory        *Factory
	InstancesBound int
}

func (suite *ManagerTestSuite) SetupTest() {
	suite.Logger = zerolog.Nop()
	suite.Server = &config.ServerConfig{
		Name:            "survival",
		Type:            config.TypeMinecraft,
		InstanceId:      "i-0123",
		Region:          "us-east-1",
		Port:            25565,
		SSHUser:         "ec2-user",
		SSHKeyPath:      "/keys/mc.pem",
		SSHPort:         22,
		CloseScriptPath: "./close.sh",
	}
	suite.Instances = &compute.StubInstanceRepository{}
	suite.Pinger = &ping.StubPinger{}
	suite.Executor = &remote.StubExecutor{}
	suite.InstancesBound = 0
	suite.Factory = &Factory{
		Logger:        &suite.Logger,
		CheckInterval: time.Hour,
		Credentials:   config.Credentials{AWSAccessKeyId: "AKIA", AWSSecretAccessKey: "secret"},
		Timings:       Timings{PingTimeout: time.Second, ShutdownGrace: 10 * time.Millisecond},
		Instances: func(server *config.ServerConfig) (compute.InstanceRepository, error) {
			suite.InstancesBound++
			return suite.Instances, nil
		},
		Pinger:   suite.Pinger,
		Executor: suite.Executor,
	}
}

func (suite *ManagerTestSuite) running(ip string) {
	suite.Instances.GetResponses = []compute.StubInstanceResponse{
		{Instance: &compute.Instance{State: compute.InstanceStateRunning, PublicIpAddress: ip}},
	}
}

func (suite *ManagerTestSuite) stopped() {
	suite.Instances.GetResponses = []compute.StubInstanceResponse{
		{Instance: &compute.Instance{State: compute.InstanceStateStopped}},
	}
}

func (suite *ManagerTestSuite) create() *MinecraftManager {
	manager, err := suite.Factory.Create(suite.Server)
	suite.Require().NoError(err)
	suite.T().Cleanup(manager.Close)
	minecraft, ok := manager.(*MinecraftManager)
	suite.Require().True(ok)
	return minecraft
}

func (suite *ManagerTestSuite) TestFactoryMinecraft() {
	manager, err := suite.Factory.Create(suite.Server)
	suite.Require().NoError(err)
	defer manager.Close()
	suite.IsType(&MinecraftManager{}, manager)
	suite.Equal("survival", manager.Name())
	suite.Equal(suite.Server, manager.Config())
	suite.Equal(time.Hour, manager.Interval().Period())
	suite.False(manager.Interval().Active())
	suite.Equal(1, suite.InstancesBound)
}

func (suite *ManagerTestSuite) TestFactoryUnsupportedType() {
	suite.Server.Type = "terraria"
	manager, err := suite.Factory.Create(suite.Server)
	suite.Nil(manager)
	unsupported := &UnsupportedServerError{}
	suite.Require().True(errors.As(err, &unsupported))
	suite.Equal("terraria", unsupported.Type)
	suite.EqualError(err, "unknown/unsupported server type: terraria")
	suite.Equal(0, suite.InstancesBound)
}

func (suite *ManagerTestSuite) TestFactoryBindError() {
	suite.Factory.Instances = func(server *config.ServerConfig) (compute.InstanceRepository, error) {
		return nil, errors.New("no region")
	}
	_, err := suite.Factory.Create(suite.Server)
	suite.EqualError(err, "cannot bind instance for server survival: no region")
}

func (suite *ManagerTestSuite) params() Params {
	return Params{
		Logger:        &suite.Logger,
		CheckInterval: time.Minute,
		Config:        suite.Server,
		Credentials:   suite.Factory.Credentials,
		Instances:     suite.Instances,
		Pinger:        suite.Pinger,
		Executor:      suite.Executor,
	}
}

func (suite *ManagerTestSuite) TestConstruction() {
	manager, err := NewMinecraftManager(suite.params())
	suite.Require().NoError(err)
	manager.Close()
	suite.Equal(DefaultTimings(), manager.timings)
}

func (suite *ManagerTestSuite) TestConstructionFailures() {
	cases := map[string]func(params *Params){
		"logger not specified":                     func(params *Params) { params.Logger = nil },
		"check interval must not be negative":      func(params *Params) { params.CheckInterval = -time.Second },
		"server config not specified":              func(params *Params) { params.Config = nil },
		"aws credentials not found in environment": func(params *Params) { params.Credentials = config.Credentials{AWSAccessKeyId: "AKIA"} },
		"instance repository not specified":        func(params *Params) { params.Instances = nil },
		"pinger not specified":                     func(params *Params) { params.Pinger = nil },
		"remote executor not specified":            func(params *Params) { params.Executor = nil },
	}
	for expected, mutate := range cases {
		params := suite.params()
		mutate(&params)
		manager, err := NewMinecraftManager(params)
		suite.Nil(manager, expected)
		suite.EqualError(err, expected)
	}
}

func (suite *ManagerTestSuite) TestZeroIntervalDisablesIdleCheck() {
	params := suite.params()
	params.CheckInterval = 0
	manager, err := NewMinecraftManager(params)
	suite.Require().NoError(err)
	defer manager.Close()
	suite.False(manager.StartInterval())
}

func (suite *ManagerTestSuite) TestGetInstanceLookupError() {
	manager := suite.create()
	_, err := manager.GetInstance(context.Background())
	lookupErr := &compute.LookupError{}
	suite.True(errors.As(err, &lookupErr))
}

func (suite *ManagerTestSuite) TestGetInfoNotRunning() {
	suite.stopped()
	manager := suite.create()
	info, err := manager.GetInfo(context.Background())
	suite.Nil(info)
	notRunning := &NotRunningError{}
	suite.Require().True(errors.As(err, &notRunning))
	suite.Equal(compute.InstanceStateStopped, notRunning.State)
	suite.Equal(0, suite.Pinger.Calls())
}

func (suite *ManagerTestSuite) TestGetInfo() {
	suite.running("1.2.3.4")
	suite.Pinger.PingResponses = []ping.StubPingResponse{
		{Status: &ping.Status{Online: 2, Max: 20, Sample: []string{"alex", "steve"}}},
	}
	manager := suite.create()
	info, err := manager.GetInfo(context.Background())
	suite.Require().NoError(err)
	suite.Equal(&ServerInfo{Online: 2, Max: 20, Players: []string{"alex", "steve"}, Ip: "1.2.3.4", Port: 25565}, info)
	suite.Equal([]string{"1.2.3.4"}, suite.Pinger.Hosts())
}

func (suite *ManagerTestSuite) TestGetInfoWithoutSample() {
	suite.running("1.2.3.4")
	suite.Pinger.PingResponses = []ping.StubPingResponse{{Status: &ping.Status{Online: 0, Max: 20}}}
	manager := suite.create()
	info, err := manager.GetInfo(context.Background())
	suite.Require().NoError(err)
	suite.Nil(info.Players)
}

func (suite *ManagerTestSuite) TestGetInfoTimeout() {
	hang := make(chan struct{})
	defer close(hang)
	suite.running("1.2.3.4")
	suite.Pinger.PingResponses = []ping.StubPingResponse{{Hang: hang}}
	suite.Factory.Timings.PingTimeout = 50 * time.Millisecond
	manager := suite.create()

	started := time.Now()
	_, err := manager.GetInfo(context.Background())
	timeoutErr := &TimeoutError{}
	suite.Require().True(errors.As(err, &timeoutErr))
	suite.Equal(50*time.Millisecond, timeoutErr.After)
	suite.Less(time.Since(started), time.Second)
}

func (suite *ManagerTestSuite) TestGetInfoProbeError() {
	suite.running("1.2.3.4")
	suite.Pinger.PingResponses = []ping.StubPingResponse{
		{Error: &ping.ProbeError{Code: ping.CodeRefused, Err: errors.New("connection refused")}},
	}
	manager := suite.create()
	_, err := manager.GetInfo(context.Background())
	suite.Equal(ping.CodeRefused, ping.ErrorCode(err))
}

func (suite *ManagerTestSuite) TestStartInstanceArmsInterval() {
	manager := suite.create()
	suite.Require().NoError(manager.StartInstance(context.Background()))
	suite.True(manager.Interval().Active())
	suite.Equal(1, suite.Instances.StartCalls())
}

func (suite *ManagerTestSuite) TestStartInstanceFailureStillArmsInterval() {
	suite.Instances.StartResponse = errors.New("insufficient capacity")
	manager := suite.create()
	suite.EqualError(manager.StartInstance(context.Background()), "insufficient capacity")
	suite.True(manager.Interval().Active())
}

func (suite *ManagerTestSuite) TestCloseServerNotRunning() {
	suite.stopped()
	manager := suite.create()
	err := manager.CloseServer(context.Background())
	notRunning := &NotRunningError{}
	suite.Require().True(errors.As(err, &notRunning))
	suite.Empty(suite.Executor.Calls())
	suite.Equal(0, suite.Instances.StopCalls())
}

func (suite *ManagerTestSuite) TestCloseServerRemoteFailure() {
	suite.running("1.2.3.4")
	suite.Executor.RunResponse = errors.New("permission denied")
	manager := suite.create()
	manager.StartInterval()
	err := manager.CloseServer(context.Background())
	suite.EqualError(err, "cannot run close script on survival: permission denied")
	suite.Equal(0, suite.Instances.StopCalls())
	suite.True(manager.Interval().Active())
}

func (suite *ManagerTestSuite) TestCloseServerRemoteFailureStopsWhenConfigured() {
	suite.running("1.2.3.4")
	suite.Server.StopOnCloseFailure = true
	suite.Executor.RunResponse = errors.New("permission denied")
	manager := suite.create()
	manager.StartInterval()
	suite.Require().NoError(manager.CloseServer(context.Background()))
	suite.Equal(1, suite.Instances.StopCalls())
	suite.False(manager.Interval().Active())
}

func (suite *ManagerTestSuite) TestCloseScriptTimeout() {
	suite.running("1.2.3.4")
	suite.Executor.Hang = true
	suite.Factory.Timings.CloseTimeout = 50 * time.Millisecond
	manager := suite.create()

	done := make(chan error, 1)
	go func() { done <- manager.CloseServer(context.Background()) }()
	select {
	case err := <-done:
		suite.True(errors.Is(err, context.DeadlineExceeded))
	case <-time.After(2 * time.Second):
		suite.Fail("close script not bounded by the close timeout")
	}
	suite.Equal(0, suite.Instances.StopCalls())
	suite.False(manager.Busy())
}

func (suite *ManagerTestSuite) TestIdleCheckReleasesGateAfterCloseTimeout() {
	suite.running("1.2.3.4")
	suite.Pinger.PingResponses = []ping.StubPingResponse{{Status: &ping.Status{Online: 0, Max: 20}}}
	suite.Executor.Hang = true
	suite.Factory.Timings.CloseTimeout = 50 * time.Millisecond
	manager := suite.create()

	manager.CheckShouldClose(context.Background())
	suite.False(manager.Busy())
	suite.Len(suite.Executor.Calls(), 1)

	manager.CheckShouldClose(context.Background())
	suite.Len(suite.Executor.Calls(), 2)
}

func (suite *ManagerTestSuite) TestCloseServerStopFailureKeepsInterval() {
	suite.running("1.2.3.4")
	suite.Instances.StopResponse = errors.New("throttled")
	manager := suite.create()
	manager.StartInterval()
	suite.EqualError(manager.CloseServer(context.Background()), "throttled")
	suite.True(manager.Interval().Active())
}

func (suite *ManagerTestSuite) TestCloseServerCancelledDuringGrace() {
	suite.running("1.2.3.4")
	suite.Factory.Timings.ShutdownGrace = time.Hour
	manager := suite.create()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := manager.CloseServer(ctx)
	suite.True(errors.Is(err, context.DeadlineExceeded))
	suite.Equal(0, suite.Instances.StopCalls())
	suite.False(manager.Busy())
}

func (suite *ManagerTestSuite) TestIdleCheckClosesEmptyServer() {
	suite.running("1.2.3.4")
	suite.Pinger.PingResponses = []ping.StubPingResponse{{Status: &ping.Status{Online: 0, Max: 20}}}
	manager := suite.create()
	suite.True(manager.StartInterval())

	manager.CheckShouldClose(context.Background())

	calls := suite.Executor.Calls()
	suite.Require().Len(calls, 1)
	suite.Equal("./close.sh", calls[0].Command)
	suite.Equal(remote.Target{User: "ec2-user", Host: "1.2.3.4", Port: 22, KeyPath: "/keys/mc.pem"}, calls[0].Target)
	suite.Equal(1, suite.Instances.StopCalls())
	suite.False(manager.Interval().Active())
}

func (suite *ManagerTestSuite) TestIdleCheckKeepsOccupiedServer() {
	suite.running("1.2.3.4")
	suite.Pinger.PingResponses = []ping.StubPingResponse{{Status: &ping.Status{Online: 3, Max: 20}}}
	manager := suite.create()
	manager.StartInterval()
	manager.CheckShouldClose(context.Background())
	suite.Empty(suite.Executor.Calls())
	suite.True(manager.Interval().Active())
}

func (suite *ManagerTestSuite) TestIdleCheckSkipsOnPingFailure() {
	suite.running("1.2.3.4")
	suite.Pinger.PingResponses = []ping.StubPingResponse{{Error: errors.New("EOF")}}
	manager := suite.create()
	manager.StartInterval()
	manager.CheckShouldClose(context.Background())
	suite.Empty(suite.Executor.Calls())
	suite.True(manager.Interval().Active())
}

func (suite *ManagerTestSuite) TestIdleCheckIsNotReentrant() {
	suite.running("1.2.3.4")
	suite.Pinger.PingResponses = []ping.StubPingResponse{{Status: &ping.Status{Online: 0, Max: 20}}}
	suite.Factory.Timings.ShutdownGrace = 200 * time.Millisecond
	manager := suite.create()
	manager.StartInterval()

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		manager.CheckShouldClose(context.Background())
	}()
	suite.Require().Eventually(func() bool { return len(suite.Executor.Calls()) == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 5; i++ {
		manager.CheckShouldClose(context.Background())
	}
	suite.Equal(ErrOperationInProgress, manager.CloseServer(context.Background()))
	wg.Wait()

	suite.Len(suite.Executor.Calls(), 1)
	suite.Equal(1, suite.Instances.StopCalls())
	suite.False(manager.Busy())
}

func (suite *ManagerTestSuite) TestIntervalDrivesIdleCheck() {
	suite.running("1.2.3.4")
	suite.Pinger.PingResponses = []ping.StubPingResponse{{Status: &ping.Status{Online: 0, Max: 20}}}
	suite.Factory.CheckInterval = 20 * time.Millisecond
	manager := suite.create()
	manager.StartInterval()
	suite.Require().Eventually(func() bool { return suite.Instances.StopCalls() == 1 }, time.Second, 5*time.Millisecond)
	suite.Eventually(func() bool { return !manager.Interval().Active() }, time.Second, 5*time.Millisecond)
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}
