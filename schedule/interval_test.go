package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type IntervalTestSuite struct {
	suite.Suite
	Calls    int32
	Interval *Interval
}

func (suite *IntervalTestSuite) SetupTest() {
	atomic.StoreInt32(&suite.Calls, 0)
	suite.Interval = NewInterval(10*time.Second, suite.callback)
}

func (suite *IntervalTestSuite) TearDownTest() {
	suite.Interval.Stop()
}

func (suite *IntervalTestSuite) callback() {
	atomic.AddInt32(&suite.Calls, 1)
}

func (suite *IntervalTestSuite) calls() int32 {
	return atomic.LoadInt32(&suite.Calls)
}

func (suite *IntervalTestSuite) TestStart() {
	suite.True(suite.Interval.Start())
	suite.True(suite.Interval.Active())
}

func (suite *IntervalTestSuite) TestStopAfterStart() {
	suite.True(suite.Interval.Start())
	suite.False(suite.Interval.Stop())
	suite.False(suite.Interval.Active())
}

func (suite *IntervalTestSuite) TestActiveState() {
	suite.False(suite.Interval.Active())
	suite.True(suite.Interval.Start())
	suite.True(suite.Interval.Active())
	suite.False(suite.Interval.Stop())
	suite.False(suite.Interval.Active())
}

func (suite *IntervalTestSuite) TestStartStarted() {
	suite.True(suite.Interval.Start())
	suite.True(suite.Interval.Start())
}

func (suite *IntervalTestSuite) TestStopStopped() {
	suite.False(suite.Interval.Stop())
	suite.False(suite.Interval.Active())
}

func (suite *IntervalTestSuite) TestResetKeepsPeriod() {
	suite.True(suite.Interval.Start())
	suite.True(suite.Interval.Reset())
	suite.Equal(10*time.Second, suite.Interval.Period())
}

func (suite *IntervalTestSuite) TestResetStopped() {
	suite.True(suite.Interval.Reset())
}

func (suite *IntervalTestSuite) TestResetPeriod() {
	suite.True(suite.Interval.ResetPeriod(5 * time.Second))
	suite.Equal(5*time.Second, suite.Interval.Period())
}

func (suite *IntervalTestSuite) TestZeroPeriodDisabled() {
	suite.False(suite.Interval.ResetPeriod(0))
	suite.False(suite.Interval.Start())
	suite.False(suite.Interval.Active())
}

func (suite *IntervalTestSuite) TestResetFiresAfterPeriod() {
	suite.Interval.ResetPeriod(200 * time.Millisecond)
	suite.Equal(int32(0), suite.calls())
	time.Sleep(400 * time.Millisecond)
	suite.GreaterOrEqual(suite.calls(), int32(1))
}

func (suite *IntervalTestSuite) TestRepeatedStartKeepsSingleTicker() {
	suite.Interval.ResetPeriod(100 * time.Millisecond)
	suite.Interval.Start()
	suite.Interval.Start()
	time.Sleep(350 * time.Millisecond)
	suite.Interval.Stop()
	suite.LessOrEqual(suite.calls(), int32(4))
	suite.GreaterOrEqual(suite.calls(), int32(2))
}

func (suite *IntervalTestSuite) TestNoFiringAfterStop() {
	suite.Interval.ResetPeriod(50 * time.Millisecond)
	time.Sleep(120 * time.Millisecond)
	suite.Interval.Stop()
	calls := suite.calls()
	time.Sleep(150 * time.Millisecond)
	suite.Equal(calls, suite.calls())
}

func TestIntervalTestSuite(t *testing.T) {
	suite.Run(t, new(IntervalTestSuite))
}

func TestRealSchedulerStop(t *testing.T) {
	var fired int32
	timer := Real().AfterFunc(time.Hour, func() { atomic.StoreInt32(&fired, 1) })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestRealSchedulerFires(t *testing.T) {
	fired := make(chan struct{})
	Real().AfterFunc(10*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("scheduled function did not run")
	}
}
