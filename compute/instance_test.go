package compute

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceStateString(t *testing.T) {
	assert.Equal(t, "pending", InstanceStatePending.String())
	assert.Equal(t, "running", InstanceStateRunning.String())
	assert.Equal(t, "stopping", InstanceStateStopping.String())
	assert.Equal(t, "stopped", InstanceStateStopped.String())
	assert.Equal(t, "other", InstanceState(99).String())
}

func TestInstanceIsRunning(t *testing.T) {
	assert.True(t, (&Instance{State: InstanceStateRunning}).IsRunning())
	assert.False(t, (&Instance{State: InstanceStatePending}).IsRunning())
	assert.True(t, (&Instance{State: InstanceStateStopped}).Startable())
	assert.False(t, (&Instance{State: InstanceStateStopping}).Startable())
}

func TestLookupErrorAs(t *testing.T) {
	var err error = &LookupError{InstanceId: "i-123"}
	wrapped := errors.Join(errors.New("describe"), err)
	lookupErr := &LookupError{}
	require.True(t, errors.As(wrapped, &lookupErr))
	assert.Equal(t, "i-123", lookupErr.InstanceId)
	assert.Equal(t, "no instance found for id i-123", err.Error())
}

func TestStubInstanceRepositorySequence(t *testing.T) {
	repo := &StubInstanceRepository{GetResponses: []StubInstanceResponse{
		{Instance: &Instance{State: InstanceStatePending}},
		{Instance: &Instance{State: InstanceStateRunning, PublicIpAddress: "1.2.3.4"}},
	}}
	first, err := repo.Get(context.Background(), "i-1")
	require.NoError(t, err)
	assert.Equal(t, InstanceStatePending, first.State)
	assert.Equal(t, "i-1", first.Id)
	for i := 0; i < 3; i++ {
		next, err := repo.Get(context.Background(), "i-1")
		require.NoError(t, err)
		assert.Equal(t, InstanceStateRunning, next.State)
	}
	assert.Equal(t, 4, repo.GetCalls())
}
