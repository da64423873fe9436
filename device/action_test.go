package device_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetherto/wdk-wallet-evm/device"
)

func TestAwaitCompleted(t *testing.T) {
	payload, err := device.Await(context.Background(), device.CompletedAction([]byte{0xca, 0xfe}))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xca, 0xfe}, payload)
}

func TestAwaitFailed(t *testing.T) {
	cause := errors.New("screen confirmation mismatch")

	_, err := device.Await(context.Background(), device.FailedAction(cause))
	require.ErrorIs(t, err, device.ErrActionFailed)
	assert.Contains(t, err.Error(), "screen confirmation mismatch")

	// Failed and stopped are distinguishable error kinds
	assert.NotErrorIs(t, err, device.ErrActionStopped)
}

func TestAwaitStopped(t *testing.T) {
	_, err := device.Await(context.Background(), device.StoppedAction())
	require.ErrorIs(t, err, device.ErrActionStopped)
	assert.NotErrorIs(t, err, device.ErrActionFailed)
}

func TestAwaitContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := device.Await(ctx, pendingAction{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type pendingAction struct{}

func (pendingAction) Done() <-chan device.Event {
	return make(chan device.Event)
}
