package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type countingRefresher struct {
	calls  atomic.Int32
	window time.Duration
	err    error
}

func (c *countingRefresher) EnsureFresh(_ context.Context, window time.Duration) (bool, error) {
	c.calls.Add(1)
	c.window = window
	return c.err == nil, c.err
}

func TestTokenKeeper_RunOncePassesWindow(t *testing.T) {
	r := &countingRefresher{}
	k := NewTokenKeeper(zap.NewNop(), r, time.Minute, 2*time.Minute)

	k.runOnce(context.Background())
	assert.Equal(t, int32(1), r.calls.Load())
	assert.Equal(t, 2*time.Minute, r.window)
}

func TestTokenKeeper_ErrorIsSwallowed(t *testing.T) {
	r := &countingRefresher{err: errors.New("refresh token rejected")}
	k := NewTokenKeeper(nil, r, time.Minute, time.Minute)
	k.runOnce(context.Background())
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestTokenKeeper_TicksUntilStopped(t *testing.T) {
	r := &countingRefresher{}
	k := NewTokenKeeper(zap.NewNop(), r, 5*time.Millisecond, time.Minute)

	done := make(chan struct{})
	go func() {
		k.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	k.Stop()
	k.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keeper did not stop")
	}
}

func TestTokenKeeper_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	k := NewTokenKeeper(zap.NewNop(), &countingRefresher{}, time.Hour, time.Minute)

	done := make(chan struct{})
	go func() {
		k.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keeper ignored cancellation")
	}
}
