package shutdown

import (
	"context"
	"errors"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCloseRunsOnceInReverseOrder(t *testing.T) {
	r := New(zap.NewNop())
	var order []string
	r.Register("first", func() error { order = append(order, "first"); return nil })
	r.Register("second", func() error { order = append(order, "second"); return nil })

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestCloseContinuesPastFailures(t *testing.T) {
	r := New(zap.NewNop())
	boom := errors.New("boom")
	ran := false
	r.Register("last", func() error { ran = true; return nil })
	r.Register("panics", func() error { panic("bad") })
	r.Register("fails", func() error { return boom })

	err := r.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "panics: panic: bad")
	assert.True(t, ran)

	assert.Equal(t, err, r.Close())
}

func TestRegisterAfterCloseIsIgnored(t *testing.T) {
	r := New(zap.NewNop())
	require.NoError(t, r.Close())
	called := false
	r.Register("late", func() error { called = true; return nil })
	require.NoError(t, r.Close())
	assert.False(t, called)
}

func TestNotifyContextInterruptsOnSignal(t *testing.T) {
	r := New(zap.NewNop())
	closed := make(chan struct{})
	var sinkClosed atomic.Bool
	r.Register("publisher", func() error { sinkClosed.Store(true); return nil })
	r.RegisterOnSignal("renderer", func() error { close(closed); return nil })

	ctx, stop := r.NotifyContext(context.Background())
	defer stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("closer did not run on signal")
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled")
	}
	assert.False(t, sinkClosed.Load(), "sink-side closers wait for Close")

	require.NoError(t, r.Close())
	assert.True(t, sinkClosed.Load())
}

func TestInterruptThenCloseRunsEachCloserOnce(t *testing.T) {
	r := New(zap.NewNop())
	calls := map[string]int{}
	r.Register("pool", func() error { calls["pool"]++; return nil })
	r.RegisterOnSignal("browser", func() error { calls["browser"]++; return nil })

	require.NoError(t, r.Interrupt())
	assert.Equal(t, map[string]int{"browser": 1}, calls)

	require.NoError(t, r.Close())
	require.NoError(t, r.Interrupt())
	assert.Equal(t, map[string]int{"browser": 1, "pool": 1}, calls)
}

func TestNotifyContextStop(t *testing.T) {
	r := New(zap.NewNop())
	ctx, stop := r.NotifyContext(context.Background())
	stop()
	stop()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
