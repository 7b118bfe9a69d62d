package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liuxd6825/vzi/log"
)

type fakeKiller struct {
	kills int32
	err   error
}

func (k *fakeKiller) Kill() error {
	atomic.AddInt32(&k.kills, 1)
	return k.err
}

func TestShutdownKeepAlive(t *testing.T) {
	t.Parallel()

	k := &fakeKiller{}
	s := NewShutdownController(true, func() int { return 3 }, k, log.NewNullLogger())

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Zero(t, atomic.LoadInt32(&k.kills))
}

func TestShutdownDrainsPending(t *testing.T) {
	t.Parallel()

	const pendingAtStart = 3
	var polls int32
	pending := func() int {
		n := pendingAtStart - int(atomic.AddInt32(&polls, 1)) + 1
		if n < 0 {
			return 0
		}
		return n
	}
	k := &fakeKiller{}
	s := NewShutdownController(false, pending, k, log.NewNullLogger())
	s.Interval = 5 * time.Millisecond

	require.NoError(t, s.Shutdown(context.Background()))

	// 3, 2, 1 then the empty table
	assert.EqualValues(t, pendingAtStart+1, atomic.LoadInt32(&polls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&k.kills))
}

func TestShutdownBoundedWait(t *testing.T) {
	t.Parallel()

	logger, hook := newHookedLogger(t)
	k := &fakeKiller{}
	s := NewShutdownController(false, func() int { return 1 }, k, logger)
	s.Interval = 5 * time.Millisecond
	s.MaxWait = 30 * time.Millisecond

	start := time.Now()
	require.NoError(t, s.Shutdown(context.Background()))

	assert.GreaterOrEqual(t, time.Since(start), s.MaxWait)
	assert.EqualValues(t, 1, atomic.LoadInt32(&k.kills))
	assert.True(t, hook.Contains(logrus.WarnLevel, "giving up on 1 pending requests"))
}

func TestShutdownSwallowsKillErrors(t *testing.T) {
	t.Parallel()

	k := &fakeKiller{err: errors.New("os: process already finished")}
	s := NewShutdownController(false, nil, k, log.NewNullLogger())

	require.NoError(t, s.Shutdown(context.Background()))
	assert.EqualValues(t, 1, atomic.LoadInt32(&k.kills))
}

func TestShutdownNoProcess(t *testing.T) {
	t.Parallel()

	s := NewShutdownController(false, func() int { return 0 }, nil, log.NewNullLogger())
	require.NoError(t, s.Shutdown(context.Background()))
}
