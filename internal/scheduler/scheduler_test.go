package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingWarmer struct {
	calls atomic.Int32
	err   error
}

func (w *countingWarmer) Warm(ctx context.Context) error {
	w.calls.Add(1)
	return w.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestScheduler_WarmsOnStart(t *testing.T) {
	warmer := &countingWarmer{}
	s := NewScheduler(warmer, "@every 1h", time.Minute, quietLogger())

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return warmer.calls.Load() >= 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())
}

func TestScheduler_FailedWarmIsLogged(t *testing.T) {
	warmer := &countingWarmer{err: errors.New("no data")}
	s := NewScheduler(warmer, "@every 1h", time.Minute, quietLogger())

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return warmer.calls.Load() >= 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := NewScheduler(&countingWarmer{}, "every tuesday", time.Minute, quietLogger())
	assert.Error(t, s.Start(context.Background()))
}

func TestScheduler_CancelledContextSkips(t *testing.T) {
	warmer := &countingWarmer{}
	s := NewScheduler(warmer, "@every 1h", time.Minute, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.runWarm(ctx)
	assert.Equal(t, int32(0), warmer.calls.Load())
}
