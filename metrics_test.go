package lwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsDisabledByDefault(t *testing.T) {
	sched := newTestScheduler(t)
	snap := sched.Metrics()
	assert.Equal(t, Snapshot{}, snap)
}

func TestMetricsSuspendLatencyRecorded(t *testing.T) {
	sched, err := NewScheduler(WithLogger(NewNoopLogger()), WithMetrics(true))
	require.NoError(t, err)
	defer sched.Close()

	_, err = sched.Spawn(func(f *Fiber) {
		sched.Sleep(2 * time.Millisecond)
	}, Joinable)
	require.NoError(t, err)

	sched.Run()

	snap := sched.Metrics()
	assert.GreaterOrEqual(t, snap.SuspendCount, 1)
	assert.GreaterOrEqual(t, snap.SuspendMax, time.Duration(0))
}

func TestMetricsReadyDepthTracksQueue(t *testing.T) {
	sched, err := NewScheduler(WithLogger(NewNoopLogger()), WithMetrics(true))
	require.NoError(t, err)
	defer sched.Close()

	for i := 0; i < 3; i++ {
		_, err := sched.Spawn(func(f *Fiber) {}, Detached)
		require.NoError(t, err)
	}

	sched.Run()

	snap := sched.Metrics()
	assert.GreaterOrEqual(t, snap.ReadyDepthMax, 1)
}
