package lwt

import (
	"sync"
	"time"
)

// metrics tracks optional runtime statistics for one Scheduler, enabled
// via WithMetrics(true) and read through Scheduler.Metrics. Adapted
// from the teacher's Metrics/LatencyMetrics (eventloop package): the
// streaming P-Square percentile estimator is retained verbatim for
// fiber suspension-to-resume latency, while queue-depth and
// throughput tracking is repointed at the ready queue, descriptor
// count and worker pool instead of the teacher's ingress/microtask
// queues.
type metrics struct {
	mu sync.Mutex

	suspendLatency *pSquareMultiQuantile

	readyDepthCurrent int
	readyDepthMax     int

	descriptorCount int
	workerBusy      int
	workerTotal     int

	ticks uint64
}

func newMetrics() *metrics {
	return &metrics{suspendLatency: newPSquareMultiQuantile(0.50, 0.90, 0.95, 0.99)}
}

// recordSuspend feeds one fiber's block-to-resume latency into the
// percentile estimator.
func (m *metrics) recordSuspend(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspendLatency.Update(float64(d))
}

// recordReadyDepth samples the current ready-queue length once per
// scheduler tick.
func (m *metrics) recordReadyDepth(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readyDepthCurrent = n
	if n > m.readyDepthMax {
		m.readyDepthMax = n
	}
	m.ticks++
}

func (m *metrics) recordWorkerPool(busy, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workerBusy, m.workerTotal = busy, total
}

func (m *metrics) recordDescriptorCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.descriptorCount = n
}

// Snapshot is a point-in-time copy of a scheduler's metrics, safe to
// read after Metrics returns it.
type Snapshot struct {
	Ticks             uint64
	ReadyDepthCurrent int
	ReadyDepthMax     int
	DescriptorCount   int
	WorkerBusy        int
	WorkerTotal       int
	SuspendP50        time.Duration
	SuspendP90        time.Duration
	SuspendP95        time.Duration
	SuspendP99        time.Duration
	SuspendMax        time.Duration
	SuspendCount      int
}

// Metrics returns a snapshot of the scheduler's counters, or the zero
// Snapshot if metrics were not enabled via WithMetrics.
func (s *Scheduler) Metrics() Snapshot {
	if s.metrics == nil {
		return Snapshot{}
	}
	m := s.metrics
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Ticks:             m.ticks,
		ReadyDepthCurrent: m.readyDepthCurrent,
		ReadyDepthMax:     m.readyDepthMax,
		DescriptorCount:   m.descriptorCount,
		WorkerBusy:        m.workerBusy,
		WorkerTotal:       m.workerTotal,
		SuspendP50:        time.Duration(m.suspendLatency.Quantile(0)),
		SuspendP90:        time.Duration(m.suspendLatency.Quantile(1)),
		SuspendP95:        time.Duration(m.suspendLatency.Quantile(2)),
		SuspendP99:        time.Duration(m.suspendLatency.Quantile(3)),
		SuspendMax:        time.Duration(m.suspendLatency.Max()),
		SuspendCount:      m.suspendLatency.Count(),
	}
}
