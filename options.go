package lwt

const (
	defaultStackSize     = 16 * 1024
	defaultStacksPerPool = 128
	defaultPollBatch     = 16
	timerTolerance       = 5 // milliseconds
)

// schedulerOptions holds configuration resolved at Scheduler construction.
type schedulerOptions struct {
	stackSize     int
	stacksPerPool int
	multiplexer   multiplexer
	logger        *logger
	metricsEnabled bool
	workers       int
}

// Option configures a Scheduler.
type Option interface {
	applyScheduler(*schedulerOptions)
}

type optionFunc func(*schedulerOptions)

func (f optionFunc) applyScheduler(o *schedulerOptions) { f(o) }

// WithStackSize sets the per-fiber stack size, rounded up to the page
// size by the stack pool. Default 16 KiB.
func WithStackSize(n int) Option {
	return optionFunc(func(o *schedulerOptions) { o.stackSize = n })
}

// WithStacksPerPool sets how many stacks are carved out of a single mmap
// mapping. Default 128.
func WithStacksPerPool(n int) Option {
	return optionFunc(func(o *schedulerOptions) { o.stacksPerPool = n })
}

// WithMultiplexer injects an event multiplexer, primarily for tests that
// want a fake readiness source instead of real epoll/kqueue.
func WithMultiplexer(m multiplexer) Option {
	return optionFunc(func(o *schedulerOptions) { o.multiplexer = m })
}

// WithLogger overrides the package-default structured logger for one
// scheduler instance.
func WithLogger(l *logger) Option {
	return optionFunc(func(o *schedulerOptions) { o.logger = l })
}

// WithMetrics enables the scheduler's internal counters/gauges surface,
// readable via Scheduler.Metrics().
func WithMetrics(enabled bool) Option {
	return optionFunc(func(o *schedulerOptions) { o.metricsEnabled = enabled })
}

// WithWorkerCount sets the fixed size of the blocking-I/O worker pool.
// Default 4.
func WithWorkerCount(n int) Option {
	return optionFunc(func(o *schedulerOptions) { o.workers = n })
}

func resolveOptions(opts []Option) *schedulerOptions {
	cfg := &schedulerOptions{
		stackSize:     defaultStackSize,
		stacksPerPool: defaultStacksPerPool,
		workers:       4,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyScheduler(cfg)
	}
	return cfg
}
