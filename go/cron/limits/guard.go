package limits

import (
	"context"
	"time"

	"github.com/flyteorg/flytestdlib/errors"
	"github.com/flyteorg/flytestdlib/logger"
	"github.com/flyteorg/flytestdlib/promutils"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"github.com/usgs-eros/espa-cron/go/cron/settings"
)

const (
	ErrInvalidLimits   errors.ErrorCode = "INVALID_LIMITS"
	ErrSlotUnavailable errors.ErrorCode = "SLOT_UNAVAILABLE"
	ErrJobTimedOut     errors.ErrorCode = "JOB_TIMED_OUT"
)

type metrics struct {
	inFlight prometheus.Gauge
	timeouts prometheus.Counter
	rejected prometheus.Counter
	duration promutils.StopWatch
}

func newMetrics(scope promutils.Scope) metrics {
	return metrics{
		inFlight: scope.MustNewGauge("in_flight", "Number of jobs currently holding a slot"),
		timeouts: scope.MustNewCounter("timeouts", "Number of jobs that ran past the configured timeout"),
		rejected: scope.MustNewCounter("rejected", "Number of jobs that could not get a slot"),
		duration: scope.MustNewStopWatch("duration", "Time jobs spend holding a slot", time.Millisecond),
	}
}

// Guard enforces the [hadoop] limits around caller supplied work: at most max_jobs functions run at once and each one
// runs under a context that expires after the configured timeout. It does not decide what runs; it only bounds it.
type Guard struct {
	maxJobs  int64
	timeout  time.Duration
	slots    *semaphore.Weighted
	inFlight *atomic.Int64
	metrics  metrics
}

func NewGuard(hadoop settings.Hadoop, scope promutils.Scope) (*Guard, error) {
	if hadoop.MaxJobs <= 0 {
		return nil, errors.Errorf(ErrInvalidLimits, "max_jobs must be positive, got [%d]", hadoop.MaxJobs)
	}

	if hadoop.Timeout <= 0 {
		return nil, errors.Errorf(ErrInvalidLimits, "timeout must be positive, got [%v]", hadoop.Timeout)
	}

	return &Guard{
		maxJobs:  int64(hadoop.MaxJobs),
		timeout:  hadoop.Timeout,
		slots:    semaphore.NewWeighted(int64(hadoop.MaxJobs)),
		inFlight: atomic.NewInt64(0),
		metrics:  newMetrics(scope),
	}, nil
}

// Run blocks until a slot is free, then runs fn. fn must honor its context for the timeout to take effect. If ctx is
// done before a slot frees up, Run returns ErrSlotUnavailable without calling fn.
func (g *Guard) Run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := g.slots.Acquire(ctx, 1); err != nil {
		g.metrics.rejected.Inc()
		return errors.Wrapf(ErrSlotUnavailable, err, "Gave up waiting for a slot for job [%s]", name)
	}

	return g.run(ctx, name, fn)
}

// TryRun is the non-blocking form of Run: it fails with ErrSlotUnavailable immediately when all slots are taken.
func (g *Guard) TryRun(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if !g.slots.TryAcquire(1) {
		g.metrics.rejected.Inc()
		return errors.Errorf(ErrSlotUnavailable, "All [%d] slots are taken, job [%s] not started", g.maxJobs, name)
	}

	return g.run(ctx, name, fn)
}

func (g *Guard) run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	defer g.slots.Release(1)

	g.inFlight.Inc()
	g.metrics.inFlight.Inc()
	defer func() {
		g.metrics.inFlight.Dec()
		g.inFlight.Dec()
	}()

	timer := g.metrics.duration.Start()
	defer timer.Stop()

	jobCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	logger.Debugf(ctx, "Job [%s] started, [%d/%d] slots in use", name, g.inFlight.Load(), g.maxJobs)
	err := fn(jobCtx)
	if jobCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		g.metrics.timeouts.Inc()
		logger.Warnf(ctx, "Job [%s] exceeded its [%v] timeout", name, g.timeout)
		if err == nil {
			err = jobCtx.Err()
		}

		return errors.Wrapf(ErrJobTimedOut, err, "Job [%s] exceeded its [%v] timeout", name, g.timeout)
	}

	return err
}

// InFlight returns the number of jobs currently holding a slot.
func (g *Guard) InFlight() int {
	return int(g.inFlight.Load())
}

func (g *Guard) MaxJobs() int {
	return int(g.maxJobs)
}

func (g *Guard) Timeout() time.Duration {
	return g.timeout
}
