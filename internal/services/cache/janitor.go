package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// SweepFunc evicts stale entries from one store
type SweepFunc func() (int, error)

// Target is a named store swept by the Janitor
type Target struct {
	Name  string
	Sweep SweepFunc
}

// CacheTarget adapts a TTLCache to a janitor Target
func CacheTarget[V any](c *TTLCache[V]) Target {
	return Target{
		Name: c.Name(),
		Sweep: func() (int, error) {
			return c.Sweep(), nil
		},
	}
}

// Janitor periodically sweeps its targets. A failing sweep is logged and
// retried after the shorter retry interval; the loop only ends with ctx.
type Janitor struct {
	interval time.Duration
	retry    time.Duration
	targets  []Target
	logger   *logrus.Logger
	onSweep  func(target string, evicted int)
}

// NewJanitor creates a janitor for the given targets
func NewJanitor(interval, retry time.Duration, logger *logrus.Logger, targets ...Target) *Janitor {
	if retry <= 0 || retry > interval {
		retry = interval
	}
	return &Janitor{
		interval: interval,
		retry:    retry,
		targets:  targets,
		logger:   logger,
	}
}

// OnSweep registers a hook called with each target's eviction count
func (j *Janitor) OnSweep(fn func(target string, evicted int)) {
	j.onSweep = fn
}

// Run blocks until ctx is cancelled
func (j *Janitor) Run(ctx context.Context) error {
	timer := time.NewTimer(j.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			next := j.interval
			if err := j.SweepOnce(); err != nil {
				j.logger.WithError(err).Error("Cache sweep failed")
				next = j.retry
			}
			timer.Reset(next)
		}
	}
}

// SweepOnce sweeps every target once and returns the first failure
func (j *Janitor) SweepOnce() error {
	var firstErr error
	total := 0

	for _, target := range j.targets {
		evicted, err := j.sweepTarget(target)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += evicted
		if j.onSweep != nil {
			j.onSweep(target.Name, evicted)
		}
	}

	if total > 0 {
		j.logger.WithField("evicted", total).Info("Cache cleanup completed")
	}
	return firstErr
}

func (j *Janitor) sweepTarget(target Target) (evicted int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep %s panicked: %v", target.Name, r)
		}
	}()

	evicted, err = target.Sweep()
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", target.Name, err)
	}
	return evicted, nil
}
