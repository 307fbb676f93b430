// Package report computes read-only summaries over committed sales and ledger history. Results
// are cached per tenant cache version, so any committed mutation invalidates them.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"udhaar/backend/internal/cache"
	"udhaar/backend/internal/logging"
	"udhaar/backend/internal/metrics"
	"udhaar/backend/internal/store"
)

type Options struct {
	Cache   cache.ReportCache
	Locker  cache.FillLocker
	TTL     time.Duration
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

type Aggregator struct {
	reader  store.Reader
	cache   cache.ReportCache
	locker  cache.FillLocker
	ttl     time.Duration
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

func New(reader store.Reader, opts Options) *Aggregator {
	if opts.Cache == nil {
		opts.Cache = cache.NoopReportCache{}
	}
	if opts.Locker == nil {
		opts.Locker = cache.NoopFillLocker{}
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Aggregator{
		reader:  reader,
		cache:   opts.Cache,
		locker:  opts.Locker,
		ttl:     opts.TTL,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
}

const fillLockTTL = 10 * time.Second

// cached serves a report from the cache or computes it. Cache problems only cost a recompute.
func cached[T any](ctx context.Context, a *Aggregator, tenantID string, name string, params string, compute func(context.Context) (T, error)) (T, error) {
	version, err := a.cache.Version(ctx, tenantID)
	if err != nil {
		a.log.WithFields(logrus.Fields{"tenant": tenantID, "report": name}).WithError(err).Warn("report cache version unavailable")
		return compute(ctx)
	}
	key := fmt.Sprintf("udhaar:report:%s:v%d:%s:%s", tenantID, version, name, params)

	var out T
	if hit, err := a.cache.Get(ctx, key, &out); err == nil && hit {
		a.metrics.RecordReportCache(name, true)
		return out, nil
	}
	a.metrics.RecordReportCache(name, false)

	release, err := a.locker.Obtain(ctx, key, fillLockTTL)
	switch {
	case errors.Is(err, cache.ErrLockHeld):
		// Someone else is filling this key; answer directly without writing.
		return compute(ctx)
	case err != nil:
		a.log.WithField("report", name).WithError(err).Warn("report fill lock unavailable")
		return compute(ctx)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			a.log.WithField("report", name).WithError(err).Debug("report fill lock release failed")
		}
	}()

	out, err = compute(ctx)
	if err != nil {
		return out, err
	}
	if err := a.cache.Set(ctx, key, out, a.ttl); err != nil {
		a.log.WithField("report", name).WithError(err).Warn("report cache write failed")
	}
	return out, nil
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	day = day.UTC()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

func rangeKey(from, to time.Time) string {
	return from.UTC().Format(time.RFC3339) + "_" + to.UTC().Format(time.RFC3339)
}
