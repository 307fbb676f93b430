package cache

import (
	"context"
	"errors"
	"time"
)

// ErrLockHeld means another worker is already filling the same cache key.
var ErrLockHeld = errors.New("cache fill lock held")

// ReportCache stores computed report payloads. Keys embed a per-tenant version so a bump after
// any committed mutation invalidates every cached report of that tenant.
type ReportCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Version(ctx context.Context, tenantID string) (int64, error)
	Bump(ctx context.Context, tenantID string) error
}

// FillLocker serializes recomputation of one cache key across processes.
type FillLocker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Version(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (NoopReportCache) Bump(_ context.Context, _ string) error {
	return nil
}

type NoopFillLocker struct{}

func (NoopFillLocker) Obtain(_ context.Context, _ string, _ time.Duration) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}
