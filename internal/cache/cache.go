package cache

import (
	"context"
	"time"

	"pdvsystem/backend/internal/domain"
)

// StatusCache holds short-lived cashier status snapshots keyed by terminal.
// Entries are advisory: writers invalidate a terminal after every change and
// the TTL bounds any staleness left by a racing reader.
type StatusCache interface {
	Get(ctx context.Context, terminalID string) (*domain.SessionStatusView, bool, error)
	Set(ctx context.Context, terminalID string, value *domain.SessionStatusView, ttl time.Duration) error
	Invalidate(ctx context.Context, terminalID string) error
	InvalidateAll(ctx context.Context) error
}

type NoopStatusCache struct{}

func (NoopStatusCache) Get(_ context.Context, _ string) (*domain.SessionStatusView, bool, error) {
	return nil, false, nil
}

func (NoopStatusCache) Set(_ context.Context, _ string, _ *domain.SessionStatusView, _ time.Duration) error {
	return nil
}

func (NoopStatusCache) Invalidate(_ context.Context, _ string) error { return nil }

func (NoopStatusCache) InvalidateAll(_ context.Context) error { return nil }
