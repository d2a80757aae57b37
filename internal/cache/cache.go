package cache

import (
	"context"
	"time"

	"kelontongpos/internal/domain"
)

// ProductCache fronts barcode lookups. Get reports a miss with found=false;
// errors are for the caller to log, never to fail a lookup on.
type ProductCache interface {
	Get(ctx context.Context, key string) (*domain.Product, bool, error)
	Set(ctx context.Context, key string, value *domain.Product, ttl time.Duration) error
}

type NoopProductCache struct{}

func (NoopProductCache) Get(_ context.Context, _ string) (*domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopProductCache) Set(_ context.Context, _ string, _ *domain.Product, _ time.Duration) error {
	return nil
}
