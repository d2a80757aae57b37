// Package catalog answers the two questions a terminal asks while scanning:
// what product has this barcode, and which products match this search.
package catalog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kelontongpos/internal/cache"
	"kelontongpos/internal/domain"
	"kelontongpos/internal/store"
)

type Service struct {
	repo  store.Repository
	cache cache.ProductCache
	ttl   time.Duration
	log   *zap.Logger
}

func New(repo store.Repository, c cache.ProductCache, ttl time.Duration, log *zap.Logger) *Service {
	if c == nil {
		c = cache.NoopProductCache{}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, cache: c, ttl: ttl, log: log}
}

// FindByBarcode resolves a scanned code, read-through cached. Cache trouble
// is logged and the store answers; a scan must never fail on a cold Redis.
func (s *Service) FindByBarcode(ctx context.Context, code string) (*domain.Product, error) {
	if code == "" {
		return nil, store.ErrInvalidArgument
	}
	key := "product:barcode:" + code

	if p, found, err := s.cache.Get(ctx, key); err != nil {
		s.log.Warn("product cache read failed", zap.String("barcode", code), zap.Error(err))
	} else if found {
		return p, nil
	}

	p, err := s.repo.GetProductByBarcode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, p, s.ttl); err != nil {
		s.log.Warn("product cache write failed", zap.String("barcode", code), zap.Error(err))
	}
	return p, nil
}

// Search matches case-insensitively on name, optionally filtered by
// category. No matches is an empty slice, not an error.
func (s *Service) Search(ctx context.Context, query string, category string, limit int) ([]domain.Product, error) {
	return s.repo.SearchProducts(ctx, query, category, limit)
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	if id == "" {
		return nil, store.ErrInvalidArgument
	}
	return s.repo.GetProductByID(ctx, id)
}
