package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kelontongpos/internal/domain"
	"kelontongpos/internal/store"
	"kelontongpos/internal/store/memory"
)

type fakeCache struct {
	entries map[string]*domain.Product
	sets    int
	failing bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*domain.Product)}
}

func (f *fakeCache) Get(_ context.Context, key string) (*domain.Product, bool, error) {
	if f.failing {
		return nil, false, errors.New("cache down")
	}
	p, ok := f.entries[key]
	return p, ok, nil
}

func (f *fakeCache) Set(_ context.Context, key string, value *domain.Product, _ time.Duration) error {
	if f.failing {
		return errors.New("cache down")
	}
	f.sets++
	f.entries[key] = value
	return nil
}

func seededService(c *fakeCache) (*Service, *memory.Store) {
	repo := memory.New()
	repo.PutProduct(domain.Product{
		ID:           "p1",
		Barcode:      "8991001101234",
		Name:         "Mie Goreng Instan",
		Category:     "grocery",
		SellingPrice: decimal.RequireFromString("0.35"),
		CurrentStock: 10,
		Active:       true,
	})
	return New(repo, c, time.Minute, nil), repo
}

func TestFindByBarcodePopulatesCache(t *testing.T) {
	c := newFakeCache()
	svc, _ := seededService(c)

	p, err := svc.FindByBarcode(context.Background(), "8991001101234")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if p.ID != "p1" {
		t.Fatalf("product = %s, want p1", p.ID)
	}
	if c.sets != 1 {
		t.Fatalf("cache sets = %d, want read-through write", c.sets)
	}

	// Second lookup is served by the cache.
	if _, err := svc.FindByBarcode(context.Background(), "8991001101234"); err != nil {
		t.Fatalf("cached find: %v", err)
	}
	if c.sets != 1 {
		t.Fatalf("cache sets = %d, want no second write", c.sets)
	}
}

func TestFindByBarcodeUnknownIsNotFound(t *testing.T) {
	svc, _ := seededService(newFakeCache())
	if _, err := svc.FindByBarcode(context.Background(), "0000000000000"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFindByBarcodeSurvivesCacheFailure(t *testing.T) {
	c := newFakeCache()
	c.failing = true
	svc, _ := seededService(c)

	p, err := svc.FindByBarcode(context.Background(), "8991001101234")
	if err != nil {
		t.Fatalf("a broken cache must not fail the lookup: %v", err)
	}
	if p.ID != "p1" {
		t.Fatalf("product = %s, want p1", p.ID)
	}
}

func TestSearchEmptyResultIsNotAnError(t *testing.T) {
	svc, _ := seededService(newFakeCache())
	products, err := svc.Search(context.Background(), "tidak ada", "", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(products) != 0 {
		t.Fatalf("products = %d, want empty result", len(products))
	}
}

func TestSearchMatchesCaseInsensitive(t *testing.T) {
	svc, _ := seededService(newFakeCache())
	products, err := svc.Search(context.Background(), "MIE", "", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(products) != 1 || products[0].ID != "p1" {
		t.Fatalf("products = %+v, want the one match", products)
	}
}
