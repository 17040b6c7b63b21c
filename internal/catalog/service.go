package catalog

import (
	"context"
	"errors"
	"log"

	"github.com/avolkov/smartstore/internal/catalog/cache"
	"github.com/avolkov/smartstore/internal/domain"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	repo  RepoInterface
	cache cache.ProductCache
	sfg   singleflight.Group // Prevents cache stampede on hot products
}

func NewService(repo RepoInterface, cache cache.ProductCache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// GetProduct reads through the cache, collapsing concurrent misses for the
// same product into one repository query.
func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	v, err, _ := s.sfg.Do(id, func() (interface{}, error) {
		product, err := s.cache.Get(ctx, id)
		if err == nil {
			return product, nil
		}

		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cache get error: %v", err) // log cache error but continue
		}

		product, errGet := s.repo.GetProduct(ctx, id)
		if errGet != nil {
			return nil, errGet
		}

		go func() {
			if errSet := s.cache.Set(context.Background(), product); errSet != nil {
				log.Printf("cache set error: %v", errSet)
			}
		}()

		return product, nil
	})

	if err != nil {
		return nil, err
	}

	return v.(*domain.Product), nil
}

// ListProducts always hits the repository; the list is cheap and changes
// with stock levels.
func (s *Service) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// DecrementStock adjusts stock and drops the product from cache so the next
// read sees the new level.
func (s *Service) DecrementStock(ctx context.Context, id string, quantity int) error {
	if err := s.repo.DecrementStock(ctx, id, quantity); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, id); err != nil {
		log.Printf("cache invalidate error: %v", err)
	}
	return nil
}
