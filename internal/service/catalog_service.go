package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"invoice-service/internal/models"
	"invoice-service/internal/store"
	"invoice-service/internal/util"
	"invoice-service/internal/validation"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ProductStore is the catalog persistence
type ProductStore interface {
	GetActiveProduct(ctx context.Context, id int64) (*models.Product, error)
	ListActiveProducts(ctx context.Context) ([]models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
	DeactivateProduct(ctx context.Context, id int64) error
}

// ProductCache holds product read models; misses and errors fall back to the store
type ProductCache interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, bool, error)
	SetProduct(ctx context.Context, product *models.Product) error
	InvalidateProducts(ctx context.Context, ids ...int64) error
}

// sharedLoadTimeout bounds a product load shared between concurrent readers
const sharedLoadTimeout = 5 * time.Second

type nopCache struct{}

func (nopCache) GetProduct(context.Context, int64) (*models.Product, bool, error) {
	return nil, false, nil
}

func (nopCache) SetProduct(context.Context, *models.Product) error { return nil }

func (nopCache) InvalidateProducts(context.Context, ...int64) error { return nil }

// ProductRequest is the body of product create and update
type ProductRequest struct {
	Description string           `json:"description" validate:"required,min=3,max=255"`
	LotNumber   string           `json:"lotNumber" validate:"required,max=64"`
	Price       *decimal.Decimal `json:"price" validate:"required,gte=0"`
	Stock       *int             `json:"stock" validate:"required,gte=0,lte=2147483647"`
	EntryDate   time.Time        `json:"entryDate" validate:"required"`
}

func (r *ProductRequest) apply(p *models.Product) {
	p.Description = r.Description
	p.LotNumber = r.LotNumber
	p.Price = *r.Price
	p.Stock = *r.Stock
	p.EntryDate = r.EntryDate
}

// CatalogService manages products. Single-product reads go through the cache.
type CatalogService struct {
	store  ProductStore
	cache  ProductCache
	group  singleflight.Group
	logger *zap.Logger
}

func NewCatalogService(store ProductStore, cache ProductCache) *CatalogService {
	if cache == nil {
		cache = nopCache{}
	}
	return &CatalogService{
		store:  store,
		cache:  cache,
		logger: util.Component("catalog"),
	}
}

// ListProducts returns active products
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	products, err := s.store.ListActiveProducts(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list products", Err: err}
	}
	return products, nil
}

// GetProduct returns an active product, collapsing concurrent misses into
// one database read.
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	if product, ok := s.cached(ctx, id); ok {
		return product, nil
	}

	v, err, _ := s.group.Do(strconv.FormatInt(id, 10), func() (interface{}, error) {
		// Shared by every waiter on this key; detached from the first caller's cancellation.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()

		if product, ok := s.cached(loadCtx, id); ok {
			return product, nil
		}
		util.ProductCacheMissesTotal.Inc()

		product, err := s.store.GetActiveProduct(loadCtx, id)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetProduct(loadCtx, product); err != nil {
			s.logger.Warn("Failed to cache product", zap.Int64("product_id", id), zap.Error(err))
		}
		return product, nil
	})
	if err != nil {
		return nil, storeErr("get product", "product", id, err)
	}

	product := *v.(*models.Product)
	return &product, nil
}

func (s *CatalogService) cached(ctx context.Context, id int64) (*models.Product, bool) {
	product, ok, err := s.cache.GetProduct(ctx, id)
	if err != nil {
		s.logger.Warn("Product cache read failed", zap.Int64("product_id", id), zap.Error(err))
		return nil, false
	}
	if ok {
		util.ProductCacheHitsTotal.Inc()
	}
	return product, ok
}

// CreateProduct validates and inserts a new active product
func (s *CatalogService) CreateProduct(ctx context.Context, req *ProductRequest) (*models.Product, error) {
	if violations := validation.Struct(req); violations != nil {
		return nil, &ValidationError{Violations: violations}
	}

	product := &models.Product{}
	req.apply(product)

	if err := s.store.CreateProduct(ctx, product); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, &DuplicateError{Entity: "product", Field: "description"}
		}
		return nil, &StoreError{Op: "create product", Err: err}
	}

	s.logger.Info("Product created", zap.Int64("product_id", product.ID))
	return product, nil
}

// UpdateProduct replaces the editable fields of an active product
func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, req *ProductRequest) (*models.Product, error) {
	if violations := validation.Struct(req); violations != nil {
		return nil, &ValidationError{Violations: violations}
	}

	product := &models.Product{ID: id}
	req.apply(product)

	if err := s.store.UpdateProduct(ctx, product); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, &DuplicateError{Entity: "product", Field: "description"}
		}
		return nil, storeErr("update product", "product", id, err)
	}

	s.invalidate(ctx, id)
	return product, nil
}

// DeactivateProduct soft-deletes a product
func (s *CatalogService) DeactivateProduct(ctx context.Context, id int64) error {
	if err := s.store.DeactivateProduct(ctx, id); err != nil {
		return storeErr("deactivate product", "product", id, err)
	}

	s.invalidate(ctx, id)
	s.logger.Info("Product deactivated", zap.Int64("product_id", id))
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context, id int64) {
	if err := s.cache.InvalidateProducts(ctx, id); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.Int64("product_id", id), zap.Error(err))
	}
}
