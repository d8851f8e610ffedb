package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"invoice-service/internal/auth"
	"invoice-service/internal/models"
	"invoice-service/internal/store"
	"invoice-service/internal/util"
	"invoice-service/internal/validation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// InvoiceStore is the persistence InvoiceService needs
type InvoiceStore interface {
	RunInTx(ctx context.Context, fn func(store.UnitOfWork) error) error
	GetInvoiceByID(ctx context.Context, id int64) (*models.Invoice, error)
	ListInvoices(ctx context.Context) ([]models.Invoice, error)
	ListInvoiceDetails(ctx context.Context) ([]models.InvoiceDetail, error)
	ListInvoiceDetailsByProduct(ctx context.Context, productID int64) ([]models.InvoiceDetail, error)
}

// EventPublisher publishes invoice domain events
type EventPublisher interface {
	PublishInvoiceCreated(ctx context.Context, event *models.InvoiceCreatedEvent) error
}

// InvoiceService handles order intake and invoice reads
type InvoiceService struct {
	store      InvoiceStore
	cache      ProductCache
	publisher  EventPublisher
	maxRetries int
	logger     *zap.Logger
}

// NewInvoiceService creates a new invoice service. cache and publisher may be nil.
func NewInvoiceService(
	store InvoiceStore,
	cache ProductCache,
	publisher EventPublisher,
	maxRetries int,
) *InvoiceService {
	if cache == nil {
		cache = nopCache{}
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &InvoiceService{
		store:      store,
		cache:      cache,
		publisher:  publisher,
		maxRetries: maxRetries,
		logger:     util.Component("invoice"),
	}
}

// CreateInvoiceRequest is the order submitted to POST /api/invoices
type CreateInvoiceRequest struct {
	UserID   int64                `json:"userId" validate:"required,gt=0"`
	Username string               `json:"username" validate:"required,min=3,max=10"`
	Products []InvoiceLineRequest `json:"products" validate:"required,min=1,dive"`
}

// InvoiceLineRequest is one line of an order
type InvoiceLineRequest struct {
	ProductID   int64  `json:"productId" validate:"required,gt=0,lte=10"`
	Description string `json:"description" validate:"required,min=3,max=255"`
	Amount      int    `json:"amount" validate:"required,gt=0,lte=2147483647"`
}

// InvoiceResult is the materialized invoice with its detail rows
type InvoiceResult struct {
	Invoice  *models.Invoice        `json:"invoice"`
	Products []models.InvoiceDetail `json:"products"`
}

// committedOrder is what one successful transaction produced
type committedOrder struct {
	invoice *models.Invoice
	items   []models.InvoiceItemData
}

// SubmitOrder validates req, decrements stock for every line and records the
// invoice, all in one transaction. Lines are processed in request order.
func (s *InvoiceService) SubmitOrder(ctx context.Context, principal *auth.Principal, req *CreateInvoiceRequest) (result *InvoiceResult, err error) {
	ctx, span := util.StartSpan(ctx, "InvoiceService.SubmitOrder",
		attribute.Int64("user_id", req.UserID),
		attribute.Int("lines", len(req.Products)))
	defer func() { util.EndSpan(span, err) }()

	if violations := validation.Struct(req); violations != nil {
		util.InvoicesFailedTotal.WithLabelValues("validation").Inc()
		return nil, &ValidationError{Violations: violations}
	}

	var order *committedOrder
	for attempt := 0; ; attempt++ {
		start := time.Now()
		order, err = s.submitOnce(ctx, req)
		util.StockDecrementLatency.Observe(time.Since(start).Seconds())

		if err == nil || !errors.Is(err, store.ErrSerialization) || attempt >= s.maxRetries {
			break
		}
		util.TxRetriesTotal.Inc()
		s.logger.Warn("Order transaction aborted by concurrent update, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int64("user_id", req.UserID),
			zap.Error(err))
	}

	if err != nil {
		return nil, s.rejectOrder(req, err)
	}

	s.afterCommit(ctx, principal, req, order)

	invoice := *order.invoice
	invoice.Details = nil
	return &InvoiceResult{Invoice: &invoice, Products: order.invoice.Details}, nil
}

func (s *InvoiceService) submitOnce(ctx context.Context, req *CreateInvoiceRequest) (*committedOrder, error) {
	var order *committedOrder

	err := s.store.RunInTx(ctx, func(uow store.UnitOfWork) error {
		if _, err := uow.GetUserByID(ctx, req.UserID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return &ReferenceError{Entity: "user", ID: req.UserID}
			}
			return err
		}

		if err := uow.LockProducts(ctx, lockOrder(req.Products)); err != nil {
			return err
		}

		products := make([]*models.Product, len(req.Products))
		for i, line := range req.Products {
			product, err := uow.GetActiveProduct(ctx, line.ProductID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return &ReferenceError{Entity: "product", ID: line.ProductID, UserID: req.UserID}
				}
				return err
			}
			products[i] = product
		}

		total := decimal.Zero
		details := make([]models.InvoiceDetail, len(req.Products))
		items := make([]models.InvoiceItemData, len(req.Products))

		for i, line := range req.Products {
			updated, err := uow.DecrementStock(ctx, line.ProductID, line.Amount)
			if errors.Is(err, store.ErrStockConflict) {
				return s.insufficientStock(ctx, uow, req.UserID, line)
			}
			if err != nil {
				return err
			}

			price := products[i].Price
			total = total.Add(price.Mul(decimal.NewFromInt(int64(line.Amount))))
			details[i] = models.InvoiceDetail{
				ProductID:   line.ProductID,
				Description: line.Description,
				Amount:      line.Amount,
				Price:       price,
			}
			items[i] = models.InvoiceItemData{
				ProductID:      line.ProductID,
				Amount:         line.Amount,
				Price:          price,
				RemainingStock: updated.Stock,
			}
		}

		invoice, err := uow.RecordInvoice(ctx,
			models.InvoiceHeader{UserID: req.UserID, Username: req.Username},
			total, details)
		if err != nil {
			return err
		}

		order = &committedOrder{invoice: invoice, items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// insufficientStock re-reads the product under its row lock so the error
// reports the stock this attempt actually saw.
func (s *InvoiceService) insufficientStock(ctx context.Context, uow store.UnitOfWork, userID int64, line InvoiceLineRequest) error {
	current, err := uow.GetActiveProduct(ctx, line.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		return &ReferenceError{Entity: "product", ID: line.ProductID, UserID: userID}
	}
	if err != nil {
		return err
	}
	return &InsufficientStockError{
		ProductID: line.ProductID,
		Available: current.Stock,
		Requested: line.Amount,
	}
}

// rejectOrder classifies a failed order, counts it and logs it
func (s *InvoiceService) rejectOrder(req *CreateInvoiceRequest, err error) error {
	var (
		refErr   *ReferenceError
		stockErr *InsufficientStockError
	)

	switch {
	case errors.As(err, &refErr):
		util.InvoicesFailedTotal.WithLabelValues("reference").Inc()
		s.logger.Info("Order rejected", zap.Int64("user_id", req.UserID), zap.Error(err))
		return refErr
	case errors.As(err, &stockErr):
		util.InvoicesFailedTotal.WithLabelValues("insufficient_stock").Inc()
		util.StockConflictsTotal.Inc()
		s.logger.Info("Order rejected",
			zap.Int64("user_id", req.UserID),
			zap.Int64("product_id", stockErr.ProductID),
			zap.Int("available", stockErr.Available),
			zap.Int("requested", stockErr.Requested))
		return stockErr
	case errors.Is(err, store.ErrSerialization):
		util.InvoicesFailedTotal.WithLabelValues("conflict").Inc()
		s.logger.Warn("Order retries exhausted", zap.Int64("user_id", req.UserID), zap.Error(err))
		return &ConflictError{Op: "submit order", Err: err}
	default:
		util.InvoicesFailedTotal.WithLabelValues("store").Inc()
		s.logger.Error("Order failed", zap.Int64("user_id", req.UserID), zap.Error(err))
		return &StoreError{Op: "submit order", Err: err}
	}
}

// afterCommit runs the side effects of a committed order. None of them can
// fail the order.
func (s *InvoiceService) afterCommit(ctx context.Context, principal *auth.Principal, req *CreateInvoiceRequest, order *committedOrder) {
	util.InvoicesCreatedTotal.Inc()

	fields := []zap.Field{
		zap.Int64("invoice_id", order.invoice.ID),
		zap.Int64("user_id", order.invoice.UserID),
		zap.String("total", order.invoice.Total.StringFixed(2)),
		zap.Int("lines", len(req.Products)),
	}
	if principal != nil {
		fields = append(fields, zap.Int64("submitted_by", principal.UserID))
	}
	s.logger.Info("Invoice created", fields...)

	if err := s.cache.InvalidateProducts(ctx, lockOrder(req.Products)...); err != nil {
		s.logger.Warn("Failed to invalidate product cache", zap.Error(err))
	}

	if s.publisher == nil {
		return
	}

	event := &models.InvoiceCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeInvoiceCreated,
			Timestamp: time.Now(),
		},
		InvoiceID: order.invoice.ID,
		UserID:    order.invoice.UserID,
		Username:  order.invoice.Username,
		Total:     order.invoice.Total,
		Items:     order.items,
	}
	if err := s.publisher.PublishInvoiceCreated(ctx, event); err != nil {
		util.EventsPublishFailedTotal.WithLabelValues(models.EventTypeInvoiceCreated).Inc()
		s.logger.Error("Failed to publish InvoiceCreated event",
			zap.Int64("invoice_id", order.invoice.ID),
			zap.Error(err))
	}
}

// lockOrder returns the distinct product ids of lines in ascending order
func lockOrder(lines []InvoiceLineRequest) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GetInvoice retrieves an invoice with its detail rows
func (s *InvoiceService) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	invoice, err := s.store.GetInvoiceByID(ctx, id)
	if err != nil {
		return nil, storeErr("get invoice", "invoice", id, err)
	}
	return invoice, nil
}

// ListInvoices retrieves every invoice with its detail rows
func (s *InvoiceService) ListInvoices(ctx context.Context) ([]models.Invoice, error) {
	invoices, err := s.store.ListInvoices(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list invoices", Err: err}
	}
	return invoices, nil
}

func (s *InvoiceService) ListInvoiceDetails(ctx context.Context) ([]models.InvoiceDetail, error) {
	details, err := s.store.ListInvoiceDetails(ctx)
	if err != nil {
		return nil, &StoreError{Op: "list invoice details", Err: err}
	}
	return details, nil
}

// ListInvoiceDetailsByProduct returns the sales history of one product
func (s *InvoiceService) ListInvoiceDetailsByProduct(ctx context.Context, productID int64) ([]models.InvoiceDetail, error) {
	details, err := s.store.ListInvoiceDetailsByProduct(ctx, productID)
	if err != nil {
		return nil, &StoreError{Op: fmt.Sprintf("list invoice details of product %d", productID), Err: err}
	}
	return details, nil
}
