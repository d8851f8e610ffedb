package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"invoice-service/internal/auth"
	"invoice-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invoiceFixture struct {
	store     *fakeStore
	cache     *fakeCache
	publisher *fakePublisher
	svc       *InvoiceService
}

func newInvoiceFixture() *invoiceFixture {
	s := newFakeStore()
	s.addProduct(1, 10, "5.00")
	s.addProduct(2, 2, "20.00")

	cache := newFakeCache()
	pub := &fakePublisher{}
	return &invoiceFixture{
		store:     s,
		cache:     cache,
		publisher: pub,
		svc:       NewInvoiceService(s, cache, pub, 3),
	}
}

var manager = &auth.Principal{UserID: 1, Username: "bob", RoleID: 2}

func order(lines ...InvoiceLineRequest) *CreateInvoiceRequest {
	return &CreateInvoiceRequest{UserID: 1, Username: "bob", Products: lines}
}

func line(productID int64, amount int) InvoiceLineRequest {
	return InvoiceLineRequest{ProductID: productID, Description: "line item", Amount: amount}
}

func TestSubmitOrder_Success(t *testing.T) {
	f := newInvoiceFixture()

	result, err := f.svc.SubmitOrder(context.Background(), manager, order(line(1, 2)))
	require.NoError(t, err)

	assert.True(t, result.Invoice.Total.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, "10.00", result.Invoice.Total.StringFixed(2))
	assert.Equal(t, int64(1), result.Invoice.UserID)
	assert.Equal(t, "bob", result.Invoice.Username)
	assert.Nil(t, result.Invoice.Details)

	require.Len(t, result.Products, 1)
	detail := result.Products[0]
	assert.Equal(t, int64(1), detail.ProductID)
	assert.Equal(t, 2, detail.Amount)
	assert.Equal(t, "line item", detail.Description)
	assert.True(t, detail.Price.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, result.Invoice.ID, detail.InvoiceID)

	assert.Equal(t, 8, f.store.stock(1))
	assert.Equal(t, 1, f.store.invoiceCount())
	assert.Equal(t, []int64{1}, f.cache.invalidated)

	require.Equal(t, 1, f.publisher.count())
	event := f.publisher.events[0]
	assert.Equal(t, "INVOICE_CREATED", event.EventType)
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, result.Invoice.ID, event.InvoiceID)
	require.Len(t, event.Items, 1)
	assert.Equal(t, 8, event.Items[0].RemainingStock)
}

func TestSubmitOrder_TotalUsesCatalogPrices(t *testing.T) {
	f := newInvoiceFixture()

	result, err := f.svc.SubmitOrder(context.Background(), manager, order(line(1, 3), line(2, 1)))
	require.NoError(t, err)

	assert.Equal(t, "35.00", result.Invoice.Total.StringFixed(2))
	require.Len(t, result.Products, 2)
	assert.Equal(t, int64(1), result.Products[0].ProductID)
	assert.Equal(t, int64(2), result.Products[1].ProductID)
	assert.True(t, result.Products[1].Price.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 7, f.store.stock(1))
	assert.Equal(t, 1, f.store.stock(2))
}

func TestSubmitOrder_InsufficientStockRollsBack(t *testing.T) {
	f := newInvoiceFixture()

	_, err := f.svc.SubmitOrder(context.Background(), manager, order(line(1, 3), line(2, 5)))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, InsufficientStockError{ProductID: 2, Available: 2, Requested: 5}, *stockErr)

	assert.Equal(t, 10, f.store.stock(1))
	assert.Equal(t, 2, f.store.stock(2))
	assert.Equal(t, 0, f.store.invoiceCount())
	assert.Equal(t, 0, f.publisher.count())
	assert.Empty(t, f.cache.invalidated)
}

func TestSubmitOrder_RepeatedProductUsesReducedStock(t *testing.T) {
	f := newInvoiceFixture()
	f.store.addProduct(3, 5, "1.00")

	_, err := f.svc.SubmitOrder(context.Background(), manager, order(line(3, 3), line(3, 3)))

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 5, f.store.stock(3))
}

func TestSubmitOrder_LocksDistinctProductsInAscendingOrder(t *testing.T) {
	f := newInvoiceFixture()

	_, err := f.svc.SubmitOrder(context.Background(), manager, order(line(2, 1), line(1, 1), line(2, 1)))
	require.NoError(t, err)

	require.Len(t, f.store.lockCalls, 1)
	assert.Equal(t, []int64{1, 2}, f.store.lockCalls[0])
}

func TestSubmitOrder_MissingProduct(t *testing.T) {
	f := newInvoiceFixture()

	_, err := f.svc.SubmitOrder(context.Background(), manager, order(line(1, 1), line(9, 1)))

	var refErr *ReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "product", refErr.Entity)
	assert.Equal(t, int64(9), refErr.ID)
	assert.Contains(t, refErr.Error(), "9")
	assert.Contains(t, refErr.Error(), "user 1")
	assert.Equal(t, 10, f.store.stock(1))
	assert.Equal(t, 0, f.store.invoiceCount())
}

func TestSubmitOrder_InactiveProduct(t *testing.T) {
	f := newInvoiceFixture()
	f.store.products[2].Active = false

	_, err := f.svc.SubmitOrder(context.Background(), manager, order(line(2, 1)))

	var refErr *ReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, int64(2), refErr.ID)
}

func TestSubmitOrder_MissingUser(t *testing.T) {
	f := newInvoiceFixture()
	req := order(line(1, 1))
	req.UserID = 42

	_, err := f.svc.SubmitOrder(context.Background(), manager, req)

	var refErr *ReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "user", refErr.Entity)
	assert.Equal(t, int64(42), refErr.ID)
	assert.Equal(t, 10, f.store.stock(1))
}

func TestSubmitOrder_ValidationReportsEverythingWithoutStoreAccess(t *testing.T) {
	f := newInvoiceFixture()
	req := &CreateInvoiceRequest{
		UserID:   0,
		Username: "bo",
		Products: []InvoiceLineRequest{
			{ProductID: 1, Description: "ok line", Amount: 1},
			{ProductID: 11, Description: "x", Amount: 0},
		},
	}

	_, err := f.svc.SubmitOrder(context.Background(), manager, req)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := []string{}
	for _, v := range valErr.Violations {
		fields = append(fields, v.Field)
	}
	assert.Equal(t, []string{
		"userId",
		"username",
		"products[1].productId",
		"products[1].description",
		"products[1].amount",
	}, fields)
	assert.Equal(t, "userId is required", valErr.First())
	assert.Equal(t, 0, f.store.txCount)
}

func TestSubmitOrder_AmountBeyondIntegerRangeIsValidationError(t *testing.T) {
	f := newInvoiceFixture()

	_, err := f.svc.SubmitOrder(context.Background(), manager, order(line(1, math.MaxInt32+1)))

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "products[0].amount", valErr.Violations[0].Field)
	assert.Equal(t, 0, f.store.txCount)
	assert.Equal(t, 10, f.store.products[1].Stock)
}

func TestSubmitOrder_EmptyLines(t *testing.T) {
	f := newInvoiceFixture()

	_, err := f.svc.SubmitOrder(context.Background(), manager, order())

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "products", valErr.Violations[0].Field)
}

func TestSubmitOrder_RetriesSerializationFailures(t *testing.T) {
	f := newInvoiceFixture()
	f.store.serializationFailures = 2

	result, err := f.svc.SubmitOrder(context.Background(), manager, order(line(1, 4)))
	require.NoError(t, err)

	assert.Equal(t, 3, f.store.txCount)
	assert.Equal(t, 6, f.store.stock(1))
	assert.Equal(t, 1, f.store.invoiceCount())
	assert.Equal(t, "20.00", result.Invoice.Total.StringFixed(2))
}

func TestSubmitOrder_ConflictAfterRetries(t *testing.T) {
	f := newInvoiceFixture()
	f.store.serializationFailures = 100

	_, err := f.svc.SubmitOrder(context.Background(), manager, order(line(1, 1)))

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, store.ErrSerialization)
	assert.Equal(t, 4, f.store.txCount)
	assert.Equal(t, 10, f.store.stock(1))
	assert.Equal(t, 0, f.store.invoiceCount())
}

func TestSubmitOrder_UnexpectedStoreFailure(t *testing.T) {
	f := newInvoiceFixture()
	f.store.userErr = errors.New("connection reset")

	_, err := f.svc.SubmitOrder(context.Background(), manager, order(line(1, 1)))

	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, 1, f.store.txCount)
}

func TestSubmitOrder_PublishFailureDoesNotFailOrder(t *testing.T) {
	f := newInvoiceFixture()
	f.publisher.err = errors.New("broker down")

	result, err := f.svc.SubmitOrder(context.Background(), manager, order(line(1, 1)))
	require.NoError(t, err)
	assert.NotZero(t, result.Invoice.ID)
	assert.Equal(t, 9, f.store.stock(1))
}

func TestSubmitOrder_ConcurrentOrdersNeverOversell(t *testing.T) {
	f := newInvoiceFixture()
	f.store.addProduct(5, 5, "2.50")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, amount := range []int{3, 4} {
		wg.Add(1)
		go func(i, amount int) {
			defer wg.Done()
			_, errs[i] = f.svc.SubmitOrder(context.Background(), manager, order(line(5, amount)))
		}(i, amount)
	}
	wg.Wait()

	succeeded := 0
	for i, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var stockErr *InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, []int{3, 4}[i], stockErr.Requested)
		assert.Equal(t, 5-[]int{3, 4}[1-i], stockErr.Available)
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, f.store.invoiceCount())
	remaining := f.store.stock(5)
	assert.True(t, remaining == 1 || remaining == 2)
}

func TestSubmitOrder_ManyConcurrentOrders(t *testing.T) {
	f := newInvoiceFixture()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.SubmitOrder(context.Background(), manager, order(line(1, 1))); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 0, f.store.stock(1))
	assert.Equal(t, 10, f.store.invoiceCount())
}

func TestInvoiceReads(t *testing.T) {
	f := newInvoiceFixture()
	ctx := context.Background()

	created, err := f.svc.SubmitOrder(ctx, manager, order(line(1, 1), line(2, 1)))
	require.NoError(t, err)
	_, err = f.svc.SubmitOrder(ctx, manager, order(line(1, 2)))
	require.NoError(t, err)

	invoice, err := f.svc.GetInvoice(ctx, created.Invoice.ID)
	require.NoError(t, err)
	assert.Len(t, invoice.Details, 2)

	_, err = f.svc.GetInvoice(ctx, 9999)
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)

	invoices, err := f.svc.ListInvoices(ctx)
	require.NoError(t, err)
	assert.Len(t, invoices, 2)

	details, err := f.svc.ListInvoiceDetails(ctx)
	require.NoError(t, err)
	assert.Len(t, details, 3)

	history, err := f.svc.ListInvoiceDetailsByProduct(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
