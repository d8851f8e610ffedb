package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"invoice-service/internal/models"
	"invoice-service/internal/store"

	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory store. RunInTx holds mu for the whole
// transaction, which serializes orders the way product row locks do, and
// restores a snapshot when fn fails.
type fakeStore struct {
	mu sync.Mutex

	users    map[int64]*models.User
	roles    map[int64]*models.Role
	products map[int64]*models.Product
	invoices []models.Invoice
	events   map[string]string

	nextID int64

	// serializationFailures makes that many transactions abort at commit
	serializationFailures int
	userErr               error

	txCount   int
	lockCalls [][]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: map[int64]*models.User{
			1: {ID: 1, Username: "bob", RoleID: 2},
		},
		roles: map[int64]*models.Role{
			1: {ID: 1, Name: "admin"},
			2: {ID: 2, Name: "manager"},
		},
		products: map[int64]*models.Product{},
		events:   map[string]string{},
		nextID:   100,
	}
}

func (s *fakeStore) addProduct(id int64, stock int, price string) {
	s.products[id] = &models.Product{
		ID:          id,
		Description: fmt.Sprintf("Product %d", id),
		LotNumber:   "LOT",
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
		EntryDate:   time.Now(),
		Active:      true,
	}
}

func (s *fakeStore) stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

func (s *fakeStore) invoiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.invoices)
}

func (s *fakeStore) RunInTx(ctx context.Context, fn func(store.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++

	products := make(map[int64]models.Product, len(s.products))
	for id, p := range s.products {
		products[id] = *p
	}
	invoices := len(s.invoices)
	nextID := s.nextID

	err := fn(&fakeTx{s: s})
	if err == nil && s.serializationFailures > 0 {
		s.serializationFailures--
		err = fmt.Errorf("failed to commit transaction: %w", store.ErrSerialization)
	}

	if err != nil {
		for id, p := range products {
			p := p
			s.products[id] = &p
		}
		s.invoices = s.invoices[:invoices]
		s.nextID = nextID
	}
	return err
}

func (s *fakeStore) GetInvoiceByID(ctx context.Context, id int64) (*models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invoices {
		if inv.ID == id {
			inv := inv
			return &inv, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) ListInvoices(ctx context.Context) ([]models.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Invoice{}, s.invoices...), nil
}

func (s *fakeStore) ListInvoiceDetails(ctx context.Context) ([]models.InvoiceDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	details := []models.InvoiceDetail{}
	for _, inv := range s.invoices {
		details = append(details, inv.Details...)
	}
	return details, nil
}

func (s *fakeStore) ListInvoiceDetailsByProduct(ctx context.Context, productID int64) ([]models.InvoiceDetail, error) {
	all, _ := s.ListInvoiceDetails(ctx)
	details := []models.InvoiceDetail{}
	for _, d := range all {
		if d.ProductID == productID {
			details = append(details, d)
		}
	}
	return details, nil
}

func (s *fakeStore) GetActiveProduct(ctx context.Context, id int64) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).GetActiveProduct(ctx, id)
}

func (s *fakeStore) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	products := []models.Product{}
	for _, p := range s.products {
		if p.Active {
			products = append(products, *p)
		}
	}
	return products, nil
}

func (s *fakeStore) CreateProduct(ctx context.Context, product *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.Description == product.Description {
			return fmt.Errorf("failed to create product: %w", store.ErrDuplicate)
		}
	}
	s.nextID++
	product.ID = s.nextID
	product.Active = true
	p := *product
	s.products[p.ID] = &p
	return nil
}

func (s *fakeStore) UpdateProduct(ctx context.Context, product *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.products[product.ID]
	if !ok || !existing.Active {
		return store.ErrNotFound
	}
	product.Active = true
	p := *product
	s.products[p.ID] = &p
	return nil
}

func (s *fakeStore) DeactivateProduct(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok || !p.Active {
		return store.ErrNotFound
	}
	p.Active = false
	return nil
}

func (s *fakeStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&fakeTx{s: s}).GetUserByID(ctx, id)
}

func (s *fakeStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			u := *u
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := []models.User{}
	for _, u := range s.users {
		users = append(users, *u)
	}
	return users, nil
}

func (s *fakeStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == user.Username {
			return fmt.Errorf("failed to create user: %w", store.ErrDuplicate)
		}
	}
	s.nextID++
	user.ID = s.nextID
	u := *user
	s.users[u.ID] = &u
	return nil
}

func (s *fakeStore) GetRoleByID(ctx context.Context, id int64) (*models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	role := *r
	return &role, nil
}

func (s *fakeStore) ListRoles(ctx context.Context) ([]models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles := []models.Role{}
	for _, r := range s.roles {
		roles = append(roles, *r)
	}
	return roles, nil
}

func (s *fakeStore) CreateRole(ctx context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == role.Name {
			return fmt.Errorf("failed to create role: %w", store.ErrDuplicate)
		}
	}
	s.nextID++
	role.ID = s.nextID
	r := *role
	s.roles[r.ID] = &r
	return nil
}

func (s *fakeStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.events[eventID]
	return ok, nil
}

func (s *fakeStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[eventID] = eventType
	return nil
}

// fakeTx runs with fakeStore.mu already held
type fakeTx struct {
	s *fakeStore
}

func (t *fakeTx) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	if t.s.userErr != nil {
		return nil, t.s.userErr
	}
	u, ok := t.s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := *u
	return &user, nil
}

func (t *fakeTx) LockProducts(ctx context.Context, ids []int64) error {
	t.s.lockCalls = append(t.s.lockCalls, append([]int64{}, ids...))
	return nil
}

func (t *fakeTx) GetActiveProduct(ctx context.Context, id int64) (*models.Product, error) {
	p, ok := t.s.products[id]
	if !ok || !p.Active {
		return nil, store.ErrNotFound
	}
	product := *p
	return &product, nil
}

func (t *fakeTx) DecrementStock(ctx context.Context, id int64, amount int) (*models.Product, error) {
	p, ok := t.s.products[id]
	if !ok || !p.Active || p.Stock < amount {
		return nil, store.ErrStockConflict
	}
	p.Stock -= amount
	product := *p
	return &product, nil
}

func (t *fakeTx) RecordInvoice(ctx context.Context, header models.InvoiceHeader, total decimal.Decimal, lines []models.InvoiceDetail) (*models.Invoice, error) {
	t.s.nextID++
	invoice := models.Invoice{
		ID:        t.s.nextID,
		UserID:    header.UserID,
		Username:  header.Username,
		Total:     total,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	for _, line := range lines {
		t.s.nextID++
		line.ID = t.s.nextID
		line.InvoiceID = invoice.ID
		invoice.Details = append(invoice.Details, line)
	}
	t.s.invoices = append(t.s.invoices, invoice)
	out := invoice
	return &out, nil
}

type fakeCache struct {
	mu          sync.Mutex
	products    map[int64]models.Product
	invalidated []int64
	gets        int
	err         error
}

func newFakeCache() *fakeCache {
	return &fakeCache{products: map[int64]models.Product{}}
}

func (c *fakeCache) GetProduct(ctx context.Context, id int64) (*models.Product, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.err != nil {
		return nil, false, c.err
	}
	p, ok := c.products[id]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

func (c *fakeCache) SetProduct(ctx context.Context, product *models.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[product.ID] = *product
	return nil
}

func (c *fakeCache) InvalidateProducts(ctx context.Context, ids ...int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.products, id)
	}
	c.invalidated = append(c.invalidated, ids...)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*models.InvoiceCreatedEvent
	err    error
}

func (p *fakePublisher) PublishInvoiceCreated(ctx context.Context, event *models.InvoiceCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
