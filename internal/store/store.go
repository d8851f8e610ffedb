package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"invoice-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrStockConflict = errors.New("stock conditional update matched no row")
	ErrDuplicate     = errors.New("duplicate record")
	ErrForeignKey    = errors.New("foreign key violation")
	ErrSerialization = errors.New("transaction aborted by concurrent update")
)

// UnitOfWork is the set of operations available inside an order transaction.
type UnitOfWork interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	LockProducts(ctx context.Context, ids []int64) error
	GetActiveProduct(ctx context.Context, id int64) (*models.Product, error)
	DecrementStock(ctx context.Context, id int64, amount int) (*models.Product, error)
	RecordInvoice(ctx context.Context, header models.InvoiceHeader, total decimal.Decimal, lines []models.InvoiceDetail) (*models.Invoice, error)
}

type Store struct {
	queries
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string, maxOpenConns int) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewFromDB(db), nil
}

// NewFromDB wraps an existing connection pool
func NewFromDB(db *sqlx.DB) *Store {
	return &Store{queries: queries{ext: db}, db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunInTx runs fn inside a single transaction. The transaction commits only
// when fn returns nil; any error rolls back every write made through the
// UnitOfWork.
func (s *Store) RunInTx(ctx context.Context, fn func(UnitOfWork) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", translateError(err))
	}
	defer tx.Rollback()

	if err := fn(&txStore{queries: queries{ext: tx}, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", translateError(err))
	}
	return nil
}

// txStore is the UnitOfWork bound to one *sqlx.Tx
type txStore struct {
	queries
	tx *sqlx.Tx
}

// LockProducts takes row locks on the given products in ascending id order
func (t *txStore) LockProducts(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	var locked []int64
	err := sqlx.SelectContext(ctx, t.tx, &locked,
		"SELECT id FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE", pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to lock products: %w", translateError(err))
	}
	return nil
}

// RecordInvoice writes the invoice header and one detail row per line
func (t *txStore) RecordInvoice(ctx context.Context, header models.InvoiceHeader, total decimal.Decimal, lines []models.InvoiceDetail) (*models.Invoice, error) {
	invoice := &models.Invoice{
		UserID:   header.UserID,
		Username: header.Username,
		Total:    total,
	}

	err := sqlx.GetContext(ctx, t.tx, invoice, `
		INSERT INTO invoices (user_id, username, total)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		invoice.UserID, invoice.Username, invoice.Total)
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", translateError(err))
	}

	invoice.Details = make([]models.InvoiceDetail, 0, len(lines))
	for _, line := range lines {
		detail := line
		detail.InvoiceID = invoice.ID

		err := sqlx.GetContext(ctx, t.tx, &detail, `
			INSERT INTO invoice_details (invoice_id, product_id, description, amount, price)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at`,
			detail.InvoiceID, detail.ProductID, detail.Description, detail.Amount, detail.Price)
		if err != nil {
			return nil, fmt.Errorf("failed to create invoice detail for product %d: %w", detail.ProductID, translateError(err))
		}
		invoice.Details = append(invoice.Details, detail)
	}

	return invoice, nil
}

// queries holds statements shared by the pool and transactions
type queries struct {
	ext sqlx.ExtContext
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
		case "23503":
			return fmt.Errorf("%w: %s", ErrForeignKey, pqErr.Constraint)
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", ErrSerialization, pqErr.Message)
		}
	}
	return err
}
