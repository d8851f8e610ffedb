package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role groups users for access control
type Role struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// User is an account that can authenticate against the API
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	RoleID       int64     `db:"role_id" json:"roleId"`
	RoleName     string    `db:"role_name" json:"roleName,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Product represents a product in the catalog
type Product struct {
	ID          int64           `db:"id" json:"id"`
	Description string          `db:"description" json:"description"`
	LotNumber   string          `db:"lot_number" json:"lotNumber"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Stock       int             `db:"stock" json:"stock"`
	EntryDate   time.Time       `db:"entry_date" json:"entryDate"`
	Active      bool            `db:"active" json:"active"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

// InvoiceHeader is the caller-supplied part of an invoice
type InvoiceHeader struct {
	UserID   int64
	Username string
}

// Invoice is the immutable ledger header created by order intake
type Invoice struct {
	ID        int64           `db:"id" json:"id"`
	UserID    int64           `db:"user_id" json:"userId"`
	Username  string          `db:"username" json:"username"`
	Total     decimal.Decimal `db:"total" json:"total"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`

	Details []InvoiceDetail `db:"-" json:"InvoiceDetails,omitempty"`
}

// InvoiceDetail is one line of an invoice. Description and Price are
// snapshots taken when the invoice was created.
type InvoiceDetail struct {
	ID          int64           `db:"id" json:"id"`
	InvoiceID   int64           `db:"invoice_id" json:"invoiceId"`
	ProductID   int64           `db:"product_id" json:"productId"`
	Description string          `db:"description" json:"description"`
	Amount      int             `db:"amount" json:"amount"`
	Price       decimal.Decimal `db:"price" json:"price"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}

// Subtotal returns amount x price for the line
func (d InvoiceDetail) Subtotal() decimal.Decimal {
	return d.Price.Mul(decimal.NewFromInt(int64(d.Amount)))
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
