package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeInvoiceCreated = "INVOICE_CREATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
}

// InvoiceCreatedEvent published after an invoice and its stock decrements commit
type InvoiceCreatedEvent struct {
	BaseEvent
	InvoiceID int64             `json:"invoiceId"`
	UserID    int64             `json:"userId"`
	Username  string            `json:"username"`
	Total     decimal.Decimal   `json:"total"`
	Items     []InvoiceItemData `json:"items"`
}

// InvoiceItemData represents a line in events. RemainingStock is the
// product stock right after this line was decremented.
type InvoiceItemData struct {
	ProductID      int64           `json:"productId"`
	Amount         int             `json:"amount"`
	Price          decimal.Decimal `json:"price"`
	RemainingStock int             `json:"remainingStock"`
}
