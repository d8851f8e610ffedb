package store

import (
	"context"
	"fmt"

	"invoice-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	invoiceColumns = "id, user_id, username, total, created_at, updated_at"
	detailColumns  = "id, invoice_id, product_id, description, amount, price, created_at"
)

// GetInvoiceByID retrieves an invoice with its detail rows
func (q queries) GetInvoiceByID(ctx context.Context, id int64) (*models.Invoice, error) {
	var invoice models.Invoice
	err := sqlx.GetContext(ctx, q.ext, &invoice,
		"SELECT "+invoiceColumns+" FROM invoices WHERE id = $1", id)
	if err != nil {
		return nil, translateError(err)
	}

	details, err := q.detailsByInvoice(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	invoice.Details = details[id]
	return &invoice, nil
}

// ListInvoices retrieves all invoices with their detail rows
func (q queries) ListInvoices(ctx context.Context) ([]models.Invoice, error) {
	invoices := []models.Invoice{}
	err := sqlx.SelectContext(ctx, q.ext, &invoices,
		"SELECT "+invoiceColumns+" FROM invoices ORDER BY id")
	if err != nil {
		return nil, translateError(err)
	}
	if len(invoices) == 0 {
		return invoices, nil
	}

	ids := make([]int64, len(invoices))
	for i, inv := range invoices {
		ids[i] = inv.ID
	}
	details, err := q.detailsByInvoice(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range invoices {
		invoices[i].Details = details[invoices[i].ID]
	}
	return invoices, nil
}

// ListInvoiceDetails retrieves every invoice detail row
func (q queries) ListInvoiceDetails(ctx context.Context) ([]models.InvoiceDetail, error) {
	details := []models.InvoiceDetail{}
	err := sqlx.SelectContext(ctx, q.ext, &details,
		"SELECT "+detailColumns+" FROM invoice_details ORDER BY id")
	return details, translateError(err)
}

// ListInvoiceDetailsByProduct retrieves the sales history of one product
func (q queries) ListInvoiceDetailsByProduct(ctx context.Context, productID int64) ([]models.InvoiceDetail, error) {
	details := []models.InvoiceDetail{}
	err := sqlx.SelectContext(ctx, q.ext, &details,
		"SELECT "+detailColumns+" FROM invoice_details WHERE product_id = $1 ORDER BY id", productID)
	return details, translateError(err)
}

func (q queries) detailsByInvoice(ctx context.Context, invoiceIDs []int64) (map[int64][]models.InvoiceDetail, error) {
	var rows []models.InvoiceDetail
	err := sqlx.SelectContext(ctx, q.ext, &rows,
		"SELECT "+detailColumns+" FROM invoice_details WHERE invoice_id = ANY($1) ORDER BY id",
		pq.Array(invoiceIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice details: %w", translateError(err))
	}

	grouped := make(map[int64][]models.InvoiceDetail, len(invoiceIDs))
	for _, d := range rows {
		grouped[d.InvoiceID] = append(grouped[d.InvoiceID], d)
	}
	return grouped, nil
}

// IsEventProcessed checks if an event has been processed
func (q queries) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, q.ext, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, translateError(err)
}

// MarkEventProcessed marks an event as processed
func (q queries) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := q.ext.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return translateError(err)
}
