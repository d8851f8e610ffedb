package service

import (
	"context"
	"fmt"
	"strconv"

	"invoice-service/internal/models"
	"invoice-service/internal/util"

	"go.uber.org/zap"
)

// EventLedger records which events a consumer already handled
type EventLedger interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// StockMonitor reacts to committed invoices by tracking stock levels and
// raising low-stock alerts
type StockMonitor struct {
	ledger    EventLedger
	threshold int
	logger    *zap.Logger
}

func NewStockMonitor(ledger EventLedger, lowStockThreshold int) *StockMonitor {
	return &StockMonitor{
		ledger:    ledger,
		threshold: lowStockThreshold,
		logger:    util.Component("stock-monitor"),
	}
}

// HandleInvoiceCreated handles an INVOICE_CREATED event at most once per event id
func (m *StockMonitor) HandleInvoiceCreated(ctx context.Context, event *models.InvoiceCreatedEvent) error {
	ctx, span := util.StartSpan(ctx, "StockMonitor.HandleInvoiceCreated")
	defer span.End()

	processed, err := m.ledger.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		m.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	// Lines of the same product arrive in decrement order, so the last one wins.
	remaining := make(map[int64]int, len(event.Items))
	order := make([]int64, 0, len(event.Items))
	for _, item := range event.Items {
		if _, ok := remaining[item.ProductID]; !ok {
			order = append(order, item.ProductID)
		}
		remaining[item.ProductID] = item.RemainingStock
	}

	for _, productID := range order {
		stock := remaining[productID]
		label := strconv.FormatInt(productID, 10)
		util.ProductStockLevel.WithLabelValues(label).Set(float64(stock))

		if stock <= m.threshold {
			util.LowStockAlertsTotal.WithLabelValues(label).Inc()
			m.logger.Warn("Product stock is low",
				zap.Int64("product_id", productID),
				zap.Int("remaining", stock),
				zap.Int("threshold", m.threshold),
				zap.Int64("invoice_id", event.InvoiceID))
		}
	}

	if err := m.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}
