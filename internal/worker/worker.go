package worker

import (
	"context"
	"errors"
	"sync"

	"invoice-service/internal/broker"
	"invoice-service/internal/service"
	"invoice-service/internal/util"

	"go.uber.org/zap"
)

// StockWorker consumes invoice events and feeds them to the stock monitor
type StockWorker struct {
	consumer     broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	done    chan struct{}
	once    sync.Once
}

// NewStockWorker creates a new stock worker
func NewStockWorker(consumer broker.Consumer, monitor *service.StockMonitor) *StockWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnInvoiceCreated(monitor.HandleInvoiceCreated)

	return &StockWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.Component("worker"),
		done:         make(chan struct{}),
	}
}

// Start consumes until ctx is cancelled or Stop is called. It blocks.
// Start after Stop returns nil without consuming.
func (w *StockWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()
	defer close(w.done)

	w.logger.Info("Starting stock worker")
	err := w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop cancels consumption, waits for Start to return and closes the consumer
func (w *StockWorker) Stop() error {
	var err error
	w.once.Do(func() {
		w.logger.Info("Stopping stock worker")
		w.mu.Lock()
		w.stopped = true
		cancel := w.cancel
		w.mu.Unlock()

		if cancel != nil {
			cancel()
			<-w.done
		}
		err = w.consumer.Close()
	})
	return err
}
