// Package worker runs the background halves of the order workflow: the
// side-effect worker that reacts to committed orders, and the periodic
// carrier status sync.
package worker

import (
	"context"
	"errors"
	"time"

	"bookstore-service/internal/broker"
	"bookstore-service/internal/models"
	"bookstore-service/internal/notify"
	"bookstore-service/internal/service"
	"bookstore-service/internal/shipping"
	"bookstore-service/internal/store"
	"bookstore-service/internal/util"

	"go.uber.org/zap"
)

// SideEffectWorker consumes OrderCreated events and performs the
// best-effort work that must never block or fail an order: carrier
// booking and the notification fan-out. Failures are logged and the
// offset is committed regardless, so nothing is retried.
type SideEffectWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	shippingSvc  *service.ShippingService
	notifier     *notify.Notifier
	store        *store.Store
	logger       *zap.Logger
}

// NewSideEffectWorker creates a new side-effect worker
func NewSideEffectWorker(
	consumer *broker.Consumer,
	shippingSvc *service.ShippingService,
	notifier *notify.Notifier,
	st *store.Store,
) *SideEffectWorker {
	w := &SideEffectWorker{
		consumer:    consumer,
		shippingSvc: shippingSvc,
		notifier:    notifier,
		store:       st,
		logger:      util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCreated(w.handleOrderCreated)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *SideEffectWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting side-effect worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SideEffectWorker) Stop() error {
	w.logger.Info("Stopping side-effect worker")
	return w.consumer.Close()
}

func (w *SideEffectWorker) handleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	ctx, span := util.StartSpan(ctx, "SideEffectWorker.HandleOrderCreated")
	defer span.End()

	w.logger.Info("Processing order side effects", zap.Int64("order_id", event.OrderID))

	if _, err := w.shippingSvc.BookShipment(ctx, event.OrderID); err != nil {
		if errors.Is(err, shipping.ErrNotConfigured) {
			w.logger.Debug("Carrier not configured, skipping booking",
				zap.Int64("order_id", event.OrderID))
		} else {
			w.logger.Error("Shipment booking failed",
				zap.Int64("order_id", event.OrderID),
				zap.Error(err))
		}
	}

	rcpt := w.resolveRecipient(ctx, event)
	w.notifier.NotifyOrderCreated(ctx, rcpt, event.OrderID, event.TotalAmount)

	// Side effects are at most once; the offset commits no matter what
	// happened above.
	return nil
}

func (w *SideEffectWorker) resolveRecipient(ctx context.Context, event *models.OrderCreatedEvent) notify.Recipient {
	if event.UserID != nil {
		user, err := w.store.GetUserByID(ctx, *event.UserID)
		if err != nil {
			w.logger.Warn("Failed to load user for notification",
				zap.Int64("order_id", event.OrderID),
				zap.Error(err))
			return notify.Recipient{}
		}
		rcpt := notify.Recipient{Email: user.Email, FirstName: user.FirstName}
		if user.PhoneNumber != nil {
			rcpt.Phone = *user.PhoneNumber
		}
		return rcpt
	}

	if event.GuestEmail != nil {
		return notify.Recipient{Email: *event.GuestEmail, FirstName: "Customer"}
	}
	return notify.Recipient{}
}

// StatusSyncWorker periodically reconciles order statuses with the carrier.
type StatusSyncWorker struct {
	shippingSvc *service.ShippingService
	interval    time.Duration
	logger      *zap.Logger
}

// NewStatusSyncWorker creates a new status sync worker
func NewStatusSyncWorker(shippingSvc *service.ShippingService, interval time.Duration) *StatusSyncWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &StatusSyncWorker{
		shippingSvc: shippingSvc,
		interval:    interval,
		logger:      util.GetLogger(),
	}
}

// Start runs the sync loop until the context is cancelled.
func (w *StatusSyncWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting status sync worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Status sync worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.shippingSvc.SyncShippingStatuses(ctx); err != nil {
				if errors.Is(err, shipping.ErrNotConfigured) {
					continue
				}
				w.logger.Error("Status sync run failed", zap.Error(err))
			}
		}
	}
}
