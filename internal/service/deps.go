package service

import (
	"context"
	"errors"
	"time"

	"bookstore-service/internal/models"
)

// Client-attributable failures. Handlers map these to 4xx responses;
// anything else is a server error.
var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
)

// Cache is the subset of the redis client the services consume.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) bool
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
	DeletePattern(ctx context.Context, pattern string)
}

// Publisher is the subset of the event publisher the order workflow
// consumes.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishShipmentBooked(ctx context.Context, event *models.ShipmentBookedEvent) error
}
