package models

import "time"

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeShipmentBooked     = "SHIPMENT_BOOKED"
)

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent is published after the order transaction commits.
// It carries everything the side-effect worker needs to book the
// shipment and run the notification fan-out without re-reading request
// state.
type OrderCreatedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	UserID        *int64          `json:"user_id,omitempty"`
	GuestEmail    *string         `json:"guest_email,omitempty"`
	TotalAmount   int64           `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	Items         []OrderItemData `json:"items"`
}

// OrderCancelledEvent is published when a pending order is cancelled
// and its stock restored.
type OrderCancelledEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}

// OrderStatusChangedEvent is published on admin status updates and
// carrier-driven sync updates.
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID    int64  `json:"order_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
}

// ShipmentBookedEvent is published once the carrier returns a tracking code.
type ShipmentBookedEvent struct {
	BaseEvent
	OrderID      int64  `json:"order_id"`
	TrackingCode string `json:"tracking_code"`
}

// OrderItemData represents item data in events.
type OrderItemData struct {
	ItemKind  ItemKind `json:"item_kind"`
	ItemID    int64    `json:"item_id"`
	Quantity  int      `json:"quantity"`
	UnitPrice int64    `json:"unit_price"`
}
