package service

import (
	"context"
	"fmt"
	"time"

	"bookstore-service/internal/models"
	"bookstore-service/internal/redisclient"
	"bookstore-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStore is the subset of the store the order workflow consumes.
type OrderStore interface {
	GetCatalogItem(ctx context.Context, ref models.ItemRef) (*models.CatalogItem, error)
	CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	ListOrdersByUser(ctx context.Context, userID int64, skip, limit int, status string) ([]models.Order, error)
	ListAllOrders(ctx context.Context, skip, limit int, status string, userID *int64) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	CancelOrder(ctx context.Context, orderID int64) error
	GetAddress(ctx context.Context, addressID, userID int64) (*models.Address, error)
	CreateAddress(ctx context.Context, address *models.Address) error
}

// OrderService handles order business logic
type OrderService struct {
	store          OrderStore
	cache          Cache
	eventPublisher Publisher
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(st OrderStore, cache Cache, eventPublisher Publisher) *OrderService {
	return &OrderService{
		store:          st,
		cache:          cache,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// OrderItemRequest references one catalog item and a quantity.
type OrderItemRequest struct {
	ItemKind models.ItemKind `json:"item_kind" binding:"required,oneof=book stationery"`
	ItemID   int64           `json:"item_id" binding:"required"`
	Quantity int             `json:"quantity" binding:"required,min=1"`
}

// ShippingAddressRequest is an inline destination for the order.
type ShippingAddressRequest struct {
	FullName     string  `json:"full_name" binding:"required"`
	PhoneNumber  string  `json:"phone_number" binding:"required"`
	AddressLine1 string  `json:"address_line1" binding:"required"`
	AddressLine2 *string `json:"address_line2,omitempty"`
	City         string  `json:"city" binding:"required"`
	PostalCode   string  `json:"postal_code"`
	Country      string  `json:"country"`
}

// CreateOrderRequest represents a request to create an order. Exactly
// one of AddressID or Address must be present; guests always ship to an
// inline address.
type CreateOrderRequest struct {
	UserID     *int64  `json:"-"`
	GuestEmail *string `json:"guest_email,omitempty"`

	Items []OrderItemRequest `json:"items" binding:"required,min=1,dive"`

	AddressID     *int64                  `json:"address_id,omitempty"`
	Address       *ShippingAddressRequest `json:"address,omitempty"`
	SaveAddress   bool                    `json:"save_address,omitempty"`
	SetDefault    bool                    `json:"set_default,omitempty"`
	PaymentMethod string                  `json:"payment_method" binding:"required,oneof=cod momo"`

	// Carrier routing chosen during checkout, stored verbatim.
	GHNProvinceID     *int    `json:"ghn_province_id,omitempty"`
	GHNDistrictID     *int    `json:"ghn_district_id,omitempty"`
	GHNWardCode       *string `json:"ghn_ward_code,omitempty"`
	GHNProvinceName   *string `json:"ghn_province_name,omitempty"`
	GHNDistrictName   *string `json:"ghn_district_name,omitempty"`
	GHNWardName       *string `json:"ghn_ward_name,omitempty"`
	ShippingServiceID *int    `json:"shipping_service_id,omitempty"`
	ShippingFee       *int64  `json:"shipping_fee,omitempty"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderID     int64  `json:"order_id"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"total_amount"`
}

// CreateOrder validates the cart, resolves the shipping destination,
// and persists the order. Stock is only ever taken inside the order
// transaction, so a failed line leaves nothing behind.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if req.UserID == nil && (req.GuestEmail == nil || *req.GuestEmail == "") {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, fmt.Errorf("%w: guest orders require an email", ErrValidation)
	}

	items, totalAmount, err := s.buildOrderItems(ctx, req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	order := &models.Order{
		UserID:      req.UserID,
		TotalAmount: totalAmount,
		Status:      models.OrderStatusPending,
		GuestEmail:  req.GuestEmail,

		PaymentMethod: &req.PaymentMethod,

		GHNProvinceID:     req.GHNProvinceID,
		GHNDistrictID:     req.GHNDistrictID,
		GHNWardCode:       req.GHNWardCode,
		GHNProvinceName:   req.GHNProvinceName,
		GHNDistrictName:   req.GHNDistrictName,
		GHNWardName:       req.GHNWardName,
		ShippingServiceID: req.ShippingServiceID,
		ShippingFee:       req.ShippingFee,
	}

	if err := s.resolveShippingAddress(ctx, req, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_address").Inc()
		return nil, err
	}

	if req.PaymentMethod == "cod" {
		cod := totalAmount
		order.CODAmount = &cod
	}

	if err := s.store.CreateOrderWithItems(ctx, order, items); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("total_amount", order.TotalAmount))

	s.publishOrderCreated(ctx, order, items)

	if req.UserID != nil {
		s.cache.DeletePattern(ctx, redisclient.PatternUserOrders(*req.UserID))
	}

	return &CreateOrderResponse{
		OrderID:     order.ID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
	}, nil
}

// buildOrderItems loads each referenced catalog item, rejects inactive
// or missing ones, and snapshots the current unit price.
func (s *OrderService) buildOrderItems(ctx context.Context, reqs []OrderItemRequest) ([]models.OrderItem, int64, error) {
	items := make([]models.OrderItem, 0, len(reqs))
	var total int64

	for _, line := range reqs {
		if line.Quantity < 1 {
			return nil, 0, fmt.Errorf("%w: quantity must be positive", ErrValidation)
		}

		ref := models.ItemRef{Kind: line.ItemKind, ID: line.ItemID}
		item, err := s.store.GetCatalogItem(ctx, ref)
		if err != nil {
			return nil, 0, err
		}
		if !item.IsActive {
			return nil, 0, fmt.Errorf("%w: %s %d is not available", ErrValidation, ref.Kind, ref.ID)
		}

		unitPrice := item.UnitPrice()
		total += unitPrice * int64(line.Quantity)

		items = append(items, models.OrderItem{
			ItemKind:        line.ItemKind,
			ItemID:          line.ItemID,
			Quantity:        line.Quantity,
			PriceAtPurchase: unitPrice,
		})
	}

	return items, total, nil
}

// resolveShippingAddress copies either a saved address or the inline
// one onto the order. Inline addresses may optionally be saved for the
// customer for next time.
func (s *OrderService) resolveShippingAddress(ctx context.Context, req *CreateOrderRequest, order *models.Order) error {
	if req.AddressID != nil {
		if req.UserID == nil {
			return fmt.Errorf("%w: guests cannot use saved addresses", ErrValidation)
		}
		addr, err := s.store.GetAddress(ctx, *req.AddressID, *req.UserID)
		if err != nil {
			return err
		}
		order.ShippingPhoneNumber = &addr.PhoneNumber
		order.ShippingAddressLine1 = &addr.AddressLine1
		order.ShippingAddressLine2 = addr.AddressLine2
		order.ShippingCity = &addr.City
		order.ShippingPostalCode = &addr.PostalCode
		order.ShippingCountry = &addr.Country
		return nil
	}

	if req.Address == nil {
		return fmt.Errorf("%w: shipping address is required", ErrValidation)
	}

	addr := req.Address
	order.ShippingFullName = &addr.FullName
	order.ShippingPhoneNumber = &addr.PhoneNumber
	order.ShippingAddressLine1 = &addr.AddressLine1
	order.ShippingAddressLine2 = addr.AddressLine2
	order.ShippingCity = &addr.City
	order.ShippingPostalCode = &addr.PostalCode
	order.ShippingCountry = &addr.Country

	if req.SaveAddress && req.UserID != nil {
		saved := &models.Address{
			UserID:            *req.UserID,
			PhoneNumber:       addr.PhoneNumber,
			AddressLine1:      addr.AddressLine1,
			AddressLine2:      addr.AddressLine2,
			City:              addr.City,
			PostalCode:        addr.PostalCode,
			Country:           addr.Country,
			IsDefaultShipping: req.SetDefault,
		}
		if err := s.store.CreateAddress(ctx, saved); err != nil {
			s.logger.Warn("Failed to save checkout address", zap.Error(err))
		}
	}

	return nil
}

func (s *OrderService) publishOrderCreated(ctx context.Context, order *models.Order, items []models.OrderItem) {
	eventItems := make([]models.OrderItemData, 0, len(items))
	for _, item := range items {
		eventItems = append(eventItems, models.OrderItemData{
			ItemKind:  item.ItemKind,
			ItemID:    item.ItemID,
			Quantity:  item.Quantity,
			UnitPrice: item.PriceAtPurchase,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID,
		UserID:        order.UserID,
		GuestEmail:    order.GuestEmail,
		TotalAmount:   order.TotalAmount,
		PaymentMethod: derefOr(order.PaymentMethod, ""),
		Items:         eventItems,
	}

	if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event",
			zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

// GetOrder retrieves an order with its items. Non-admin callers only
// see their own orders; a foreign order reads as not found.
func (s *OrderService) GetOrder(ctx context.Context, orderID int64, userID *int64, isAdmin bool) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	if !isAdmin && !ownsOrder(order, userID) {
		return nil, nil, fmt.Errorf("%w: order %d", ErrForbidden, orderID)
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, items, nil
}

// ListOrders returns a page of the user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID int64, skip, limit int, status string) ([]models.Order, error) {
	key := redisclient.KeyUserOrders(userID, skip, limit, status)
	var orders []models.Order
	if s.cache.GetJSON(ctx, key, &orders) {
		return orders, nil
	}

	orders, err := s.store.ListOrdersByUser(ctx, userID, skip, limit, status)
	if err != nil {
		return nil, err
	}

	s.cache.SetJSON(ctx, key, orders, redisclient.TTLListing)
	return orders, nil
}

// ListAllOrders returns a page of all orders with optional filters (admin).
func (s *OrderService) ListAllOrders(ctx context.Context, skip, limit int, status string, userID *int64) ([]models.Order, error) {
	return s.store.ListAllOrders(ctx, skip, limit, status, userID)
}

// UpdateStatus moves an order along the status machine. Transitions
// outside the machine are conflicts, not updates.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, newStatus string) error {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	fromStatus := order.Status
	if !models.CanTransition(fromStatus, newStatus) {
		return fmt.Errorf("%w: cannot move order %d from %s to %s",
			ErrValidation, orderID, fromStatus, newStatus)
	}

	// Every path into Cancelled restores stock, so an admin cancel goes
	// through the same conditional flip as a customer cancel.
	if newStatus == models.OrderStatusCancelled {
		return s.cancelWithRestore(ctx, order, "cancelled by admin")
	}

	if err := s.store.UpdateOrderStatus(ctx, orderID, newStatus); err != nil {
		return err
	}

	s.logger.Info("Order status updated",
		zap.Int64("order_id", orderID),
		zap.String("from", fromStatus),
		zap.String("to", newStatus))

	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID:    orderID,
		FromStatus: fromStatus,
		ToStatus:   newStatus,
	}
	if err := s.eventPublisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}

	if order.UserID != nil {
		s.cache.DeletePattern(ctx, redisclient.PatternUserOrders(*order.UserID))
	}
	return nil
}

// CancelOrder cancels a pending order and restores its stock. Owners
// may cancel their own orders; admins may cancel any.
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64, userID *int64, isAdmin bool) error {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	if !isAdmin && !ownsOrder(order, userID) {
		return fmt.Errorf("%w: order %d", ErrForbidden, orderID)
	}

	return s.cancelWithRestore(ctx, order, "cancelled by request")
}

// cancelWithRestore flips a pending order to Cancelled and gives its
// stock back. The store enforces the pending precondition, so the
// restore runs at most once.
func (s *OrderService) cancelWithRestore(ctx context.Context, order *models.Order, reason string) error {
	if err := s.store.CancelOrder(ctx, order.ID); err != nil {
		return err
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", order.ID),
		zap.String("reason", reason))

	event := &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCancelled,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		Reason:  reason,
	}
	if err := s.eventPublisher.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}

	if order.UserID != nil {
		s.cache.DeletePattern(ctx, redisclient.PatternUserOrders(*order.UserID))
	}
	return nil
}

func ownsOrder(order *models.Order, userID *int64) bool {
	return order.UserID != nil && userID != nil && *order.UserID == *userID
}

func derefOr(s *string, fallback string) string {
	if s != nil {
		return *s
	}
	return fallback
}
