package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"bookstore-service/internal/models"
	"bookstore-service/internal/redisclient"
	"bookstore-service/internal/shipping"
	"bookstore-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// maxConcurrentSyncFetches bounds parallel carrier detail requests
// during a status sync run.
const maxConcurrentSyncFetches = 10

// ShippingStore is the subset of the store the shipping workflows consume.
type ShippingStore interface {
	GetCatalogItem(ctx context.Context, ref models.ItemRef) (*models.CatalogItem, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	SetOrderTrackingCode(ctx context.Context, orderID int64, code string) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	CancelOrder(ctx context.Context, orderID int64) error
	ListOrdersWithTracking(ctx context.Context) ([]models.Order, error)
}

// ShippingService wraps the carrier client with order-aware workflows:
// fee quoting at checkout, booking after order creation, and the
// periodic status sync.
type ShippingService struct {
	store     ShippingStore
	ghn       *shipping.Client
	publisher Publisher
	cache     Cache
	logger    *zap.Logger
}

// NewShippingService creates a new shipping service
func NewShippingService(st ShippingStore, ghn *shipping.Client, publisher Publisher, cache Cache) *ShippingService {
	return &ShippingService{
		store:     st,
		ghn:       ghn,
		publisher: publisher,
		cache:     cache,
		logger:    util.GetLogger(),
	}
}

// ResolveLocation maps free-text province, district, and ward names to
// carrier identifiers.
type ResolvedLocation struct {
	ProvinceID   int    `json:"province_id"`
	ProvinceName string `json:"province_name"`
	DistrictID   int    `json:"district_id"`
	DistrictName string `json:"district_name"`
	WardCode     string `json:"ward_code"`
	WardName     string `json:"ward_name"`
}

// ResolveLocation resolves a destination by name against the carrier's
// master data, narrowing province to district to ward.
func (s *ShippingService) ResolveLocation(ctx context.Context, provinceName, districtName, wardName string) (*ResolvedLocation, error) {
	province, err := s.ghn.FindProvince(ctx, provinceName)
	if err != nil {
		return nil, err
	}
	district, err := s.ghn.FindDistrict(ctx, province.ProvinceID, districtName)
	if err != nil {
		return nil, err
	}
	ward, err := s.ghn.FindWard(ctx, district.DistrictID, wardName)
	if err != nil {
		return nil, err
	}

	return &ResolvedLocation{
		ProvinceID:   province.ProvinceID,
		ProvinceName: province.ProvinceName,
		DistrictID:   district.DistrictID,
		DistrictName: district.DistrictName,
		WardCode:     ward.WardCode,
		WardName:     ward.WardName,
	}, nil
}

// FeeQuoteRequest asks what shipping to a destination would cost for a
// cart of catalog items.
type FeeQuoteRequest struct {
	ToDistrictID int                `json:"to_district_id" binding:"required"`
	ToWardCode   string             `json:"to_ward_code" binding:"required"`
	Items        []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// QuoteFee aggregates the cart into one parcel and asks the carrier
// for a fee quote.
func (s *ShippingService) QuoteFee(ctx context.Context, req FeeQuoteRequest) (*shipping.FeeBreakdown, error) {
	ctx, span := util.StartSpan(ctx, "ShippingService.QuoteFee")
	defer span.End()

	bookingItems, insuranceValue, err := s.loadBookingItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	weight, length, width, height := shipping.AggregatePackage(bookingItems)

	return s.ghn.CalculateFee(ctx, shipping.FeeRequest{
		ToDistrictID:   req.ToDistrictID,
		ToWardCode:     req.ToWardCode,
		WeightG:        weight,
		LengthCm:       length,
		WidthCm:        width,
		HeightCm:       height,
		InsuranceValue: insuranceValue,
	})
}

// loadBookingItems turns request lines into carrier parcel lines using
// the catalog's physical data.
func (s *ShippingService) loadBookingItems(ctx context.Context, lines []OrderItemRequest) ([]shipping.BookingItem, int64, error) {
	items := make([]shipping.BookingItem, 0, len(lines))
	var insuranceValue int64

	for _, line := range lines {
		ref := models.ItemRef{Kind: line.ItemKind, ID: line.ItemID}
		catalogItem, err := s.store.GetCatalogItem(ctx, ref)
		if err != nil {
			return nil, 0, err
		}

		item := shipping.BookingItem{
			Name:     catalogItem.Title,
			Quantity: line.Quantity,
			Price:    catalogItem.UnitPrice(),
		}
		if catalogItem.WeightG != nil {
			item.WeightG = *catalogItem.WeightG
		}
		if catalogItem.LengthCm != nil {
			item.LengthCm = int(*catalogItem.LengthCm)
		}
		if catalogItem.WidthCm != nil {
			item.WidthCm = int(*catalogItem.WidthCm)
		}
		if catalogItem.HeightCm != nil {
			item.HeightCm = int(*catalogItem.HeightCm)
		}

		insuranceValue += item.Price * int64(line.Quantity)
		items = append(items, item)
	}

	return items, insuranceValue, nil
}

// BookShipment creates a carrier order for a committed order and stores
// the tracking code. Called from the side-effect worker, never from the
// order transaction.
func (s *ShippingService) BookShipment(ctx context.Context, orderID int64) (string, error) {
	ctx, span := util.StartSpan(ctx, "ShippingService.BookShipment")
	defer span.End()

	if !s.ghn.IsConfigured() {
		return "", shipping.ErrNotConfigured
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.GHNOrderCode != nil {
		return *order.GHNOrderCode, nil
	}
	if order.GHNDistrictID == nil || order.GHNWardCode == nil {
		return "", fmt.Errorf("order %d has no carrier destination", orderID)
	}

	orderItems, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return "", err
	}

	// One free-ship item makes the whole parcel free ship: the shop
	// absorbs the delivery fee instead of collecting it from the buyer.
	bookingItems := make([]shipping.BookingItem, 0, len(orderItems))
	hasFreeShip := false
	for _, oi := range orderItems {
		ref := models.ItemRef{Kind: oi.ItemKind, ID: oi.ItemID}
		catalogItem, err := s.store.GetCatalogItem(ctx, ref)
		if err != nil {
			return "", err
		}
		if catalogItem.IsFreeShip {
			hasFreeShip = true
		}

		item := shipping.BookingItem{
			Name:     catalogItem.Title,
			Quantity: oi.Quantity,
			Price:    oi.PriceAtPurchase,
		}
		if catalogItem.WeightG != nil {
			item.WeightG = *catalogItem.WeightG
		}
		if catalogItem.LengthCm != nil {
			item.LengthCm = int(*catalogItem.LengthCm)
		}
		if catalogItem.WidthCm != nil {
			item.WidthCm = int(*catalogItem.WidthCm)
		}
		if catalogItem.HeightCm != nil {
			item.HeightCm = int(*catalogItem.HeightCm)
		}
		bookingItems = append(bookingItems, item)
	}

	req := shipping.BookingRequest{
		ToName:        derefOr(order.ShippingFullName, "Customer"),
		ToPhone:       derefOr(order.ShippingPhoneNumber, ""),
		ToAddress:     shippingAddressLine(order),
		ToWardCode:    *order.GHNWardCode,
		ToDistrictID:  *order.GHNDistrictID,
		PaymentMethod: derefOr(order.PaymentMethod, ""),
		HasFreeShip:   hasFreeShip,
		Items:         bookingItems,
	}
	if order.CODAmount != nil {
		req.CODAmount = *order.CODAmount
	}
	if order.ShippingServiceID != nil {
		req.ServiceID = *order.ShippingServiceID
	}

	code, err := s.ghn.CreateOrder(ctx, req)
	if err != nil {
		util.ShipmentBookingsTotal.WithLabelValues("failure").Inc()
		return "", err
	}
	util.ShipmentBookingsTotal.WithLabelValues("success").Inc()

	if err := s.store.SetOrderTrackingCode(ctx, orderID, code); err != nil {
		s.logger.Error("Failed to store tracking code",
			zap.Int64("order_id", orderID),
			zap.String("tracking_code", code),
			zap.Error(err))
	}

	event := &models.ShipmentBookedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeShipmentBooked,
			Timestamp: time.Now(),
		},
		OrderID:      orderID,
		TrackingCode: code,
	}
	if s.publisher != nil {
		if err := s.publisher.PublishShipmentBooked(ctx, event); err != nil {
			s.logger.Error("Failed to publish ShipmentBooked event", zap.Error(err))
		}
	}

	s.logger.Info("Shipment booked",
		zap.Int64("order_id", orderID),
		zap.String("tracking_code", code))
	return code, nil
}

func shippingAddressLine(order *models.Order) string {
	parts := make([]string, 0, 4)
	for _, p := range []*string{order.ShippingAddressLine1, order.ShippingAddressLine2, order.GHNWardName, order.GHNDistrictName, order.GHNProvinceName} {
		if p != nil && *p != "" {
			parts = append(parts, *p)
		}
	}
	return strings.Join(parts, ", ")
}

// mapCarrierStatus translates a carrier shipment status into an order
// status, or "" when nothing should change. A mapped Cancelled only
// applies while the order is still Pending; later cancellations and
// returns need manual handling and are skipped by the transition guard.
func mapCarrierStatus(carrierStatus string) string {
	switch strings.ToLower(carrierStatus) {
	case "delivered":
		return models.OrderStatusDelivered
	case "cancel", "cancelled", "return", "returned", "return_transporting", "returning":
		return models.OrderStatusCancelled
	case "":
		return ""
	default:
		return models.OrderStatusShipping
	}
}

// SyncResult summarizes one status sync run.
type SyncResult struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// SyncShippingStatuses polls the carrier for every order that has a
// tracking code and is not yet terminal, then applies the mapped status
// through the normal transition rules. Carrier fetches run concurrently
// under a semaphore; database writes stay sequential.
func (s *ShippingService) SyncShippingStatuses(ctx context.Context) (*SyncResult, error) {
	ctx, span := util.StartSpan(ctx, "ShippingService.SyncShippingStatuses")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ShippingStatusSyncDuration.Observe(time.Since(start).Seconds())
	}()

	if !s.ghn.IsConfigured() {
		return nil, shipping.ErrNotConfigured
	}

	orders, err := s.store.ListOrdersWithTracking(ctx)
	if err != nil {
		return nil, err
	}

	type fetched struct {
		order  models.Order
		detail *shipping.OrderDetail
		err    error
	}

	sem := semaphore.NewWeighted(maxConcurrentSyncFetches)
	results := make([]fetched, len(orders))
	var wg sync.WaitGroup

	for i, order := range orders {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = fetched{order: order, err: err}
			continue
		}
		wg.Add(1)
		go func(i int, order models.Order) {
			defer wg.Done()
			defer sem.Release(1)
			detail, err := s.ghn.GetOrderDetail(ctx, *order.GHNOrderCode)
			results[i] = fetched{order: order, detail: detail, err: err}
		}(i, order)
	}
	wg.Wait()

	result := &SyncResult{Checked: len(orders)}
	for _, r := range results {
		if r.err != nil {
			result.Failed++
			s.logger.Warn("Carrier status fetch failed",
				zap.Int64("order_id", r.order.ID),
				zap.Error(r.err))
			continue
		}

		newStatus := mapCarrierStatus(r.detail.Status)
		if newStatus == "" || newStatus == r.order.Status {
			continue
		}
		if !models.CanTransition(r.order.Status, newStatus) {
			continue
		}

		// A cancel reported before the order was confirmed gives the
		// stock back through the conditional flip.
		var applyErr error
		if newStatus == models.OrderStatusCancelled {
			applyErr = s.store.CancelOrder(ctx, r.order.ID)
		} else {
			applyErr = s.store.UpdateOrderStatus(ctx, r.order.ID, newStatus)
		}
		if applyErr != nil {
			result.Failed++
			s.logger.Error("Failed to apply synced status",
				zap.Int64("order_id", r.order.ID),
				zap.String("status", newStatus),
				zap.Error(applyErr))
			continue
		}
		result.Updated++

		if s.cache != nil && r.order.UserID != nil {
			s.cache.DeletePattern(ctx, redisclient.PatternUserOrders(*r.order.UserID))
		}

		if s.publisher != nil {
			event := &models.OrderStatusChangedEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeOrderStatusChanged,
					Timestamp: time.Now(),
				},
				OrderID:    r.order.ID,
				FromStatus: r.order.Status,
				ToStatus:   newStatus,
			}
			if err := s.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
				s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
			}
		}
	}

	s.logger.Info("Shipping status sync complete",
		zap.Int("checked", result.Checked),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed))
	return result, nil
}
