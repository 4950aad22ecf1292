package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"bookstore-service/config"
	"bookstore-service/internal/models"
	"bookstore-service/internal/shipping"
	"bookstore-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapCarrierStatus(t *testing.T) {
	tests := []struct{ carrier, want string }{
		{"delivered", models.OrderStatusDelivered},
		{"Delivered", models.OrderStatusDelivered},
		{"cancel", models.OrderStatusCancelled},
		{"returned", models.OrderStatusCancelled},
		{"return_transporting", models.OrderStatusCancelled},
		{"delivering", models.OrderStatusShipping},
		{"picked", models.OrderStatusShipping},
		{"storing", models.OrderStatusShipping},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mapCarrierStatus(tt.carrier), "carrier status %q", tt.carrier)
	}
}

func TestShippingAddressLine(t *testing.T) {
	line1 := "12 Le Loi"
	ward := "Bến Nghé"
	district := "Quận 1"
	province := "Hồ Chí Minh"

	order := &models.Order{
		ShippingAddressLine1: &line1,
		GHNWardName:          &ward,
		GHNDistrictName:      &district,
		GHNProvinceName:      &province,
	}
	assert.Equal(t, "12 Le Loi, Bến Nghé, Quận 1, Hồ Chí Minh", shippingAddressLine(order))

	// Missing pieces are skipped, not rendered as blanks.
	assert.Equal(t, "", shippingAddressLine(&models.Order{}))
}

// fakeShippingStore implements ShippingStore in memory for booking and
// sync tests.
type fakeShippingStore struct {
	items     map[models.ItemRef]*models.CatalogItem
	orders    map[int64]*models.Order
	orderItem map[int64][]models.OrderItem
}

func newFakeShippingStore() *fakeShippingStore {
	return &fakeShippingStore{
		items:     map[models.ItemRef]*models.CatalogItem{},
		orders:    map[int64]*models.Order{},
		orderItem: map[int64][]models.OrderItem{},
	}
}

func (f *fakeShippingStore) GetCatalogItem(_ context.Context, ref models.ItemRef) (*models.CatalogItem, error) {
	item, ok := f.items[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s %d", store.ErrNotFound, ref.Kind, ref.ID)
	}
	return item, nil
}

func (f *fakeShippingStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", store.ErrNotFound, id)
	}
	return order, nil
}

func (f *fakeShippingStore) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	return f.orderItem[orderID], nil
}

func (f *fakeShippingStore) SetOrderTrackingCode(_ context.Context, orderID int64, code string) error {
	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: order %d", store.ErrNotFound, orderID)
	}
	order.GHNOrderCode = &code
	return nil
}

func (f *fakeShippingStore) UpdateOrderStatus(_ context.Context, orderID int64, status string) error {
	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: order %d", store.ErrNotFound, orderID)
	}
	order.Status = status
	return nil
}

func (f *fakeShippingStore) CancelOrder(_ context.Context, orderID int64) error {
	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: order %d", store.ErrNotFound, orderID)
	}
	if order.Status != models.OrderStatusPending {
		return fmt.Errorf("%w: order %d is not pending", store.ErrConflict, orderID)
	}
	order.Status = models.OrderStatusCancelled
	for _, item := range f.orderItem[orderID] {
		ref := models.ItemRef{Kind: item.ItemKind, ID: item.ItemID}
		f.items[ref].StockQuantity += item.Quantity
	}
	return nil
}

func (f *fakeShippingStore) ListOrdersWithTracking(_ context.Context) ([]models.Order, error) {
	var out []models.Order
	for _, o := range f.orders {
		if o.GHNOrderCode != nil && !models.IsTerminalStatus(o.Status) {
			out = append(out, *o)
		}
	}
	return out, nil
}

// carrierStub serves the GHN endpoints the service tests exercise. It
// records the last booking payload and answers detail lookups from the
// statuses map.
type carrierStub struct {
	server   *httptest.Server
	booking  map[string]interface{}
	statuses map[string]string
}

func newCarrierStub(t *testing.T) *carrierStub {
	stub := &carrierStub{statuses: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/shipping-order/create", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		stub.booking = payload
		writeCarrierEnvelope(w, map[string]string{"order_code": "GHNTEST1"})
	})
	mux.HandleFunc("/v2/shipping-order/detail", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		code := payload["order_code"]
		writeCarrierEnvelope(w, map[string]string{
			"order_code": code,
			"status":     stub.statuses[code],
		})
	})
	stub.server = httptest.NewServer(mux)
	t.Cleanup(stub.server.Close)
	return stub
}

func writeCarrierEnvelope(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    200,
		"message": "Success",
		"data":    data,
	})
}

func (c *carrierStub) client() *shipping.Client {
	return shipping.NewClient(
		config.GHNConfig{APIToken: "test-token", ShopID: "12345", BaseURL: c.server.URL},
		config.ShopConfig{Name: "TheBookStore", Phone: "0900000000"},
		nil,
	)
}

func bookedOrder(id int64, payment string, cod int64) *models.Order {
	userID := int64(7)
	districtID := 1442
	wardCode := "20101"
	name := "Nguyen Van A"
	phone := "0912345678"
	order := &models.Order{
		ID:                  id,
		UserID:              &userID,
		Status:              models.OrderStatusPending,
		PaymentMethod:       &payment,
		GHNDistrictID:       &districtID,
		GHNWardCode:         &wardCode,
		ShippingFullName:    &name,
		ShippingPhoneNumber: &phone,
	}
	if cod > 0 {
		order.CODAmount = &cod
	}
	return order
}

func TestBookShipmentFreeShipItemCoversParcel(t *testing.T) {
	st := newFakeShippingStore()
	free := models.ItemRef{Kind: models.KindBook, ID: 1}
	paid := models.ItemRef{Kind: models.KindStationery, ID: 2}
	st.items[free] = &models.CatalogItem{Ref: free, Title: "Free Ship Book", Price: 100000, IsActive: true, IsFreeShip: true}
	st.items[paid] = &models.CatalogItem{Ref: paid, Title: "Plain Pen", Price: 30000, IsActive: true}

	st.orders[1] = bookedOrder(1, "cod", 230000)
	st.orderItem[1] = []models.OrderItem{
		{OrderID: 1, ItemKind: free.Kind, ItemID: free.ID, Quantity: 2, PriceAtPurchase: 100000},
		{OrderID: 1, ItemKind: paid.Kind, ItemID: paid.ID, Quantity: 1, PriceAtPurchase: 30000},
	}

	stub := newCarrierStub(t)
	svc := NewShippingService(st, stub.client(), &fakePublisher{}, &fakeCache{})

	code, err := svc.BookShipment(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "GHNTEST1", code)

	// One free-ship line in a COD cart still puts the fee on the shop.
	require.NotNil(t, stub.booking)
	assert.Equal(t, float64(1), stub.booking["payment_type_id"])
	assert.Equal(t, float64(230000), stub.booking["cod_amount"])

	require.NotNil(t, st.orders[1].GHNOrderCode)
	assert.Equal(t, "GHNTEST1", *st.orders[1].GHNOrderCode)
}

func TestBookShipmentBuyerPaysWithoutFreeShip(t *testing.T) {
	st := newFakeShippingStore()
	paid := models.ItemRef{Kind: models.KindBook, ID: 1}
	st.items[paid] = &models.CatalogItem{Ref: paid, Title: "Plain Book", Price: 100000, IsActive: true}

	st.orders[1] = bookedOrder(1, "cod", 100000)
	st.orderItem[1] = []models.OrderItem{
		{OrderID: 1, ItemKind: paid.Kind, ItemID: paid.ID, Quantity: 1, PriceAtPurchase: 100000},
	}

	stub := newCarrierStub(t)
	svc := NewShippingService(st, stub.client(), &fakePublisher{}, &fakeCache{})

	_, err := svc.BookShipment(context.Background(), 1)
	require.NoError(t, err)

	require.NotNil(t, stub.booking)
	assert.Equal(t, float64(2), stub.booking["payment_type_id"])
}

func TestSyncCancelledShipmentRestoresStock(t *testing.T) {
	st := newFakeShippingStore()
	ref := models.ItemRef{Kind: models.KindBook, ID: 1}
	st.items[ref] = &models.CatalogItem{Ref: ref, Title: "Synced Book", Price: 100000, IsActive: true, StockQuantity: 8}

	pendingCode := "GHNPEND1"
	pending := bookedOrder(1, "cod", 200000)
	pending.GHNOrderCode = &pendingCode
	st.orders[1] = pending
	st.orderItem[1] = []models.OrderItem{
		{OrderID: 1, ItemKind: ref.Kind, ItemID: ref.ID, Quantity: 2, PriceAtPurchase: 100000},
	}

	confirmedCode := "GHNCONF1"
	confirmed := bookedOrder(2, "cod", 100000)
	confirmed.Status = models.OrderStatusConfirmed
	confirmed.GHNOrderCode = &confirmedCode
	st.orders[2] = confirmed
	st.orderItem[2] = []models.OrderItem{
		{OrderID: 2, ItemKind: ref.Kind, ItemID: ref.ID, Quantity: 1, PriceAtPurchase: 100000},
	}

	stub := newCarrierStub(t)
	stub.statuses[pendingCode] = "cancel"
	stub.statuses[confirmedCode] = "cancel"

	pub := &fakePublisher{}
	svc := NewShippingService(st, stub.client(), pub, &fakeCache{})

	result, err := svc.SyncShippingStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, 1, result.Updated)

	// The pending order cancels and its stock comes back.
	assert.Equal(t, models.OrderStatusCancelled, st.orders[1].Status)
	assert.Equal(t, 10, st.items[ref].StockQuantity)

	// The confirmed order cannot cancel anymore and stays put.
	assert.Equal(t, models.OrderStatusConfirmed, st.orders[2].Status)
	require.Len(t, pub.statusChanged, 1)
	assert.Equal(t, int64(1), pub.statusChanged[0].OrderID)
}
