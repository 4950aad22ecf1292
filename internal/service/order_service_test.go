package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"bookstore-service/internal/models"
	"bookstore-service/internal/store"
	"bookstore-service/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = util.InitLogger("development")
}

// fakeOrderStore implements OrderStore in memory for workflow tests.
type fakeOrderStore struct {
	items     map[models.ItemRef]*models.CatalogItem
	addresses map[int64]*models.Address
	orders    map[int64]*models.Order
	orderItem map[int64][]models.OrderItem
	nextID    int64

	createErr error
	saved     []*models.Address
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		items:     map[models.ItemRef]*models.CatalogItem{},
		addresses: map[int64]*models.Address{},
		orders:    map[int64]*models.Order{},
		orderItem: map[int64][]models.OrderItem{},
		nextID:    1,
	}
}

func (f *fakeOrderStore) addItem(kind models.ItemKind, id int64, price int64, discounted *int64, stock int, active bool) {
	ref := models.ItemRef{Kind: kind, ID: id}
	f.items[ref] = &models.CatalogItem{
		Ref:             ref,
		Title:           fmt.Sprintf("%s-%d", kind, id),
		Price:           price,
		DiscountedPrice: discounted,
		StockQuantity:   stock,
		IsActive:        active,
	}
}

func (f *fakeOrderStore) GetCatalogItem(_ context.Context, ref models.ItemRef) (*models.CatalogItem, error) {
	item, ok := f.items[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s %d", store.ErrNotFound, ref.Kind, ref.ID)
	}
	return item, nil
}

func (f *fakeOrderStore) CreateOrderWithItems(_ context.Context, order *models.Order, items []models.OrderItem) error {
	if f.createErr != nil {
		return f.createErr
	}
	// Mirrors the real transaction: every decrement must win or nothing
	// is written.
	for _, item := range items {
		ref := models.ItemRef{Kind: item.ItemKind, ID: item.ItemID}
		if f.items[ref].StockQuantity < item.Quantity {
			return fmt.Errorf("%w: %s %d", store.ErrInsufficientStock, ref.Kind, ref.ID)
		}
	}
	for _, item := range items {
		ref := models.ItemRef{Kind: item.ItemKind, ID: item.ItemID}
		f.items[ref].StockQuantity -= item.Quantity
	}

	order.ID = f.nextID
	f.nextID++
	order.OrderDate = time.Now()
	f.orders[order.ID] = order
	f.orderItem[order.ID] = items
	return nil
}

func (f *fakeOrderStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", store.ErrNotFound, id)
	}
	return order, nil
}

func (f *fakeOrderStore) GetOrderItemsByOrderID(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	return f.orderItem[orderID], nil
}

func (f *fakeOrderStore) ListOrdersByUser(_ context.Context, userID int64, _, _ int, _ string) ([]models.Order, error) {
	var out []models.Order
	for _, o := range f.orders {
		if o.UserID != nil && *o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) ListAllOrders(_ context.Context, _, _ int, _ string, _ *int64) ([]models.Order, error) {
	var out []models.Order
	for _, o := range f.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeOrderStore) UpdateOrderStatus(_ context.Context, orderID int64, status string) error {
	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: order %d", store.ErrNotFound, orderID)
	}
	order.Status = status
	return nil
}

func (f *fakeOrderStore) CancelOrder(_ context.Context, orderID int64) error {
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

func (f *fakeOrderStore) GetAddress(_ context.Context, addressID, userID int64) (*models.Address, error) {
	addr, ok := f.addresses[addressID]
	if !ok || addr.UserID != userID {
		return nil, fmt.Errorf("%w: address %d", store.ErrNotFound, addressID)
	}
	return addr, nil
}

func (f *fakeOrderStore) CreateAddress(_ context.Context, address *models.Address) error {
	address.ID = f.nextID
	f.nextID++
	f.addresses[address.ID] = address
	f.saved = append(f.saved, address)
	return nil
}

// fakeCache is a no-op cache that records invalidations.
type fakeCache struct {
	deletedPatterns []string
	deletedKeys     []string
}

func (f *fakeCache) GetJSON(context.Context, string, interface{}) bool { return false }
func (f *fakeCache) SetJSON(context.Context, string, interface{}, time.Duration) {
}
func (f *fakeCache) Delete(_ context.Context, keys ...string) {
	f.deletedKeys = append(f.deletedKeys, keys...)
}
func (f *fakeCache) DeletePattern(_ context.Context, pattern string) {
	f.deletedPatterns = append(f.deletedPatterns, pattern)
}

// fakePublisher records published events.
type fakePublisher struct {
	created       []*models.OrderCreatedEvent
	cancelled     []*models.OrderCancelledEvent
	statusChanged []*models.OrderStatusChangedEvent
	booked        []*models.ShipmentBookedEvent
}

func (f *fakePublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	f.created = append(f.created, e)
	return nil
}
func (f *fakePublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	f.cancelled = append(f.cancelled, e)
	return nil
}
func (f *fakePublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	f.statusChanged = append(f.statusChanged, e)
	return nil
}
func (f *fakePublisher) PublishShipmentBooked(_ context.Context, e *models.ShipmentBookedEvent) error {
	f.booked = append(f.booked, e)
	return nil
}

func inlineAddress() *ShippingAddressRequest {
	return &ShippingAddressRequest{
		FullName:     "Nguyen Van A",
		PhoneNumber:  "0912345678",
		AddressLine1: "12 Le Loi",
		City:         "Ho Chi Minh",
		PostalCode:   "700000",
		Country:      "VN",
	}
}

func TestCreateOrderTotalsUseDiscountedPrice(t *testing.T) {
	st := newFakeOrderStore()
	discounted := int64(85000)
	st.addItem(models.KindBook, 1, 100000, &discounted, 10, true)
	st.addItem(models.KindStationery, 2, 30000, nil, 10, true)

	pub := &fakePublisher{}
	svc := NewOrderService(st, &fakeCache{}, pub)

	userID := int64(7)
	resp, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID: &userID,
		Items: []OrderItemRequest{
			{ItemKind: models.KindBook, ItemID: 1, Quantity: 2},
			{ItemKind: models.KindStationery, ItemID: 2, Quantity: 1},
		},
		Address:       inlineAddress(),
		PaymentMethod: "cod",
	})
	require.NoError(t, err)

	// 2 x 85000 (discounted) + 1 x 30000.
	assert.Equal(t, int64(200000), resp.TotalAmount)
	assert.Equal(t, models.OrderStatusPending, resp.Status)

	order := st.orders[resp.OrderID]
	require.NotNil(t, order.CODAmount)
	assert.Equal(t, int64(200000), *order.CODAmount)

	items := st.orderItem[resp.OrderID]
	require.Len(t, items, 2)
	assert.Equal(t, int64(85000), items[0].PriceAtPurchase)
	assert.Equal(t, int64(30000), items[1].PriceAtPurchase)

	require.Len(t, pub.created, 1)
	assert.Equal(t, resp.OrderID, pub.created[0].OrderID)
}

func TestCreateOrderRejectsInactiveItem(t *testing.T) {
	st := newFakeOrderStore()
	st.addItem(models.KindBook, 1, 100000, nil, 10, false)

	svc := NewOrderService(st, &fakeCache{}, &fakePublisher{})

	userID := int64(7)
	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID:        &userID,
		Items:         []OrderItemRequest{{ItemKind: models.KindBook, ItemID: 1, Quantity: 1}},
		Address:       inlineAddress(),
		PaymentMethod: "cod",
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateOrderRejectsUnknownItem(t *testing.T) {
	st := newFakeOrderStore()
	svc := NewOrderService(st, &fakeCache{}, &fakePublisher{})

	userID := int64(7)
	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID:        &userID,
		Items:         []OrderItemRequest{{ItemKind: models.KindBook, ItemID: 99, Quantity: 1}},
		Address:       inlineAddress(),
		PaymentMethod: "cod",
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateOrderInsufficientStockLeavesNothingBehind(t *testing.T) {
	st := newFakeOrderStore()
	st.addItem(models.KindBook, 1, 100000, nil, 10, true)
	st.addItem(models.KindBook, 2, 50000, nil, 1, true)

	pub := &fakePublisher{}
	svc := NewOrderService(st, &fakeCache{}, pub)

	userID := int64(7)
	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID: &userID,
		Items: []OrderItemRequest{
			{ItemKind: models.KindBook, ItemID: 1, Quantity: 2},
			{ItemKind: models.KindBook, ItemID: 2, Quantity: 5},
		},
		Address:       inlineAddress(),
		PaymentMethod: "cod",
	})
	assert.ErrorIs(t, err, store.ErrInsufficientStock)

	// No order row, no event, and the first line's stock untouched.
	assert.Empty(t, st.orders)
	assert.Empty(t, pub.created)
	assert.Equal(t, 10, st.items[models.ItemRef{Kind: models.KindBook, ID: 1}].StockQuantity)
}

func TestCreateOrderGuestRequiresEmail(t *testing.T) {
	st := newFakeOrderStore()
	st.addItem(models.KindBook, 1, 100000, nil, 10, true)
	svc := NewOrderService(st, &fakeCache{}, &fakePublisher{})

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Items:         []OrderItemRequest{{ItemKind: models.KindBook, ItemID: 1, Quantity: 1}},
		Address:       inlineAddress(),
		PaymentMethod: "cod",
	})
	assert.ErrorIs(t, err, ErrValidation)

	email := "guest@example.com"
	resp, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		GuestEmail:    &email,
		Items:         []OrderItemRequest{{ItemKind: models.KindBook, ItemID: 1, Quantity: 1}},
		Address:       inlineAddress(),
		PaymentMethod: "cod",
	})
	require.NoError(t, err)
	assert.Nil(t, st.orders[resp.OrderID].UserID)
}

func TestCreateOrderWithSavedAddress(t *testing.T) {
	st := newFakeOrderStore()
	st.addItem(models.KindBook, 1, 100000, nil, 10, true)
	st.addresses[50] = &models.Address{
		ID: 50, UserID: 7, PhoneNumber: "0900000000",
		AddressLine1: "1 Tran Hung Dao", City: "Hanoi", PostalCode: "100000", Country: "VN",
	}

	svc := NewOrderService(st, &fakeCache{}, &fakePublisher{})

	userID := int64(7)
	addressID := int64(50)
	resp, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID:        &userID,
		Items:         []OrderItemRequest{{ItemKind: models.KindBook, ItemID: 1, Quantity: 1}},
		AddressID:     &addressID,
		PaymentMethod: "momo",
	})
	require.NoError(t, err)

	order := st.orders[resp.OrderID]
	assert.Equal(t, "0900000000", *order.ShippingPhoneNumber)
	assert.Equal(t, "Hanoi", *order.ShippingCity)
	// Momo orders carry no COD amount.
	assert.Nil(t, order.CODAmount)
}

func TestCreateOrderForeignSavedAddressFails(t *testing.T) {
	st := newFakeOrderStore()
	st.addItem(models.KindBook, 1, 100000, nil, 10, true)
	st.addresses[50] = &models.Address{ID: 50, UserID: 99, PhoneNumber: "0900000000"}

	svc := NewOrderService(st, &fakeCache{}, &fakePublisher{})

	userID := int64(7)
	addressID := int64(50)
	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID:        &userID,
		Items:         []OrderItemRequest{{ItemKind: models.KindBook, ItemID: 1, Quantity: 1}},
		AddressID:     &addressID,
		PaymentMethod: "cod",
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, st.orders)
}

func TestCreateOrderSavesInlineAddressWhenAsked(t *testing.T) {
	st := newFakeOrderStore()
	st.addItem(models.KindBook, 1, 100000, nil, 10, true)

	svc := NewOrderService(st, &fakeCache{}, &fakePublisher{})

	userID := int64(7)
	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID:        &userID,
		Items:         []OrderItemRequest{{ItemKind: models.KindBook, ItemID: 1, Quantity: 1}},
		Address:       inlineAddress(),
		SaveAddress:   true,
		SetDefault:    true,
		PaymentMethod: "cod",
	})
	require.NoError(t, err)

	require.Len(t, st.saved, 1)
	assert.Equal(t, int64(7), st.saved[0].UserID)
	assert.True(t, st.saved[0].IsDefaultShipping)
}

func TestUpdateStatusEnforcesTransitions(t *testing.T) {
	st := newFakeOrderStore()
	userID := int64(7)
	st.orders[1] = &models.Order{ID: 1, UserID: &userID, Status: models.OrderStatusPending}

	pub := &fakePublisher{}
	svc := NewOrderService(st, &fakeCache{}, pub)
	ctx := context.Background()

	require.NoError(t, svc.UpdateStatus(ctx, 1, models.OrderStatusConfirmed))
	require.NoError(t, svc.UpdateStatus(ctx, 1, models.OrderStatusShipping))
	require.NoError(t, svc.UpdateStatus(ctx, 1, models.OrderStatusDelivered))
	assert.Len(t, pub.statusChanged, 3)

	// Delivered is terminal.
	err := svc.UpdateStatus(ctx, 1, models.OrderStatusShipping)
	assert.ErrorIs(t, err, ErrValidation)

	// Skipping backwards is rejected too.
	st.orders[2] = &models.Order{ID: 2, UserID: &userID, Status: models.OrderStatusShipping}
	err = svc.UpdateStatus(ctx, 2, models.OrderStatusCancelled)
	assert.ErrorIs(t, err, ErrValidation)

	// Confirmed stock is committed to fulfilment and cannot be cancelled.
	st.orders[3] = &models.Order{ID: 3, UserID: &userID, Status: models.OrderStatusConfirmed}
	err = svc.UpdateStatus(ctx, 3, models.OrderStatusCancelled)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateStatusCancelRestoresStock(t *testing.T) {
	st := newFakeOrderStore()
	st.addItem(models.KindBook, 1, 100000, nil, 8, true)
	userID := int64(7)
	st.orders[1] = &models.Order{ID: 1, UserID: &userID, Status: models.OrderStatusPending}
	st.orderItem[1] = []models.OrderItem{
		{OrderID: 1, ItemKind: models.KindBook, ItemID: 1, Quantity: 2, PriceAtPurchase: 100000},
	}
	st.orders[2] = &models.Order{ID: 2, UserID: &userID, Status: models.OrderStatusConfirmed}
	st.orderItem[2] = []models.OrderItem{
		{OrderID: 2, ItemKind: models.KindBook, ItemID: 1, Quantity: 3, PriceAtPurchase: 100000},
	}

	pub := &fakePublisher{}
	svc := NewOrderService(st, &fakeCache{}, pub)
	ctx := context.Background()

	// An admin cancel of a pending order gives the stock back.
	require.NoError(t, svc.UpdateStatus(ctx, 1, models.OrderStatusCancelled))
	assert.Equal(t, models.OrderStatusCancelled, st.orders[1].Status)
	assert.Equal(t, 10, st.items[models.ItemRef{Kind: models.KindBook, ID: 1}].StockQuantity)
	require.Len(t, pub.cancelled, 1)
	assert.Equal(t, "cancelled by admin", pub.cancelled[0].Reason)

	// A confirmed order is rejected before any status or stock change.
	err := svc.UpdateStatus(ctx, 2, models.OrderStatusCancelled)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, models.OrderStatusConfirmed, st.orders[2].Status)
	assert.Equal(t, 10, st.items[models.ItemRef{Kind: models.KindBook, ID: 1}].StockQuantity)
}

func TestCreateOrderLastUnitSingleWinner(t *testing.T) {
	st := newFakeOrderStore()
	st.addItem(models.KindBook, 1, 100000, nil, 1, true)

	pub := &fakePublisher{}
	svc := NewOrderService(st, &fakeCache{}, pub)
	ctx := context.Background()

	orderFor := func(uid int64) (*CreateOrderResponse, error) {
		return svc.CreateOrder(ctx, &CreateOrderRequest{
			UserID:        &uid,
			Items:         []OrderItemRequest{{ItemKind: models.KindBook, ItemID: 1, Quantity: 1}},
			Address:       inlineAddress(),
			PaymentMethod: "cod",
		})
	}

	// Two buyers race for the last unit; the conditional decrement lets
	// exactly one through.
	first, firstErr := orderFor(7)
	_, secondErr := orderFor(8)

	require.NoError(t, firstErr)
	assert.ErrorIs(t, secondErr, store.ErrInsufficientStock)

	assert.Equal(t, 0, st.items[models.ItemRef{Kind: models.KindBook, ID: 1}].StockQuantity)
	assert.Len(t, st.orders, 1)
	require.Len(t, pub.created, 1)
	assert.Equal(t, first.OrderID, pub.created[0].OrderID)
}

func TestCancelOrderOwnershipAndConflict(t *testing.T) {
	st := newFakeOrderStore()
	st.addItem(models.KindBook, 1, 100000, nil, 8, true)
	owner := int64(7)
	st.orders[1] = &models.Order{ID: 1, UserID: &owner, Status: models.OrderStatusPending}
	st.orderItem[1] = []models.OrderItem{
		{OrderID: 1, ItemKind: models.KindBook, ItemID: 1, Quantity: 2, PriceAtPurchase: 100000},
	}

	pub := &fakePublisher{}
	svc := NewOrderService(st, &fakeCache{}, pub)
	ctx := context.Background()

	stranger := int64(8)
	err := svc.CancelOrder(ctx, 1, &stranger, false)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.CancelOrder(ctx, 1, &owner, false))
	assert.Equal(t, models.OrderStatusCancelled, st.orders[1].Status)
	assert.Equal(t, 10, st.items[models.ItemRef{Kind: models.KindBook, ID: 1}].StockQuantity)
	assert.Len(t, pub.cancelled, 1)

	// Second cancel is a conflict and must not restore stock again.
	err = svc.CancelOrder(ctx, 1, &owner, false)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, 10, st.items[models.ItemRef{Kind: models.KindBook, ID: 1}].StockQuantity)
}

func TestGetOrderHidesForeignOrders(t *testing.T) {
	st := newFakeOrderStore()
	owner := int64(7)
	st.orders[1] = &models.Order{ID: 1, UserID: &owner, Status: models.OrderStatusPending}

	svc := NewOrderService(st, &fakeCache{}, &fakePublisher{})
	ctx := context.Background()

	stranger := int64(8)
	_, _, err := svc.GetOrder(ctx, 1, &stranger, false)
	assert.ErrorIs(t, err, ErrForbidden)

	// Admins see everything.
	order, _, err := svc.GetOrder(ctx, 1, &stranger, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), order.ID)

	order, _, err = svc.GetOrder(ctx, 1, &owner, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), order.ID)
}

func TestCreateOrderInvalidatesUserOrderCache(t *testing.T) {
	st := newFakeOrderStore()
	st.addItem(models.KindBook, 1, 100000, nil, 10, true)

	cache := &fakeCache{}
	svc := NewOrderService(st, cache, &fakePublisher{})

	userID := int64(7)
	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID:        &userID,
		Items:         []OrderItemRequest{{ItemKind: models.KindBook, ItemID: 1, Quantity: 1}},
		Address:       inlineAddress(),
		PaymentMethod: "cod",
	})
	require.NoError(t, err)
	assert.Contains(t, cache.deletedPatterns, "orders:user:7:*")
}
