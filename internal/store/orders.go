package store

import (
	"context"
	"database/sql"
	"fmt"

	"bookstore-service/internal/models"
)

const insertOrderQuery = `
	INSERT INTO orders (
		user_id, total_amount, status, guest_email,
		shipping_full_name, shipping_phone_number, shipping_address_line1, shipping_address_line2,
		shipping_city, shipping_postal_code, shipping_country,
		payment_method, cod_amount,
		ghn_province_id, ghn_district_id, ghn_ward_code,
		ghn_province_name, ghn_district_name, ghn_ward_name,
		shipping_service_id, shipping_fee,
		package_weight_g, package_length_cm, package_width_cm, package_height_cm
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
	)
	RETURNING order_id, order_date`

// CreateOrderWithItems persists an order, its line items, and the
// matching stock decrements in one transaction. Any failure rolls the
// whole order back; ErrInsufficientStock is returned when a line loses
// the conditional decrement.
func (s *Store) CreateOrderWithItems(ctx context.Context, order *models.Order, items []models.OrderItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx, insertOrderQuery,
		order.UserID, order.TotalAmount, order.Status, order.GuestEmail,
		order.ShippingFullName, order.ShippingPhoneNumber, order.ShippingAddressLine1, order.ShippingAddressLine2,
		order.ShippingCity, order.ShippingPostalCode, order.ShippingCountry,
		order.PaymentMethod, order.CODAmount,
		order.GHNProvinceID, order.GHNDistrictID, order.GHNWardCode,
		order.GHNProvinceName, order.GHNDistrictName, order.GHNWardName,
		order.ShippingServiceID, order.ShippingFee,
		order.PackageWeightG, order.PackageLengthCm, order.PackageWidthCm, order.PackageHeightCm,
	).Scan(&order.ID, &order.OrderDate)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.QueryRowxContext(ctx,
			`INSERT INTO order_items (order_id, item_kind, item_id, quantity, price_at_purchase)
			 VALUES ($1, $2, $3, $4, $5) RETURNING order_item_id`,
			items[i].OrderID, items[i].ItemKind, items[i].ItemID, items[i].Quantity, items[i].PriceAtPurchase,
		).Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}

		ref := models.ItemRef{Kind: items[i].ItemKind, ID: items[i].ItemID}
		if err := decrementStockTx(ctx, tx, ref, items[i].Quantity); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY order_item_id", orderID)
	return items, err
}

// ListOrdersByUser retrieves a page of a user's orders, newest first.
func (s *Store) ListOrdersByUser(ctx context.Context, userID int64, skip, limit int, status string) ([]models.Order, error) {
	var orders []models.Order
	var err error
	if status != "" {
		err = s.db.SelectContext(ctx, &orders,
			"SELECT * FROM orders WHERE user_id = $1 AND status = $2 ORDER BY order_date DESC OFFSET $3 LIMIT $4",
			userID, status, skip, limit)
	} else {
		err = s.db.SelectContext(ctx, &orders,
			"SELECT * FROM orders WHERE user_id = $1 ORDER BY order_date DESC OFFSET $2 LIMIT $3",
			userID, skip, limit)
	}
	return orders, err
}

// ListAllOrders retrieves a page of all orders with optional filters (admin).
func (s *Store) ListAllOrders(ctx context.Context, skip, limit int, status string, userID *int64) ([]models.Order, error) {
	query := "SELECT * FROM orders WHERE 1=1"
	args := []interface{}{}
	argn := 0

	if status != "" {
		argn++
		query += fmt.Sprintf(" AND status = $%d", argn)
		args = append(args, status)
	}
	if userID != nil {
		argn++
		query += fmt.Sprintf(" AND user_id = $%d", argn)
		args = append(args, *userID)
	}
	query += fmt.Sprintf(" ORDER BY order_date DESC OFFSET $%d LIMIT $%d", argn+1, argn+2)
	args = append(args, skip, limit)

	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, query, args...)
	return orders, err
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1 WHERE order_id = $2", status, orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: order %d", ErrNotFound, orderID)
	}
	return nil
}

// SetOrderTrackingCode stores the carrier tracking code returned by a booking.
func (s *Store) SetOrderTrackingCode(ctx context.Context, orderID int64, code string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET ghn_order_code = $1 WHERE order_id = $2", code, orderID)
	return err
}

// CancelOrder flips a pending order to cancelled and restores each line
// item's quantity onto its catalog item, all in one transaction. The
// conditional status update guarantees the restore happens exactly once
// even under concurrent cancel requests.
func (s *Store) CancelOrder(ctx context.Context, orderID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $1 WHERE order_id = $2 AND status = $3",
		models.OrderStatusCancelled, orderID, models.OrderStatusPending)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: order %d is not pending", ErrConflict, orderID)
	}

	var items []models.OrderItem
	if err := tx.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID); err != nil {
		return err
	}

	for _, item := range items {
		ref := models.ItemRef{Kind: item.ItemKind, ID: item.ItemID}
		if err := restoreStockTx(ctx, tx, ref, item.Quantity); err != nil {
			return fmt.Errorf("failed to restore stock: %w", err)
		}
	}

	return tx.Commit()
}

// ListOrdersWithTracking returns orders that hold a carrier tracking
// code and have not reached a terminal status. Used by the shipping
// status sync.
func (s *Store) ListOrdersWithTracking(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE ghn_order_code IS NOT NULL AND status NOT IN ($1, $2)",
		models.OrderStatusDelivered, models.OrderStatusCancelled)
	return orders, err
}
