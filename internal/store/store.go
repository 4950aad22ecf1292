package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bookstore-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Sentinel errors let the service layer distinguish validation
// failures (surfaced to the caller) from server errors.
var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

const bookItemQuery = `
	SELECT title, price, discounted_price, stock_quantity, is_active, is_free_ship,
	       weight_g, length_cm, width_cm, height_cm
	FROM books WHERE book_id = $1`

const stationeryItemQuery = `
	SELECT title, price, discounted_price, stock_quantity, is_active, is_free_ship,
	       weight_g, length_cm, width_cm, height_cm
	FROM stationery WHERE stationery_id = $1`

// GetCatalogItem loads the kind-agnostic view of a book or stationery row.
func (s *Store) GetCatalogItem(ctx context.Context, ref models.ItemRef) (*models.CatalogItem, error) {
	query := bookItemQuery
	if ref.Kind == models.KindStationery {
		query = stationeryItemQuery
	}

	var row struct {
		Title           string   `db:"title"`
		Price           int64    `db:"price"`
		DiscountedPrice *int64   `db:"discounted_price"`
		StockQuantity   int      `db:"stock_quantity"`
		IsActive        bool     `db:"is_active"`
		IsFreeShip      bool     `db:"is_free_ship"`
		WeightG         *int     `db:"weight_g"`
		LengthCm        *float64 `db:"length_cm"`
		WidthCm         *float64 `db:"width_cm"`
		HeightCm        *float64 `db:"height_cm"`
	}

	err := s.db.GetContext(ctx, &row, query, ref.ID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s %d", ErrNotFound, ref.Kind, ref.ID)
	}
	if err != nil {
		return nil, err
	}

	return &models.CatalogItem{
		Ref:             ref,
		Title:           row.Title,
		Price:           row.Price,
		DiscountedPrice: row.DiscountedPrice,
		StockQuantity:   row.StockQuantity,
		IsActive:        row.IsActive,
		IsFreeShip:      row.IsFreeShip,
		WeightG:         row.WeightG,
		LengthCm:        row.LengthCm,
		WidthCm:         row.WidthCm,
		HeightCm:        row.HeightCm,
	}, nil
}

func stockTable(kind models.ItemKind) (table, idColumn string) {
	if kind == models.KindStationery {
		return "stationery", "stationery_id"
	}
	return "books", "book_id"
}

// decrementStockTx decrements stock with a conditional update so the
// check and the write are one atomic statement. Zero rows affected
// means another order took the stock first.
func decrementStockTx(ctx context.Context, tx *sqlx.Tx, ref models.ItemRef, quantity int) error {
	table, idColumn := stockTable(ref.Kind)
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET stock_quantity = stock_quantity - $1 WHERE %s = $2 AND stock_quantity >= $1", table, idColumn),
		quantity, ref.ID)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s %d", ErrInsufficientStock, ref.Kind, ref.ID)
	}
	return nil
}

func restoreStockTx(ctx context.Context, tx *sqlx.Tx, ref models.ItemRef, quantity int) error {
	table, idColumn := stockTable(ref.Kind)
	_, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET stock_quantity = stock_quantity + $1 WHERE %s = $2", table, idColumn),
		quantity, ref.ID)
	return err
}

// GetUserByID retrieves the notification-relevant user fields.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		"SELECT user_id, first_name, last_name, email, phone_number FROM users WHERE user_id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
