package store

import (
	"context"
	"database/sql"
	"fmt"

	"bookstore-service/internal/models"
)

// BookFilter narrows a paginated book listing.
type BookFilter struct {
	Skip       int
	Limit      int
	CategoryID *int64
	AuthorID   *int64
	Search     string
}

// ListBooks retrieves a page of active books matching the filter.
func (s *Store) ListBooks(ctx context.Context, f BookFilter) ([]models.Book, error) {
	query := "SELECT b.* FROM books b"
	args := []interface{}{}
	argn := 0

	if f.CategoryID != nil {
		query += " JOIN book_categories bc ON bc.book_id = b.book_id"
	}
	if f.AuthorID != nil {
		query += " JOIN book_authors ba ON ba.book_id = b.book_id"
	}
	query += " WHERE b.is_active = TRUE"

	if f.CategoryID != nil {
		argn++
		query += fmt.Sprintf(" AND bc.category_id = $%d", argn)
		args = append(args, *f.CategoryID)
	}
	if f.AuthorID != nil {
		argn++
		query += fmt.Sprintf(" AND ba.author_id = $%d", argn)
		args = append(args, *f.AuthorID)
	}
	if f.Search != "" {
		argn++
		query += fmt.Sprintf(" AND b.title ILIKE $%d", argn)
		args = append(args, "%"+f.Search+"%")
	}

	query += fmt.Sprintf(" ORDER BY b.book_id OFFSET $%d LIMIT $%d", argn+1, argn+2)
	args = append(args, f.Skip, f.Limit)

	var books []models.Book
	err := s.db.SelectContext(ctx, &books, query, args...)
	return books, err
}

// GetBookByID retrieves a book by ID
func (s *Store) GetBookByID(ctx context.Context, id int64) (*models.Book, error) {
	var book models.Book
	err := s.db.GetContext(ctx, &book, "SELECT * FROM books WHERE book_id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: book %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// CreateBook inserts a book row. The caller must have applied the
// discount calculator first.
func (s *Store) CreateBook(ctx context.Context, book *models.Book) error {
	query := `
		INSERT INTO books (
			title, slug, isbn, brief_description, price, stock_quantity,
			publisher, pages, publication_date, image_url, is_active,
			height_cm, width_cm, length_cm, weight_g,
			is_best_seller, is_new, is_free_ship,
			discount_percentage, discount_amount, discounted_price, is_discount
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
		)
		RETURNING book_id, created_at`

	return s.db.QueryRowxContext(ctx, query,
		book.Title, book.Slug, book.ISBN, book.BriefDescription, book.Price, book.StockQuantity,
		book.Publisher, book.Pages, book.PublicationDate, book.ImageURL, book.IsActive,
		book.HeightCm, book.WidthCm, book.LengthCm, book.WeightG,
		book.IsBestSeller, book.IsNew, book.IsFreeShip,
		book.DiscountPercentage, book.DiscountAmount, book.DiscountedPrice, book.IsDiscount,
	).Scan(&book.ID, &book.CreatedAt)
}

// UpdateBook rewrites the mutable columns of a book row.
func (s *Store) UpdateBook(ctx context.Context, book *models.Book) error {
	query := `
		UPDATE books SET
			title = $1, slug = $2, isbn = $3, brief_description = $4,
			price = $5, stock_quantity = $6, publisher = $7, pages = $8,
			publication_date = $9, image_url = $10, is_active = $11,
			height_cm = $12, width_cm = $13, length_cm = $14, weight_g = $15,
			is_best_seller = $16, is_new = $17, is_free_ship = $18,
			discount_percentage = $19, discount_amount = $20,
			discounted_price = $21, is_discount = $22
		WHERE book_id = $23`

	res, err := s.db.ExecContext(ctx, query,
		book.Title, book.Slug, book.ISBN, book.BriefDescription,
		book.Price, book.StockQuantity, book.Publisher, book.Pages,
		book.PublicationDate, book.ImageURL, book.IsActive,
		book.HeightCm, book.WidthCm, book.LengthCm, book.WeightG,
		book.IsBestSeller, book.IsNew, book.IsFreeShip,
		book.DiscountPercentage, book.DiscountAmount,
		book.DiscountedPrice, book.IsDiscount,
		book.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: book %d", ErrNotFound, book.ID)
	}
	return nil
}

// DeactivateBook soft-deletes a book.
func (s *Store) DeactivateBook(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE books SET is_active = FALSE WHERE book_id = $1", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: book %d", ErrNotFound, id)
	}
	return nil
}

// StationeryFilter narrows a paginated stationery listing.
type StationeryFilter struct {
	Skip       int
	Limit      int
	CategoryID *int64
	Search     string
}

// ListStationery retrieves a page of active stationery matching the filter.
func (s *Store) ListStationery(ctx context.Context, f StationeryFilter) ([]models.Stationery, error) {
	query := "SELECT st.* FROM stationery st"
	args := []interface{}{}
	argn := 0

	if f.CategoryID != nil {
		query += " JOIN stationery_categories sc ON sc.stationery_id = st.stationery_id"
	}
	query += " WHERE st.is_active = TRUE"

	if f.CategoryID != nil {
		argn++
		query += fmt.Sprintf(" AND sc.category_id = $%d", argn)
		args = append(args, *f.CategoryID)
	}
	if f.Search != "" {
		argn++
		query += fmt.Sprintf(" AND st.title ILIKE $%d", argn)
		args = append(args, "%"+f.Search+"%")
	}

	query += fmt.Sprintf(" ORDER BY st.stationery_id OFFSET $%d LIMIT $%d", argn+1, argn+2)
	args = append(args, f.Skip, f.Limit)

	var items []models.Stationery
	err := s.db.SelectContext(ctx, &items, query, args...)
	return items, err
}

// GetStationeryByID retrieves a stationery item by ID
func (s *Store) GetStationeryByID(ctx context.Context, id int64) (*models.Stationery, error) {
	var item models.Stationery
	err := s.db.GetContext(ctx, &item, "SELECT * FROM stationery WHERE stationery_id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: stationery %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateStationery inserts a stationery row.
func (s *Store) CreateStationery(ctx context.Context, item *models.Stationery) error {
	query := `
		INSERT INTO stationery (
			title, slug, sku, brief_description, price, stock_quantity,
			image_url, is_active,
			height_cm, width_cm, length_cm, weight_g,
			is_best_seller, is_new, is_free_ship,
			discount_percentage, discount_amount, discounted_price, is_discount
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)
		RETURNING stationery_id, created_at`

	return s.db.QueryRowxContext(ctx, query,
		item.Title, item.Slug, item.SKU, item.BriefDescription, item.Price, item.StockQuantity,
		item.ImageURL, item.IsActive,
		item.HeightCm, item.WidthCm, item.LengthCm, item.WeightG,
		item.IsBestSeller, item.IsNew, item.IsFreeShip,
		item.DiscountPercentage, item.DiscountAmount, item.DiscountedPrice, item.IsDiscount,
	).Scan(&item.ID, &item.CreatedAt)
}

// UpdateStationery rewrites the mutable columns of a stationery row.
func (s *Store) UpdateStationery(ctx context.Context, item *models.Stationery) error {
	query := `
		UPDATE stationery SET
			title = $1, slug = $2, sku = $3, brief_description = $4,
			price = $5, stock_quantity = $6, image_url = $7, is_active = $8,
			height_cm = $9, width_cm = $10, length_cm = $11, weight_g = $12,
			is_best_seller = $13, is_new = $14, is_free_ship = $15,
			discount_percentage = $16, discount_amount = $17,
			discounted_price = $18, is_discount = $19
		WHERE stationery_id = $20`

	res, err := s.db.ExecContext(ctx, query,
		item.Title, item.Slug, item.SKU, item.BriefDescription,
		item.Price, item.StockQuantity, item.ImageURL, item.IsActive,
		item.HeightCm, item.WidthCm, item.LengthCm, item.WeightG,
		item.IsBestSeller, item.IsNew, item.IsFreeShip,
		item.DiscountPercentage, item.DiscountAmount,
		item.DiscountedPrice, item.IsDiscount,
		item.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: stationery %d", ErrNotFound, item.ID)
	}
	return nil
}

// DeactivateStationery soft-deletes a stationery item.
func (s *Store) DeactivateStationery(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE stationery SET is_active = FALSE WHERE stationery_id = $1", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: stationery %d", ErrNotFound, id)
	}
	return nil
}

// ListAuthors retrieves all authors
func (s *Store) ListAuthors(ctx context.Context) ([]models.Author, error) {
	var authors []models.Author
	err := s.db.SelectContext(ctx, &authors, "SELECT * FROM authors ORDER BY author_id")
	return authors, err
}

// CreateAuthor inserts an author row.
func (s *Store) CreateAuthor(ctx context.Context, author *models.Author) error {
	return s.db.QueryRowxContext(ctx,
		"INSERT INTO authors (name, bio) VALUES ($1, $2) RETURNING author_id",
		author.Name, author.Bio).Scan(&author.ID)
}

// ListCategories retrieves all categories
func (s *Store) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.db.SelectContext(ctx, &categories, "SELECT * FROM categories ORDER BY category_id")
	return categories, err
}

// CreateCategory inserts a category row.
func (s *Store) CreateCategory(ctx context.Context, category *models.Category) error {
	return s.db.QueryRowxContext(ctx,
		"INSERT INTO categories (name, description) VALUES ($1, $2) RETURNING category_id",
		category.Name, category.Description).Scan(&category.ID)
}

// ListWishlist retrieves a user's wishlist entries.
func (s *Store) ListWishlist(ctx context.Context, userID int64) ([]models.WishlistEntry, error) {
	var entries []models.WishlistEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM wishlists WHERE user_id = $1 ORDER BY added_at DESC", userID)
	return entries, err
}

// AddToWishlist inserts a wishlist entry; ErrConflict if it already exists.
func (s *Store) AddToWishlist(ctx context.Context, userID, bookID int64) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO wishlists (user_id, book_id) VALUES ($1, $2) ON CONFLICT (user_id, book_id) DO NOTHING",
		userID, bookID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: book %d already in wishlist", ErrConflict, bookID)
	}
	return nil
}

// RemoveFromWishlist deletes a wishlist entry.
func (s *Store) RemoveFromWishlist(ctx context.Context, userID, bookID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM wishlists WHERE user_id = $1 AND book_id = $2", userID, bookID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: book %d not in wishlist", ErrNotFound, bookID)
	}
	return nil
}
