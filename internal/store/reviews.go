package store

import (
	"context"
	"fmt"

	"bookstore-service/internal/models"
)

const reviewColumns = `r.review_id, r.book_id, r.user_id, r.rating, r.comment, r.created_at,
	TRIM(COALESCE(u.first_name, '') || ' ' || COALESCE(u.last_name, '')) AS user_name`

// ListReviewsByBook retrieves a page of a book's reviews, newest first,
// with the reviewer's display name joined in.
func (s *Store) ListReviewsByBook(ctx context.Context, bookID int64, skip, limit int) ([]models.Review, error) {
	var reviews []models.Review
	err := s.db.SelectContext(ctx, &reviews,
		`SELECT `+reviewColumns+`
		 FROM reviews r
		 JOIN users u ON u.user_id = r.user_id
		 WHERE r.book_id = $1
		 ORDER BY r.created_at DESC
		 OFFSET $2 LIMIT $3`,
		bookID, skip, limit)
	return reviews, err
}

// GetReviewByID retrieves a single review.
func (s *Store) GetReviewByID(ctx context.Context, reviewID int64) (*models.Review, error) {
	var review models.Review
	err := s.db.GetContext(ctx, &review,
		`SELECT `+reviewColumns+`
		 FROM reviews r
		 JOIN users u ON u.user_id = r.user_id
		 WHERE r.review_id = $1`, reviewID)
	if err != nil {
		return nil, fmt.Errorf("%w: review %d", ErrNotFound, reviewID)
	}
	return &review, nil
}

// HasPurchasedBook reports whether the user has an order containing the
// book. Reviews are gated on a purchase.
func (s *Store) HasPurchasedBook(ctx context.Context, userID, bookID int64) (bool, error) {
	var purchased bool
	err := s.db.GetContext(ctx, &purchased,
		`SELECT EXISTS (
			SELECT 1 FROM order_items oi
			JOIN orders o ON o.order_id = oi.order_id
			WHERE o.user_id = $1 AND oi.item_kind = $2 AND oi.item_id = $3
		)`,
		userID, models.KindBook, bookID)
	return purchased, err
}

// UpsertReview writes the user's review of a book, replacing any
// earlier one. The (book_id, user_id) pair is unique.
func (s *Store) UpsertReview(ctx context.Context, review *models.Review) error {
	return s.db.QueryRowxContext(ctx,
		`INSERT INTO reviews (book_id, user_id, rating, comment)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (book_id, user_id)
		 DO UPDATE SET rating = EXCLUDED.rating, comment = EXCLUDED.comment
		 RETURNING review_id, created_at`,
		review.BookID, review.UserID, review.Rating, review.Comment).
		Scan(&review.ID, &review.CreatedAt)
}

// DeleteReview removes a review.
func (s *Store) DeleteReview(ctx context.Context, reviewID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM reviews WHERE review_id = $1", reviewID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: review %d", ErrNotFound, reviewID)
	}
	return nil
}
