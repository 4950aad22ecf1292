package service

import (
	"context"
	"fmt"

	"bookstore-service/internal/models"
	"bookstore-service/internal/redisclient"
	"bookstore-service/internal/store"
	"bookstore-service/internal/util"

	"go.uber.org/zap"
)

// ReviewStore is the subset of the store the review workflow consumes.
type ReviewStore interface {
	GetBookByID(ctx context.Context, id int64) (*models.Book, error)
	ListReviewsByBook(ctx context.Context, bookID int64, skip, limit int) ([]models.Review, error)
	GetReviewByID(ctx context.Context, reviewID int64) (*models.Review, error)
	HasPurchasedBook(ctx context.Context, userID, bookID int64) (bool, error)
	UpsertReview(ctx context.Context, review *models.Review) error
	DeleteReview(ctx context.Context, reviewID int64) error
}

// CatalogService handles books, stationery, authors, categories,
// wishlists, and reviews, with a read-through cache in front of the
// listings.
type CatalogService struct {
	store   *store.Store
	reviews ReviewStore
	cache   Cache
	logger  *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(st *store.Store, cache Cache) *CatalogService {
	return &CatalogService{
		store:   st,
		reviews: st,
		cache:   cache,
		logger:  util.GetLogger(),
	}
}

// ListBooks returns a page of active books, served from cache when possible.
func (s *CatalogService) ListBooks(ctx context.Context, f store.BookFilter) ([]models.Book, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListBooks")
	defer span.End()

	key := redisclient.KeyBooksList(f.Skip, f.Limit, f.CategoryID, f.AuthorID, f.Search)
	var books []models.Book
	if s.cache.GetJSON(ctx, key, &books) {
		return books, nil
	}

	books, err := s.store.ListBooks(ctx, f)
	if err != nil {
		return nil, err
	}

	s.cache.SetJSON(ctx, key, books, redisclient.TTLListing)
	return books, nil
}

// GetBook returns a single book by ID.
func (s *CatalogService) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	key := redisclient.KeyBook(id)
	var book models.Book
	if s.cache.GetJSON(ctx, key, &book) {
		return &book, nil
	}

	b, err := s.store.GetBookByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.SetJSON(ctx, key, b, redisclient.TTLDetail)
	return b, nil
}

// CreateBook derives the sale price and persists a new book.
func (s *CatalogService) CreateBook(ctx context.Context, book *models.Book) error {
	book.ApplyDiscount()
	if err := s.store.CreateBook(ctx, book); err != nil {
		return err
	}
	s.cache.DeletePattern(ctx, redisclient.PatternBooksLists())
	s.logger.Info("Book created", zap.Int64("book_id", book.ID))
	return nil
}

// UpdateBook derives the sale price, rewrites the row, and drops every
// cache entry that could hold the stale version.
func (s *CatalogService) UpdateBook(ctx context.Context, book *models.Book) error {
	book.ApplyDiscount()
	if err := s.store.UpdateBook(ctx, book); err != nil {
		return err
	}
	s.cache.Delete(ctx, redisclient.KeyBook(book.ID))
	s.cache.DeletePattern(ctx, redisclient.PatternBooksLists())
	return nil
}

// DeactivateBook soft-deletes a book so listings stop showing it.
func (s *CatalogService) DeactivateBook(ctx context.Context, id int64) error {
	if err := s.store.DeactivateBook(ctx, id); err != nil {
		return err
	}
	s.cache.Delete(ctx, redisclient.KeyBook(id))
	s.cache.DeletePattern(ctx, redisclient.PatternBooksLists())
	return nil
}

// ListStationery returns a page of active stationery.
func (s *CatalogService) ListStationery(ctx context.Context, f store.StationeryFilter) ([]models.Stationery, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListStationery")
	defer span.End()

	key := redisclient.KeyStationeryList(f.Skip, f.Limit, f.CategoryID, f.Search)
	var items []models.Stationery
	if s.cache.GetJSON(ctx, key, &items) {
		return items, nil
	}

	items, err := s.store.ListStationery(ctx, f)
	if err != nil {
		return nil, err
	}

	s.cache.SetJSON(ctx, key, items, redisclient.TTLListing)
	return items, nil
}

// GetStationery returns a single stationery item by ID.
func (s *CatalogService) GetStationery(ctx context.Context, id int64) (*models.Stationery, error) {
	key := redisclient.KeyStationery(id)
	var item models.Stationery
	if s.cache.GetJSON(ctx, key, &item) {
		return &item, nil
	}

	it, err := s.store.GetStationeryByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.SetJSON(ctx, key, it, redisclient.TTLDetail)
	return it, nil
}

// CreateStationery derives the sale price and persists a new item.
func (s *CatalogService) CreateStationery(ctx context.Context, item *models.Stationery) error {
	item.ApplyDiscount()
	if err := s.store.CreateStationery(ctx, item); err != nil {
		return err
	}
	s.cache.DeletePattern(ctx, redisclient.PatternStationeryLists())
	s.logger.Info("Stationery created", zap.Int64("stationery_id", item.ID))
	return nil
}

// UpdateStationery derives the sale price and rewrites the row.
func (s *CatalogService) UpdateStationery(ctx context.Context, item *models.Stationery) error {
	item.ApplyDiscount()
	if err := s.store.UpdateStationery(ctx, item); err != nil {
		return err
	}
	s.cache.Delete(ctx, redisclient.KeyStationery(item.ID))
	s.cache.DeletePattern(ctx, redisclient.PatternStationeryLists())
	return nil
}

// DeactivateStationery soft-deletes a stationery item.
func (s *CatalogService) DeactivateStationery(ctx context.Context, id int64) error {
	if err := s.store.DeactivateStationery(ctx, id); err != nil {
		return err
	}
	s.cache.Delete(ctx, redisclient.KeyStationery(id))
	s.cache.DeletePattern(ctx, redisclient.PatternStationeryLists())
	return nil
}

// ListAuthors returns all authors, cached for a day.
func (s *CatalogService) ListAuthors(ctx context.Context) ([]models.Author, error) {
	var authors []models.Author
	if s.cache.GetJSON(ctx, redisclient.KeyAuthors(), &authors) {
		return authors, nil
	}

	authors, err := s.store.ListAuthors(ctx)
	if err != nil {
		return nil, err
	}

	s.cache.SetJSON(ctx, redisclient.KeyAuthors(), authors, redisclient.TTLReference)
	return authors, nil
}

// CreateAuthor persists a new author.
func (s *CatalogService) CreateAuthor(ctx context.Context, author *models.Author) error {
	if err := s.store.CreateAuthor(ctx, author); err != nil {
		return err
	}
	s.cache.Delete(ctx, redisclient.KeyAuthors())
	return nil
}

// ListCategories returns all categories, cached for a day.
func (s *CatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if s.cache.GetJSON(ctx, redisclient.KeyCategories(), &categories) {
		return categories, nil
	}

	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	s.cache.SetJSON(ctx, redisclient.KeyCategories(), categories, redisclient.TTLReference)
	return categories, nil
}

// CreateCategory persists a new category.
func (s *CatalogService) CreateCategory(ctx context.Context, category *models.Category) error {
	if err := s.store.CreateCategory(ctx, category); err != nil {
		return err
	}
	s.cache.Delete(ctx, redisclient.KeyCategories())
	return nil
}

// ListWishlist returns a user's wishlist.
func (s *CatalogService) ListWishlist(ctx context.Context, userID int64) ([]models.WishlistEntry, error) {
	key := redisclient.KeyUserWishlist(userID)
	var entries []models.WishlistEntry
	if s.cache.GetJSON(ctx, key, &entries) {
		return entries, nil
	}

	entries, err := s.store.ListWishlist(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.cache.SetJSON(ctx, key, entries, redisclient.TTLWishlist)
	return entries, nil
}

// AddToWishlist saves a book for later. The book must exist; duplicate
// adds surface as a conflict.
func (s *CatalogService) AddToWishlist(ctx context.Context, userID, bookID int64) error {
	book, err := s.store.GetBookByID(ctx, bookID)
	if err != nil {
		return err
	}
	if !book.IsActive {
		return fmt.Errorf("%w: book %d is not available", ErrValidation, bookID)
	}
	if err := s.store.AddToWishlist(ctx, userID, bookID); err != nil {
		return err
	}
	s.cache.Delete(ctx, redisclient.KeyUserWishlist(userID))
	return nil
}

// RemoveFromWishlist drops a book from a user's wishlist.
func (s *CatalogService) RemoveFromWishlist(ctx context.Context, userID, bookID int64) error {
	if err := s.store.RemoveFromWishlist(ctx, userID, bookID); err != nil {
		return err
	}
	s.cache.Delete(ctx, redisclient.KeyUserWishlist(userID))
	return nil
}

// ListBookReviews returns a page of a book's reviews, newest first.
func (s *CatalogService) ListBookReviews(ctx context.Context, bookID int64, skip, limit int) ([]models.Review, error) {
	if _, err := s.reviews.GetBookByID(ctx, bookID); err != nil {
		return nil, err
	}

	key := redisclient.KeyBookReviews(bookID, skip, limit)
	var reviews []models.Review
	if s.cache.GetJSON(ctx, key, &reviews) {
		return reviews, nil
	}

	reviews, err := s.reviews.ListReviewsByBook(ctx, bookID, skip, limit)
	if err != nil {
		return nil, err
	}

	s.cache.SetJSON(ctx, key, reviews, redisclient.TTLListing)
	return reviews, nil
}

// SubmitReview writes the user's review of a book, replacing an earlier
// one. Only customers who bought the book may review it.
func (s *CatalogService) SubmitReview(ctx context.Context, userID, bookID int64, rating int, comment *string) (*models.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}
	if _, err := s.reviews.GetBookByID(ctx, bookID); err != nil {
		return nil, err
	}

	purchased, err := s.reviews.HasPurchasedBook(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}
	if !purchased {
		return nil, fmt.Errorf("%w: book %d must be purchased before reviewing", ErrForbidden, bookID)
	}

	review := &models.Review{
		BookID:  bookID,
		UserID:  userID,
		Rating:  rating,
		Comment: comment,
	}
	if err := s.reviews.UpsertReview(ctx, review); err != nil {
		return nil, err
	}

	s.cache.DeletePattern(ctx, redisclient.PatternBookReviews(bookID))
	s.logger.Info("Review submitted",
		zap.Int64("book_id", bookID),
		zap.Int64("user_id", userID),
		zap.Int("rating", rating))
	return review, nil
}

// DeleteReview removes a review. Owners may delete their own reviews;
// admins may delete any.
func (s *CatalogService) DeleteReview(ctx context.Context, reviewID, userID int64, isAdmin bool) error {
	review, err := s.reviews.GetReviewByID(ctx, reviewID)
	if err != nil {
		return err
	}
	if !isAdmin && review.UserID != userID {
		return fmt.Errorf("%w: review %d", ErrForbidden, reviewID)
	}

	if err := s.reviews.DeleteReview(ctx, reviewID); err != nil {
		return err
	}
	s.cache.DeletePattern(ctx, redisclient.PatternBookReviews(review.BookID))
	return nil
}
