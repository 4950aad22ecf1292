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

// fakeReviewStore implements ReviewStore in memory.
type fakeReviewStore struct {
	books     map[int64]*models.Book
	reviews   map[int64]*models.Review
	purchased map[int64]map[int64]bool
	nextID    int64
}

func newFakeReviewStore() *fakeReviewStore {
	return &fakeReviewStore{
		books:     map[int64]*models.Book{},
		reviews:   map[int64]*models.Review{},
		purchased: map[int64]map[int64]bool{},
		nextID:    1,
	}
}

func (f *fakeReviewStore) markPurchased(userID, bookID int64) {
	if f.purchased[userID] == nil {
		f.purchased[userID] = map[int64]bool{}
	}
	f.purchased[userID][bookID] = true
}

func (f *fakeReviewStore) GetBookByID(_ context.Context, id int64) (*models.Book, error) {
	book, ok := f.books[id]
	if !ok {
		return nil, fmt.Errorf("%w: book %d", store.ErrNotFound, id)
	}
	return book, nil
}

func (f *fakeReviewStore) ListReviewsByBook(_ context.Context, bookID int64, _, _ int) ([]models.Review, error) {
	var out []models.Review
	for _, r := range f.reviews {
		if r.BookID == bookID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeReviewStore) GetReviewByID(_ context.Context, reviewID int64) (*models.Review, error) {
	review, ok := f.reviews[reviewID]
	if !ok {
		return nil, fmt.Errorf("%w: review %d", store.ErrNotFound, reviewID)
	}
	return review, nil
}

func (f *fakeReviewStore) HasPurchasedBook(_ context.Context, userID, bookID int64) (bool, error) {
	return f.purchased[userID][bookID], nil
}

func (f *fakeReviewStore) UpsertReview(_ context.Context, review *models.Review) error {
	// Mirrors the unique (book_id, user_id) constraint: a resubmit
	// replaces the earlier review in place.
	for _, existing := range f.reviews {
		if existing.BookID == review.BookID && existing.UserID == review.UserID {
			existing.Rating = review.Rating
			existing.Comment = review.Comment
			review.ID = existing.ID
			review.CreatedAt = existing.CreatedAt
			return nil
		}
	}
	review.ID = f.nextID
	f.nextID++
	review.CreatedAt = time.Now()
	f.reviews[review.ID] = review
	return nil
}

func (f *fakeReviewStore) DeleteReview(_ context.Context, reviewID int64) error {
	if _, ok := f.reviews[reviewID]; !ok {
		return fmt.Errorf("%w: review %d", store.ErrNotFound, reviewID)
	}
	delete(f.reviews, reviewID)
	return nil
}

func reviewService(st *fakeReviewStore, cache *fakeCache) *CatalogService {
	return &CatalogService{reviews: st, cache: cache, logger: util.GetLogger()}
}

func TestSubmitReviewRequiresPurchase(t *testing.T) {
	st := newFakeReviewStore()
	st.books[1] = &models.Book{ID: 1, Title: "Reviewed Book", IsActive: true}

	svc := reviewService(st, &fakeCache{})
	ctx := context.Background()

	_, err := svc.SubmitReview(ctx, 7, 1, 5, nil)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, st.reviews)

	st.markPurchased(7, 1)
	review, err := svc.SubmitReview(ctx, 7, 1, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, review.Rating)
}

func TestSubmitReviewReplacesEarlierOne(t *testing.T) {
	st := newFakeReviewStore()
	st.books[1] = &models.Book{ID: 1, Title: "Reviewed Book", IsActive: true}
	st.markPurchased(7, 1)

	cache := &fakeCache{}
	svc := reviewService(st, cache)
	ctx := context.Background()

	first, err := svc.SubmitReview(ctx, 7, 1, 2, nil)
	require.NoError(t, err)

	comment := "better on a second read"
	second, err := svc.SubmitReview(ctx, 7, 1, 4, &comment)
	require.NoError(t, err)

	// One review per user per book; the resubmit keeps the identity.
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, st.reviews, 1)
	assert.Equal(t, 4, st.reviews[first.ID].Rating)

	assert.Contains(t, cache.deletedPatterns, "reviews:book:1:*")
}

func TestSubmitReviewValidatesRating(t *testing.T) {
	st := newFakeReviewStore()
	st.books[1] = &models.Book{ID: 1, IsActive: true}
	st.markPurchased(7, 1)

	svc := reviewService(st, &fakeCache{})
	ctx := context.Background()

	_, err := svc.SubmitReview(ctx, 7, 1, 0, nil)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.SubmitReview(ctx, 7, 1, 6, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.SubmitReview(ctx, 7, 99, 3, nil)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteReviewOwnershipAndAdmin(t *testing.T) {
	st := newFakeReviewStore()
	st.books[1] = &models.Book{ID: 1, IsActive: true}
	st.markPurchased(7, 1)
	st.markPurchased(8, 1)

	svc := reviewService(st, &fakeCache{})
	ctx := context.Background()

	owned, err := svc.SubmitReview(ctx, 7, 1, 4, nil)
	require.NoError(t, err)
	foreign, err := svc.SubmitReview(ctx, 8, 1, 2, nil)
	require.NoError(t, err)

	err = svc.DeleteReview(ctx, foreign.ID, 7, false)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.DeleteReview(ctx, owned.ID, 7, false))
	require.NoError(t, svc.DeleteReview(ctx, foreign.ID, 99, true))
	assert.Empty(t, st.reviews)
}

func TestListBookReviewsUnknownBook(t *testing.T) {
	svc := reviewService(newFakeReviewStore(), &fakeCache{})
	_, err := svc.ListBookReviews(context.Background(), 42, 0, 20)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
