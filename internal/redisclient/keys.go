package redisclient

import "fmt"

// Cache keys are deterministic functions of their inputs so that
// invalidation-by-prefix covers every variant of a listing.

func KeyBook(id int64) string {
	return fmt.Sprintf("book:%d", id)
}

func KeyBooksList(skip, limit int, categoryID, authorID *int64, search string) string {
	key := fmt.Sprintf("books:skip:%d:limit:%d", skip, limit)
	if categoryID != nil {
		key += fmt.Sprintf(":category:%d", *categoryID)
	}
	if authorID != nil {
		key += fmt.Sprintf(":author:%d", *authorID)
	}
	if search != "" {
		key += ":search:" + search
	}
	return key
}

func KeyStationery(id int64) string {
	return fmt.Sprintf("stationery:%d", id)
}

func KeyStationeryList(skip, limit int, categoryID *int64, search string) string {
	key := fmt.Sprintf("stationery:skip:%d:limit:%d", skip, limit)
	if categoryID != nil {
		key += fmt.Sprintf(":category:%d", *categoryID)
	}
	if search != "" {
		key += ":search:" + search
	}
	return key
}

func KeyUserOrders(userID int64, skip, limit int, status string) string {
	key := fmt.Sprintf("orders:user:%d:skip:%d:limit:%d", userID, skip, limit)
	if status != "" {
		key += ":status:" + status
	}
	return key
}

func KeyUserWishlist(userID int64) string {
	return fmt.Sprintf("user:%d:wishlist", userID)
}

func KeyBookReviews(bookID int64, skip, limit int) string {
	return fmt.Sprintf("reviews:book:%d:skip:%d:limit:%d", bookID, skip, limit)
}

func KeyCategories() string {
	return "categories:all"
}

func KeyAuthors() string {
	return "authors:all"
}

// Carrier master data keys.

func KeyGHNProvinces() string {
	return "ghn:provinces"
}

func KeyGHNDistricts(provinceID int) string {
	return fmt.Sprintf("ghn:districts:%d", provinceID)
}

func KeyGHNWards(districtID int) string {
	return fmt.Sprintf("ghn:wards:%d", districtID)
}

// Invalidation prefixes.

func PatternBooksLists() string {
	return "books:skip:*"
}

func PatternStationeryLists() string {
	return "stationery:skip:*"
}

func PatternUserOrders(userID int64) string {
	return fmt.Sprintf("orders:user:%d:*", userID)
}

func PatternBookReviews(bookID int64) string {
	return fmt.Sprintf("reviews:book:%d:*", bookID)
}
