package models

import "time"

// ItemKind tags which catalog table a line item references.
type ItemKind string

const (
	KindBook       ItemKind = "book"
	KindStationery ItemKind = "stationery"
)

// ItemRef is a tagged reference to exactly one catalog item.
type ItemRef struct {
	Kind ItemKind `db:"item_kind" json:"item_kind"`
	ID   int64    `db:"item_id" json:"item_id"`
}

// Book is a sellable catalog record.
type Book struct {
	ID               int64      `db:"book_id" json:"book_id"`
	Title            string     `db:"title" json:"title"`
	Slug             *string    `db:"slug" json:"slug,omitempty"`
	ISBN             *string    `db:"isbn" json:"isbn,omitempty"`
	BriefDescription *string    `db:"brief_description" json:"brief_description,omitempty"`
	Price            int64      `db:"price" json:"price"`
	StockQuantity    int        `db:"stock_quantity" json:"stock_quantity"`
	Publisher        *string    `db:"publisher" json:"publisher,omitempty"`
	Pages            *int       `db:"pages" json:"pages,omitempty"`
	PublicationDate  *time.Time `db:"publication_date" json:"publication_date,omitempty"`
	ImageURL         *string    `db:"image_url" json:"image_url,omitempty"`
	IsActive         bool       `db:"is_active" json:"is_active"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`

	// Physical data for shipping, cm and grams.
	HeightCm *float64 `db:"height_cm" json:"height_cm,omitempty"`
	WidthCm  *float64 `db:"width_cm" json:"width_cm,omitempty"`
	LengthCm *float64 `db:"length_cm" json:"length_cm,omitempty"`
	WeightG  *int     `db:"weight_g" json:"weight_g,omitempty"`

	IsBestSeller bool `db:"is_best_seller" json:"is_best_seller"`
	IsNew        bool `db:"is_new" json:"is_new"`
	IsFreeShip   bool `db:"is_free_ship" json:"is_free_ship"`

	DiscountPercentage *float64 `db:"discount_percentage" json:"discount_percentage,omitempty"`
	DiscountAmount     *int64   `db:"discount_amount" json:"discount_amount,omitempty"`
	DiscountedPrice    *int64   `db:"discounted_price" json:"discounted_price,omitempty"`
	IsDiscount         bool     `db:"is_discount" json:"is_discount"`
}

// ApplyDiscount recomputes the derived sale price. It must be called on
// every change to price or either discount field; DiscountedPrice is
// never written directly.
func (b *Book) ApplyDiscount() {
	b.DiscountedPrice, b.IsDiscount = ComputeDiscountedPrice(b.Price, b.DiscountPercentage, b.DiscountAmount)
}

// Stationery shares the Book pricing shape but lives in its own table.
type Stationery struct {
	ID               int64     `db:"stationery_id" json:"stationery_id"`
	Title            string    `db:"title" json:"title"`
	Slug             *string   `db:"slug" json:"slug,omitempty"`
	SKU              *string   `db:"sku" json:"sku,omitempty"`
	BriefDescription *string   `db:"brief_description" json:"brief_description,omitempty"`
	Price            int64     `db:"price" json:"price"`
	StockQuantity    int       `db:"stock_quantity" json:"stock_quantity"`
	ImageURL         *string   `db:"image_url" json:"image_url,omitempty"`
	IsActive         bool      `db:"is_active" json:"is_active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`

	HeightCm *float64 `db:"height_cm" json:"height_cm,omitempty"`
	WidthCm  *float64 `db:"width_cm" json:"width_cm,omitempty"`
	LengthCm *float64 `db:"length_cm" json:"length_cm,omitempty"`
	WeightG  *int     `db:"weight_g" json:"weight_g,omitempty"`

	IsBestSeller bool `db:"is_best_seller" json:"is_best_seller"`
	IsNew        bool `db:"is_new" json:"is_new"`
	IsFreeShip   bool `db:"is_free_ship" json:"is_free_ship"`

	DiscountPercentage *float64 `db:"discount_percentage" json:"discount_percentage,omitempty"`
	DiscountAmount     *int64   `db:"discount_amount" json:"discount_amount,omitempty"`
	DiscountedPrice    *int64   `db:"discounted_price" json:"discounted_price,omitempty"`
	IsDiscount         bool     `db:"is_discount" json:"is_discount"`
}

// ApplyDiscount recomputes the derived sale price.
func (s *Stationery) ApplyDiscount() {
	s.DiscountedPrice, s.IsDiscount = ComputeDiscountedPrice(s.Price, s.DiscountPercentage, s.DiscountAmount)
}

// CatalogItem is the kind-agnostic view of a book or stationery row
// used by the order workflow and the shipping adapter.
type CatalogItem struct {
	Ref             ItemRef
	Title           string
	Price           int64
	DiscountedPrice *int64
	StockQuantity   int
	IsActive        bool
	IsFreeShip      bool
	WeightG         *int
	LengthCm        *float64
	WidthCm         *float64
	HeightCm        *float64
}

// UnitPrice is the amount a customer is charged per unit right now.
func (ci *CatalogItem) UnitPrice() int64 {
	if ci.DiscountedPrice != nil {
		return *ci.DiscountedPrice
	}
	return ci.Price
}

// Author of one or more books (many-to-many via book_authors).
type Author struct {
	ID   int64   `db:"author_id" json:"author_id"`
	Name string  `db:"name" json:"name"`
	Bio  *string `db:"bio" json:"bio,omitempty"`
}

// Category groups books and stationery.
type Category struct {
	ID          int64   `db:"category_id" json:"category_id"`
	Name        string  `db:"name" json:"name"`
	Description *string `db:"description" json:"description,omitempty"`
}

// User is the identity produced by the upstream auth service. Only the
// fields the order and notification paths consume are modeled here.
type User struct {
	ID          int64   `db:"user_id" json:"user_id"`
	FirstName   string  `db:"first_name" json:"first_name"`
	LastName    string  `db:"last_name" json:"last_name"`
	Email       string  `db:"email" json:"email"`
	PhoneNumber *string `db:"phone_number" json:"phone_number,omitempty"`
}

// Address is a saved shipping address owned by a user. At most one
// address per user carries IsDefaultShipping.
type Address struct {
	ID                int64   `db:"address_id" json:"address_id"`
	UserID            int64   `db:"user_id" json:"user_id"`
	PhoneNumber       string  `db:"phone_number" json:"phone_number"`
	AddressLine1      string  `db:"address_line1" json:"address_line1"`
	AddressLine2      *string `db:"address_line2" json:"address_line2,omitempty"`
	City              string  `db:"city" json:"city"`
	PostalCode        string  `db:"postal_code" json:"postal_code"`
	Country           string  `db:"country" json:"country"`
	IsDefaultShipping bool    `db:"is_default_shipping" json:"is_default_shipping"`
}

// Order statuses. The set and transitions are enforced; see CanTransition.
const (
	OrderStatusPending   = "Pending"
	OrderStatusConfirmed = "Confirmed"
	OrderStatusShipping  = "Shipping"
	OrderStatusDelivered = "Delivered"
	OrderStatusCancelled = "Cancelled"
)

// Cancellation is only reachable from Pending: once an order is
// confirmed its stock is committed to fulfilment, and every path into
// Cancelled must restore stock.
var orderTransitions = map[string][]string{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipping},
	OrderStatusShipping:  {OrderStatusDelivered},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether a status admits no further transitions.
func IsTerminalStatus(status string) bool {
	return len(orderTransitions[status]) == 0
}

// Order is a customer order. UserID is nil for guest orders, which
// carry GuestEmail and inline shipping fields instead.
type Order struct {
	ID          int64     `db:"order_id" json:"order_id"`
	UserID      *int64    `db:"user_id" json:"user_id,omitempty"`
	OrderDate   time.Time `db:"order_date" json:"order_date"`
	TotalAmount int64     `db:"total_amount" json:"total_amount"`
	Status      string    `db:"status" json:"status"`

	GuestEmail *string `db:"guest_email" json:"guest_email,omitempty"`

	ShippingFullName     *string `db:"shipping_full_name" json:"shipping_full_name,omitempty"`
	ShippingPhoneNumber  *string `db:"shipping_phone_number" json:"shipping_phone_number,omitempty"`
	ShippingAddressLine1 *string `db:"shipping_address_line1" json:"shipping_address_line1,omitempty"`
	ShippingAddressLine2 *string `db:"shipping_address_line2" json:"shipping_address_line2,omitempty"`
	ShippingCity         *string `db:"shipping_city" json:"shipping_city,omitempty"`
	ShippingPostalCode   *string `db:"shipping_postal_code" json:"shipping_postal_code,omitempty"`
	ShippingCountry      *string `db:"shipping_country" json:"shipping_country,omitempty"`

	PaymentMethod *string `db:"payment_method" json:"payment_method,omitempty"`
	CODAmount     *int64  `db:"cod_amount" json:"cod_amount,omitempty"`

	// Carrier wire contract: these round-trip exactly as received.
	GHNOrderCode      *string `db:"ghn_order_code" json:"ghn_order_code,omitempty"`
	GHNProvinceID     *int    `db:"ghn_province_id" json:"ghn_province_id,omitempty"`
	GHNDistrictID     *int    `db:"ghn_district_id" json:"ghn_district_id,omitempty"`
	GHNWardCode       *string `db:"ghn_ward_code" json:"ghn_ward_code,omitempty"`
	GHNProvinceName   *string `db:"ghn_province_name" json:"ghn_province_name,omitempty"`
	GHNDistrictName   *string `db:"ghn_district_name" json:"ghn_district_name,omitempty"`
	GHNWardName       *string `db:"ghn_ward_name" json:"ghn_ward_name,omitempty"`
	ShippingServiceID *int    `db:"shipping_service_id" json:"shipping_service_id,omitempty"`
	ShippingFee       *int64  `db:"shipping_fee" json:"shipping_fee,omitempty"`
	PackageWeightG    *int    `db:"package_weight_g" json:"package_weight_g,omitempty"`
	PackageLengthCm   *int    `db:"package_length_cm" json:"package_length_cm,omitempty"`
	PackageWidthCm    *int    `db:"package_width_cm" json:"package_width_cm,omitempty"`
	PackageHeightCm   *int    `db:"package_height_cm" json:"package_height_cm,omitempty"`
}

// OrderItem is one line of an order. PriceAtPurchase is the unit price
// snapshot taken at order time and never recomputed; it is the audit
// record of what the customer was charged.
type OrderItem struct {
	ID              int64    `db:"order_item_id" json:"order_item_id"`
	OrderID         int64    `db:"order_id" json:"order_id"`
	ItemKind        ItemKind `db:"item_kind" json:"item_kind"`
	ItemID          int64    `db:"item_id" json:"item_id"`
	Quantity        int      `db:"quantity" json:"quantity"`
	PriceAtPurchase int64    `db:"price_at_purchase" json:"price_at_purchase"`
}

// WishlistEntry links a user to a book they saved for later.
type WishlistEntry struct {
	UserID  int64     `db:"user_id" json:"user_id"`
	BookID  int64     `db:"book_id" json:"book_id"`
	AddedAt time.Time `db:"added_at" json:"added_at"`
}

// Review is a customer rating of a book. Each user holds at most one
// review per book; resubmitting replaces it. UserName is denormalized
// from the users table for listings.
type Review struct {
	ID        int64     `db:"review_id" json:"review_id"`
	BookID    int64     `db:"book_id" json:"book_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Rating    int       `db:"rating" json:"rating"`
	Comment   *string   `db:"comment" json:"comment,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UserName  string    `db:"user_name" json:"user_name"`
}
