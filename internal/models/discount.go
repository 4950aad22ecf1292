package models

// ComputeDiscountedPrice derives a sale price from a base price and at
// most one discount field. The percentage takes precedence when both
// are set. Returns the derived price (nil when no discount applies) and
// the is_discount flag, true iff either discount field is set non-zero.
func ComputeDiscountedPrice(price int64, percentage *float64, amount *int64) (*int64, bool) {
	if percentage != nil && *percentage != 0 {
		discounted := int64(float64(price) * (100 - *percentage) / 100)
		return &discounted, true
	}
	if amount != nil && *amount != 0 {
		discounted := price - *amount
		if discounted < 0 {
			discounted = 0
		}
		return &discounted, true
	}
	return nil, false
}
