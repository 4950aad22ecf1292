// Package shipping adapts orders to the GHN carrier API: destination
// resolution, fee quoting, shipment booking, and status lookup.
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"bookstore-service/config"
	"bookstore-service/internal/redisclient"
	"bookstore-service/internal/util"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// ErrNotConfigured is returned when GHN credentials are absent; callers
// treat the integration as disabled.
var ErrNotConfigured = errors.New("ghn service is not configured")

// Floors applied to package metadata when items carry no physical data.
const (
	MinWeightG    = 300
	DefaultLength = 20
	DefaultWidth  = 15
	DefaultHeight = 10
)

// Province is a GHN master-data row. Fields round-trip as received.
type Province struct {
	ProvinceID    int      `json:"ProvinceID"`
	ProvinceName  string   `json:"ProvinceName"`
	NameExtension []string `json:"NameExtension"`
}

// District is a GHN master-data row.
type District struct {
	DistrictID    int      `json:"DistrictID"`
	ProvinceID    int      `json:"ProvinceID"`
	DistrictName  string   `json:"DistrictName"`
	NameExtension []string `json:"NameExtension"`
}

// Ward is a GHN master-data row. Ward codes are strings on the wire.
type Ward struct {
	WardCode      string   `json:"WardCode"`
	DistrictID    int      `json:"DistrictID"`
	WardName      string   `json:"WardName"`
	NameExtension []string `json:"NameExtension"`
}

// FeeRequest carries the inputs of a fee quote. Zero-valued dimensions
// get the carrier defaults before sending.
type FeeRequest struct {
	ToDistrictID   int
	ToWardCode     string
	FromDistrictID int
	FromWardCode   string
	ServiceTypeID  int
	WeightG        int
	LengthCm       int
	WidthCm        int
	HeightCm       int
	InsuranceValue int64
}

// FeeBreakdown is the carrier's fee response, round-tripped exactly.
type FeeBreakdown struct {
	Total                 int64 `json:"total"`
	ServiceFee            int64 `json:"service_fee"`
	InsuranceFee          int64 `json:"insurance_fee"`
	PickStationFee        int64 `json:"pick_station_fee"`
	CouponValue           int64 `json:"coupon_value"`
	CODFee                int64 `json:"cod_fee"`
	PickRemoteAreasFee    int64 `json:"pick_remote_areas_fee"`
	DeliverRemoteAreasFee int64 `json:"deliver_remote_areas_fee"`
	CODFailedFee          int64 `json:"cod_failed_fee"`
}

// BookingItem is one parcel line sent to the carrier.
type BookingItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
	LengthCm int    `json:"length"`
	WidthCm  int    `json:"width"`
	HeightCm int    `json:"height"`
	WeightG  int    `json:"weight"`
}

// BookingRequest carries everything needed to create a carrier order.
type BookingRequest struct {
	ToName        string
	ToPhone       string
	ToAddress     string
	ToWardCode    string
	ToDistrictID  int
	CODAmount     int64
	ServiceID     int
	PaymentMethod string
	HasFreeShip   bool
	Items         []BookingItem
}

// OrderDetail is the carrier's view of a booked shipment.
type OrderDetail struct {
	OrderCode string `json:"order_code"`
	Status    string `json:"status"`
}

// Client talks to the GHN API. Master-data lists are cached for a day.
type Client struct {
	token      string
	shopID     string
	baseURL    string
	shop       config.ShopConfig
	httpClient *http.Client
	cache      *redisclient.Client
	logger     *zap.Logger
}

// NewClient creates a GHN client. cache may be nil, which disables
// master-data caching.
func NewClient(cfg config.GHNConfig, shop config.ShopConfig, cache *redisclient.Client) *Client {
	return &Client{
		token:      cfg.APIToken,
		shopID:     cfg.ShopID,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		shop:       shop,
		httpClient: &http.Client{},
		cache:      cache,
		logger:     util.GetLogger(),
	}
}

// IsConfigured reports whether carrier credentials are present.
func (c *Client) IsConfigured() bool {
	return c.token != "" && c.shopID != ""
}

type apiEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, timeout time.Duration, out interface{}) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	start := time.Now()
	defer func() {
		util.CarrierRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}()

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Token", c.token)
	req.Header.Set("ShopId", c.shopID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ghn %s returned status %d", path, resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("ghn %s: failed to decode response: %w", path, err)
	}
	if envelope.Code != 200 {
		return fmt.Errorf("ghn %s: api error: %s", path, envelope.Message)
	}
	if out != nil && envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("ghn %s: failed to decode data: %w", path, err)
		}
	}
	return nil
}

// GetProvinces fetches the carrier's province master data.
func (c *Client) GetProvinces(ctx context.Context) ([]Province, error) {
	var provinces []Province
	if c.cache != nil && c.cache.GetJSON(ctx, redisclient.KeyGHNProvinces(), &provinces) {
		return provinces, nil
	}
	if err := c.do(ctx, http.MethodGet, "/master-data/province", nil, 20*time.Second, &provinces); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.SetJSON(ctx, redisclient.KeyGHNProvinces(), provinces, redisclient.TTLMasterData)
	}
	return provinces, nil
}

// GetDistricts fetches the districts of a province.
func (c *Client) GetDistricts(ctx context.Context, provinceID int) ([]District, error) {
	var districts []District
	if c.cache != nil && c.cache.GetJSON(ctx, redisclient.KeyGHNDistricts(provinceID), &districts) {
		return districts, nil
	}
	payload := map[string]int{"province_id": provinceID}
	if err := c.do(ctx, http.MethodPost, "/master-data/district", payload, 20*time.Second, &districts); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.SetJSON(ctx, redisclient.KeyGHNDistricts(provinceID), districts, redisclient.TTLMasterData)
	}
	return districts, nil
}

// GetWards fetches the wards of a district.
func (c *Client) GetWards(ctx context.Context, districtID int) ([]Ward, error) {
	var wards []Ward
	if c.cache != nil && c.cache.GetJSON(ctx, redisclient.KeyGHNWards(districtID), &wards) {
		return wards, nil
	}
	payload := map[string]int{"district_id": districtID}
	if err := c.do(ctx, http.MethodPost, "/master-data/ward", payload, 20*time.Second, &wards); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.SetJSON(ctx, redisclient.KeyGHNWards(districtID), wards, redisclient.TTLMasterData)
	}
	return wards, nil
}

// Normalize lowercases, trims, collapses whitespace, and strips
// combining accent marks so that "Hà Nội" matches "ha noi".
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	decomposed := norm.NFD.String(text)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// nameMatches is an accent-insensitive contains match in either
// direction against a primary name and its extension aliases.
func nameMatches(queryNorm, name string, extensions []string) bool {
	nameNorm := Normalize(name)
	if strings.Contains(nameNorm, queryNorm) || strings.Contains(queryNorm, nameNorm) {
		return true
	}
	for _, ext := range extensions {
		extNorm := Normalize(ext)
		if strings.Contains(extNorm, queryNorm) || strings.Contains(queryNorm, extNorm) {
			return true
		}
	}
	return false
}

func tokenOverlap(queryNorm, name string) int {
	queryTokens := map[string]bool{}
	for _, t := range strings.Fields(queryNorm) {
		queryTokens[t] = true
	}
	score := 0
	for _, t := range strings.Fields(Normalize(name)) {
		if queryTokens[t] {
			score++
			delete(queryTokens, t)
		}
	}
	return score
}

// FindProvince resolves a free-text province name to a master-data row.
// First contains-match wins; otherwise the highest token-overlap score,
// ties broken by list order.
func (c *Client) FindProvince(ctx context.Context, nameQuery string) (*Province, error) {
	provinces, err := c.GetProvinces(ctx)
	if err != nil {
		return nil, err
	}
	qn := Normalize(nameQuery)
	for i := range provinces {
		if nameMatches(qn, provinces[i].ProvinceName, provinces[i].NameExtension) {
			return &provinces[i], nil
		}
	}
	var best *Province
	bestScore := 0
	for i := range provinces {
		if score := tokenOverlap(qn, provinces[i].ProvinceName); score > bestScore {
			best, bestScore = &provinces[i], score
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no province matches %q", nameQuery)
	}
	return best, nil
}

// FindDistrict resolves a free-text district name within a province.
func (c *Client) FindDistrict(ctx context.Context, provinceID int, nameQuery string) (*District, error) {
	districts, err := c.GetDistricts(ctx, provinceID)
	if err != nil {
		return nil, err
	}
	qn := Normalize(nameQuery)
	for i := range districts {
		if nameMatches(qn, districts[i].DistrictName, districts[i].NameExtension) {
			return &districts[i], nil
		}
	}
	var best *District
	bestScore := 0
	for i := range districts {
		if score := tokenOverlap(qn, districts[i].DistrictName); score > bestScore {
			best, bestScore = &districts[i], score
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no district matches %q", nameQuery)
	}
	return best, nil
}

// FindWard resolves a free-text ward name within a district.
func (c *Client) FindWard(ctx context.Context, districtID int, nameQuery string) (*Ward, error) {
	wards, err := c.GetWards(ctx, districtID)
	if err != nil {
		return nil, err
	}
	qn := Normalize(nameQuery)
	for i := range wards {
		if nameMatches(qn, wards[i].WardName, wards[i].NameExtension) {
			return &wards[i], nil
		}
	}
	var best *Ward
	bestScore := 0
	for i := range wards {
		if score := tokenOverlap(qn, wards[i].WardName); score > bestScore {
			best, bestScore = &wards[i], score
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no ward matches %q", nameQuery)
	}
	return best, nil
}

// CalculateFee requests a fee quote for the given destination and
// package metadata.
func (c *Client) CalculateFee(ctx context.Context, req FeeRequest) (*FeeBreakdown, error) {
	if req.ToDistrictID == 0 || req.ToWardCode == "" {
		return nil, errors.New("to_district_id and to_ward_code are required")
	}

	serviceTypeID := req.ServiceTypeID
	if serviceTypeID == 0 {
		serviceTypeID = 2
	}
	weight := req.WeightG
	if weight == 0 {
		weight = 500
	}
	length := req.LengthCm
	if length == 0 {
		length = DefaultLength
	}
	width := req.WidthCm
	if width == 0 {
		width = DefaultWidth
	}
	height := req.HeightCm
	if height == 0 {
		height = DefaultHeight
	}

	payload := map[string]interface{}{
		"service_type_id": serviceTypeID,
		"to_district_id":  req.ToDistrictID,
		"to_ward_code":    req.ToWardCode,
		"weight":          weight,
		"length":          length,
		"width":           width,
		"height":          height,
		"insurance_value": req.InsuranceValue,
		"coupon":          nil,
	}
	if req.FromDistrictID != 0 {
		payload["from_district_id"] = req.FromDistrictID
	}
	if req.FromWardCode != "" {
		payload["from_ward_code"] = req.FromWardCode
	}

	var fee FeeBreakdown
	if err := c.do(ctx, http.MethodPost, "/v2/shipping-order/fee", payload, 20*time.Second, &fee); err != nil {
		return nil, err
	}
	return &fee, nil
}

// AggregatePackage derives shipment package metadata from its items:
// total weight is sum(weight x quantity) floored at 300g, dimensions
// are the per-axis maxima floored at 20x15x10 cm.
func AggregatePackage(items []BookingItem) (weightG, lengthCm, widthCm, heightCm int) {
	weightG = 0
	lengthCm, widthCm, heightCm = DefaultLength, DefaultWidth, DefaultHeight
	for _, item := range items {
		w := item.WeightG
		if w == 0 {
			w = MinWeightG
		}
		weightG += w * item.Quantity
		if item.LengthCm > lengthCm {
			lengthCm = item.LengthCm
		}
		if item.WidthCm > widthCm {
			widthCm = item.WidthCm
		}
		if item.HeightCm > heightCm {
			heightCm = item.HeightCm
		}
	}
	if weightG < MinWeightG {
		weightG = MinWeightG
	}
	return weightG, lengthCm, widthCm, heightCm
}

// paymentTypeID maps who pays the delivery fee: 1 shop, 2 buyer.
func paymentTypeID(req BookingRequest) int {
	switch {
	case req.HasFreeShip:
		return 1
	case strings.EqualFold(req.PaymentMethod, "cod"):
		return 2
	case strings.EqualFold(req.PaymentMethod, "momo"):
		return 1
	case req.CODAmount > 0:
		return 2
	default:
		return 1
	}
}

// CreateOrder books a shipment and returns the carrier tracking code.
func (c *Client) CreateOrder(ctx context.Context, req BookingRequest) (string, error) {
	weight, length, width, height := AggregatePackage(req.Items)

	items := make([]map[string]interface{}, 0, len(req.Items))
	for _, item := range req.Items {
		w := item.WeightG
		if w == 0 {
			w = MinWeightG
		}
		l := item.LengthCm
		if l == 0 {
			l = DefaultLength
		}
		wd := item.WidthCm
		if wd == 0 {
			wd = DefaultWidth
		}
		h := item.HeightCm
		if h == 0 {
			h = DefaultHeight
		}
		items = append(items, map[string]interface{}{
			"name":     item.Name,
			"quantity": item.Quantity,
			"price":    item.Price,
			"length":   l,
			"width":    wd,
			"height":   h,
			"weight":   w,
		})
	}

	payload := map[string]interface{}{
		"payment_type_id":    paymentTypeID(req),
		"note":               c.shop.Name,
		"required_note":      "CHOXEMHANGKHONGTHU",
		"from_name":          c.shop.Name,
		"from_phone":         c.shop.Phone,
		"from_address":       c.shop.Address,
		"from_ward_name":     c.shop.WardName,
		"from_district_name": c.shop.DistrictName,
		"from_province_name": c.shop.ProvinceName,
		"to_name":            req.ToName,
		"to_phone":           req.ToPhone,
		"to_address":         req.ToAddress,
		"to_ward_code":       req.ToWardCode,
		"to_district_id":     req.ToDistrictID,
		"cod_amount":         req.CODAmount,
		"weight":             weight,
		"length":             length,
		"width":              width,
		"height":             height,
		"service_id":         req.ServiceID,
		"service_type_id":    2,
		"items":              items,
	}

	var result struct {
		OrderCode string `json:"order_code"`
	}
	if err := c.do(ctx, http.MethodPost, "/v2/shipping-order/create", payload, 30*time.Second, &result); err != nil {
		return "", err
	}
	if result.OrderCode == "" {
		return "", errors.New("ghn booking returned no order code")
	}

	c.logger.Info("GHN order created", zap.String("order_code", result.OrderCode))
	return result.OrderCode, nil
}

// GetOrderDetail fetches a booked shipment's detail by tracking code.
func (c *Client) GetOrderDetail(ctx context.Context, orderCode string) (*OrderDetail, error) {
	if orderCode == "" {
		return nil, errors.New("order code is required")
	}
	payload := map[string]string{"order_code": orderCode}
	var detail OrderDetail
	if err := c.do(ctx, http.MethodPost, "/v2/shipping-order/detail", payload, 20*time.Second, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}
