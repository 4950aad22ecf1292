package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"bookstore-service/config"
	"bookstore-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ZNSClient sends Zalo ZNS template messages. Access tokens are
// short-lived, so the client refreshes them from the configured
// refresh token and keeps the current one in memory.
type ZNSClient struct {
	cfg        config.ZaloConfig
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func NewZNSClient(cfg config.ZaloConfig) *ZNSClient {
	return &ZNSClient{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     util.GetLogger(),
	}
}

// IsConfigured reports whether ZNS credentials are present.
func (z *ZNSClient) IsConfigured() bool {
	return z.cfg.AppID != "" && z.cfg.SecretKey != "" && z.cfg.RefreshToken != "" && z.cfg.TemplateID != ""
}

type oauthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
	Error       int    `json:"error"`
	Message     string `json:"message"`
}

func (z *ZNSClient) refreshAccessToken(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	form := url.Values{}
	form.Set("app_id", z.cfg.AppID)
	form.Set("refresh_token", z.cfg.RefreshToken)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.cfg.OAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build oauth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("secret_key", z.cfg.SecretKey)

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("oauth request failed: %w", err)
	}
	defer resp.Body.Close()

	var body oauthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode oauth response: %w", err)
	}
	if body.AccessToken == "" {
		return fmt.Errorf("oauth refresh rejected: error=%d message=%s", body.Error, body.Message)
	}

	expiresIn := 24 * time.Hour
	if secs, err := time.ParseDuration(body.ExpiresIn + "s"); err == nil && secs > 0 {
		expiresIn = secs
	}

	z.accessToken = body.AccessToken
	z.expiresAt = time.Now().Add(expiresIn)
	z.logger.Info("Zalo access token refreshed", zap.Time("expires_at", z.expiresAt))
	return nil
}

// validToken returns a usable access token, refreshing proactively
// when the current one is within an hour of expiry.
func (z *ZNSClient) validToken(ctx context.Context) (string, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.accessToken != "" && time.Until(z.expiresAt) > time.Hour {
		return z.accessToken, nil
	}
	if err := z.refreshAccessToken(ctx); err != nil {
		return "", err
	}
	return z.accessToken, nil
}

// NormalizePhoneTo84 rewrites a Vietnamese phone number into the
// 84-prefixed form ZNS requires. Returns "" when the input has no
// plausible subscriber number.
func NormalizePhoneTo84(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	switch {
	case d == "":
		return ""
	case strings.HasPrefix(d, "84"):
		return d
	case strings.HasPrefix(d, "0"):
		return "84" + d[1:]
	case len(d) >= 9:
		return "84" + d
	default:
		return ""
	}
}

// trackingID generates the per-message idempotency key ZNS expects.
func trackingID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
}

type znsResponse struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// SendOrderZNS delivers the order-confirmation ZNS template to the
// given phone number.
func (z *ZNSClient) SendOrderZNS(ctx context.Context, phone string, orderID, totalAmount int64, customerName string) error {
	if !z.IsConfigured() {
		return fmt.Errorf("zalo zns not configured")
	}

	normalized := NormalizePhoneTo84(phone)
	if normalized == "" {
		return fmt.Errorf("invalid phone number %q", phone)
	}

	token, err := z.validToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain zns token: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	payload := map[string]interface{}{
		"phone":       normalized,
		"template_id": z.cfg.TemplateID,
		"template_data": map[string]interface{}{
			"order_id":      fmt.Sprintf("%d", orderID),
			"total_amount":  FormatVND(totalAmount),
			"customer_name": customerName,
		},
		"tracking_id": trackingID(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal zns payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.cfg.BaseURL+"/message/template", strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("failed to build zns request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access_token", token)

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("zns request failed: %w", err)
	}
	defer resp.Body.Close()

	var result znsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode zns response: %w", err)
	}
	if result.Error != 0 {
		return fmt.Errorf("zns rejected: error=%d message=%s", result.Error, result.Message)
	}

	z.logger.Info("ZNS sent", zap.String("phone", normalized), zap.Int64("order_id", orderID))
	return nil
}
