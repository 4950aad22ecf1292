package notify

import (
	"context"
	"testing"

	"bookstore-service/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVND(t *testing.T) {
	tests := []struct {
		amount int64
		want   string
	}{
		{0, "0 đ"},
		{500, "500 đ"},
		{1000, "1.000 đ"},
		{85000, "85.000 đ"},
		{220000, "220.000 đ"},
		{1234567, "1.234.567 đ"},
		{1000000000, "1.000.000.000 đ"},
		{-85000, "-85.000 đ"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatVND(tt.amount))
	}
}

func TestNormalizePhoneTo84(t *testing.T) {
	tests := []struct{ in, want string }{
		{"0912345678", "84912345678"},
		{"84912345678", "84912345678"},
		{"+84 912 345 678", "84912345678"},
		{"091-234-5678", "84912345678"},
		{"912345678", "84912345678"},
		{"", ""},
		{"abc", ""},
		{"123", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePhoneTo84(tt.in))
	}
}

func TestTrackingIDShape(t *testing.T) {
	id := trackingID()
	assert.Len(t, id, 24)
	assert.NotEqual(t, id, trackingID())
}

func TestNotifyOrderCreatedChannelsAreIsolated(t *testing.T) {
	// Nothing is configured: every channel fails, but the fan-out still
	// runs all three and returns without error.
	notifier := NewNotifier(
		NewEmailSender(config.SMTPConfig{}),
		NewZNSClient(config.ZaloConfig{}),
	)

	outcomes := notifier.NotifyOrderCreated(context.Background(), Recipient{
		Email:     "customer@example.com",
		FirstName: "An",
		Phone:     "0912345678",
	}, 42, 220000)

	require.Len(t, outcomes, 3)
	channels := map[string]Outcome{}
	for _, o := range outcomes {
		channels[o.Channel] = o
	}

	for _, name := range []string{"customer_email", "admin_email", "zns"} {
		outcome, ok := channels[name]
		require.True(t, ok, "missing channel %s", name)
		assert.False(t, outcome.Sent)
		assert.Error(t, outcome.Err)
	}
}

func TestNotifyOrderCreatedSkipsMissingContactPoints(t *testing.T) {
	notifier := NewNotifier(
		NewEmailSender(config.SMTPConfig{}),
		NewZNSClient(config.ZaloConfig{}),
	)

	outcomes := notifier.NotifyOrderCreated(context.Background(), Recipient{}, 42, 220000)
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.False(t, o.Sent)
	}
}

func TestZNSClientIsConfigured(t *testing.T) {
	assert.False(t, NewZNSClient(config.ZaloConfig{}).IsConfigured())
	assert.True(t, NewZNSClient(config.ZaloConfig{
		AppID: "1", SecretKey: "s", RefreshToken: "r", TemplateID: "t",
	}).IsConfigured())
}
