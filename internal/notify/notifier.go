package notify

import (
	"context"
	"fmt"

	"bookstore-service/internal/util"

	"go.uber.org/zap"
)

// Recipient identifies who gets notified about an order.
type Recipient struct {
	Email     string
	FirstName string
	Phone     string
}

// Outcome records the result of one notification channel attempt.
type Outcome struct {
	Channel string
	Sent    bool
	Err     error
}

// Notifier fans an order confirmation out to customer email, admin
// email, and Zalo ZNS. Channels are independent: one failing never
// stops the others, and failures are logged and counted but never
// returned to the caller.
type Notifier struct {
	email  *EmailSender
	zns    *ZNSClient
	logger *zap.Logger
}

func NewNotifier(email *EmailSender, zns *ZNSClient) *Notifier {
	return &Notifier{
		email:  email,
		zns:    zns,
		logger: util.GetLogger(),
	}
}

func (n *Notifier) attempt(channel string, orderID int64, fn func() error) Outcome {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in %s notification: %v", channel, r)
			}
		}()
		err = fn()
	}()

	if err != nil {
		util.NotificationsSentTotal.WithLabelValues(channel, "failure").Inc()
		n.logger.Warn("Notification failed",
			zap.String("channel", channel),
			zap.Int64("order_id", orderID),
			zap.Error(err))
		return Outcome{Channel: channel, Err: err}
	}

	util.NotificationsSentTotal.WithLabelValues(channel, "success").Inc()
	return Outcome{Channel: channel, Sent: true}
}

// NotifyOrderCreated runs all channels for a freshly created order and
// returns the per-channel outcomes for logging by the caller.
func (n *Notifier) NotifyOrderCreated(ctx context.Context, rcpt Recipient, orderID, totalAmount int64) []Outcome {
	outcomes := make([]Outcome, 0, 3)

	outcomes = append(outcomes, n.attempt("customer_email", orderID, func() error {
		if rcpt.Email == "" {
			return fmt.Errorf("no recipient email")
		}
		return n.email.SendOrderConfirmation(rcpt.Email, rcpt.FirstName, orderID, totalAmount)
	}))

	outcomes = append(outcomes, n.attempt("admin_email", orderID, func() error {
		return n.email.SendAdminOrderAlert(orderID, totalAmount, rcpt.Email)
	}))

	outcomes = append(outcomes, n.attempt("zns", orderID, func() error {
		if rcpt.Phone == "" {
			return fmt.Errorf("no recipient phone")
		}
		return n.zns.SendOrderZNS(ctx, rcpt.Phone, orderID, totalAmount, rcpt.FirstName)
	}))

	return outcomes
}
