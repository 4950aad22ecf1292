// Package notify implements the best-effort notification fan-out for
// created orders: customer email, admin email, and Zalo ZNS.
package notify

import (
	"fmt"
	"strconv"

	"bookstore-service/config"
	"bookstore-service/internal/util"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// FormatVND renders an amount in smallest currency units with dot
// thousand separators, e.g. 220000 -> "220.000 đ".
func FormatVND(amount int64) string {
	digits := strconv.FormatInt(amount, 10)
	negative := false
	if len(digits) > 0 && digits[0] == '-' {
		negative = true
		digits = digits[1:]
	}

	var grouped []byte
	for i, d := range []byte(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped = append(grouped, '.')
		}
		grouped = append(grouped, d)
	}
	if negative {
		return "-" + string(grouped) + " đ"
	}
	return string(grouped) + " đ"
}

// EmailSender sends plain-text transactional mail over SMTP.
type EmailSender struct {
	cfg    config.SMTPConfig
	dialer *gomail.Dialer
	logger *zap.Logger
}

// NewEmailSender creates an email sender. With empty credentials every
// send fails, which the fan-out treats as a logged channel failure.
func NewEmailSender(cfg config.SMTPConfig) *EmailSender {
	return &EmailSender{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: util.GetLogger(),
	}
}

func (e *EmailSender) send(to, subject, body string) error {
	if e.cfg.Username == "" {
		return fmt.Errorf("email not configured")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", e.cfg.FromEmail)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := e.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	e.logger.Info("Email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// SendOrderConfirmation mails the customer after their order commits.
func (e *EmailSender) SendOrderConfirmation(to, firstName string, orderID, totalAmount int64) error {
	subject := fmt.Sprintf("Order #%d confirmed - TheBookStore", orderID)
	body := fmt.Sprintf(
		"Hi %s,\n\nThank you for your order!\n\nOrder number: #%d\nTotal: %s\n\nWe will notify you when your order ships.\n\nTheBookStore",
		firstName, orderID, FormatVND(totalAmount))
	return e.send(to, subject, body)
}

// SendAdminOrderAlert mails the store admin about a new order.
func (e *EmailSender) SendAdminOrderAlert(orderID, totalAmount int64, customerEmail string) error {
	if e.cfg.AdminEmail == "" {
		return fmt.Errorf("admin email not configured")
	}
	subject := fmt.Sprintf("New order #%d", orderID)
	body := fmt.Sprintf(
		"A new order was placed.\n\nOrder number: #%d\nTotal: %s\nCustomer: %s\n",
		orderID, FormatVND(totalAmount), customerEmail)
	return e.send(e.cfg.AdminEmail, subject, body)
}
