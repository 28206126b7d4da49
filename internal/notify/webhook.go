// Package notify pushes a small payment summary to an external webhook
// (LINE-style notification endpoint) after a payment commits. Strictly
// fire-and-forget: a failed push is logged and never surfaced to the
// mutation's caller.
package notify

import (
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"buffet-system/internal/domain"
)

type Webhook struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

func NewWebhook(url, token string, logger *zap.Logger) *Webhook {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetHeader("Authorization", "Bearer "+token)
	}
	return &Webhook{client: client, url: url, logger: logger}
}

type paymentMessage struct {
	OrderID  int     `json:"order_id"`
	TableID  int     `json:"table_id"`
	Method   string  `json:"method"`
	Total    float64 `json:"total"`
	PaidAt   string  `json:"paid_at"`
	Quantity int     `json:"customer_quantity"`
}

func (w *Webhook) PaymentRecorded(order domain.Order, payment domain.Payment) {
	msg := paymentMessage{
		OrderID:  order.ID,
		TableID:  order.TableID,
		Method:   payment.Method,
		Total:    payment.Total,
		PaidAt:   payment.PaidAt.Format(time.RFC3339),
		Quantity: order.CustomerQuantity,
	}

	resp, err := w.client.R().SetBody(msg).Post(w.url)
	if err != nil {
		w.logger.Warn("payment webhook failed", zap.Error(err), zap.Int("order_id", order.ID))
		return
	}
	if resp.IsError() {
		w.logger.Warn("payment webhook rejected",
			zap.Int("status", resp.StatusCode()),
			zap.Int("order_id", order.ID))
	}
}
