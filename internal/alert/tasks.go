// Package alert carries fraud and settlement notifications out of the
// webhook request path. Webhook handlers only enqueue; delivery and any
// retries happen in the worker so acknowledgment latency stays bounded.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/docufy/payment-core/internal/common"
)

const (
	TaskFraudAlert     = "alert:fraud"
	TaskPaymentSettled = "notify:payment"
)

// FraudPayload describes a detected amount mismatch.
type FraudPayload struct {
	Gateway    string       `json:"gateway"`
	OrderID    string       `json:"orderId"`
	Expected   common.Money `json:"expected"`
	Reported   common.Money `json:"reported"`
	DetectedAt time.Time    `json:"detectedAt"`
}

// SettledPayload describes a successful settlement.
type SettledPayload struct {
	Gateway string       `json:"gateway"`
	OrderID string       `json:"orderId"`
	Amount  common.Money `json:"amount"`
	PaidAt  time.Time    `json:"paidAt"`
}

// Enqueuer submits alert tasks. It satisfies the webhook handlers' Alerter
// interface.
type Enqueuer struct {
	Client *asynq.Client
}

func (e Enqueuer) FraudDetected(ctx context.Context, gateway, orderID string, expected, reported common.Money) error {
	payload, err := json.Marshal(FraudPayload{
		Gateway:    gateway,
		OrderID:    orderID,
		Expected:   expected,
		Reported:   reported,
		DetectedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("alert: encode fraud payload: %w", err)
	}
	task := asynq.NewTask(TaskFraudAlert, payload, asynq.MaxRetry(5), asynq.Queue("critical"))
	_, err = e.Client.EnqueueContext(ctx, task)
	return err
}

func (e Enqueuer) PaymentSettled(ctx context.Context, gateway, orderID string, amount common.Money) error {
	payload, err := json.Marshal(SettledPayload{
		Gateway: gateway,
		OrderID: orderID,
		Amount:  amount,
		PaidAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("alert: encode settlement payload: %w", err)
	}
	task := asynq.NewTask(TaskPaymentSettled, payload, asynq.MaxRetry(3))
	_, err = e.Client.EnqueueContext(ctx, task)
	return err
}
