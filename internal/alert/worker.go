package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/docufy/payment-core/internal/common"
)

// Worker consumes alert tasks. Email delivery stays behind the EmailSender
// interface; compliance review gets the structured log line either way.
type Worker struct {
	Email      common.EmailSender
	AlertEmail string
	Logger     zerolog.Logger
}

// Register attaches the handlers to an asynq mux.
func (w Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskFraudAlert, w.handleFraud)
	mux.HandleFunc(TaskPaymentSettled, w.handleSettled)
}

func (w Worker) handleFraud(ctx context.Context, task *asynq.Task) error {
	var p FraudPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("alert: decode fraud payload: %w", err)
	}
	w.Logger.Warn().
		Str("gateway", p.Gateway).
		Str("order_id", p.OrderID).
		Int64("expected", p.Expected).
		Int64("reported", p.Reported).
		Time("detected_at", p.DetectedAt).
		Msg("fraud attempt detected")

	if w.Email == nil || w.AlertEmail == "" {
		return nil
	}
	subject := fmt.Sprintf("Fraud attempt on order %s", p.OrderID)
	body := fmt.Sprintf(
		"<p>Order <b>%s</b> (%s gateway) reported %s but %s was expected.</p>",
		p.OrderID, p.Gateway, common.FormatMinor(p.Reported), common.FormatMinor(p.Expected))
	return w.Email.Send(w.AlertEmail, subject, body)
}

func (w Worker) handleSettled(ctx context.Context, task *asynq.Task) error {
	var p SettledPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("alert: decode settlement payload: %w", err)
	}
	w.Logger.Info().
		Str("gateway", p.Gateway).
		Str("order_id", p.OrderID).
		Int64("amount", p.Amount).
		Msg("payment settled")
	return nil
}
