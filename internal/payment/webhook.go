package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/docufy/payment-core/internal/common"
	"github.com/docufy/payment-core/internal/obs"
	"github.com/docufy/payment-core/internal/order"
)

// OrderStore is the slice of the order repository the webhook flows need.
type OrderStore interface {
	GetByOrderID(ctx context.Context, orderID string) (order.Order, error)
	RecordPayment(ctx context.Context, id uuid.UUID, capture order.PaymentCapture) error
	MarkFraud(ctx context.Context, id uuid.UUID, reportedAmount common.Money) error
	RecordFailure(ctx context.Context, id uuid.UUID, failedAt time.Time) error
}

// EventLedger is the durable webhook dedup store.
type EventLedger interface {
	TryInsert(ctx context.Context, eventID, eventType string) (bool, error)
}

// Alerter dispatches internal alerts. Failures to enqueue never influence
// webhook acknowledgments.
type Alerter interface {
	FraudDetected(ctx context.Context, gateway, orderID string, expected, reported common.Money) error
	PaymentSettled(ctx context.Context, gateway, orderID string, amount common.Money) error
}

// CallbackVerifier verifies a legacy callback's wire-order signature.
type CallbackVerifier interface {
	VerifyCallback(fields SignedFields) bool
}

// IPCWebhook processes legacy bank-gateway notifications. The HTTP response
// is always the literal "OK": any non-success ack triggers an automatic
// reversal on the remote side, so the acknowledgment and the business
// outcome are decided independently.
type IPCWebhook struct {
	Verifier  CallbackVerifier
	Store     OrderStore
	Tolerance func(currency string) common.Money
	Alerts    Alerter
	Logger    zerolog.Logger
	Now       func() time.Time
}

func (h IPCWebhook) Handle(w http.ResponseWriter, r *http.Request) {
	defer common.Text(w, http.StatusOK, "OK")
	ctx := r.Context()
	log := h.Logger.With().Str("gateway", "ipc").Logger()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error().Err(err).Msg("webhook body read failed")
		obs.PaymentWebhookTotal.WithLabelValues("ipc", "malformed").Inc()
		return
	}
	fields, err := ParseWireForm(string(body))
	if err != nil || len(fields) == 0 {
		log.Warn().Err(err).Msg("webhook body not parseable")
		obs.PaymentWebhookTotal.WithLabelValues("ipc", "malformed").Inc()
		return
	}
	if h.Verifier == nil || !h.Verifier.VerifyCallback(fields) {
		log.Warn().Str("order_id", fields.Get("OrderID")).Msg("webhook signature invalid")
		obs.PaymentWebhookTotal.WithLabelValues("ipc", "bad_signature").Inc()
		return
	}

	orderID := fields.Get("OrderID")
	o, err := h.Store.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			log.Warn().Str("order_id", orderID).Msg("webhook for unknown order")
			obs.PaymentWebhookTotal.WithLabelValues("ipc", "unknown_order").Inc()
			return
		}
		log.Error().Err(err).Str("order_id", orderID).Msg("order lookup failed")
		obs.PaymentWebhookTotal.WithLabelValues("ipc", "error").Inc()
		return
	}
	if o.Status != order.StatusPending {
		log.Info().Str("order_id", orderID).Str("status", string(o.Status)).
			Msg("webhook for already settled order ignored")
		obs.WebhookDuplicateTotal.WithLabelValues("ipc").Inc()
		return
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	if code := fields.Get("Status"); code != IPCStatusSuccess {
		if err := h.Store.RecordFailure(ctx, o.ID, now()); err != nil {
			log.Error().Err(err).Str("order_id", orderID).Msg("record failure failed")
			obs.PaymentWebhookTotal.WithLabelValues("ipc", "error").Inc()
			return
		}
		log.Info().Str("order_id", orderID).Str("gateway_status", code).Msg("payment failed")
		obs.PaymentWebhookTotal.WithLabelValues("ipc", "failed").Inc()
		return
	}

	reported := parseWireAmount(fields.Get("Amount"))
	tolerance := common.Money(0)
	if h.Tolerance != nil {
		tolerance = h.Tolerance(o.Currency)
	}
	if common.AbsDiff(reported, o.ExpectedAmount) > tolerance {
		if err := h.Store.MarkFraud(ctx, o.ID, reported); err != nil {
			log.Error().Err(err).Str("order_id", orderID).Msg("mark fraud failed")
			obs.PaymentWebhookTotal.WithLabelValues("ipc", "error").Inc()
			return
		}
		log.Warn().Str("order_id", orderID).
			Int64("expected", o.ExpectedAmount).
			Int64("reported", reported).
			Msg("amount mismatch, order flagged")
		obs.FraudDetectedTotal.WithLabelValues("ipc").Inc()
		obs.PaymentWebhookTotal.WithLabelValues("ipc", "fraud").Inc()
		if h.Alerts != nil {
			if err := h.Alerts.FraudDetected(ctx, "ipc", orderID, o.ExpectedAmount, reported); err != nil {
				log.Error().Err(err).Msg("fraud alert enqueue failed")
			}
		}
		return
	}

	capture := order.PaymentCapture{
		Amount:         reported,
		PaidAt:         now(),
		TransactionRef: fields.Get("IPC_Trnref"),
	}
	if err := h.Store.RecordPayment(ctx, o.ID, capture); err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("record payment failed")
		obs.PaymentWebhookTotal.WithLabelValues("ipc", "error").Inc()
		return
	}
	log.Info().Str("order_id", orderID).Int64("amount", reported).Msg("payment settled")
	obs.PaymentWebhookTotal.WithLabelValues("ipc", "paid").Inc()
	if h.Alerts != nil {
		if err := h.Alerts.PaymentSettled(ctx, "ipc", orderID, reported); err != nil {
			log.Error().Err(err).Msg("settlement alert enqueue failed")
		}
	}
}

// SessionGateway is the modern provider surface the webhook flow consumes.
type SessionGateway interface {
	ConstructEvent(rawBody []byte, sigHeader string, now time.Time) (Event, error)
	RetrieveSession(ctx context.Context, sessionID string) (CheckoutSession, error)
}

// Relevant modern event types.
const (
	eventCheckoutCompleted    = "checkout.session.completed"
	eventAsyncPaymentSuccess  = "checkout.session.async_payment_succeeded"
	eventAsyncPaymentFailed   = "checkout.session.async_payment_failed"
	paymentStatusPaid         = "paid"
	paymentStatusNoneRequired = "no_payment_required"
)

// StripeWebhook processes modern gateway events. This provider retries on
// non-2xx acks, so signature failures are rejected outright and storage
// failures before the event is durably recorded return 5xx.
type StripeWebhook struct {
	Gateway   SessionGateway
	Store     OrderStore
	Ledger    EventLedger
	Tolerance func(currency string) common.Money
	Alerts    Alerter
	Logger    zerolog.Logger
	Now       func() time.Time
}

func (h StripeWebhook) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.Logger.With().Str("gateway", "stripe").Logger()

	// Raw bytes must be captured before any parsing; the signature covers
	// them exactly as delivered.
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		obs.PaymentWebhookTotal.WithLabelValues("stripe", "malformed").Inc()
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	event, err := h.Gateway.ConstructEvent(body, r.Header.Get("Stripe-Signature"), now())
	if err != nil {
		log.Warn().Err(err).Msg("webhook rejected")
		obs.PaymentWebhookTotal.WithLabelValues("stripe", "bad_signature").Inc()
		common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}

	fresh, err := h.Ledger.TryInsert(ctx, event.ID, event.Type)
	if err != nil {
		// Not durably recorded yet, so let the provider retry.
		log.Error().Err(err).Str("event_id", event.ID).Msg("event ledger write failed")
		obs.PaymentWebhookTotal.WithLabelValues("stripe", "error").Inc()
		common.JSONError(w, http.StatusInternalServerError, "LEDGER_ERROR", "event store unavailable", nil)
		return
	}
	if !fresh {
		log.Info().Str("event_id", event.ID).Msg("duplicate event ignored")
		obs.WebhookDuplicateTotal.WithLabelValues("stripe").Inc()
		obs.PaymentWebhookTotal.WithLabelValues("stripe", "duplicate").Inc()
		common.JSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	// From here on the event is durably recorded; every outcome acknowledges
	// success so the provider does not redeliver what we already own.
	h.process(ctx, log, event, now)
	common.JSON(w, http.StatusOK, map[string]any{"received": true})
}

func (h StripeWebhook) process(ctx context.Context, log zerolog.Logger, event Event, now func() time.Time) {
	switch event.Type {
	case eventCheckoutCompleted, eventAsyncPaymentSuccess, eventAsyncPaymentFailed:
	default:
		log.Debug().Str("event_type", event.Type).Msg("event type ignored")
		obs.PaymentWebhookTotal.WithLabelValues("stripe", "ignored").Inc()
		return
	}

	var payload CheckoutSession
	if err := json.Unmarshal(event.Data.Object, &payload); err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Msg("event payload decode failed")
		obs.PaymentWebhookTotal.WithLabelValues("stripe", "malformed").Inc()
		return
	}

	session, err := h.Gateway.RetrieveSession(ctx, payload.ID)
	if err != nil {
		log.Error().Err(err).Str("session_id", payload.ID).Msg("session retrieval failed")
		obs.PaymentWebhookTotal.WithLabelValues("stripe", "error").Inc()
		return
	}

	orderID := session.Metadata["order_id"]
	if orderID == "" {
		log.Warn().Str("session_id", session.ID).Msg("session carries no order id")
		obs.PaymentWebhookTotal.WithLabelValues("stripe", "unknown_order").Inc()
		return
	}
	o, err := h.Store.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			log.Warn().Str("order_id", orderID).Msg("webhook for unknown order")
			obs.PaymentWebhookTotal.WithLabelValues("stripe", "unknown_order").Inc()
			return
		}
		log.Error().Err(err).Str("order_id", orderID).Msg("order lookup failed")
		obs.PaymentWebhookTotal.WithLabelValues("stripe", "error").Inc()
		return
	}
	if o.Status != order.StatusPending {
		log.Info().Str("order_id", orderID).Str("status", string(o.Status)).
			Msg("order already settled, event ignored")
		obs.WebhookDuplicateTotal.WithLabelValues("stripe").Inc()
		return
	}

	if event.Type == eventAsyncPaymentFailed {
		if err := h.Store.RecordFailure(ctx, o.ID, now()); err != nil {
			log.Error().Err(err).Str("order_id", orderID).Msg("record failure failed")
			obs.PaymentWebhookTotal.WithLabelValues("stripe", "error").Inc()
			return
		}
		obs.PaymentWebhookTotal.WithLabelValues("stripe", "failed").Inc()
		return
	}
	if session.PaymentStatus != paymentStatusPaid && session.PaymentStatus != paymentStatusNoneRequired {
		log.Info().Str("order_id", orderID).Str("payment_status", session.PaymentStatus).
			Msg("session not yet paid, awaiting follow-up event")
		obs.PaymentWebhookTotal.WithLabelValues("stripe", "pending").Inc()
		return
	}

	reported := session.AmountTotal
	tolerance := common.Money(0)
	if h.Tolerance != nil {
		tolerance = h.Tolerance(o.Currency)
	}
	if common.AbsDiff(reported, o.ExpectedAmount) > tolerance {
		if err := h.Store.MarkFraud(ctx, o.ID, reported); err != nil {
			log.Error().Err(err).Str("order_id", orderID).Msg("mark fraud failed")
			obs.PaymentWebhookTotal.WithLabelValues("stripe", "error").Inc()
			return
		}
		log.Warn().Str("order_id", orderID).
			Int64("expected", o.ExpectedAmount).
			Int64("reported", reported).
			Msg("amount mismatch, order flagged")
		obs.FraudDetectedTotal.WithLabelValues("stripe").Inc()
		obs.PaymentWebhookTotal.WithLabelValues("stripe", "fraud").Inc()
		if h.Alerts != nil {
			if err := h.Alerts.FraudDetected(ctx, "stripe", orderID, o.ExpectedAmount, reported); err != nil {
				log.Error().Err(err).Msg("fraud alert enqueue failed")
			}
		}
		return
	}

	capture := order.PaymentCapture{
		Amount:            reported,
		PaidAt:            now(),
		TransactionRef:    session.PaymentIntent.ID,
		ReceiptURL:        session.PaymentIntent.LatestCharge.ReceiptURL,
		CheckoutSessionID: session.ID,
	}
	if err := h.Store.RecordPayment(ctx, o.ID, capture); err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("record payment failed")
		obs.PaymentWebhookTotal.WithLabelValues("stripe", "error").Inc()
		return
	}
	log.Info().Str("order_id", orderID).Int64("amount", reported).Msg("payment settled")
	obs.PaymentWebhookTotal.WithLabelValues("stripe", "paid").Inc()
	if h.Alerts != nil {
		if err := h.Alerts.PaymentSettled(ctx, "stripe", orderID, reported); err != nil {
			log.Error().Err(err).Msg("settlement alert enqueue failed")
		}
	}
}
