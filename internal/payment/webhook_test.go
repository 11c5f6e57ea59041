package payment_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/docufy/payment-core/internal/common"
	"github.com/docufy/payment-core/internal/order"
	"github.com/docufy/payment-core/internal/payment"
)

type stubStore struct {
	order       order.Order
	payments    []order.PaymentCapture
	frauds      []common.Money
	failures    int
	lookupCalls int
}

func (s *stubStore) GetByOrderID(_ context.Context, orderID string) (order.Order, error) {
	s.lookupCalls++
	if orderID != s.order.OrderID {
		return order.Order{}, order.ErrNotFound
	}
	return s.order, nil
}

func (s *stubStore) RecordPayment(_ context.Context, _ uuid.UUID, capture order.PaymentCapture) error {
	s.payments = append(s.payments, capture)
	s.order.Status = order.StatusPaid
	return nil
}

func (s *stubStore) MarkFraud(_ context.Context, _ uuid.UUID, reported common.Money) error {
	s.frauds = append(s.frauds, reported)
	s.order.Status = order.StatusFraudAttempt
	return nil
}

func (s *stubStore) RecordFailure(_ context.Context, _ uuid.UUID, _ time.Time) error {
	s.failures++
	s.order.Status = order.StatusFailed
	return nil
}

type stubLedger struct {
	seen map[string]bool
	err  error
}

func (l *stubLedger) TryInsert(_ context.Context, eventID, _ string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.seen == nil {
		l.seen = map[string]bool{}
	}
	if l.seen[eventID] {
		return false, nil
	}
	l.seen[eventID] = true
	return true, nil
}

type stubAlerts struct {
	frauds      int
	settlements int
}

func (a *stubAlerts) FraudDetected(context.Context, string, string, common.Money, common.Money) error {
	a.frauds++
	return nil
}

func (a *stubAlerts) PaymentSettled(context.Context, string, string, common.Money) error {
	a.settlements++
	return nil
}

func pendingOrder(expected common.Money) order.Order {
	return order.Order{
		ID:             uuid.New(),
		OrderID:        "DOC-20260901-ABCD1234",
		Kind:           order.KindDocument,
		Status:         order.StatusPending,
		ExpectedAmount: expected,
		Currency:       "EUR",
		PaymentMethod:  order.MethodIPC,
	}
}

func signedCallback(t *testing.T, signer *payment.Signer, pairs [][2]string) string {
	t.Helper()
	fields := payment.SignedFields{}
	for _, p := range pairs {
		fields = fields.Append(p[0], p[1])
	}
	sig, err := signer.Sign(fields)
	if err != nil {
		t.Fatalf("sign callback: %v", err)
	}
	return fields.Append("Signature", sig).EncodeForm()
}

func postIPC(h payment.IPCWebhook, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment/ipc", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestIPCWebhookMatchingAmountSettles(t *testing.T) {
	signer, verifier := newTestSigner(t)
	store := &stubStore{order: pendingOrder(3000)}
	alerts := &stubAlerts{}
	h := payment.IPCWebhook{
		Verifier:  payment.IPC{Verifier: verifier},
		Store:     store,
		Tolerance: func(string) common.Money { return 1 },
		Alerts:    alerts,
		Logger:    zerolog.Nop(),
	}

	body := signedCallback(t, signer, [][2]string{
		{"IPCmethod", "IPCPurchaseNotify"},
		{"OrderID", "DOC-20260901-ABCD1234"},
		{"Amount", "3000"},
		{"Currency", "EUR"},
		{"Status", "0"},
		{"IPC_Trnref", "TRN-778899"},
	})
	rec := postIPC(h, body)

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("ack: got %d %q, want 200 OK", rec.Code, rec.Body.String())
	}
	if len(store.payments) != 1 {
		t.Fatalf("got %d payments, want 1", len(store.payments))
	}
	if store.payments[0].Amount != 3000 || store.payments[0].TransactionRef != "TRN-778899" {
		t.Fatalf("unexpected capture: %+v", store.payments[0])
	}
	if store.order.Status != order.StatusPaid {
		t.Fatalf("order status %q, want paid", store.order.Status)
	}
	if alerts.settlements != 1 {
		t.Fatalf("got %d settlement alerts, want 1", alerts.settlements)
	}
}

func TestIPCWebhookAmountMismatchFlagsFraudButAcksOK(t *testing.T) {
	signer, verifier := newTestSigner(t)
	store := &stubStore{order: pendingOrder(3000)}
	alerts := &stubAlerts{}
	h := payment.IPCWebhook{
		Verifier:  payment.IPC{Verifier: verifier},
		Store:     store,
		Tolerance: func(string) common.Money { return 1 },
		Alerts:    alerts,
		Logger:    zerolog.Nop(),
	}

	body := signedCallback(t, signer, [][2]string{
		{"OrderID", "DOC-20260901-ABCD1234"},
		{"Amount", "2950"},
		{"Status", "0"},
	})
	rec := postIPC(h, body)

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("fraud outcome must still ack OK, got %d %q", rec.Code, rec.Body.String())
	}
	if store.order.Status != order.StatusFraudAttempt {
		t.Fatalf("order status %q, want fraud_attempt", store.order.Status)
	}
	if len(store.frauds) != 1 || store.frauds[0] != 2950 {
		t.Fatalf("reported amount not recorded: %+v", store.frauds)
	}
	if len(store.payments) != 0 {
		t.Fatal("payment recorded despite mismatch")
	}
	if alerts.frauds != 1 {
		t.Fatalf("got %d fraud alerts, want 1", alerts.frauds)
	}
}

func TestIPCWebhookInvalidSignatureAcksOKWithoutStateChange(t *testing.T) {
	_, verifier := newTestSigner(t)
	otherSigner, _ := newTestSigner(t)
	store := &stubStore{order: pendingOrder(3000)}
	h := payment.IPCWebhook{
		Verifier:  payment.IPC{Verifier: verifier},
		Store:     store,
		Tolerance: func(string) common.Money { return 1 },
		Logger:    zerolog.Nop(),
	}

	body := signedCallback(t, otherSigner, [][2]string{
		{"OrderID", "DOC-20260901-ABCD1234"},
		{"Amount", "3000"},
		{"Status", "0"},
	})
	rec := postIPC(h, body)

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("bad signature must still ack OK, got %d %q", rec.Code, rec.Body.String())
	}
	if store.order.Status != order.StatusPending || len(store.payments) != 0 {
		t.Fatal("state changed despite invalid signature")
	}
}

func TestIPCWebhookUnknownOrderAcksOK(t *testing.T) {
	signer, verifier := newTestSigner(t)
	store := &stubStore{order: pendingOrder(3000)}
	h := payment.IPCWebhook{
		Verifier:  payment.IPC{Verifier: verifier},
		Store:     store,
		Tolerance: func(string) common.Money { return 1 },
		Logger:    zerolog.Nop(),
	}

	body := signedCallback(t, signer, [][2]string{
		{"OrderID", "DOC-20260901-ZZZZ9999"},
		{"Amount", "3000"},
		{"Status", "0"},
	})
	rec := postIPC(h, body)

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("unknown order must still ack OK, got %d", rec.Code)
	}
	if len(store.payments) != 0 || len(store.frauds) != 0 {
		t.Fatal("state changed for unknown order")
	}
}

func TestIPCWebhookFailureStatusRecordsFailure(t *testing.T) {
	signer, verifier := newTestSigner(t)
	store := &stubStore{order: pendingOrder(3000)}
	h := payment.IPCWebhook{
		Verifier:  payment.IPC{Verifier: verifier},
		Store:     store,
		Tolerance: func(string) common.Money { return 1 },
		Logger:    zerolog.Nop(),
	}

	body := signedCallback(t, signer, [][2]string{
		{"OrderID", "DOC-20260901-ABCD1234"},
		{"Amount", "3000"},
		{"Status", "4"},
	})
	rec := postIPC(h, body)

	if rec.Code != http.StatusOK {
		t.Fatalf("ack code %d, want 200", rec.Code)
	}
	if store.failures != 1 || store.order.Status != order.StatusFailed {
		t.Fatalf("failure not recorded: failures=%d status=%q", store.failures, store.order.Status)
	}
}

type stubGateway struct {
	stripe  payment.Stripe
	session payment.CheckoutSession
}

func (g stubGateway) ConstructEvent(rawBody []byte, sigHeader string, now time.Time) (payment.Event, error) {
	return g.stripe.ConstructEvent(rawBody, sigHeader, now)
}

func (g stubGateway) RetrieveSession(context.Context, string) (payment.CheckoutSession, error) {
	return g.session, nil
}

func stripeEventBody(t *testing.T, eventID string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":   eventID,
		"type": "checkout.session.completed",
		"data": map[string]any{"object": map[string]any{"id": "cs_1"}},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func postStripe(h payment.StripeWebhook, body []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment/stripe", strings.NewReader(string(body)))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func newStripeWebhook(store *stubStore, ledger *stubLedger, alerts *stubAlerts, session payment.CheckoutSession) (payment.StripeWebhook, payment.Stripe) {
	stripe := payment.Stripe{WebhookSecret: "whsec_test", SigTolerance: 5 * time.Minute}
	h := payment.StripeWebhook{
		Gateway:   stubGateway{stripe: stripe, session: session},
		Store:     store,
		Ledger:    ledger,
		Tolerance: func(string) common.Money { return 1 },
		Alerts:    alerts,
		Logger:    zerolog.Nop(),
	}
	return h, stripe
}

func paidSession(amount common.Money) payment.CheckoutSession {
	return payment.CheckoutSession{
		ID:            "cs_1",
		PaymentStatus: "paid",
		AmountTotal:   amount,
		Currency:      "eur",
		Metadata:      map[string]string{"order_id": "DOC-20260901-ABCD1234", "order_kind": "document"},
		PaymentIntent: payment.PaymentIntentRef{
			ID:           "pi_1",
			LatestCharge: payment.ChargeRef{ID: "ch_1", ReceiptURL: "https://receipts.example/ch_1"},
		},
	}
}

func TestStripeWebhookSettlesOrder(t *testing.T) {
	store := &stubStore{order: pendingOrder(3000)}
	h, stripe := newStripeWebhook(store, &stubLedger{}, &stubAlerts{}, paidSession(3000))

	body := stripeEventBody(t, "evt_1")
	rec := postStripe(h, body, stripe.SignPayload(body, time.Now()))

	if rec.Code != http.StatusOK {
		t.Fatalf("ack code %d, want 200", rec.Code)
	}
	if len(store.payments) != 1 {
		t.Fatalf("got %d payments, want 1", len(store.payments))
	}
	capture := store.payments[0]
	if capture.TransactionRef != "pi_1" || capture.CheckoutSessionID != "cs_1" || capture.ReceiptURL == "" {
		t.Fatalf("gateway references not captured: %+v", capture)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	store := &stubStore{order: pendingOrder(3000)}
	h, _ := newStripeWebhook(store, &stubLedger{}, &stubAlerts{}, paidSession(3000))

	body := stripeEventBody(t, "evt_1")
	rec := postStripe(h, body, "t=123,v1=deadbeef")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ack code %d, want 400", rec.Code)
	}
	if len(store.payments) != 0 {
		t.Fatal("state changed despite invalid signature")
	}
}

func TestStripeWebhookDuplicateEventIsNoOp(t *testing.T) {
	store := &stubStore{order: pendingOrder(3000)}
	ledger := &stubLedger{}
	h, stripe := newStripeWebhook(store, ledger, &stubAlerts{}, paidSession(3000))

	body := stripeEventBody(t, "evt_dup")
	header := stripe.SignPayload(body, time.Now())

	first := postStripe(h, body, header)
	second := postStripe(h, body, header)

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("both deliveries must ack success: %d, %d", first.Code, second.Code)
	}
	if len(store.payments) != 1 {
		t.Fatalf("got %d payments after duplicate delivery, want 1", len(store.payments))
	}
	if store.order.Status != order.StatusPaid {
		t.Fatalf("order status %q, want paid", store.order.Status)
	}
}

func TestStripeWebhookLedgerErrorReturns500(t *testing.T) {
	store := &stubStore{order: pendingOrder(3000)}
	h, stripe := newStripeWebhook(store, &stubLedger{err: io.ErrUnexpectedEOF}, &stubAlerts{}, paidSession(3000))

	body := stripeEventBody(t, "evt_1")
	rec := postStripe(h, body, stripe.SignPayload(body, time.Now()))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("ack code %d, want 500 so the provider retries", rec.Code)
	}
	if len(store.payments) != 0 {
		t.Fatal("state changed despite ledger failure")
	}
}

func TestStripeWebhookAmountMismatchFlagsFraud(t *testing.T) {
	store := &stubStore{order: pendingOrder(3000)}
	alerts := &stubAlerts{}
	h, stripe := newStripeWebhook(store, &stubLedger{}, alerts, paidSession(2950))

	body := stripeEventBody(t, "evt_1")
	rec := postStripe(h, body, stripe.SignPayload(body, time.Now()))

	if rec.Code != http.StatusOK {
		t.Fatalf("fraud outcome still acks success, got %d", rec.Code)
	}
	if store.order.Status != order.StatusFraudAttempt {
		t.Fatalf("order status %q, want fraud_attempt", store.order.Status)
	}
	if alerts.frauds != 1 {
		t.Fatalf("got %d fraud alerts, want 1", alerts.frauds)
	}
}

func TestStripeWebhookWithinToleranceSettles(t *testing.T) {
	store := &stubStore{order: pendingOrder(3000)}
	h, stripe := newStripeWebhook(store, &stubLedger{}, &stubAlerts{}, paidSession(2999))

	body := stripeEventBody(t, "evt_1")
	rec := postStripe(h, body, stripe.SignPayload(body, time.Now()))

	if rec.Code != http.StatusOK {
		t.Fatalf("ack code %d, want 200", rec.Code)
	}
	if store.order.Status != order.StatusPaid {
		t.Fatalf("order status %q, want paid (within tolerance)", store.order.Status)
	}
}
