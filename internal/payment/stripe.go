package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/docufy/payment-core/internal/common"
	"github.com/docufy/payment-core/internal/obs"
	"github.com/docufy/payment-core/internal/resilience"
)

// ErrInvalidSignature reports a webhook signature that does not match the
// shared secret. Unlike the legacy gateway this provider retries on
// non-success acks, so rejecting the delivery is safe.
var ErrInvalidSignature = errors.New("payment: webhook signature verification failed")

// CheckoutParams describe the hosted checkout session to create.
type CheckoutParams struct {
	OrderID       string
	OrderKind     string
	Amount        common.Money
	Currency      string
	ProductName   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// PaymentIntentRef is the session's payment intent. On the wire it is either
// a bare id string or, when expanded, a full object.
type PaymentIntentRef struct {
	ID           string
	Status       string
	LatestCharge ChargeRef
}

func (p *PaymentIntentRef) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &p.ID)
	}
	var obj struct {
		ID           string    `json:"id"`
		Status       string    `json:"status"`
		LatestCharge ChargeRef `json:"latest_charge"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.ID = obj.ID
	p.Status = obj.Status
	p.LatestCharge = obj.LatestCharge
	return nil
}

// ChargeRef is a charge id or expanded charge object.
type ChargeRef struct {
	ID         string
	ReceiptURL string
}

func (c *ChargeRef) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &c.ID)
	}
	var obj struct {
		ID         string `json:"id"`
		ReceiptURL string `json:"receipt_url"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	c.ID = obj.ID
	c.ReceiptURL = obj.ReceiptURL
	return nil
}

// CheckoutSession mirrors the provider's session resource.
type CheckoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	ClientSecret  string            `json:"client_secret"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   common.Money      `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
	PaymentIntent PaymentIntentRef  `json:"payment_intent"`
}

// Event is a verified webhook delivery.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Stripe implements the modern checkout-session gateway over its form-encoded
// REST API. No provider SDK is used; the surface this service needs is three
// calls and a signature check.
type Stripe struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	SigTolerance  time.Duration
	HTTP          resilience.HTTPClient
}

// CreateCheckoutSession opens a hosted checkout session. The order's business
// id and kind travel in session metadata so the webhook flow can locate the
// aggregate without trusting any client-supplied value.
func (s Stripe) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (CheckoutSession, error) {
	if strings.TrimSpace(params.OrderID) == "" {
		return CheckoutSession{}, errors.New("payment: order id is required")
	}
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", params.OrderID)
	form.Set("metadata[order_id]", params.OrderID)
	form.Set("metadata[order_kind]", params.OrderKind)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(params.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.Amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", params.ProductName)
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	if params.CustomerEmail != "" {
		form.Set("customer_email", params.CustomerEmail)
	}

	var session CheckoutSession
	if err := s.call(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		obs.GatewayCallTotal.WithLabelValues("stripe", "create_session", "error").Inc()
		return CheckoutSession{}, err
	}
	obs.GatewayCallTotal.WithLabelValues("stripe", "create_session", "ok").Inc()
	return session, nil
}

// RetrieveSession fetches a session with its payment intent and charge
// expanded, so the webhook flow can record the transaction id and receipt.
func (s Stripe) RetrieveSession(ctx context.Context, sessionID string) (CheckoutSession, error) {
	form := url.Values{}
	form.Add("expand[]", "payment_intent")
	form.Add("expand[]", "payment_intent.latest_charge")

	var session CheckoutSession
	path := "/v1/checkout/sessions/" + url.PathEscape(sessionID) + "?" + form.Encode()
	if err := s.call(ctx, http.MethodGet, path, nil, &session); err != nil {
		obs.GatewayCallTotal.WithLabelValues("stripe", "retrieve_session", "error").Inc()
		return CheckoutSession{}, err
	}
	obs.GatewayCallTotal.WithLabelValues("stripe", "retrieve_session", "ok").Inc()
	return session, nil
}

// ConstructEvent verifies the signature header against the raw, unparsed body
// and only then decodes the event. The header carries a unix timestamp and an
// HMAC-SHA256 of "<timestamp>.<body>"; deliveries outside the tolerance
// window are rejected to bound replay of captured payloads.
func (s Stripe) ConstructEvent(rawBody []byte, sigHeader string, now time.Time) (Event, error) {
	timestamp, signatures := parseSignatureHeader(sigHeader)
	if timestamp == 0 || len(signatures) == 0 {
		return Event{}, ErrInvalidSignature
	}
	tolerance := s.SigTolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	eventTime := time.Unix(timestamp, 0)
	if now.Sub(eventTime) > tolerance || eventTime.Sub(now) > tolerance {
		return Event{}, ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(s.WebhookSecret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			matched = true
		}
	}
	if !matched {
		return Event{}, ErrInvalidSignature
	}

	var event Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return Event{}, fmt.Errorf("payment: decode event: %w", err)
	}
	return event, nil
}

// SignPayload produces the signature header for a body. Exported for tests
// that exercise the webhook path end to end.
func (s Stripe) SignPayload(rawBody []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(s.WebhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) (int64, []string) {
	var (
		timestamp  int64
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err == nil {
				timestamp = ts
			}
		case "v1":
			signatures = append(signatures, value)
		}
	}
	return timestamp, signatures
}

func (s Stripe) call(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(s.BaseURL, "/")+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("payment: stripe %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("payment: read stripe response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("payment: stripe HTTP %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("payment: stripe HTTP %d", resp.StatusCode)
	}
	return json.Unmarshal(payload, out)
}
