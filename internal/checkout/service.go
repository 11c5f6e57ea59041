// Package checkout orchestrates order intake: catalog validation, aggregate
// creation with an immutable expected amount, and the gateway-specific
// payment artifact handed back to the client.
package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/docufy/payment-core/internal/catalog"
	"github.com/docufy/payment-core/internal/common"
	"github.com/docufy/payment-core/internal/obs"
	"github.com/docufy/payment-core/internal/order"
	"github.com/docufy/payment-core/internal/payment"
	"github.com/docufy/payment-core/internal/pricing"
)

// OrderStore is the repository surface checkout writes through.
type OrderStore interface {
	Create(ctx context.Context, o *order.Order) error
	AttachPaymentData(ctx context.Context, id uuid.UUID, data order.PaymentData) error
}

func nowUTC() time.Time { return time.Now().UTC() }

// PurchaseBuilder builds a signed legacy purchase request.
type PurchaseBuilder interface {
	BuildPurchase(req payment.PurchaseRequest) (payment.SignedFields, error)
}

// SessionCreator opens a modern hosted checkout session.
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, params payment.CheckoutParams) (payment.CheckoutSession, error)
}

// Customer identifies the buyer on an order.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// DocumentOrderInput is a validated document order submission.
type DocumentOrderInput struct {
	Items         []catalog.SubmittedItem
	Customer      Customer
	PaymentMethod order.PaymentMethod
	Note          string
}

// TrademarkOrderInput is a validated trademark filing submission.
type TrademarkOrderInput struct {
	MarkName           string
	NiceClassCount     int
	PriorityClaimCount int
	Collective         bool
	Customer           Customer
	PaymentMethod      order.PaymentMethod
}

// PaymentArtifact is what the client needs to complete payment. Exactly one
// of the gateway-specific parts is set.
type PaymentArtifact struct {
	GatewayURL   string          `json:"gatewayUrl,omitempty"`
	Fields       []payment.Field `json:"fields,omitempty"`
	CheckoutURL  string          `json:"checkoutUrl,omitempty"`
	ClientSecret string          `json:"clientSecret,omitempty"`
	SessionID    string          `json:"sessionId,omitempty"`
}

// CreateResult is the outcome of a successful order creation.
type CreateResult struct {
	Order    order.Order
	Artifact PaymentArtifact
}

// Service wires the validation, persistence and gateway steps together.
type Service struct {
	Catalog     *catalog.Catalog
	Fees        pricing.Schedule
	Orders      OrderStore
	IPC         PurchaseBuilder
	IPCBaseURL  string
	Stripe      SessionCreator
	PublicBase  string
	VATRateBps  int
	Tolerance   func(currency string) common.Money
	Logger      zerolog.Logger
	ProductName string
}

// CreateDocumentOrder validates the submitted items against the server-side
// catalog, persists the aggregate with a fixed expected amount and opens the
// payment leg. Validation failures reject the whole order with the complete
// mismatch list; nothing is persisted on rejection.
func (s *Service) CreateDocumentOrder(ctx context.Context, in DocumentOrderInput) (CreateResult, error) {
	tolerance := common.Money(0)
	if s.Tolerance != nil {
		tolerance = s.Tolerance(s.Catalog.Currency())
	}
	res := s.Catalog.Validate(in.Items, s.VATRateBps, tolerance)
	if !res.Valid {
		return CreateResult{}, common.ValidationError("order validation failed", res.Errors)
	}

	items, err := json.Marshal(res.Items)
	if err != nil {
		return CreateResult{}, fmt.Errorf("checkout: encode items: %w", err)
	}
	customer, err := json.Marshal(in.Customer)
	if err != nil {
		return CreateResult{}, fmt.Errorf("checkout: encode customer: %w", err)
	}

	o := order.Order{
		OrderID:        order.NewOrderID(order.KindDocument, nowUTC()),
		Kind:           order.KindDocument,
		Status:         order.StatusPending,
		Items:          items,
		Customer:       customer,
		Subtotal:       res.ExpectedAmount,
		VAT:            res.ExpectedVAT,
		Total:          res.ExpectedTotal,
		ExpectedAmount: res.ExpectedTotal,
		Currency:       s.Catalog.Currency(),
		PaymentMethod:  in.PaymentMethod,
	}
	if err := s.Orders.Create(ctx, &o); err != nil {
		return CreateResult{}, fmt.Errorf("checkout: persist order: %w", err)
	}

	artifact, err := s.openPayment(ctx, &o, in.Customer, in.Note)
	if err != nil {
		return CreateResult{}, err
	}
	s.Logger.Info().
		Str("order_id", o.OrderID).
		Str("kind", string(o.Kind)).
		Str("method", string(o.PaymentMethod)).
		Int64("expected_amount", o.ExpectedAmount).
		Msg("order created")
	return CreateResult{Order: o, Artifact: artifact}, nil
}

// CreateTrademarkOrder prices a trademark filing from the fee schedule and
// persists the aggregate with the quote frozen in. The quote, not any client
// figure, is the sole basis for the expected amount.
func (s *Service) CreateTrademarkOrder(ctx context.Context, in TrademarkOrderInput) (CreateResult, error) {
	quote := s.Fees.Price(in.NiceClassCount, in.PriorityClaimCount, in.Collective)

	items, err := json.Marshal([]map[string]any{{
		"type":               "trademark_filing",
		"markName":           in.MarkName,
		"niceClassCount":     quote.NiceClassCount,
		"priorityClaimCount": quote.PriorityClaimCount,
		"collective":         quote.Collective,
	}})
	if err != nil {
		return CreateResult{}, fmt.Errorf("checkout: encode items: %w", err)
	}
	customer, err := json.Marshal(in.Customer)
	if err != nil {
		return CreateResult{}, fmt.Errorf("checkout: encode customer: %w", err)
	}

	o := order.Order{
		OrderID:        order.NewOrderID(order.KindTrademark, nowUTC()),
		Kind:           order.KindTrademark,
		Status:         order.StatusPending,
		Items:          items,
		Customer:       customer,
		Subtotal:       quote.Subtotal,
		VAT:            quote.VAT,
		Total:          quote.Total,
		ExpectedAmount: quote.Total,
		Currency:       s.Catalog.Currency(),
		PaymentMethod:  in.PaymentMethod,
		Pricing:        &quote,
	}
	if err := s.Orders.Create(ctx, &o); err != nil {
		return CreateResult{}, fmt.Errorf("checkout: persist order: %w", err)
	}

	artifact, err := s.openPayment(ctx, &o, in.Customer, "trademark filing "+in.MarkName)
	if err != nil {
		return CreateResult{}, err
	}
	s.Logger.Info().
		Str("order_id", o.OrderID).
		Str("kind", string(o.Kind)).
		Str("method", string(o.PaymentMethod)).
		Int64("expected_amount", o.ExpectedAmount).
		Msg("order created")
	return CreateResult{Order: o, Artifact: artifact}, nil
}

// openPayment builds the gateway-specific artifact. The two gateways are
// deliberately handled as concrete branches rather than behind a shared
// abstraction; their request shapes have nothing useful in common.
func (s *Service) openPayment(ctx context.Context, o *order.Order, cust Customer, note string) (PaymentArtifact, error) {
	switch o.PaymentMethod {
	case order.MethodIPC:
		fields, err := s.IPC.BuildPurchase(payment.PurchaseRequest{
			OrderID:       o.OrderID,
			Amount:        o.ExpectedAmount,
			Currency:      o.Currency,
			CustomerEmail: cust.Email,
			CustomerPhone: cust.Phone,
			Note:          note,
		})
		if err != nil {
			obs.PaymentIntentTotal.WithLabelValues("ipc", "error").Inc()
			return PaymentArtifact{}, fmt.Errorf("checkout: build purchase request: %w", err)
		}
		obs.PaymentIntentTotal.WithLabelValues("ipc", "ok").Inc()
		return PaymentArtifact{GatewayURL: s.IPCBaseURL, Fields: fields}, nil

	case order.MethodStripe:
		name := s.ProductName
		if name == "" {
			name = "Order " + o.OrderID
		}
		session, err := s.Stripe.CreateCheckoutSession(ctx, payment.CheckoutParams{
			OrderID:       o.OrderID,
			OrderKind:     string(o.Kind),
			Amount:        o.ExpectedAmount,
			Currency:      o.Currency,
			ProductName:   name,
			CustomerEmail: cust.Email,
			SuccessURL:    s.PublicBase + "/payment/success?order=" + o.OrderID,
			CancelURL:     s.PublicBase + "/payment/cancel?order=" + o.OrderID,
		})
		if err != nil {
			obs.PaymentIntentTotal.WithLabelValues("stripe", "error").Inc()
			return PaymentArtifact{}, fmt.Errorf("checkout: create checkout session: %w", err)
		}
		if err := s.Orders.AttachPaymentData(ctx, o.ID, order.PaymentData{CheckoutSessionID: session.ID}); err != nil {
			s.Logger.Error().Err(err).Str("order_id", o.OrderID).Msg("attach session id failed")
		}
		o.PaymentData.CheckoutSessionID = session.ID
		obs.PaymentIntentTotal.WithLabelValues("stripe", "ok").Inc()
		return PaymentArtifact{
			CheckoutURL:  session.URL,
			ClientSecret: session.ClientSecret,
			SessionID:    session.ID,
		}, nil

	default:
		return PaymentArtifact{}, common.NewAppError("BAD_REQUEST",
			fmt.Sprintf("unsupported payment method %q", o.PaymentMethod), 400, nil)
	}
}
