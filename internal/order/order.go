package order

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docufy/payment-core/internal/common"
	"github.com/docufy/payment-core/internal/pricing"
)

// Kind discriminates the two purchase aggregates.
type Kind string

const (
	KindDocument  Kind = "document"
	KindTrademark Kind = "trademark"
)

// PaymentMethod identifies the gateway a purchase settles through.
type PaymentMethod string

const (
	MethodIPC    PaymentMethod = "ipc"
	MethodStripe PaymentMethod = "stripe"
)

// PaymentData carries gateway references recorded after settlement.
type PaymentData struct {
	TransactionRef    string `json:"transactionRef,omitempty"`
	ReceiptURL        string `json:"receiptUrl,omitempty"`
	CheckoutSessionID string `json:"checkoutSessionId,omitempty"`
}

// Order is the authoritative purchase aggregate for both document orders and
// trademark filing orders. ExpectedAmount is fixed at creation and never
// recomputed from later inputs; it is the sole basis for fraud checks.
type Order struct {
	ID             uuid.UUID
	OrderID        string
	Kind           Kind
	Status         Status
	Items          json.RawMessage
	Customer       json.RawMessage
	Subtotal       common.Money
	VAT            common.Money
	Total          common.Money
	ExpectedAmount common.Money
	Currency       string
	PaymentMethod  PaymentMethod
	PaymentData    PaymentData
	Pricing        *pricing.Quote
	PaidAmount     *common.Money
	ReportedAmount *common.Money
	PaidAt         *time.Time
	FailedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PaymentCapture records the verified facts of a settlement.
type PaymentCapture struct {
	Amount            common.Money
	PaidAt            time.Time
	TransactionRef    string
	ReceiptURL        string
	CheckoutSessionID string
}

// NewOrderID derives a human-readable business identifier. Uniqueness comes
// from the uuid-sourced suffix; the prefix and date keep it readable in
// support conversations.
func NewOrderID(kind Kind, now time.Time) string {
	prefix := "DOC"
	if kind == KindTrademark {
		prefix = "TM"
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%s-%s-%s", prefix, now.UTC().Format("20060102"), suffix)
}
