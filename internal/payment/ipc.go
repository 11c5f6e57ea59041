package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/docufy/payment-core/internal/common"
	"github.com/docufy/payment-core/internal/obs"
	"github.com/docufy/payment-core/internal/resilience"
)

// Legacy protocol method names.
const (
	ipcMethodPurchase  = "IPCPurchase"
	ipcMethodTxnStatus = "IPCGetTxnStatus"
	ipcMethodRefund    = "IPCRefund"
)

// IPCStatusSuccess is the gateway's success status code.
const IPCStatusSuccess = "0"

// PurchaseRequest carries the order facts needed to open a legacy payment.
type PurchaseRequest struct {
	OrderID       string
	Amount        common.Money
	Currency      string
	CustomerEmail string
	CustomerPhone string
	Note          string
}

// TxnStatus is the gateway's view of a transaction.
type TxnStatus struct {
	OrderID    string
	StatusCode string
	Amount     common.Money
	Currency   string
	TrnRef     string
}

// IPC talks the bank gateway's signed request/response protocol. Every
// outbound call goes through the resilient HTTP client; inbound callbacks are
// verified but acknowledged out of band by the webhook handler.
type IPC struct {
	BaseURL         string
	MerchantSID     string
	WalletNumber    string
	KeyIndex        string
	Version         string
	CallbackBaseURL string
	Signer          *Signer
	Verifier        *Verifier
	HTTP            resilience.HTTPClient
	Logger          zerolog.Logger
}

// BuildPurchase assembles the signed purchase request. The field sequence is
// fixed per the protocol documentation; reordering breaks the counterpart's
// verification.
func (p IPC) BuildPurchase(req PurchaseRequest) (SignedFields, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, errors.New("payment: order id is required")
	}
	base := strings.TrimRight(p.CallbackBaseURL, "/")
	fields := SignedFields{}.
		Append("IPCmethod", ipcMethodPurchase).
		Append("IPCVersion", p.Version).
		Append("KeyIndex", p.KeyIndex).
		Append("SID", p.MerchantSID).
		Append("WalletNumber", p.WalletNumber).
		Append("Amount", strconv.FormatInt(req.Amount, 10)).
		Append("Currency", req.Currency).
		Append("OrderID", req.OrderID).
		Append("URL_OK", base+"/payment/success").
		Append("URL_Cancel", base+"/payment/cancel").
		Append("URL_Notify", base+"/webhooks/payment/ipc").
		Append("CustomerEmail", req.CustomerEmail).
		Append("CustomerPhone", req.CustomerPhone).
		Append("Note", req.Note)
	return p.sign(fields)
}

// VerifyCallback strips the trailing signature and verifies the remaining
// fields in the order they arrived on the wire.
func (p IPC) VerifyCallback(fields SignedFields) bool {
	if p.Verifier == nil {
		return false
	}
	sig := fields.Get("Signature")
	if sig == "" {
		return false
	}
	return p.Verifier.Verify(fields.Without("Signature"), sig)
}

// GetStatus asks the gateway for the current state of a transaction.
func (p IPC) GetStatus(ctx context.Context, orderID string) (TxnStatus, error) {
	fields := SignedFields{}.
		Append("IPCmethod", ipcMethodTxnStatus).
		Append("IPCVersion", p.Version).
		Append("KeyIndex", p.KeyIndex).
		Append("SID", p.MerchantSID).
		Append("OrderID", orderID)
	signed, err := p.sign(fields)
	if err != nil {
		return TxnStatus{}, err
	}
	resp, err := p.post(ctx, "status", signed)
	if err != nil {
		return TxnStatus{}, err
	}
	return TxnStatus{
		OrderID:    resp.Get("OrderID"),
		StatusCode: resp.Get("Status"),
		Amount:     parseWireAmount(resp.Get("Amount")),
		Currency:   resp.Get("Currency"),
		TrnRef:     resp.Get("IPC_Trnref"),
	}, nil
}

// Refund asks the gateway to reverse a settled transaction.
func (p IPC) Refund(ctx context.Context, orderID, trnRef string, amount common.Money, currency string) error {
	fields := SignedFields{}.
		Append("IPCmethod", ipcMethodRefund).
		Append("IPCVersion", p.Version).
		Append("KeyIndex", p.KeyIndex).
		Append("SID", p.MerchantSID).
		Append("Amount", strconv.FormatInt(amount, 10)).
		Append("Currency", currency).
		Append("OrderID", orderID).
		Append("IPC_Trnref", trnRef)
	signed, err := p.sign(fields)
	if err != nil {
		return err
	}
	resp, err := p.post(ctx, "refund", signed)
	if err != nil {
		return err
	}
	if code := resp.Get("Status"); code != IPCStatusSuccess {
		return fmt.Errorf("payment: refund rejected with status %q", code)
	}
	return nil
}

func (p IPC) sign(fields SignedFields) (SignedFields, error) {
	if p.Signer == nil {
		return nil, errors.New("payment: signer not configured")
	}
	sig, err := p.Signer.Sign(fields)
	if err != nil {
		return nil, err
	}
	return fields.Append("Signature", sig), nil
}

// post sends a signed form to the gateway and parses the signed response.
// The response signature is verified when the gateway includes one; failures
// here surface as errors since the caller initiated the exchange.
func (p IPC) post(ctx context.Context, operation string, fields SignedFields) (SignedFields, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL,
		strings.NewReader(fields.EncodeForm()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.HTTP.Do(ctx, req)
	if err != nil {
		obs.GatewayCallTotal.WithLabelValues("ipc", operation, "error").Inc()
		return nil, fmt.Errorf("payment: ipc %s call: %w", operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		obs.GatewayCallTotal.WithLabelValues("ipc", operation, "error").Inc()
		return nil, fmt.Errorf("payment: read ipc %s response: %w", operation, err)
	}
	if resp.StatusCode != http.StatusOK {
		obs.GatewayCallTotal.WithLabelValues("ipc", operation, "error").Inc()
		return nil, fmt.Errorf("payment: ipc %s returned HTTP %d", operation, resp.StatusCode)
	}
	parsed, err := ParseWireForm(string(body))
	if err != nil {
		obs.GatewayCallTotal.WithLabelValues("ipc", operation, "error").Inc()
		return nil, fmt.Errorf("payment: parse ipc %s response: %w", operation, err)
	}
	if sig := parsed.Get("Signature"); sig != "" && p.Verifier != nil {
		if !p.Verifier.Verify(parsed.Without("Signature"), sig) {
			obs.GatewayCallTotal.WithLabelValues("ipc", operation, "error").Inc()
			return nil, errors.New("payment: ipc response signature invalid")
		}
	}
	obs.GatewayCallTotal.WithLabelValues("ipc", operation, "ok").Inc()
	return parsed, nil
}

func parseWireAmount(value string) common.Money {
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
