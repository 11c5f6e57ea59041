package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/docufy/payment-core/internal/common"
	"github.com/docufy/payment-core/internal/order"
)

// StatusReader is the read-only order access the status endpoint needs.
type StatusReader interface {
	GetByOrderID(ctx context.Context, orderID string) (order.Order, error)
}

// LegacyGateway is the outbound surface of the bank gateway used by the
// back-office endpoints.
type LegacyGateway interface {
	GetStatus(ctx context.Context, orderID string) (TxnStatus, error)
	Refund(ctx context.Context, orderID, trnRef string, amount common.Money, currency string) error
}

// Handler exposes the payment status read endpoint and the back-office
// gateway operations.
type Handler struct {
	Store  StatusReader
	Legacy LegacyGateway
	Logger zerolog.Logger
}

// Status reports the payment outcome of an order. End users observe payment
// results only through this endpoint or return-URL redirects, never through
// reconciliation internals.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	o, err := h.Store.GetByOrderID(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			common.JSONAppError(w, common.NotFoundError("order not found"))
			return
		}
		h.Logger.Error().Err(err).Msg("payment status lookup failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}

	resp := map[string]any{
		"orderId":  o.OrderID,
		"status":   o.Status,
		"paid":     o.Status == order.StatusPaid || o.PaidAt != nil,
		"amount":   nil,
		"currency": o.Currency,
	}
	if o.PaidAmount != nil {
		resp["amount"] = *o.PaidAmount
	}
	if o.PaidAt != nil {
		resp["paidAt"] = o.PaidAt.UTC().Format(time.RFC3339)
	}
	common.JSON(w, http.StatusOK, resp)
}

// GatewayStatus queries the legacy gateway for its view of a transaction.
// Useful when a notification is suspected lost.
func (h *Handler) GatewayStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	o, err := h.Store.GetByOrderID(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			common.JSONAppError(w, common.NotFoundError("order not found"))
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	if o.PaymentMethod != order.MethodIPC {
		common.JSONError(w, http.StatusConflict, "UNSUPPORTED_GATEWAY",
			"gateway status queries are only available for bank-gateway orders", nil)
		return
	}
	status, err := h.Legacy.GetStatus(r.Context(), o.OrderID)
	if err != nil {
		h.Logger.Error().Err(err).Str("order_id", orderID).Msg("gateway status query failed")
		common.JSONError(w, http.StatusBadGateway, "GATEWAY_ERROR", err.Error(), nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"orderId":    status.OrderID,
		"statusCode": status.StatusCode,
		"amount":     status.Amount,
		"currency":   status.Currency,
		"trnRef":     status.TrnRef,
	})
}

type refundRequest struct {
	Amount *common.Money `json:"amount"`
}

// Refund reverses a settled bank-gateway payment. Defaults to the full paid
// amount when the request does not specify one.
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	o, err := h.Store.GetByOrderID(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			common.JSONAppError(w, common.NotFoundError("order not found"))
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	if o.PaymentMethod != order.MethodIPC {
		common.JSONError(w, http.StatusConflict, "UNSUPPORTED_GATEWAY",
			"refunds are only available for bank-gateway orders", nil)
		return
	}
	if o.PaidAmount == nil || o.PaymentData.TransactionRef == "" {
		common.JSONError(w, http.StatusConflict, "NOT_REFUNDABLE", "order has no settled payment", nil)
		return
	}

	var req refundRequest
	if r.Body != nil {
		// An empty body means a full refund.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	amount := *o.PaidAmount
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount <= 0 || amount > *o.PaidAmount {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "refund amount out of range", nil)
		return
	}

	if err := h.Legacy.Refund(r.Context(), o.OrderID, o.PaymentData.TransactionRef, amount, o.Currency); err != nil {
		h.Logger.Error().Err(err).Str("order_id", orderID).Msg("refund failed")
		common.JSONError(w, http.StatusBadGateway, "GATEWAY_ERROR", err.Error(), nil)
		return
	}
	h.Logger.Info().Str("order_id", orderID).Int64("amount", amount).Msg("refund issued")
	common.JSON(w, http.StatusOK, map[string]any{
		"orderId":  o.OrderID,
		"refunded": amount,
	})
}
