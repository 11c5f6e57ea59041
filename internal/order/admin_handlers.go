package order

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/docufy/payment-core/internal/common"
)

// AdminStore is the subset of the repository the back-office handlers need.
type AdminStore interface {
	GetByOrderID(ctx context.Context, orderID string) (Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	List(ctx context.Context, status *Status, limit, offset int) ([]Order, error)
}

// AdminHandler exposes back-office order operations. Status changes go
// through the per-kind transition tables; there is no force override.
type AdminHandler struct {
	Store  AdminStore
	Logger zerolog.Logger
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Get("/{orderID}", h.get)
	r.Patch("/{orderID}/status", h.updateStatus)
	return r
}

type orderView struct {
	ID             uuid.UUID       `json:"id"`
	OrderID        string          `json:"orderId"`
	Kind           Kind            `json:"kind"`
	Status         Status          `json:"status"`
	Items          json.RawMessage `json:"items"`
	Customer       json.RawMessage `json:"customer"`
	Subtotal       common.Money    `json:"subtotal"`
	VAT            common.Money    `json:"vat"`
	Total          common.Money    `json:"total"`
	ExpectedAmount common.Money    `json:"expectedAmount"`
	Currency       string          `json:"currency"`
	PaymentMethod  PaymentMethod   `json:"paymentMethod"`
	PaymentData    PaymentData     `json:"paymentData"`
	PaidAmount     *common.Money   `json:"paidAmount,omitempty"`
	ReportedAmount *common.Money   `json:"reportedAmount,omitempty"`
	PaidAt         *string         `json:"paidAt,omitempty"`
	FailedAt       *string         `json:"failedAt,omitempty"`
	CreatedAt      string          `json:"createdAt"`
}

func toView(o Order) orderView {
	v := orderView{
		ID:             o.ID,
		OrderID:        o.OrderID,
		Kind:           o.Kind,
		Status:         o.Status,
		Items:          o.Items,
		Customer:       o.Customer,
		Subtotal:       o.Subtotal,
		VAT:            o.VAT,
		Total:          o.Total,
		ExpectedAmount: o.ExpectedAmount,
		Currency:       o.Currency,
		PaymentMethod:  o.PaymentMethod,
		PaymentData:    o.PaymentData,
		PaidAmount:     o.PaidAmount,
		ReportedAmount: o.ReportedAmount,
		CreatedAt:      o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if o.PaidAt != nil {
		s := o.PaidAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		v.PaidAt = &s
	}
	if o.FailedAt != nil {
		s := o.FailedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
		v.FailedAt = &s
	}
	return v
}

func (h *AdminHandler) list(w http.ResponseWriter, r *http.Request) {
	var statusFilter *Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := Status(raw)
		if !s.Valid() {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown status filter", nil)
			return
		}
		statusFilter = &s
	}
	limit := common.QueryInt(r, "limit", 50)
	offset := common.QueryInt(r, "offset", 0)

	orders, err := h.Store.List(r.Context(), statusFilter, limit, offset)
	if err != nil {
		h.Logger.Error().Err(err).Msg("admin list orders failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list orders", nil)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, toView(o))
	}
	common.JSON(w, http.StatusOK, map[string]any{"orders": views})
}

func (h *AdminHandler) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Store.GetByOrderID(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONAppError(w, common.NotFoundError("order not found"))
			return
		}
		h.Logger.Error().Err(err).Msg("admin get order failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	common.JSON(w, http.StatusOK, toView(o))
}

type statusUpdateRequest struct {
	Status Status `json:"status"`
}

func (h *AdminHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if !req.Status.Valid() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "unknown status", nil)
		return
	}

	o, err := h.Store.GetByOrderID(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONAppError(w, common.NotFoundError("order not found"))
			return
		}
		h.Logger.Error().Err(err).Msg("admin load order failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}

	if !CanTransition(o.Kind, o.Status, req.Status) {
		common.JSONError(w, http.StatusConflict, "INVALID_TRANSITION",
			"status transition not allowed", map[string]any{
				"from": o.Status,
				"to":   req.Status,
			})
		return
	}

	if err := h.Store.UpdateStatus(r.Context(), o.ID, req.Status); err != nil {
		h.Logger.Error().Err(err).Msg("admin status update failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update status", nil)
		return
	}
	h.Logger.Info().
		Str("order_id", o.OrderID).
		Str("from", string(o.Status)).
		Str("to", string(req.Status)).
		Msg("order status updated")
	common.JSON(w, http.StatusOK, map[string]any{
		"orderId": o.OrderID,
		"status":  req.Status,
	})
}
