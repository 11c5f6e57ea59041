package checkout

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/docufy/payment-core/internal/catalog"
	"github.com/docufy/payment-core/internal/common"
	"github.com/docufy/payment-core/internal/order"
)

// Handler binds the order-creation endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	Logger   zerolog.Logger
}

type itemPayload struct {
	ID       string          `json:"id" validate:"required"`
	Type     string          `json:"type" validate:"required,oneof=document package"`
	Name     string          `json:"name"`
	Price    common.Money    `json:"price"`
	FormData json.RawMessage `json:"formData,omitempty"`
}

type customerPayload struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone"`
}

type documentOrderRequest struct {
	Items         []itemPayload   `json:"items" validate:"required,min=1,dive"`
	Customer      customerPayload `json:"customer" validate:"required"`
	PaymentMethod string          `json:"paymentMethod" validate:"required,oneof=ipc stripe"`
	Note          string          `json:"note"`
}

type trademarkOrderRequest struct {
	MarkName           string          `json:"markName" validate:"required"`
	NiceClassCount     int             `json:"niceClassCount" validate:"required,min=1,max=45"`
	PriorityClaimCount int             `json:"priorityClaimCount" validate:"min=0"`
	Collective         bool            `json:"collective"`
	Customer           customerPayload `json:"customer" validate:"required"`
	PaymentMethod      string          `json:"paymentMethod" validate:"required,oneof=ipc stripe"`
}

type createResponse struct {
	OrderID        string          `json:"orderId"`
	Status         order.Status    `json:"status"`
	ExpectedAmount common.Money    `json:"expectedAmount"`
	Currency       string          `json:"currency"`
	Payment        PaymentArtifact `json:"payment"`
}

// CreateDocumentOrder handles POST /api/v1/orders.
func (h *Handler) CreateDocumentOrder(w http.ResponseWriter, r *http.Request) {
	var req documentOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid order payload", validationDetails(err))
		return
	}

	items := make([]catalog.SubmittedItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, catalog.SubmittedItem{
			ID:       it.ID,
			Type:     it.Type,
			Name:     it.Name,
			Price:    it.Price,
			FormData: it.FormData,
		})
	}

	result, err := h.Svc.CreateDocumentOrder(r.Context(), DocumentOrderInput{
		Items: items,
		Customer: Customer{
			Name:  strings.TrimSpace(req.Customer.Name),
			Email: strings.TrimSpace(req.Customer.Email),
			Phone: strings.TrimSpace(req.Customer.Phone),
		},
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		Note:          req.Note,
	})
	if err != nil {
		if common.IsAppError(err) {
			common.JSONAppError(w, err)
			return
		}
		h.Logger.Error().Err(err).Msg("document order creation failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create order", nil)
		return
	}
	h.writeCreated(w, result)
}

// CreateTrademarkOrder handles POST /api/v1/trademark-orders.
func (h *Handler) CreateTrademarkOrder(w http.ResponseWriter, r *http.Request) {
	var req trademarkOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid order payload", validationDetails(err))
		return
	}

	result, err := h.Svc.CreateTrademarkOrder(r.Context(), TrademarkOrderInput{
		MarkName:           strings.TrimSpace(req.MarkName),
		NiceClassCount:     req.NiceClassCount,
		PriorityClaimCount: req.PriorityClaimCount,
		Collective:         req.Collective,
		Customer: Customer{
			Name:  strings.TrimSpace(req.Customer.Name),
			Email: strings.TrimSpace(req.Customer.Email),
			Phone: strings.TrimSpace(req.Customer.Phone),
		},
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		if common.IsAppError(err) {
			common.JSONAppError(w, err)
			return
		}
		h.Logger.Error().Err(err).Msg("trademark order creation failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create order", nil)
		return
	}
	h.writeCreated(w, result)
}

func (h *Handler) writeCreated(w http.ResponseWriter, result CreateResult) {
	common.JSON(w, http.StatusCreated, createResponse{
		OrderID:        result.Order.OrderID,
		Status:         result.Order.Status,
		ExpectedAmount: result.Order.ExpectedAmount,
		Currency:       result.Order.Currency,
		Payment:        result.Artifact,
	})
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fe.Namespace()+" failed on "+fe.Tag())
	}
	return details
}
