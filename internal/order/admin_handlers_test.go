package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type stubAdminStore struct {
	orders  map[string]Order
	updated []Status
	listErr error
}

func (s *stubAdminStore) GetByOrderID(_ context.Context, orderID string) (Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (s *stubAdminStore) UpdateStatus(_ context.Context, _ uuid.UUID, status Status) error {
	s.updated = append(s.updated, status)
	return nil
}

func (s *stubAdminStore) List(_ context.Context, status *Status, _, _ int) ([]Order, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []Order
	for _, o := range s.orders {
		if status == nil || o.Status == *status {
			out = append(out, o)
		}
	}
	return out, nil
}

func seededStore() *stubAdminStore {
	return &stubAdminStore{orders: map[string]Order{
		"DOC-20260901-AAAA1111": {
			ID:             uuid.New(),
			OrderID:        "DOC-20260901-AAAA1111",
			Kind:           KindDocument,
			Status:         StatusPaid,
			Items:          json.RawMessage(`[]`),
			Customer:       json.RawMessage(`{}`),
			ExpectedAmount: 3000,
			Currency:       "EUR",
			PaymentMethod:  MethodIPC,
			CreatedAt:      time.Now(),
		},
		"TM-20260901-BBBB2222": {
			ID:             uuid.New(),
			OrderID:        "TM-20260901-BBBB2222",
			Kind:           KindTrademark,
			Status:         StatusPending,
			Items:          json.RawMessage(`[]`),
			Customer:       json.RawMessage(`{}`),
			ExpectedAmount: 150_000,
			Currency:       "EUR",
			PaymentMethod:  MethodStripe,
			CreatedAt:      time.Now(),
		},
	}}
}

func newAdminHandler(store *stubAdminStore) *AdminHandler {
	return &AdminHandler{Store: store, Logger: zerolog.Nop()}
}

func TestAdminGetOrder(t *testing.T) {
	h := newAdminHandler(seededStore())
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/DOC-20260901-AAAA1111")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var view struct {
		OrderID string `json:"orderId"`
		Status  string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.OrderID != "DOC-20260901-AAAA1111" || view.Status != "paid" {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestAdminGetOrderNotFound(t *testing.T) {
	h := newAdminHandler(seededStore())
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/DOC-00000000-MISSING0")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAdminListFiltersByStatus(t *testing.T) {
	h := newAdminHandler(seededStore())
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/?status=pending")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Orders []struct {
			OrderID string `json:"orderId"`
		} `json:"orders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Orders) != 1 || body.Orders[0].OrderID != "TM-20260901-BBBB2222" {
		t.Fatalf("unexpected list result: %+v", body.Orders)
	}
}

func TestAdminListRejectsUnknownStatus(t *testing.T) {
	h := newAdminHandler(seededStore())
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/?status=bogus")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAdminStatusUpdateAllowsValidTransition(t *testing.T) {
	store := seededStore()
	h := newAdminHandler(store)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/DOC-20260901-AAAA1111/status",
		strings.NewReader(`{"status":"processing"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(store.updated) != 1 || store.updated[0] != StatusProcessing {
		t.Fatalf("UpdateStatus calls = %v", store.updated)
	}
}

func TestAdminStatusUpdateRejectsInvalidTransition(t *testing.T) {
	store := seededStore()
	h := newAdminHandler(store)
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	// a pending filing cannot jump straight to registered
	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/TM-20260901-BBBB2222/status",
		strings.NewReader(`{"status":"registered"}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	if len(store.updated) != 0 {
		t.Fatalf("UpdateStatus should not be called, got %v", store.updated)
	}
}
