package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docufy/payment-core/internal/common"
	"github.com/docufy/payment-core/internal/pricing"
)

// ErrNotFound is returned when no order matches the given identifier.
var ErrNotFound = errors.New("order not found")

// ErrDuplicateOrderID is returned when a generated business id collides.
var ErrDuplicateOrderID = errors.New("order id already exists")

// Repo persists purchase aggregates. All writes are single-row field updates;
// duplicate-delivery safety lives upstream in the webhook idempotency ledger,
// not in repository-level locking.
type Repo struct {
	Pool *pgxpool.Pool
}

const orderColumns = `id, order_id, kind, status, items, customer, subtotal, vat, total,
	expected_amount, currency, payment_method, payment_data, pricing,
	paid_amount, reported_amount, paid_at, failed_at, created_at, updated_at`

// Create inserts a new aggregate in status pending.
func (r Repo) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	paymentData, err := json.Marshal(o.PaymentData)
	if err != nil {
		return fmt.Errorf("marshal payment data: %w", err)
	}
	var pricingJSON []byte
	if o.Pricing != nil {
		pricingJSON, err = json.Marshal(o.Pricing)
		if err != nil {
			return fmt.Errorf("marshal pricing snapshot: %w", err)
		}
	}
	items := o.Items
	if items == nil {
		items = json.RawMessage("[]")
	}
	customer := o.Customer
	if customer == nil {
		customer = json.RawMessage("{}")
	}
	row := r.Pool.QueryRow(ctx, `
		INSERT INTO orders (id, order_id, kind, status, items, customer, subtotal, vat, total,
			expected_amount, currency, payment_method, payment_data, pricing)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		o.ID, o.OrderID, string(o.Kind), string(o.Status), items, customer,
		o.Subtotal, o.VAT, o.Total, o.ExpectedAmount, o.Currency,
		string(o.PaymentMethod), paymentData, pricingJSON,
	)
	if err := row.Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateOrderID
		}
		return err
	}
	return nil
}

// GetByID fetches an aggregate by its internal id.
func (r Repo) GetByID(ctx context.Context, id uuid.UUID) (Order, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

// GetByOrderID fetches an aggregate by its human-readable business id.
func (r Repo) GetByOrderID(ctx context.Context, orderID string) (Order, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = $1`, orderID)
	return scanOrder(row)
}

// UpdateStatus writes a new status without touching payment fields.
func (r Repo) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.Pool.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordPayment transitions the aggregate to paid and records the verified
// settlement facts.
func (r Repo) RecordPayment(ctx context.Context, id uuid.UUID, capture PaymentCapture) error {
	data, err := json.Marshal(PaymentData{
		TransactionRef:    capture.TransactionRef,
		ReceiptURL:        capture.ReceiptURL,
		CheckoutSessionID: capture.CheckoutSessionID,
	})
	if err != nil {
		return fmt.Errorf("marshal payment data: %w", err)
	}
	tag, err := r.Pool.Exec(ctx, `
		UPDATE orders SET status = $2, paid_amount = $3, paid_at = $4,
			payment_data = payment_data || $5::jsonb, updated_at = now()
		WHERE id = $1`,
		id, string(StatusPaid), capture.Amount, capture.PaidAt, data)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFraud records an amount mismatch as a terminal, audited status together
// with the amount the gateway reported.
func (r Repo) MarkFraud(ctx context.Context, id uuid.UUID, reportedAmount common.Money) error {
	tag, err := r.Pool.Exec(ctx, `
		UPDATE orders SET status = $2, reported_amount = $3, updated_at = now()
		WHERE id = $1`,
		id, string(StatusFraudAttempt), reportedAmount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFailure transitions the aggregate to failed.
func (r Repo) RecordFailure(ctx context.Context, id uuid.UUID, failedAt time.Time) error {
	tag, err := r.Pool.Exec(ctx, `
		UPDATE orders SET status = $2, failed_at = $3, updated_at = now()
		WHERE id = $1`,
		id, string(StatusFailed), failedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachPaymentData merges gateway references (e.g. the checkout session id)
// into the aggregate without changing status.
func (r Repo) AttachPaymentData(ctx context.Context, id uuid.UUID, data PaymentData) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payment data: %w", err)
	}
	tag, err := r.Pool.Exec(ctx, `
		UPDATE orders SET payment_data = payment_data || $2::jsonb, updated_at = now()
		WHERE id = $1`,
		id, encoded)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns aggregates newest first, optionally filtered by status.
func (r Repo) List(ctx context.Context, status *Status, limit, offset int) ([]Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var (
		rows pgx.Rows
		err  error
	)
	if status != nil {
		rows, err = r.Pool.Query(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			string(*status), limit, offset)
	} else {
		rows, err = r.Pool.Query(ctx,
			`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var (
		o           Order
		kind        string
		status      string
		method      string
		paymentData []byte
		pricingJSON []byte
	)
	err := row.Scan(&o.ID, &o.OrderID, &kind, &status, &o.Items, &o.Customer,
		&o.Subtotal, &o.VAT, &o.Total, &o.ExpectedAmount, &o.Currency,
		&method, &paymentData, &pricingJSON,
		&o.PaidAmount, &o.ReportedAmount, &o.PaidAt, &o.FailedAt,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	o.Kind = Kind(kind)
	o.Status = Status(status)
	o.PaymentMethod = PaymentMethod(method)
	if len(paymentData) > 0 {
		if err := json.Unmarshal(paymentData, &o.PaymentData); err != nil {
			return Order{}, fmt.Errorf("decode payment data: %w", err)
		}
	}
	if len(pricingJSON) > 0 {
		var q pricing.Quote
		if err := json.Unmarshal(pricingJSON, &q); err != nil {
			return Order{}, fmt.Errorf("decode pricing snapshot: %w", err)
		}
		o.Pricing = &q
	}
	return o, nil
}
