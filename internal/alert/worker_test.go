package alert

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/docufy/payment-core/internal/common"
)

func fraudTask(t *testing.T, p FraudPayload) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(TaskFraudAlert, payload)
}

func TestHandleFraudSendsEmail(t *testing.T) {
	mail := &common.InMemoryEmail{}
	w := Worker{Email: mail, AlertEmail: "fraud@docufy.example", Logger: zerolog.Nop()}

	task := fraudTask(t, FraudPayload{
		Gateway:    "ipc",
		OrderID:    "DOC-20260901-AAAA1111",
		Expected:   3000,
		Reported:   2950,
		DetectedAt: time.Now().UTC(),
	})
	if err := w.handleFraud(context.Background(), task); err != nil {
		t.Fatalf("handleFraud: %v", err)
	}
	if len(mail.Outbox) != 1 {
		t.Fatalf("sent %d emails, want 1", len(mail.Outbox))
	}
	msg := mail.Outbox[0]
	if msg.To != "fraud@docufy.example" {
		t.Errorf("to = %q", msg.To)
	}
	if !strings.Contains(msg.Subject, "DOC-20260901-AAAA1111") {
		t.Errorf("subject missing order id: %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "29.50") || !strings.Contains(msg.HTML, "30.00") {
		t.Errorf("body missing amounts: %q", msg.HTML)
	}
}

func TestHandleFraudWithoutRecipientOnlyLogs(t *testing.T) {
	mail := &common.InMemoryEmail{}
	w := Worker{Email: mail, Logger: zerolog.Nop()}

	task := fraudTask(t, FraudPayload{Gateway: "stripe", OrderID: "TM-20260901-BBBB2222"})
	if err := w.handleFraud(context.Background(), task); err != nil {
		t.Fatalf("handleFraud: %v", err)
	}
	if len(mail.Outbox) != 0 {
		t.Fatalf("sent %d emails, want 0", len(mail.Outbox))
	}
}

func TestHandleFraudRejectsBadPayload(t *testing.T) {
	w := Worker{Logger: zerolog.Nop()}
	task := asynq.NewTask(TaskFraudAlert, []byte("{"))
	if err := w.handleFraud(context.Background(), task); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestHandleSettled(t *testing.T) {
	w := Worker{Logger: zerolog.Nop()}
	payload, _ := json.Marshal(SettledPayload{Gateway: "ipc", OrderID: "DOC-20260901-AAAA1111", Amount: 3000})
	task := asynq.NewTask(TaskPaymentSettled, payload)
	if err := w.handleSettled(context.Background(), task); err != nil {
		t.Fatalf("handleSettled: %v", err)
	}
}
