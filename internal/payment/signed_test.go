package payment_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/docufy/payment-core/internal/payment"
)

func newTestSigner(t *testing.T) (*payment.Signer, *payment.Verifier) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pemData := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	signer, err := payment.NewSigner(string(pemData))
	if err != nil {
		t.Fatalf("parse private key: %v", err)
	}
	return signer, payment.VerifierForKey(signer.Public())
}

func TestSignatureRoundTrip(t *testing.T) {
	signer, verifier := newTestSigner(t)
	fields := payment.SignedFields{}.
		Append("IPCmethod", "IPCPurchase").
		Append("Amount", "3000").
		Append("Currency", "EUR").
		Append("OrderID", "DOC-20260901-ABCD1234")

	sig, err := signer.Sign(fields)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !verifier.Verify(fields, sig) {
		t.Fatal("verification failed for untouched fields")
	}
}

func TestSignatureRejectsMutation(t *testing.T) {
	signer, verifier := newTestSigner(t)
	fields := payment.SignedFields{}.
		Append("Amount", "3000").
		Append("OrderID", "DOC-20260901-ABCD1234")
	sig, err := signer.Sign(fields)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tampered := payment.SignedFields{}.
		Append("Amount", "2950").
		Append("OrderID", "DOC-20260901-ABCD1234")
	if verifier.Verify(tampered, sig) {
		t.Fatal("verification passed for mutated value")
	}
}

func TestSignatureRejectsReordering(t *testing.T) {
	signer, verifier := newTestSigner(t)
	fields := payment.SignedFields{}.
		Append("Amount", "30").
		Append("OrderID", "0012")
	sig, err := signer.Sign(fields)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// Same pairs, different sequence. Note the concatenations also differ
	// ("300012" vs "001230"); order is part of the signed content.
	reordered := payment.SignedFields{}.
		Append("OrderID", "0012").
		Append("Amount", "30")
	if verifier.Verify(reordered, sig) {
		t.Fatal("verification passed for reordered fields")
	}
}

func TestParseWireFormPreservesArrivalOrder(t *testing.T) {
	body := "ZOrder=1&Amount=3000&AAA=x&Signature=abc%3D%3D"
	fields, err := payment.ParseWireForm(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{"ZOrder", "Amount", "AAA", "Signature"}
	if len(fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(fields), len(want))
	}
	for i, k := range want {
		if fields[i].Key != k {
			t.Fatalf("field %d: got key %q, want %q", i, fields[i].Key, k)
		}
	}
	if got := fields.Get("Signature"); got != "abc==" {
		t.Fatalf("signature not url-decoded: %q", got)
	}
}

func TestEncodeFormRoundTrip(t *testing.T) {
	fields := payment.SignedFields{}.
		Append("Note", "thanks & regards").
		Append("Amount", "3000")
	parsed, err := payment.ParseWireForm(fields.EncodeForm())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Get("Note") != "thanks & regards" {
		t.Fatalf("note mangled: %q", parsed.Get("Note"))
	}
	if parsed[0].Key != "Note" || parsed[1].Key != "Amount" {
		t.Fatal("field order not preserved through encode/parse")
	}
}

func TestVerifyCallbackUsesWireOrder(t *testing.T) {
	signer, verifier := newTestSigner(t)

	// The remote party signs in its own order; we must replay exactly that.
	remoteOrder := payment.SignedFields{}.
		Append("Amount", "3000").
		Append("OrderID", "DOC-20260901-ABCD1234").
		Append("Status", "0")
	sig, err := signer.Sign(remoteOrder)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	wire := remoteOrder.Append("Signature", sig)

	ipc := payment.IPC{Verifier: verifier}
	received, err := payment.ParseWireForm(wire.EncodeForm())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !ipc.VerifyCallback(received) {
		t.Fatal("callback verification failed")
	}

	received[0].Value = "9999"
	if ipc.VerifyCallback(received) {
		t.Fatal("callback verification passed for tampered amount")
	}
}
