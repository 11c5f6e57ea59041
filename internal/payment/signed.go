package payment

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Field is one (key, value) pair of a signed gateway message.
type Field struct {
	Key   string
	Value string
}

// SignedFields is an ordered field sequence. Order is part of the wire
// contract on both directions: the signature covers the values concatenated
// in sequence, so a map would silently break interop.
type SignedFields []Field

// Append returns the fields with one more pair at the end.
func (f SignedFields) Append(key, value string) SignedFields {
	return append(f, Field{Key: key, Value: value})
}

// Get returns the value of the first field with the given key.
func (f SignedFields) Get(key string) string {
	for _, fld := range f {
		if fld.Key == key {
			return fld.Value
		}
	}
	return ""
}

// Without returns the fields with every pair matching key removed, keeping
// the relative order of the rest.
func (f SignedFields) Without(key string) SignedFields {
	out := make(SignedFields, 0, len(f))
	for _, fld := range f {
		if fld.Key != key {
			out = append(out, fld)
		}
	}
	return out
}

// Concat joins the values in sequence. This is the exact byte string the
// signature is computed over.
func (f SignedFields) Concat() string {
	var b strings.Builder
	for _, fld := range f {
		b.WriteString(fld.Value)
	}
	return b.String()
}

// EncodeForm renders the fields as an application/x-www-form-urlencoded body
// preserving field order. url.Values cannot be used here since it sorts keys.
func (f SignedFields) EncodeForm() string {
	var b strings.Builder
	for i, fld := range f {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(fld.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(fld.Value))
	}
	return b.String()
}

// ParseWireForm decodes a url-encoded body into fields in the order they
// arrived. The remote party signs in its own order, so arrival order must
// survive parsing for verification to replay the same concatenation.
func ParseWireForm(body string) (SignedFields, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, nil
	}
	pairs := strings.Split(body, "&")
	fields := make(SignedFields, 0, len(pairs))
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			return nil, fmt.Errorf("decode key %q: %w", key, err)
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("decode value for %q: %w", k, err)
		}
		fields = append(fields, Field{Key: k, Value: v})
	}
	return fields, nil
}

// Signer produces base64 RSA-SHA1 signatures over ordered field values. SHA1
// is what the bank gateway's protocol mandates; it is not a choice this
// service can upgrade unilaterally.
type Signer struct {
	key *rsa.PrivateKey
}

// NewSigner parses an RSA private key from PEM (PKCS#1 or PKCS#8).
func NewSigner(pemData string) (*Signer, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("payment: no PEM block in private key")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &Signer{key: key}, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("payment: parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("payment: private key is not RSA")
	}
	return &Signer{key: key}, nil
}

// Sign computes base64(RSA_SHA1(concat(values in order))).
func (s *Signer) Sign(fields SignedFields) (string, error) {
	digest := sha1.Sum([]byte(fields.Concat()))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA1, digest[:])
	if err != nil {
		return "", fmt.Errorf("payment: sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Public returns the signer's public key, mainly for tests that verify
// against a locally generated keypair.
func (s *Signer) Public() *rsa.PublicKey {
	return &s.key.PublicKey
}

// Verifier checks base64 RSA-SHA1 signatures against the gateway's
// certificate. An invalid signature is a normal negative outcome on the
// legacy path, so Verify returns a bool rather than an error.
type Verifier struct {
	pub *rsa.PublicKey
}

// NewVerifier parses the counterpart's public key from PEM. It accepts both
// an X.509 certificate and a bare PKIX public key block.
func NewVerifier(pemData string) (*Verifier, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("payment: no PEM block in gateway certificate")
	}
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("payment: certificate key is not RSA")
		}
		return &Verifier{pub: pub}, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("payment: parse gateway certificate: %w", err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("payment: gateway key is not RSA")
	}
	return &Verifier{pub: pub}, nil
}

// VerifierForKey wraps an already-parsed public key.
func VerifierForKey(pub *rsa.PublicKey) *Verifier {
	return &Verifier{pub: pub}
}

// Verify replays the in-order concatenation and checks the base64 signature.
func (v *Verifier) Verify(fields SignedFields, signature string) bool {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	digest := sha1.Sum([]byte(fields.Concat()))
	return rsa.VerifyPKCS1v15(v.pub, crypto.SHA1, digest[:], raw) == nil
}
