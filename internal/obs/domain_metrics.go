package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentIntentTotal counts payment artifact creation attempts.
	PaymentIntentTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// FraudDetectedTotal counts amount mismatches flagged as fraud attempts.
	FraudDetectedTotal *prometheus.CounterVec
	// WebhookDuplicateTotal counts inbound events dropped by the idempotency ledger.
	WebhookDuplicateTotal *prometheus.CounterVec
	// GatewayCallTotal counts outbound gateway call outcomes.
	GatewayCallTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentIntentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_total",
			Help:      "Count of payment artifact creation outcomes.",
		}, []string{"gateway", "result"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"gateway", "result"})
		FraudDetectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fraud_detected_total",
			Help:      "Count of webhook amounts that mismatched the expected amount.",
		}, []string{"gateway"})
		WebhookDuplicateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_duplicate_total",
			Help:      "Count of webhook deliveries dropped as already processed.",
		}, []string{"gateway"})
		GatewayCallTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_call_total",
			Help:      "Count of outbound gateway call outcomes.",
		}, []string{"gateway", "operation", "result"})
		reg.MustRegister(PaymentIntentTotal, PaymentWebhookTotal, FraudDetectedTotal, WebhookDuplicateTotal, GatewayCallTotal)
	})
}
