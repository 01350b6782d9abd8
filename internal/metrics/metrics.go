package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	GatewayAdmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jgw_gateway_admissions_total",
			Help: "Gateway gating decisions by stage and outcome",
		},
		[]string{"stage", "outcome"}, // auth|origin|ip|rate_limit|subscription , allowed|rejected|error
	)

	UsageAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jgw_usage_alerts_total",
			Help: "Subscription usage alert evaluations that fired",
		},
		[]string{"outcome"}, // enqueued|no_webhook|lost_race|error
	)

	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jgw_webhook_deliveries_total",
			Help: "Webhook delivery attempts by outcome",
		},
		[]string{"outcome"}, // sent|retried|failed|skipped
	)

	WebhookDeliverySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jgw_webhook_delivery_seconds",
			Help:    "Latency of outbound webhook POSTs",
			Buckets: prometheus.DefBuckets,
		},
	)
)

var registerOnce sync.Once

// MustRegister registers the collectors once; serve and worker may both call it.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			GatewayAdmissions,
			UsageAlerts,
			WebhookDeliveries,
			WebhookDeliverySeconds,
		)
	})
}
