package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caseline",
		Name:      "engine_ops_total",
		Help:      "Engine operations by name and result.",
	}, []string{"op", "result"})

	activityTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "caseline",
		Name:      "activity_records_total",
		Help:      "Activity records appended through the API.",
	})

	webhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caseline",
		Name:      "webhook_deliveries_total",
		Help:      "Webhook delivery attempts by hook and result.",
	}, []string{"hook", "result"})
)

func countOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	opsTotal.WithLabelValues(op, result).Inc()
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
