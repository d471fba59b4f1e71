// Package metrics holds the Prometheus counters exported by the client core.
// Counters register with the default registry on package init.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gophsky"

var (
	xrpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xrpc_requests_total",
			Help:      "XRPC calls by method and HTTP status (0 for transport failures).",
		},
		[]string{"nsid", "status"},
	)

	sessionRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_refresh_total",
			Help:      "Network session refreshes by outcome.",
		},
		[]string{"result"},
	)

	videoUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "video_uploads_total",
			Help:      "Video upload jobs by terminal outcome.",
		},
		[]string{"result"},
	)
)

// ObserveXRPC counts one XRPC call.
func ObserveXRPC(nsid string, status int) {
	xrpcRequestsTotal.WithLabelValues(nsid, strconv.Itoa(status)).Inc()
}

// ObserveRefresh counts one refreshSession exchange.
func ObserveRefresh(result string) {
	sessionRefreshTotal.WithLabelValues(result).Inc()
}

// ObserveUpload counts one finished video upload.
func ObserveUpload(result string) {
	videoUploadsTotal.WithLabelValues(result).Inc()
}
