package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK             = "ok"
	outcomeTransportError = "transport_error"
	outcomeStatusError    = "status_error"
)

var (
	backendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parkmaster",
		Name:      "backend_requests_total",
		Help:      "Backend round trips by operation and outcome.",
	}, []string{"op", "outcome"})

	vehicleFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parkmaster",
		Name:      "vehicle_fallbacks_total",
		Help:      "Vehicle lookups answered with the fallback snapshot.",
	}, []string{"which"})
)
