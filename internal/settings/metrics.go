package settings

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	lookupHit    = "hit"
	lookupAbsent = "absent"
	lookupMiss   = "miss"

	statusOK    = "ok"
	statusError = "error"
)

var (
	cacheLookups = promauto.NewCounterVec( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Name: "confstore_cache_lookups_total",
			Help: "Number of settings cache lookups, differentiated by result.",
		},
		[]string{"result"},
	)

	backendOperations = promauto.NewCounterVec( //nolint:gochecknoglobals
		prometheus.CounterOpts{
			Name: "confstore_backend_operations_total",
			Help: "Number of settings repository calls, differentiated by operation and status.",
		},
		[]string{"op", "status"},
	)
)

func observeBackend(op string, err error) {
	status := statusOK
	if err != nil {
		status = statusError
	}

	backendOperations.WithLabelValues(op, status).Inc()
}
