package handler

const (
	// CheckAlivePath is the path of the load balancer health check.
	CheckAlivePath = "/checkalive"

	// MetricsPath is the path of the prometheus exposition.
	MetricsPath = "/metrics"

	// ErrNilACSFatalLogMsg is used if app, cfg or store var pointer is nil.
	ErrNilACSFatalLogMsg = "app, cfg or store is nil"
)
