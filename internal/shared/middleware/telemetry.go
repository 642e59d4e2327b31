package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ServiceName is the otelhttp operation name for API requests
const ServiceName = "txengine-api"

// Telemetry wraps an http.Handler with OpenTelemetry instrumentation.
// Health probes are not traced.
func Telemetry(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, ServiceName,
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/ready"
		}),
	)
}
