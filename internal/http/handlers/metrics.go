package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics serves the Prometheus scrape endpoint.
func Metrics() http.Handler {
	return promhttp.Handler()
}
