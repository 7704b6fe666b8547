package middleware

import (
	"net/http"

	"github.com/clusterkeeper/ilm/infrastructure/httputil"
)

// LivenessHandler answers /healthz: the process is up and serving.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadinessHandler answers /readyz: the scheduler is running and the
// process has not begun shutting down. ready is flipped by the shutdown
// hook so load balancers drain before the listener closes.
func ReadinessHandler(ready *bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil && *ready {
			httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
	}
}
