// Package api hosts the status server that runs alongside a harvest. Routes:
//   - GET /healthz and /readyz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for a JSON snapshot of the live run counters.
package api
