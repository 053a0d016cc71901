// Package api hosts the operator status server. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/cycles/latest for the summary of the last finished cycle.
//   - GET /v1/visits/recent for the most recent marker outcomes.
package api
