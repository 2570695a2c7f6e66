// Package api hosts the HTTP server, middleware, and REST handlers. Routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs to submit an email or phone list.
//   - GET /v1/jobs/{id}, /v1/jobs/{id}/progress and /v1/jobs/{id}/results.
//   - GET /v1/stats for governor, queue and cache occupancy.
package api
