// Package api hosts the operator HTTP surface that runs alongside a sync. Routes:
//   - GET /healthz and /readyz for probes; readiness consults the configured checker.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/questions and /v1/questions/{question_id} for read-only access to stored records.
package api
