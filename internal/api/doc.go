// Package api hosts the HTTP server, middleware, and handlers of the recall
// ingestion service. Notable routes:
//   - any method on / or /v1/ingest runs one ingestion pass and returns the report.
//   - OPTIONS on any path answers the CORS preflight.
//   - GET /v1/recalls and /v1/recalls/latest read stored recalls.
//   - POST /v1/alerts upserts a newsletter subscription.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus scraping.
package api
