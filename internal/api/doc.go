// Package api hosts the HTTP server, middleware, and REST handlers for the
// harvester service. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/extract to fetch and convert a batch of URLs synchronously.
//   - GET /v1/documents and /v1/documents/{id} to read back recent documents.
package api
