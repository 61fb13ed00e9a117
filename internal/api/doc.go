// Package api hosts the recommendation HTTP server and its middleware.
// Notable routes:
//   - POST /recommend_movie suggests a movie similar to two titles.
//   - POST /api/submit_poll suggests a movie from preference poll answers.
//   - GET /healthz for probes.
//   - GET /metrics for Prometheus scraping.
package api
