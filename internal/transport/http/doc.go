// Package http implements the HTTP handlers of the analysis server. Handlers
// stay thin: they decode and validate the request, call a service and render
// the result, leaving all analysis logic to the services layer.
//
// # Routes
//
//	POST /api/v1/analyses?format=json|xlsx|csv   run one analysis
//	GET  /api/v1/baskets                          list basket definitions
//	GET  /api/health, /api/health/live, /api/health/ready
//	GET  /api/version
//	GET  /metrics                                 Prometheus scrape endpoint
//
// # Error Handling
//
// All errors are rendered as RFC 7807 Problem Details by errors.ErrorHandler:
//
//	{
//	    "type": "/errors/analysis/degenerate-baseline",
//	    "title": "Analysis Failed",
//	    "status": 422,
//	    "detail": "degenerate baseline for XLE: reference variance is zero",
//	    "instance": "/api/v1/analyses",
//	    "run_id": "3f2a9c1e-...",
//	    "trace_id": "..."
//	}
//
// A failed run that still produced a partial result carries it in the
// "result" extension.
package http
