// Package services implements the application layer between the HTTP
// transport and the event-study engine.
//
// # Services
//
//	- AnalysisService: resolves predefined baskets, loads prices for the
//	  request span, runs the engine and stamps the run id and time
//	- HealthService: liveness, readiness and version reporting
//
// # Run Lifecycle
//
// A run proceeds in three steps, each traced:
//
//	req := services.AnalysisRequest{Request: r, BasketNames: []string{"shipping"}}
//	report, err := svc.Run(ctx, req)
//
//  1. Baskets named in BasketNames are looked up in the BasketProvider and
//     appended to the inline ones.
//  2. Prices for every referenced asset are fetched concurrently over
//     Request.Span (span "analysis.fetch"). Assets without data are listed in
//     RunReport.MissingAssets and surface in the result as failures.
//  3. The engine runs (span "analysis.run") and the outcome is recorded in
//     the analysis metrics.
//
// # Error Handling
//
// Errors keep their domain type so the transport can map them:
//
//	- *eventstudy.ValidationError for malformed requests
//	- *errors.AppError of type NOT_FOUND for unknown baskets
//	- *errors.AppError of type DATA when a provider fails
//	- engine failure kinds when nothing could be computed; the partial
//	  report is returned with the error
package services
