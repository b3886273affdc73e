// Package app wires the analysis server together: configuration, logging,
// OpenTelemetry, price and basket providers, the event-study engine, the
// services and the HTTP router.
//
// # Initialization Flow
//
//	1. Load configuration (defaults, config.yaml, XMKT_* environment)
//	2. Initialize logging and OpenTelemetry
//	3. Create the price provider and basket definitions
//	4. Build the engine and services
//	5. Set up middleware and HTTP handlers
//	6. Start the HTTP server; shut down gracefully on SIGINT or SIGTERM
//
// # Usage
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    return err
//	}
//	return application.Run()
//
// All initialization errors are returned to the caller; the package never
// calls os.Exit.
package app
