// Package observability provides logging and metrics support for the
// keyword research service.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//	logger = observability.WithRunContext(logger, runID, niche)
//
// # Metrics
//
//	metrics := observability.NewMetrics("keyhunter")
//	client := keyso.New(cfg, keyso.WithMetrics(metrics))
//
// Metrics implements the observer interfaces of the keyso, jobs, pipeline,
// cache and events packages.
//
// # Standard Fields
//
//   - run_id: keyword run identifier
//   - niche: niche being researched
//   - job_uid: expansion job handle on the analytics API
//   - base: market dataset name
//   - request_id: HTTP request identifier
//   - component: emitting package
package observability
