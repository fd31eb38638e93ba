// Package temporal runs keyword research runs as Temporal workflows.
//
// The server starts one workflow per run through RunWorkflowClient, which
// also serves as the run dispatcher when temporal.enabled is set. The worker
// process hosts the workflow and its activities through WorkerManager.
//
// # Layout
//
//   - client.go: connection, workflow start, cancel signal and progress query
//   - worker.go: worker options and lifecycle
//   - activities: the run steps (start, suggest, submit, check, collect,
//     dedup, save, fail) wrapped as activities
//   - workflows: KeywordRunWorkflow, which sequences the activities and
//     polls the expansion job with durable timers
//
// # Error Handling
//
//	if temporal.IsWorkflowAlreadyStarted(err) {
//	    // the run was already dispatched
//	}
package temporal
