// Package http implements the read-only data API that the chart
// frontend consumes. It provides a thin layer between HTTP transport
// and the pipeline's persisted outputs.
//
// Handlers in this package follow these principles:
//
//	1. Thin handlers - they serve files the pipeline already wrote
//	2. HTTP-only concerns - request parsing, response formatting
//	3. Error transformation - filesystem errors become API errors
//
// The API never computes: every response is a snapshot, a metadata
// sidecar, or an estimate file produced by a previous pipeline run.
// Re-running the pipeline is the only way to change what it serves.
package http
