// Package server exposes the task queue over HTTP: document intake, task
// and queue status, cancellation, per-user progress messages and results,
// plus health, readiness and statistics endpoints.
package server
