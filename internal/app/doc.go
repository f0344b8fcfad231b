// Package app builds the application context: one explicitly constructed
// set of collaborators (key pool, translation pipeline, cache, queue,
// processor, scheduler and notification sinks) shared by the HTTP server
// and the CLI. Nothing in it is process-global.
package app
