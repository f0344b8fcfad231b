// Package cache stores finished translations keyed by the content hash of
// the uploaded document, so resubmitting the same file skips the pipeline.
// Backends: in-memory LRU, SQLite and Redis.
package cache
