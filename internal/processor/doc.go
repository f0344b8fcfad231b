// Package processor runs one document through the translation steps:
// cache lookup, text extraction, segmentation, chunk translation, merging,
// rendering and storing the result. It reports progress to a notification
// sink at fixed checkpoints. Scheduling, admission and task bookkeeping
// belong to the scheduler and queue packages.
package processor
