// Package queue implements the in-memory task queue: admission control
// against per-user and global limits, a priority tier and a main FIFO tier,
// lifecycle tracking of processing tasks and a bounded completion history.
// State is best-effort and does not survive a process restart.
package queue
