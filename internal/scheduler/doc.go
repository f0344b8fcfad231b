// Package scheduler drives queued tasks through the processor. A single
// loop polls the queue, starts one goroutine per dequeued task and idles
// when nothing can be dequeued. Task failures and panics are isolated from
// the loop and from each other, and every dequeued task is completed so
// its concurrency slot is always released. The loop also resets the daily
// quotas at local midnight.
package scheduler
