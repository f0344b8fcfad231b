package queue

import "time"

// aggregate is a running sum and count; the mean is derived on read.
type aggregate struct {
	sum   time.Duration
	count int64
}

func (a *aggregate) add(d time.Duration) {
	if d < 0 {
		return
	}
	a.sum += d
	a.count++
}

func (a aggregate) mean() time.Duration {
	if a.count == 0 {
		return 0
	}
	return a.sum / time.Duration(a.count)
}

// history is a fixed-capacity ring of finished tasks, oldest overwritten first.
type history struct {
	items []*Task
	next  int
	full  bool
}

func newHistory(size int) *history {
	if size <= 0 {
		size = 1
	}
	return &history{items: make([]*Task, size)}
}

func (h *history) push(t *Task) {
	h.items[h.next] = t
	h.next = (h.next + 1) % len(h.items)
	if h.next == 0 {
		h.full = true
	}
}

func (h *history) len() int {
	if h.full {
		return len(h.items)
	}
	return h.next
}

// list returns the recorded tasks, oldest first.
func (h *history) list() []*Task {
	if !h.full {
		return append([]*Task(nil), h.items[:h.next]...)
	}
	out := make([]*Task, 0, len(h.items))
	out = append(out, h.items[h.next:]...)
	return append(out, h.items[:h.next]...)
}
