package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrAdmission matches every AdmissionError via errors.Is.
	ErrAdmission = errors.New("admission rejected")
	// ErrNotFound is returned for task IDs the queue does not track.
	ErrNotFound = errors.New("task not found")
)

// AdmissionError is returned by Submit when a user quota is exhausted.
type AdmissionError struct {
	UserID int64
	Reason string
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("user %d: %s", e.UserID, e.Reason)
}

func (e *AdmissionError) Is(target error) bool {
	return target == ErrAdmission
}

// Config holds queue limits and routing parameters
type Config struct {
	PerUserConcurrent int
	PerUserDaily      int
	GlobalConcurrent  int
	HistorySize       int
	// PriorityThreshold routes tasks whose priority exceeds it to the priority tier.
	PriorityThreshold int
	// PremiumBonus is added to the priority of tasks from PremiumUsers.
	PremiumBonus      int
	PremiumUsers      []int64
	AvgProcessingTime time.Duration
}

// DefaultConfig returns the default queue configuration
func DefaultConfig() Config {
	return Config{
		PerUserConcurrent: 3,
		PerUserDaily:      50,
		GlobalConcurrent:  10,
		HistorySize:       1000,
		PriorityThreshold: 150,
		PremiumBonus:      60,
		AvgProcessingTime: 45 * time.Second,
	}
}

type userCounters struct {
	concurrent int
	daily      int
}

// TaskQueue manages queued and processing tasks. All counters are owned
// by the queue and only mutated by its own methods.
type TaskQueue struct {
	cfg     Config
	premium map[int64]bool

	priority   []*Task
	main       []*Task
	processing map[string]*Task
	users      map[int64]*userCounters
	completed  *history

	waitTime       aggregate
	processingTime aggregate

	now func() time.Time
	log *zap.Logger
	mu  sync.RWMutex
}

// New creates a new task queue
func New(cfg Config, log *zap.Logger) *TaskQueue {
	def := DefaultConfig()
	if cfg.PerUserConcurrent <= 0 {
		cfg.PerUserConcurrent = def.PerUserConcurrent
	}
	if cfg.PerUserDaily <= 0 {
		cfg.PerUserDaily = def.PerUserDaily
	}
	if cfg.GlobalConcurrent <= 0 {
		cfg.GlobalConcurrent = def.GlobalConcurrent
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.PriorityThreshold <= 0 {
		cfg.PriorityThreshold = def.PriorityThreshold
	}
	if cfg.AvgProcessingTime <= 0 {
		cfg.AvgProcessingTime = def.AvgProcessingTime
	}
	if log == nil {
		log = zap.NewNop()
	}

	premium := make(map[int64]bool, len(cfg.PremiumUsers))
	for _, id := range cfg.PremiumUsers {
		premium[id] = true
	}

	return &TaskQueue{
		cfg:        cfg,
		premium:    premium,
		processing: make(map[string]*Task),
		users:      make(map[int64]*userCounters),
		completed:  newHistory(cfg.HistorySize),
		now:        time.Now,
		log:        log,
	}
}

// Config returns the effective queue configuration
func (q *TaskQueue) Config() Config {
	return q.cfg
}

// Submit admits a new task or rejects it without side effects.
func (q *TaskQueue) Submit(sub Submission) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	counters := q.users[sub.UserID]
	if counters == nil {
		counters = &userCounters{}
	}
	if counters.daily >= q.cfg.PerUserDaily {
		return "", &AdmissionError{UserID: sub.UserID, Reason: fmt.Sprintf("daily limit of %d tasks reached", q.cfg.PerUserDaily)}
	}
	if counters.concurrent >= q.cfg.PerUserConcurrent {
		return "", &AdmissionError{UserID: sub.UserID, Reason: fmt.Sprintf("concurrent limit of %d tasks reached", q.cfg.PerUserConcurrent)}
	}

	bonus := 0
	if q.premium[sub.UserID] {
		bonus = q.cfg.PremiumBonus
	}
	task := newTask(sub, q.now(), bonus)

	if task.Priority > q.cfg.PriorityThreshold {
		q.priority = append(q.priority, task)
	} else {
		q.main = append(q.main, task)
	}

	counters.concurrent++
	counters.daily++
	q.users[sub.UserID] = counters

	q.log.Info("task queued",
		zap.String("task_id", task.ID),
		zap.Int64("user_id", task.UserID),
		zap.Int("priority", task.Priority),
		zap.Int64("size", task.Size))
	return task.ID, nil
}

// Dequeue pops the next task, priority tier first, and marks it processing.
// It returns nil when the global cap is reached or both tiers are empty.
func (q *TaskQueue) Dequeue() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.processing) >= q.cfg.GlobalConcurrent {
		return nil
	}

	var task *Task
	switch {
	case len(q.priority) > 0:
		task, q.priority = q.priority[0], q.priority[1:]
	case len(q.main) > 0:
		task, q.main = q.main[0], q.main[1:]
	default:
		return nil
	}

	task.Status = StatusProcessing
	task.StartedAt = q.now()
	q.processing[task.ID] = task
	return task.snapshot()
}

// Complete finishes a processing task and releases its user slot.
// A task cancelled while processing stays cancelled. History keeps the
// task without its payload.
func (q *TaskQueue) Complete(id string, success bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.processing[id]
	if !ok {
		return fmt.Errorf("complete %s: %w", id, ErrNotFound)
	}
	delete(q.processing, id)

	task.CompletedAt = q.now()
	task.Success = success && task.Status != StatusCancelled
	if task.Status != StatusCancelled {
		if success {
			task.Status = StatusCompleted
		} else {
			task.Status = StatusFailed
		}
	}
	q.release(task.UserID)
	q.waitTime.add(task.CompletedAt.Sub(task.CreatedAt))
	q.processingTime.add(task.CompletedAt.Sub(task.StartedAt))
	task.Payload = nil
	q.completed.push(task)

	q.log.Info("task finished",
		zap.String("task_id", id),
		zap.String("status", task.Status.String()),
		zap.Duration("elapsed", task.CompletedAt.Sub(task.StartedAt)))
	return nil
}

// Cancel removes a queued task immediately. A processing task is marked
// cancelled and its slot is released when Complete is called for it.
// The returned status is the state the task was in before cancellation.
func (q *TaskQueue) Cancel(id string) (Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if task, ok := q.processing[id]; ok {
		if task.Status == StatusCancelled {
			return StatusCancelled, nil
		}
		task.Status = StatusCancelled
		q.log.Info("processing task marked cancelled", zap.String("task_id", id))
		return StatusProcessing, nil
	}

	for _, tier := range []*[]*Task{&q.priority, &q.main} {
		for i, task := range *tier {
			if task.ID != id {
				continue
			}
			*tier = append((*tier)[:i:i], (*tier)[i+1:]...)
			task.Status = StatusCancelled
			task.CompletedAt = q.now()
			q.release(task.UserID)
			task.Payload = nil
			q.completed.push(task)
			q.log.Info("queued task cancelled", zap.String("task_id", id))
			return StatusQueued, nil
		}
	}

	return 0, fmt.Errorf("cancel %s: %w", id, ErrNotFound)
}

func (q *TaskQueue) release(userID int64) {
	if counters, ok := q.users[userID]; ok && counters.concurrent > 0 {
		counters.concurrent--
	}
}

// PositionOf returns the 1-based queue position of a task, 0 when it is
// processing, and false when the queue does not hold it.
func (q *TaskQueue) PositionOf(id string) (int, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for i, task := range q.priority {
		if task.ID == id {
			return i + 1, true
		}
	}
	for i, task := range q.main {
		if task.ID == id {
			return len(q.priority) + i + 1, true
		}
	}
	if _, ok := q.processing[id]; ok {
		return 0, true
	}
	return 0, false
}

// UserPosition returns the best queue position among a user's queued tasks.
// A user with nothing queued but something processing is at position 0.
func (q *TaskQueue) UserPosition(userID int64) (int, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for i, task := range q.priority {
		if task.UserID == userID {
			return i + 1, true
		}
	}
	for i, task := range q.main {
		if task.UserID == userID {
			return len(q.priority) + i + 1, true
		}
	}
	for _, task := range q.processing {
		if task.UserID == userID {
			return 0, true
		}
	}
	return 0, false
}

// EstimateWait converts a queue position into an advisory wait time.
func (q *TaskQueue) EstimateWait(position int) time.Duration {
	if position <= 0 {
		return 0
	}
	return time.Duration(position) * q.cfg.AvgProcessingTime
}

// WaitText renders a position as a human readable wait estimate.
func (q *TaskQueue) WaitText(position int) string {
	if position == 0 {
		return "processing now"
	}
	wait := q.EstimateWait(position)
	switch {
	case wait < time.Minute:
		return "less than a minute"
	case wait < time.Hour:
		return fmt.Sprintf("about %d minutes", int(wait/time.Minute))
	default:
		return fmt.Sprintf("about %d hours", int(wait/time.Hour))
	}
}

// Get returns a snapshot of a queued, processing or recently finished task.
func (q *TaskQueue) Get(id string) (*Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if task, ok := q.processing[id]; ok {
		return task.snapshot(), true
	}
	for _, task := range append(append([]*Task(nil), q.priority...), q.main...) {
		if task.ID == id {
			return task.snapshot(), true
		}
	}
	items := q.completed.list()
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].ID == id {
			return items[i].snapshot(), true
		}
	}
	return nil, false
}

// UserActiveTasks returns snapshots of a user's queued and processing tasks.
func (q *TaskQueue) UserActiveTasks(userID int64) []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var tasks []*Task
	for _, task := range q.priority {
		if task.UserID == userID {
			tasks = append(tasks, task.snapshot())
		}
	}
	for _, task := range q.main {
		if task.UserID == userID {
			tasks = append(tasks, task.snapshot())
		}
	}
	for _, task := range q.processing {
		if task.UserID == userID {
			tasks = append(tasks, task.snapshot())
		}
	}
	return tasks
}

// UserCounters returns the concurrent and daily counters of a user.
func (q *TaskQueue) UserCounters(userID int64) (concurrent, daily int) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if counters, ok := q.users[userID]; ok {
		return counters.concurrent, counters.daily
	}
	return 0, 0
}

// HasPending reports whether any task is waiting in either tier.
func (q *TaskQueue) HasPending() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.priority) > 0 || len(q.main) > 0
}

// History returns finished tasks, oldest first.
func (q *TaskQueue) History() []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	items := q.completed.list()
	out := make([]*Task, len(items))
	for i, task := range items {
		out[i] = task.snapshot()
	}
	return out
}

// ResetDailyLimits zeroes every user's daily counter.
func (q *TaskQueue) ResetDailyLimits() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for id, counters := range q.users {
		counters.daily = 0
		if counters.concurrent == 0 {
			delete(q.users, id)
		}
	}
	q.log.Info("daily queue limits reset")
}

// Sizes holds the lengths of the queue tiers
type Sizes struct {
	Priority   int `json:"priority"`
	Main       int `json:"main"`
	Processing int `json:"processing"`
	Total      int `json:"total"`
}

// Stats is a point-in-time summary of the queue
type Stats struct {
	Sizes             Sizes         `json:"queue_sizes"`
	CompletedToday    int           `json:"completed_today"`
	SuccessRate       float64       `json:"success_rate"`
	ActiveUsers       int           `json:"active_users"`
	AvgWaitTime       time.Duration `json:"avg_wait_time"`
	AvgProcessingTime time.Duration `json:"avg_processing_time"`
	HistoryLength     int           `json:"history_length"`
}

// Stats returns queue statistics
func (q *TaskQueue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	now := q.now()
	y, m, d := now.Date()
	completedToday, successToday := 0, 0
	for _, task := range q.completed.list() {
		ty, tm, td := task.CompletedAt.Date()
		if ty != y || tm != m || td != d {
			continue
		}
		completedToday++
		if task.Success {
			successToday++
		}
	}

	rate := 0.0
	if completedToday > 0 {
		rate = float64(successToday) / float64(completedToday) * 100
	}

	return Stats{
		Sizes: Sizes{
			Priority:   len(q.priority),
			Main:       len(q.main),
			Processing: len(q.processing),
			Total:      len(q.priority) + len(q.main) + len(q.processing),
		},
		CompletedToday:    completedToday,
		SuccessRate:       rate,
		ActiveUsers:       len(q.users),
		AvgWaitTime:       q.waitTime.mean(),
		AvgProcessingTime: q.processingTime.mean(),
		HistoryLength:     q.completed.len(),
	}
}
