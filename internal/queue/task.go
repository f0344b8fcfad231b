package queue

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a task
type Status int

const (
	StatusQueued Status = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

const (
	basePriority = 100
	megabyte     = 1024 * 1024
)

// Submission is the user input accepted by Submit
type Submission struct {
	UserID   int64
	Filename string
	Payload  []byte
}

// Task is a single document translation request
type Task struct {
	ID            string
	UserID        int64
	Payload       []byte
	Filename      string
	Size          int64
	CreatedAt     time.Time
	Priority      int
	EstimatedTime time.Duration
	Status        Status
	StartedAt     time.Time
	CompletedAt   time.Time
	Success       bool
}

func newTask(sub Submission, now time.Time, premiumBonus int) *Task {
	size := int64(len(sub.Payload))
	return &Task{
		ID:            uuid.New().String(),
		UserID:        sub.UserID,
		Payload:       sub.Payload,
		Filename:      sub.Filename,
		Size:          size,
		CreatedAt:     now,
		Priority:      CalculatePriority(size, premiumBonus),
		EstimatedTime: EstimateProcessingTime(size),
		Status:        StatusQueued,
	}
}

// CalculatePriority returns the creation-time priority of a payload.
// Large files are penalised; bonus is added for premium users.
func CalculatePriority(size int64, bonus int) int {
	priority := basePriority + bonus
	switch {
	case size > 10*megabyte:
		priority -= 30
	case size > 5*megabyte:
		priority -= 15
	}
	return priority
}

// EstimateProcessingTime is an advisory per-task estimate: 30s plus 10s per MB.
func EstimateProcessingTime(size int64) time.Duration {
	mb := float64(size) / megabyte
	return 30*time.Second + time.Duration(mb*10*float64(time.Second))
}

func (t *Task) snapshot() *Task {
	c := *t
	return &c
}
