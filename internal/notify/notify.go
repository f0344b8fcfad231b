// Package notify delivers task progress and results to users.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Result is the final message of a task
type Result struct {
	TaskID       string `json:"task_id"`
	Filename     string `json:"filename"`
	Success      bool   `json:"success"`
	Cached       bool   `json:"cached,omitempty"`
	OutputPath   string `json:"output_path,omitempty"`
	Error        string `json:"error,omitempty"`
	FailedChunks int    `json:"failed_chunks"`
	TotalChunks  int    `json:"total_chunks"`
	Data         []byte `json:"-"`
}

// Sink receives notifications. Implementations must be safe for
// concurrent use and must not block for long.
type Sink interface {
	NotifyProgress(userID int64, message string)
	NotifyResult(userID int64, result Result)
}

// LogSink writes notifications to a zap logger
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) NotifyProgress(userID int64, message string) {
	s.log.Info(message, zap.Int64("user_id", userID))
}

func (s *LogSink) NotifyResult(userID int64, result Result) {
	fields := []zap.Field{
		zap.Int64("user_id", userID),
		zap.String("task_id", result.TaskID),
		zap.Bool("success", result.Success),
		zap.Int("failed_chunks", result.FailedChunks),
		zap.Int("total_chunks", result.TotalChunks),
	}
	if result.Error != "" {
		s.log.Warn("task failed", append(fields, zap.String("error", result.Error))...)
		return
	}
	s.log.Info("task result", fields...)
}

// Message is one progress line kept by an Inbox
type Message struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Inbox keeps the most recent messages and results per user so they can be
// polled over HTTP.
type Inbox struct {
	mu       sync.Mutex
	limit    int
	messages map[int64][]Message
	results  map[int64]map[string]Result
	// order holds each user's result task IDs, oldest first.
	order map[int64][]string
	now   func() time.Time
}

// NewInbox creates an inbox keeping at most limit messages and limit
// results per user. The oldest entries are evicted first.
func NewInbox(limit int) *Inbox {
	if limit <= 0 {
		limit = 50
	}
	return &Inbox{
		limit:    limit,
		messages: make(map[int64][]Message),
		results:  make(map[int64]map[string]Result),
		order:    make(map[int64][]string),
		now:      time.Now,
	}
}

func (in *Inbox) NotifyProgress(userID int64, message string) {
	in.mu.Lock()
	defer in.mu.Unlock()

	msgs := append(in.messages[userID], Message{Time: in.now(), Text: message})
	if len(msgs) > in.limit {
		msgs = msgs[len(msgs)-in.limit:]
	}
	in.messages[userID] = msgs
}

func (in *Inbox) NotifyResult(userID int64, result Result) {
	in.mu.Lock()
	defer in.mu.Unlock()

	results := in.results[userID]
	if results == nil {
		results = make(map[string]Result)
		in.results[userID] = results
	}
	if _, ok := results[result.TaskID]; !ok {
		in.order[userID] = append(in.order[userID], result.TaskID)
	}
	results[result.TaskID] = result

	if order := in.order[userID]; len(order) > in.limit {
		evict := len(order) - in.limit
		for _, id := range order[:evict] {
			delete(results, id)
		}
		in.order[userID] = append([]string(nil), order[evict:]...)
	}
}

// Messages returns a user's messages, oldest first
func (in *Inbox) Messages(userID int64) []Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]Message(nil), in.messages[userID]...)
}

// Result returns a user's result for taskID
func (in *Inbox) Result(userID int64, taskID string) (Result, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	res, ok := in.results[userID][taskID]
	return res, ok
}

// Multi fans notifications out to several sinks
type Multi []Sink

func (m Multi) NotifyProgress(userID int64, message string) {
	for _, s := range m {
		s.NotifyProgress(userID, message)
	}
}

func (m Multi) NotifyResult(userID int64, result Result) {
	for _, s := range m {
		s.NotifyResult(userID, result)
	}
}
