package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"codeberg.org/snonux/doctrans/internal/extract"
	"codeberg.org/snonux/doctrans/internal/notify"
	"codeberg.org/snonux/doctrans/internal/processor"
	"codeberg.org/snonux/doctrans/internal/queue"
	"codeberg.org/snonux/doctrans/internal/render"
)

// Processor handles a single task
type Processor interface {
	Process(ctx context.Context, task *queue.Task) (*processor.Output, error)
}

// ProcessorFunc adapts a function to the Processor interface
type ProcessorFunc func(ctx context.Context, task *queue.Task) (*processor.Output, error)

func (f ProcessorFunc) Process(ctx context.Context, task *queue.Task) (*processor.Output, error) {
	return f(ctx, task)
}

// errInternal replaces panics and unexpected errors in user messages.
var errInternal = errors.New("internal error")

// Config holds scheduler settings
type Config struct {
	// IdleInterval is how long the loop sleeps when nothing can be dequeued
	// and no submission or completion wakes it earlier.
	IdleInterval time.Duration
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{IdleInterval: 5 * time.Second}
}

// Scheduler runs queued tasks
type Scheduler struct {
	q    *queue.TaskQueue
	proc Processor
	sink notify.Sink
	cfg  Config
	log  *zap.Logger

	wake chan struct{}
	now  func() time.Time

	mu        sync.Mutex
	running   map[string]context.CancelFunc
	resetters []func()
}

// New creates a scheduler
func New(q *queue.TaskQueue, proc Processor, sink notify.Sink, cfg Config, log *zap.Logger) *Scheduler {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultConfig().IdleInterval
	}
	if sink == nil {
		sink = notify.Multi{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		q:       q,
		proc:    proc,
		sink:    sink,
		cfg:     cfg,
		log:     log,
		wake:    make(chan struct{}, 1),
		now:     time.Now,
		running: make(map[string]context.CancelFunc),
	}
}

// OnDailyReset registers fn to run at local midnight after the queue's
// daily limits are reset.
func (s *Scheduler) OnDailyReset(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetters = append(s.resetters, fn)
}

// Submit admits a task, tells the user where it is queued and wakes the
// loop. Admission errors are returned unchanged.
func (s *Scheduler) Submit(sub queue.Submission) (string, error) {
	id, err := s.q.Submit(sub)
	if err != nil {
		return "", err
	}

	if pos, ok := s.q.PositionOf(id); ok {
		s.sink.NotifyProgress(sub.UserID, fmt.Sprintf("%s: queued at position %d, estimated wait %s",
			sub.Filename, pos, s.q.WaitText(pos)))
	}
	s.signal()
	return id, nil
}

// Cancel cancels a task. A processing task has its context cancelled; its
// slot is released once the processor returns.
func (s *Scheduler) Cancel(id string) (queue.Status, error) {
	prev, err := s.q.Cancel(id)
	if err != nil {
		return prev, err
	}

	if prev == queue.StatusProcessing {
		s.mu.Lock()
		cancel := s.running[id]
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
	if task, ok := s.q.Get(id); ok {
		s.sink.NotifyProgress(task.UserID, fmt.Sprintf("%s: cancelled", task.Filename))
	}
	return prev, nil
}

// Running returns the number of tasks currently being processed
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run polls the queue until ctx is cancelled, then waits for running tasks
// to return.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg conc.WaitGroup
	defer wg.Wait()

	s.log.Info("scheduler started", zap.Duration("idle_interval", s.cfg.IdleInterval))

	reset := time.NewTimer(nextMidnight(s.now()).Sub(s.now()))
	defer reset.Stop()

	for {
		for ctx.Err() == nil {
			task := s.q.Dequeue()
			if task == nil {
				break
			}
			wg.Go(func() { s.runTask(ctx, task) })
		}

		idle := time.NewTimer(s.cfg.IdleInterval)
		select {
		case <-ctx.Done():
			idle.Stop()
			s.log.Info("scheduler stopping, waiting for running tasks", zap.Int("running", s.Running()))
			return nil
		case <-s.wake:
		case <-idle.C:
		case <-reset.C:
			s.resetDaily()
			reset.Reset(nextMidnight(s.now()).Sub(s.now()))
		}
		idle.Stop()
	}
}

func (s *Scheduler) resetDaily() {
	s.q.ResetDailyLimits()

	s.mu.Lock()
	resetters := append([]func(){}, s.resetters...)
	s.mu.Unlock()
	for _, fn := range resetters {
		fn()
	}
	s.log.Info("daily limits reset")
}

// nextMidnight returns the first local midnight after t
func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// runTask processes one dequeued task. It never panics and always
// completes the task in the queue.
func (s *Scheduler) runTask(parent context.Context, task *queue.Task) {
	log := s.log.With(zap.String("task_id", task.ID), zap.Int64("user_id", task.UserID))
	ctx, cancel := context.WithCancel(parent)

	s.mu.Lock()
	s.running[task.ID] = cancel
	s.mu.Unlock()

	completed := false
	complete := func(success bool) {
		if completed {
			return
		}
		completed = true

		s.mu.Lock()
		delete(s.running, task.ID)
		s.mu.Unlock()
		cancel()

		if err := s.q.Complete(task.ID, success); err != nil {
			log.Error("failed to complete task", zap.Error(err))
		}
		s.signal()
	}
	defer complete(false)

	var (
		out *processor.Output
		err error
	)
	var pc panics.Catcher
	pc.Try(func() {
		s.sink.NotifyProgress(task.UserID, fmt.Sprintf("%s: processing started", task.Filename))
		out, err = s.proc.Process(ctx, task)
	})
	if r := pc.Recovered(); r != nil {
		log.Error("task panicked", zap.Error(r.AsError()), zap.ByteString("stack", r.Stack))
		out, err = nil, errInternal
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errInternal) {
		log.Warn("task failed", zap.Error(err))
	}

	complete(err == nil)

	result := notify.Result{TaskID: task.ID, Filename: task.Filename}
	if snap, ok := s.q.Get(task.ID); ok && snap.Status == queue.StatusCancelled {
		result.Error = UserMessage(context.Canceled)
		s.sink.NotifyResult(task.UserID, result)
		return
	}

	if err != nil {
		result.Error = UserMessage(err)
		s.sink.NotifyResult(task.UserID, result)
		return
	}

	result.Success = true
	result.Filename = out.Filename
	result.Cached = out.Cached
	result.OutputPath = out.Path
	result.FailedChunks = out.FailedChunks
	result.TotalChunks = out.TotalChunks
	result.Data = out.Data
	s.sink.NotifyResult(task.UserID, result)
}

// UserMessage maps a task error to the text shown to the user.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, extract.ErrNoText):
		return "the document contains no translatable text"
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return "this file format is not supported"
	case errors.Is(err, extract.ErrTooLarge):
		return "the document is too large"
	case errors.Is(err, render.ErrRender):
		return "the translated document could not be produced"
	case errors.Is(err, context.Canceled):
		return "the task was cancelled"
	default:
		return "an internal error occurred, please try again later"
	}
}
