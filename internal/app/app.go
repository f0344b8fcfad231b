package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"codeberg.org/snonux/doctrans/internal/cache"
	"codeberg.org/snonux/doctrans/internal/credentials"
	"codeberg.org/snonux/doctrans/internal/extract"
	"codeberg.org/snonux/doctrans/internal/notify"
	"codeberg.org/snonux/doctrans/internal/processor"
	"codeberg.org/snonux/doctrans/internal/queue"
	"codeberg.org/snonux/doctrans/internal/render"
	"codeberg.org/snonux/doctrans/internal/scheduler"
	"codeberg.org/snonux/doctrans/internal/translation"
	"codeberg.org/snonux/doctrans/internal/workpool"
)

// App holds the collaborators of a running doctrans instance
type App struct {
	Settings  Settings
	Keys      *credentials.Pool
	Pipeline  *translation.Pipeline
	Cache     cache.Store
	Queue     *queue.TaskQueue
	Processor *processor.Processor
	Scheduler *scheduler.Scheduler
	Inbox     *notify.Inbox

	log *zap.Logger
}

// New wires the application. Services without keys are left out of the
// fallback order.
func New(ctx context.Context, s Settings, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	order := make([]string, len(s.Providers))
	for i, p := range s.Providers {
		order[i] = p.Service
	}
	keys := credentials.NewPool(order, log.Named("credentials"))

	var backends []translation.Backend
	for _, p := range s.Providers {
		if keys.Add(p.Service, p.DailyLimit, p.Keys...) == 0 {
			continue
		}
		backend, err := translation.NewBackend(p.Service, translation.ProviderConfig{Model: p.Model, BaseURL: p.BaseURL})
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.Service, err)
		}
		backends = append(backends, backend)
	}
	if len(backends) == 0 {
		log.Warn("no translation provider keys configured, every chunk will fail")
	}
	pipeline := translation.NewPipeline(backends, keys, s.Translation, log.Named("translation"))

	renderer, err := render.New(s.OutputFormat, s.Processing.TargetLang)
	if err != nil {
		return nil, err
	}

	store, err := cache.Open(ctx, s.Cache, log.Named("cache"))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	inbox := notify.NewInbox(0)
	sink := notify.Multi{notify.NewLogSink(log.Named("notify")), inbox}

	processingCfg := s.Processing
	if processingCfg.CacheTTL <= 0 {
		processingCfg.CacheTTL = s.Cache.TTL
	}
	proc := processor.New(processingCfg, processor.Deps{
		Translator: pipeline,
		Extractor:  extract.Extractor{MaxBytes: s.MaxFileSize},
		Renderer:   renderer,
		Cache:      store,
		Workers:    workpool.New(s.Workers),
		Sink:       sink,
	}, log.Named("processor"))

	q := queue.New(s.Queue, log.Named("queue"))
	sched := scheduler.New(q, proc, sink, s.Scheduler, log.Named("scheduler"))
	sched.OnDailyReset(keys.ResetDaily)

	log.Info("application ready",
		zap.Strings("providers", pipeline.Services()),
		zap.String("cache", s.Cache.Backend),
		zap.String("target_lang", proc.Config().TargetLang))

	a := &App{
		Settings:  s,
		Keys:      keys,
		Pipeline:  pipeline,
		Cache:     store,
		Queue:     q,
		Processor: proc,
		Scheduler: sched,
		Inbox:     inbox,
		log:       log,
	}
	sched.OnDailyReset(a.purgeExpired)
	return a, nil
}

const purgeTimeout = 30 * time.Second

// purgeExpired drops expired cache entries from stores that keep them
func (a *App) purgeExpired() {
	p, ok := a.Cache.(cache.Purger)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()
	n, err := p.Purge(ctx)
	if err != nil {
		a.log.Warn("cache purge failed", zap.Error(err))
		return
	}
	a.log.Info("expired cache entries purged", zap.Int64("removed", n))
}

// Run runs the scheduler until ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	return a.Scheduler.Run(ctx)
}

// Close releases the cache
func (a *App) Close() error {
	return a.Cache.Close()
}
