package processor

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"codeberg.org/snonux/doctrans/internal/cache"
	"codeberg.org/snonux/doctrans/internal/extract"
	"codeberg.org/snonux/doctrans/internal/merge"
	"codeberg.org/snonux/doctrans/internal/notify"
	"codeberg.org/snonux/doctrans/internal/queue"
	"codeberg.org/snonux/doctrans/internal/render"
	"codeberg.org/snonux/doctrans/internal/segment"
	"codeberg.org/snonux/doctrans/internal/translation"
	"codeberg.org/snonux/doctrans/internal/workpool"
)

// ChunkTranslator translates single chunks
type ChunkTranslator interface {
	Translate(ctx context.Context, req translation.Request) translation.Result
	// Budget bounds the time spent translating n chunks.
	Budget(n int) time.Duration
}

// Extractor pulls plain text out of a document
type Extractor interface {
	ExtractText(data []byte, filename string) (string, error)
}

// Renderer turns translated text into the output document
type Renderer interface {
	Render(text, originalFilename string) ([]byte, error)
	OutputName(originalFilename string) string
}

// Config holds per-document processing parameters
type Config struct {
	TargetLang string
	// TextType forces a prompt template; empty means detect per document.
	TextType         translation.TextType
	ChunkSize        int
	Overlap          int
	ChunkParallelism int
	CacheTTL         time.Duration
	// OutputDir, when set, receives a copy of every rendered document.
	OutputDir string
}

// DefaultConfig returns the default processing configuration
func DefaultConfig() Config {
	return Config{
		TargetLang:       "ar",
		ChunkSize:        segment.DefaultChunkSize,
		Overlap:          segment.DefaultOverlap,
		ChunkParallelism: 3,
		CacheTTL:         2 * time.Hour,
	}
}

// Deps are the collaborators of a Processor. Cache may be nil.
type Deps struct {
	Translator ChunkTranslator
	Extractor  Extractor
	Renderer   Renderer
	Cache      cache.Store
	Workers    *workpool.Pool
	Sink       notify.Sink
}

// Output is a processed document
type Output struct {
	Data         []byte
	Filename     string
	Path         string
	TextType     translation.TextType
	Text         string
	FailedChunks int
	TotalChunks  int
	Cached       bool
}

// Processor translates documents. It holds no per-task state and is safe
// for concurrent use.
type Processor struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New creates a processor
func New(cfg Config, deps Deps, log *zap.Logger) *Processor {
	def := DefaultConfig()
	if cfg.TargetLang == "" {
		cfg.TargetLang = def.TargetLang
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = def.Overlap
	}
	if cfg.ChunkParallelism <= 0 {
		cfg.ChunkParallelism = def.ChunkParallelism
	}
	if deps.Workers == nil {
		deps.Workers = workpool.New(1)
	}
	if deps.Sink == nil {
		deps.Sink = notify.Multi{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{cfg: cfg, deps: deps, log: log}
}

// Config returns the effective configuration
func (p *Processor) Config() Config {
	return p.cfg
}

// Process translates the payload of task. Isolated chunk failures are
// replaced by placeholders; extraction and rendering failures fail the
// whole document.
func (p *Processor) Process(ctx context.Context, task *queue.Task) (*Output, error) {
	log := p.log.With(zap.String("task_id", task.ID), zap.Int64("user_id", task.UserID))
	key := cache.Key(task.Payload, p.cfg.TargetLang)

	if out, ok := p.cached(ctx, key, task, log); ok {
		p.deps.Sink.NotifyProgress(task.UserID, fmt.Sprintf("%s: found a previous translation", task.Filename))
		return out, p.store(out, task.Filename)
	}

	text, err := workpool.Run(ctx, p.deps.Workers, func() (string, error) {
		return p.deps.Extractor.ExtractText(task.Payload, task.Filename)
	})
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", task.Filename, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("extract %s: %w", task.Filename, extract.ErrNoText)
	}
	p.deps.Sink.NotifyProgress(task.UserID, fmt.Sprintf("%s: extracted %d characters", task.Filename, len([]rune(text))))

	textType := p.cfg.TextType
	if textType == "" {
		textType = translation.DetectTextType(text)
	}

	chunks := segment.New(p.cfg.ChunkSize, p.cfg.Overlap).Segment(text)
	log.Info("document segmented",
		zap.Int("chunks", len(chunks)),
		zap.String("text_type", string(textType)))

	translated, failed, err := p.translateChunks(ctx, chunks, textType)
	if err != nil {
		return nil, err
	}
	if failed > 0 {
		log.Warn("chunks failed", zap.Int("failed", failed), zap.Int("total", len(chunks)))
	}
	p.deps.Sink.NotifyProgress(task.UserID, fmt.Sprintf("%s: translated %d of %d parts", task.Filename, len(chunks)-failed, len(chunks)))

	merger := &merge.Merger{
		Overlap: p.cfg.Overlap,
		Terms:   merge.TermsFor(string(textType), p.cfg.TargetLang),
	}
	merged := merger.Merge(translated)

	data, err := workpool.Run(ctx, p.deps.Workers, func() ([]byte, error) {
		return p.deps.Renderer.Render(merged, task.Filename)
	})
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", task.Filename, err)
	}
	p.deps.Sink.NotifyProgress(task.UserID, fmt.Sprintf("%s: document ready", task.Filename))

	out := &Output{
		Data:         data,
		Filename:     p.deps.Renderer.OutputName(task.Filename),
		TextType:     textType,
		Text:         merged,
		FailedChunks: failed,
		TotalChunks:  len(chunks),
	}

	// Partial translations are not cached so a later upload can retry them.
	if p.deps.Cache != nil && failed == 0 {
		if err := p.deps.Cache.Set(ctx, key, data, p.cfg.CacheTTL); err != nil {
			log.Warn("cache store failed", zap.Error(err))
		}
	}

	return out, p.store(out, task.Filename)
}

func (p *Processor) cached(ctx context.Context, key string, task *queue.Task, log *zap.Logger) (*Output, bool) {
	if p.deps.Cache == nil {
		return nil, false
	}
	data, ok, err := p.deps.Cache.Get(ctx, key)
	if err != nil {
		log.Warn("cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	log.Info("cache hit", zap.String("key", key))
	return &Output{
		Data:     data,
		Filename: p.deps.Renderer.OutputName(task.Filename),
		Cached:   true,
	}, true
}

func (p *Processor) store(out *Output, originalFilename string) error {
	if p.cfg.OutputDir == "" {
		return nil
	}
	path, err := render.WriteOutput(p.cfg.OutputDir, out.Filename, out.Data)
	if err != nil {
		return fmt.Errorf("write output for %s: %w", originalFilename, err)
	}
	out.Path = path
	return nil
}

// translateChunks translates all chunks with bounded parallelism and returns
// the translations in chunk order. Chunks that exhausted every provider are
// replaced by a placeholder.
func (p *Processor) translateChunks(ctx context.Context, chunks []segment.Chunk, textType translation.TextType) ([]string, int, error) {
	budgetCtx, cancel := context.WithTimeout(ctx, p.deps.Translator.Budget(len(chunks)))
	defer cancel()

	results := make([]translation.Result, len(chunks))
	wp := pool.New().WithMaxGoroutines(p.cfg.ChunkParallelism)
	for i, chunk := range chunks {
		wp.Go(func() {
			results[i] = p.deps.Translator.Translate(budgetCtx, translation.Request{
				Index:      chunk.Index,
				Text:       chunk.Text,
				Context:    chunk.Context,
				TextType:   textType,
				TargetLang: p.cfg.TargetLang,
			})
		})
	}
	wp.Wait()

	// A cancelled task is discarded. An exceeded budget only fails the
	// chunks that were still running.
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	// Each text carries the break that followed its chunk in the source so
	// the merger can restore paragraphs and lines.
	texts := make([]string, len(chunks))
	failed := 0
	for i, res := range results {
		text := res.Text
		if res.Err != nil {
			failed++
			text = Placeholder(chunks[i].Text)
		}
		texts[i] = strings.TrimRightFunc(text, unicode.IsSpace) + chunks[i].Break
	}
	return texts, failed, nil
}

const placeholderPreview = 100

// Placeholder is substituted for a chunk no provider could translate.
func Placeholder(original string) string {
	runes := []rune(strings.TrimSpace(original))
	if len(runes) > placeholderPreview {
		runes = runes[:placeholderPreview]
	}
	return fmt.Sprintf("[translation failed for this part: %s...]", string(runes))
}
