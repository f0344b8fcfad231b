package translation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"codeberg.org/snonux/doctrans/internal/credentials"
)

// Credentials hands out API keys and receives the outcome of every call
// made with them.
type Credentials interface {
	GetAvailableKey(service string) (*credentials.Key, bool)
	ReportUsage(key *credentials.Key, success bool)
}

var (
	// ErrExhausted matches every ExhaustedError via errors.Is.
	ErrExhausted = errors.New("all providers exhausted")
	// ErrNoKey is recorded when a service has no usable API key.
	ErrNoKey = errors.New("no available API key")
	// ErrNoProviders is recorded when the pipeline has no backends at all.
	ErrNoProviders = errors.New("no translation providers configured")
)

// ExhaustedError is returned when every provider failed for one chunk.
type ExhaustedError struct {
	Chunk    int
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("chunk %d: all providers exhausted after %d attempts: %v", e.Chunk, e.Attempts, e.Last)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Defaults applied to zero Options fields
const (
	DefaultMaxRetries       = 3
	DefaultTimeout          = 30 * time.Second
	DefaultBackoffBase      = time.Second
	DefaultBreakerThreshold = 10
	DefaultBreakerCooldown  = time.Minute
)

// Options configures retries and timeouts
type Options struct {
	// MaxRetries is the number of attempts per provider before falling back.
	MaxRetries int
	// Timeout bounds a single provider call.
	Timeout time.Duration
	// BackoffBase is the wait before the second attempt; it doubles after
	// every further failure.
	BackoffBase time.Duration
	// BreakerThreshold trips a service's circuit breaker after this many
	// consecutive failures across all tasks.
	BreakerThreshold uint32
	// BreakerCooldown is how long an open breaker rejects calls.
	BreakerCooldown time.Duration
}

func (o Options) effectiveMaxRetries() int {
	if o.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return o.MaxRetries
}

func (o Options) effectiveTimeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

func (o Options) effectiveBackoffBase() time.Duration {
	if o.BackoffBase <= 0 {
		return DefaultBackoffBase
	}
	return o.BackoffBase
}

func (o Options) effectiveBreakerThreshold() uint32 {
	if o.BreakerThreshold == 0 {
		return DefaultBreakerThreshold
	}
	return o.BreakerThreshold
}

func (o Options) effectiveBreakerCooldown() time.Duration {
	if o.BreakerCooldown <= 0 {
		return DefaultBreakerCooldown
	}
	return o.BreakerCooldown
}

// Request is one chunk to translate
type Request struct {
	Index      int
	Text       string
	Context    string
	TextType   TextType
	TargetLang string
}

// Result is the outcome of translating one chunk
type Result struct {
	Index    int
	Text     string
	Provider string
	Attempts int
	Err      error
}

// Pipeline translates chunks through a ranked list of backends. It is safe
// for concurrent use.
type Pipeline struct {
	backends []Backend
	creds    Credentials
	opts     Options
	breakers map[string]*gobreaker.CircuitBreaker
	sleep    func(ctx context.Context, d time.Duration) error
	log      *zap.Logger
}

// NewPipeline creates a pipeline. Backends are tried in the given order.
func NewPipeline(backends []Backend, creds Credentials, opts Options, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker, len(backends))
	threshold := opts.effectiveBreakerThreshold()
	for _, b := range backends {
		service := b.Service
		breakers[service] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    service,
			Timeout: opts.effectiveBreakerCooldown(),
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				// A cancelled task says nothing about the provider.
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit breaker state changed",
					zap.String("service", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}

	return &Pipeline{
		backends: backends,
		creds:    creds,
		opts:     opts,
		breakers: breakers,
		sleep:    sleepContext,
		log:      log,
	}
}

// Services returns the backend services in fallback order
func (p *Pipeline) Services() []string {
	services := make([]string, len(p.backends))
	for i, b := range p.backends {
		services[i] = b.Service
	}
	return services
}

// Options returns the pipeline options
func (p *Pipeline) Options() Options {
	return p.opts
}

// Budget bounds the translation of chunks chunks: every provider may use
// all its attempts on every chunk. The result is at least one call timeout.
func (p *Pipeline) Budget(chunks int) time.Duration {
	timeout := p.opts.effectiveTimeout()
	perChunk := timeout * time.Duration(p.opts.effectiveMaxRetries()+1) * time.Duration(max(len(p.backends), 1))
	return max(perChunk*time.Duration(chunks), timeout)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeRetry
	outcomeFallback
	outcomeExhausted
)

// outcome is what one attempt tells the driving loop to do next.
type outcome struct {
	kind  outcomeKind
	text  string
	delay time.Duration
	next  int
	err   error
}

// Translate translates one chunk. The error of a failed Result is an
// *ExhaustedError.
func (p *Pipeline) Translate(ctx context.Context, req Request) Result {
	res := Result{Index: req.Index}
	if len(p.backends) == 0 {
		res.Err = &ExhaustedError{Chunk: req.Index, Last: ErrNoProviders}
		return res
	}

	instructions := Instructions(req.TextType, req.TargetLang)
	text := PromptText(req.Context, req.Text)

	current, attempt := 0, 1
	for {
		res.Attempts++
		out := p.attempt(ctx, req.Index, current, attempt, instructions, text)

		switch out.kind {
		case outcomeSuccess:
			res.Text = out.text
			res.Provider = p.backends[current].Service
			return res

		case outcomeRetry:
			p.log.Debug("retrying provider",
				zap.String("service", p.backends[current].Service),
				zap.Int("chunk", req.Index),
				zap.Int("attempt", attempt),
				zap.Duration("delay", out.delay))
			if err := p.sleep(ctx, out.delay); err != nil {
				res.Err = &ExhaustedError{Chunk: req.Index, Attempts: res.Attempts, Last: err}
				return res
			}
			attempt++

		case outcomeFallback:
			p.log.Info("falling back to next provider",
				zap.String("from", p.backends[current].Service),
				zap.String("to", p.backends[out.next].Service),
				zap.Int("chunk", req.Index),
				zap.Error(out.err))
			current, attempt = out.next, 1

		case outcomeExhausted:
			p.log.Warn("chunk translation failed",
				zap.Int("chunk", req.Index),
				zap.Int("attempts", res.Attempts),
				zap.Error(out.err))
			res.Err = &ExhaustedError{Chunk: req.Index, Attempts: res.Attempts, Last: out.err}
			return res
		}
	}
}

// attempt makes one call to backend idx and decides the next step.
func (p *Pipeline) attempt(ctx context.Context, chunk, idx, attempt int, instructions, text string) outcome {
	backend := p.backends[idx]
	translated, err := p.call(ctx, backend, instructions, text)
	if err == nil {
		return outcome{kind: outcomeSuccess, text: translated}
	}

	p.log.Debug("provider call failed",
		zap.String("service", backend.Service),
		zap.Int("chunk", chunk),
		zap.Int("attempt", attempt),
		zap.Error(err))

	if ctx.Err() != nil {
		return outcome{kind: outcomeExhausted, err: ctx.Err()}
	}

	// Retrying cannot help without a key or while the breaker is open.
	retryable := !errors.Is(err, ErrNoKey) &&
		!errors.Is(err, gobreaker.ErrOpenState) &&
		!errors.Is(err, gobreaker.ErrTooManyRequests)

	if retryable && attempt < p.opts.effectiveMaxRetries() {
		return outcome{kind: outcomeRetry, delay: p.backoff(attempt), err: err}
	}
	if idx+1 < len(p.backends) {
		return outcome{kind: outcomeFallback, next: idx + 1, err: err}
	}
	return outcome{kind: outcomeExhausted, err: err}
}

// backoff returns BackoffBase * 2^(attempt-1).
func (p *Pipeline) backoff(attempt int) time.Duration {
	return p.opts.effectiveBackoffBase() << (attempt - 1)
}

// call performs a single provider request through the service's breaker
// and reports the outcome for the key that was used.
func (p *Pipeline) call(ctx context.Context, backend Backend, instructions, text string) (string, error) {
	key, ok := p.creds.GetAvailableKey(backend.Service)
	if !ok {
		return "", fmt.Errorf("%s: %w", backend.Service, ErrNoKey)
	}

	called := false
	result, err := p.breakers[backend.Service].Execute(func() (interface{}, error) {
		called = true
		provider, err := backend.Connect(key.Value)
		if err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, p.opts.effectiveTimeout())
		defer cancel()
		return provider.Translate(callCtx, instructions, text)
	})

	if called {
		p.creds.ReportUsage(key, err == nil)
	}
	if err != nil {
		return "", err
	}
	return result.(string), nil
}
