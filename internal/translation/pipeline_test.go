package translation

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/snonux/doctrans/internal/testutil"
)

func stubBackend(service string, p *testutil.StubProvider) Backend {
	return Backend{Service: service, Connect: func(string) (Provider, error) { return p, nil }}
}

// recordSleeps replaces the pipeline's sleep with one that returns at once
// and records the requested delays.
func recordSleeps(p *Pipeline) func() []time.Duration {
	var (
		mu     sync.Mutex
		delays []time.Duration
	)
	p.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		delays = append(delays, d)
		mu.Unlock()
		return ctx.Err()
	}
	return func() []time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return append([]time.Duration(nil), delays...)
	}
}

func TestTranslateFirstProviderSucceeds(t *testing.T) {
	groq := testutil.EchoProvider("groq", strings.ToUpper)
	gemini := testutil.EchoProvider("gemini", strings.ToLower)
	creds := testutil.NewRecordingCredentials("groq", "gemini")

	p := NewPipeline([]Backend{stubBackend("groq", groq), stubBackend("gemini", gemini)}, creds, Options{}, nil)
	res := p.Translate(context.Background(), Request{Index: 4, Text: "hello", Context: "before", TargetLang: "ar"})

	if res.Err != nil {
		t.Fatalf("Translate failed: %v", res.Err)
	}
	if res.Text != "BEFORE\n\nHELLO" {
		t.Errorf("Text = %q, want %q", res.Text, "BEFORE\n\nHELLO")
	}
	if res.Index != 4 || res.Provider != "groq" || res.Attempts != 1 {
		t.Errorf("Result = %+v, want index 4 from groq in 1 attempt", res)
	}
	if gemini.Calls() != 0 {
		t.Errorf("fallback provider called %d times", gemini.Calls())
	}

	want := []testutil.Report{{Service: "groq", Key: "groq-key", Success: true}}
	if got := creds.Reports(); !reflect.DeepEqual(got, want) {
		t.Errorf("reports = %+v, want %+v", got, want)
	}
}

func TestTranslateTimeoutFallsBack(t *testing.T) {
	slow := testutil.BlockingProvider("groq")
	fast := testutil.EchoProvider("gemini", func(s string) string { return "ترجمة " + s })
	creds := testutil.NewRecordingCredentials("groq", "gemini")

	opts := Options{MaxRetries: 1, Timeout: 20 * time.Millisecond}
	p := NewPipeline([]Backend{stubBackend("groq", slow), stubBackend("gemini", fast)}, creds, opts, nil)

	res := p.Translate(context.Background(), Request{Text: "text"})
	if res.Err != nil {
		t.Fatalf("Translate failed: %v", res.Err)
	}
	if res.Text != "ترجمة text" || res.Provider != "gemini" {
		t.Errorf("Result = %+v, want gemini's translation", res)
	}

	want := []testutil.Report{
		{Service: "groq", Key: "groq-key", Success: false},
		{Service: "gemini", Key: "gemini-key", Success: true},
	}
	if got := creds.Reports(); !reflect.DeepEqual(got, want) {
		t.Errorf("reports = %+v, want %+v", got, want)
	}
}

func TestTranslateRetriesWithBackoffBeforeFallback(t *testing.T) {
	failing := testutil.FailingProvider("groq", errors.New("rate limited"))
	ok := testutil.EchoProvider("openai", strings.TrimSpace)
	creds := testutil.NewRecordingCredentials("groq", "openai")

	p := NewPipeline([]Backend{stubBackend("groq", failing), stubBackend("openai", ok)}, creds,
		Options{BackoffBase: 100 * time.Millisecond}, nil)
	delays := recordSleeps(p)

	res := p.Translate(context.Background(), Request{Text: "text"})
	if res.Err != nil {
		t.Fatalf("Translate failed: %v", res.Err)
	}
	if failing.Calls() != 3 {
		t.Errorf("failing provider called %d times, want 3", failing.Calls())
	}
	if res.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", res.Attempts)
	}

	wantDelays := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if got := delays(); !reflect.DeepEqual(got, wantDelays) {
		t.Errorf("delays = %v, want %v", got, wantDelays)
	}

	reports := creds.Reports()
	if len(reports) != 4 {
		t.Fatalf("got %d reports, want 4", len(reports))
	}
	for i := 0; i < 3; i++ {
		if reports[i].Service != "groq" || reports[i].Success {
			t.Errorf("report %d = %+v, want groq failure", i, reports[i])
		}
	}
	if reports[3].Service != "openai" || !reports[3].Success {
		t.Errorf("report 3 = %+v, want openai success", reports[3])
	}
}

func TestTranslateExhausted(t *testing.T) {
	last := errors.New("bad gateway")
	p := NewPipeline([]Backend{
		stubBackend("groq", testutil.FailingProvider("groq", errors.New("timeout"))),
		stubBackend("gemini", testutil.FailingProvider("gemini", last)),
	}, testutil.NewRecordingCredentials("groq", "gemini"), Options{MaxRetries: 2}, nil)
	recordSleeps(p)

	res := p.Translate(context.Background(), Request{Index: 2, Text: "text"})
	if res.Err == nil {
		t.Fatal("Expected an error when every provider fails")
	}
	if !errors.Is(res.Err, ErrExhausted) {
		t.Errorf("error %v does not match ErrExhausted", res.Err)
	}
	if !errors.Is(res.Err, last) {
		t.Errorf("error %v does not wrap the last provider error", res.Err)
	}

	var exhausted *ExhaustedError
	if !errors.As(res.Err, &exhausted) {
		t.Fatalf("error %T is not an ExhaustedError", res.Err)
	}
	if exhausted.Chunk != 2 || exhausted.Attempts != 4 {
		t.Errorf("ExhaustedError = %+v, want chunk 2 after 4 attempts", exhausted)
	}
	if res.Text != "" {
		t.Errorf("Text = %q, want empty", res.Text)
	}
}

func TestTranslateSkipsServiceWithoutKey(t *testing.T) {
	groq := testutil.EchoProvider("groq", strings.ToUpper)
	azure := testutil.EchoProvider("azure", strings.ToLower)
	creds := testutil.NewRecordingCredentials("azure")

	p := NewPipeline([]Backend{stubBackend("groq", groq), stubBackend("azure", azure)}, creds, Options{}, nil)
	delays := recordSleeps(p)

	res := p.Translate(context.Background(), Request{Text: "MiXeD"})
	if res.Err != nil || res.Text != "mixed" {
		t.Errorf("Result = %+v, want azure's translation", res)
	}
	if groq.Calls() != 0 {
		t.Errorf("provider without key called %d times", groq.Calls())
	}
	if len(delays()) != 0 {
		t.Errorf("slept %v before falling back from a missing key", delays())
	}
	if len(creds.Reports()) != 1 {
		t.Errorf("got %d reports, want only the azure success", len(creds.Reports()))
	}
}

func TestTranslateNoBackends(t *testing.T) {
	p := NewPipeline(nil, testutil.NewRecordingCredentials(), Options{}, nil)
	res := p.Translate(context.Background(), Request{Text: "text"})
	if !errors.Is(res.Err, ErrNoProviders) {
		t.Errorf("error = %v, want ErrNoProviders", res.Err)
	}
}

func TestTranslateCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	failing := testutil.FailingProvider("groq", errors.New("unavailable"))

	p := NewPipeline([]Backend{stubBackend("groq", failing)}, testutil.NewRecordingCredentials("groq"), Options{}, nil)
	p.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	res := p.Translate(ctx, Request{Text: "text"})
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", res.Err)
	}
	if failing.Calls() != 1 {
		t.Errorf("provider called %d times after cancellation, want 1", failing.Calls())
	}
}

func TestCircuitBreakerStopsRetries(t *testing.T) {
	failing := testutil.FailingProvider("groq", errors.New("server error"))
	ok := testutil.EchoProvider("gemini", strings.ToUpper)
	creds := testutil.NewRecordingCredentials("groq", "gemini")

	p := NewPipeline([]Backend{stubBackend("groq", failing), stubBackend("gemini", ok)}, creds,
		Options{MaxRetries: 3, BreakerThreshold: 2}, nil)
	recordSleeps(p)

	res := p.Translate(context.Background(), Request{Text: "x"})
	if res.Err != nil || res.Provider != "gemini" {
		t.Fatalf("Result = %+v, want gemini success", res)
	}
	if failing.Calls() != 2 {
		t.Errorf("provider behind open breaker called %d times, want 2", failing.Calls())
	}

	// The breaker stays open for the next chunk too.
	res = p.Translate(context.Background(), Request{Text: "y"})
	if res.Provider != "gemini" || failing.Calls() != 2 {
		t.Errorf("second chunk: provider=%s groq calls=%d", res.Provider, failing.Calls())
	}
}

func TestBackoff(t *testing.T) {
	p := NewPipeline(nil, nil, Options{BackoffBase: time.Second}, nil)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
	}
	for _, tt := range tests {
		if got := p.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		service string
		cfg     ProviderConfig
		wantErr bool
	}{
		{"groq", ProviderConfig{}, false},
		{"openai", ProviderConfig{Model: "gpt-4o"}, false},
		{"gemini", ProviderConfig{}, false},
		{"azure", ProviderConfig{}, true},
		{"azure", ProviderConfig{BaseURL: "https://example.openai.azure.com"}, false},
		{"unknown", ProviderConfig{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			b, err := NewBackend(tt.service, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewBackend(%s) error = %v, wantErr %v", tt.service, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if b.Service != tt.service {
				t.Errorf("Service = %s, want %s", b.Service, tt.service)
			}
			provider, err := b.Connect("test-api-key")
			if err != nil {
				t.Fatalf("Connect failed: %v", err)
			}
			if provider.Name() != tt.service {
				t.Errorf("Name() = %s, want %s", provider.Name(), tt.service)
			}
			if _, err := b.Connect(""); err == nil {
				t.Error("Expected error for empty API key")
			}
		})
	}
}

func TestBudget(t *testing.T) {
	backends := []Backend{{Service: "groq"}, {Service: "gemini"}}
	p := NewPipeline(backends, nil, Options{Timeout: time.Second, MaxRetries: 3}, nil)

	if got := p.Budget(5); got != 40*time.Second {
		t.Errorf("Budget(5) = %v, want 40s", got)
	}
	if got := p.Budget(0); got != time.Second {
		t.Errorf("Budget(0) = %v, want the single call timeout", got)
	}
}
