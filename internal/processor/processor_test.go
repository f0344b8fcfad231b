package processor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeberg.org/snonux/doctrans/internal/cache"
	"codeberg.org/snonux/doctrans/internal/extract"
	"codeberg.org/snonux/doctrans/internal/merge"
	"codeberg.org/snonux/doctrans/internal/notify"
	"codeberg.org/snonux/doctrans/internal/queue"
	"codeberg.org/snonux/doctrans/internal/render"
	"codeberg.org/snonux/doctrans/internal/testutil"
	"codeberg.org/snonux/doctrans/internal/translation"
	"codeberg.org/snonux/doctrans/internal/workpool"
)

type fixture struct {
	proc  *Processor
	inbox *notify.Inbox
	store *cache.MemoryStore
	creds *testutil.RecordingCredentials
}

func newFixture(t *testing.T, cfg Config, providers ...*testutil.StubProvider) *fixture {
	t.Helper()
	return newFormatFixture(t, render.FormatText, cfg, providers...)
}

func newFormatFixture(t *testing.T, format string, cfg Config, providers ...*testutil.StubProvider) *fixture {
	t.Helper()

	services := make([]string, len(providers))
	backends := make([]translation.Backend, len(providers))
	for i, sp := range providers {
		services[i] = sp.Name()
		backends[i] = translation.Backend{
			Service: sp.Name(),
			Connect: func(string) (translation.Provider, error) { return sp, nil },
		}
	}
	creds := testutil.NewRecordingCredentials(services...)
	pipeline := translation.NewPipeline(backends, creds, translation.Options{
		MaxRetries:  1,
		Timeout:     time.Second,
		BackoffBase: time.Millisecond,
	}, nil)

	renderer, err := render.New(format, "ar")
	if err != nil {
		t.Fatalf("render.New failed: %v", err)
	}

	f := &fixture{
		inbox: notify.NewInbox(100),
		store: cache.NewMemoryStore(10, time.Hour),
		creds: creds,
	}
	f.proc = New(cfg, Deps{
		Translator: pipeline,
		Extractor:  extract.Extractor{},
		Renderer:   renderer,
		Cache:      f.store,
		Workers:    workpool.New(2),
		Sink:       f.inbox,
	}, nil)
	return f
}

func task(id, filename, content string) *queue.Task {
	return &queue.Task{ID: id, UserID: 7, Filename: filename, Payload: []byte(content), Size: int64(len(content))}
}

func TestProcessSingleChunkUppercase(t *testing.T) {
	f := newFixture(t, Config{TextType: translation.TextGeneral}, testutil.EchoProvider("groq", strings.ToUpper))

	out, err := f.proc.Process(context.Background(), task("t1", "letters.txt", "a. b. c."))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if out.Text != "A. B. C." {
		t.Errorf("Text = %q, want %q", out.Text, "A. B. C.")
	}
	if out.TotalChunks != 1 || out.FailedChunks != 0 {
		t.Errorf("chunks = %d total, %d failed; want 1, 0", out.TotalChunks, out.FailedChunks)
	}
	if string(out.Data) != "A. B. C.\n" {
		t.Errorf("Data = %q", out.Data)
	}
	if out.Filename != "letters_ar.txt" {
		t.Errorf("Filename = %q, want letters_ar.txt", out.Filename)
	}
	if out.Cached {
		t.Error("first run reported as cached")
	}
}

func TestProcessMultipleChunksRoundTrip(t *testing.T) {
	text := "Alpha bravo charlie delta echo foxtrot golf.\n\n" +
		"Hotel india juliet kilo lima mike november.\n\n" +
		"Oscar papa quebec romeo sierra tango uniform victor."
	f := newFixture(t, Config{ChunkSize: 50, Overlap: 15, TextType: translation.TextGeneral},
		testutil.EchoProvider("groq", nil))

	out, err := f.proc.Process(context.Background(), task("t1", "doc.md", text))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.TotalChunks < 3 {
		t.Fatalf("TotalChunks = %d, want at least 3", out.TotalChunks)
	}
	if want := merge.Normalize(text); out.Text != want {
		t.Errorf("Text = %q\nwant %q", out.Text, want)
	}
}

func TestProcessKeepsDocumentStructure(t *testing.T) {
	page := "<h1>Title</h1><p>First para.</p><ul><li>one</li><li>two</li></ul>"
	f := newFormatFixture(t, render.FormatHTML, Config{ChunkSize: 12, Overlap: 5, TextType: translation.TextGeneral},
		testutil.EchoProvider("groq", nil))

	out, err := f.proc.Process(context.Background(), task("t1", "page.html", page))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.TotalChunks != 3 {
		t.Errorf("TotalChunks = %d, want 3", out.TotalChunks)
	}

	want := "# Title\n\nFirst para.\n\n- one\n- two"
	if out.Text != want {
		t.Errorf("Text = %q, want %q", out.Text, want)
	}
	for _, tag := range []string{"<h1>Title</h1>", "<p>First para.</p>", "<li>one</li>", "<li>two</li>"} {
		if !strings.Contains(string(out.Data), tag) {
			t.Errorf("rendered page is missing %s:\n%s", tag, out.Data)
		}
	}
}

func TestProcessCachesResult(t *testing.T) {
	groq := testutil.EchoProvider("groq", strings.ToUpper)
	f := newFixture(t, Config{}, groq)
	ctx := context.Background()

	first, err := f.proc.Process(ctx, task("t1", "a.txt", "some words"))
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}
	calls := groq.Calls()

	second, err := f.proc.Process(ctx, task("t2", "b.txt", "some words"))
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}
	if !second.Cached {
		t.Error("second run not served from cache")
	}
	if groq.Calls() != calls {
		t.Errorf("provider called again on cache hit")
	}
	if string(second.Data) != string(first.Data) {
		t.Errorf("cached data = %q, want %q", second.Data, first.Data)
	}
	if second.Filename != "b_ar.txt" {
		t.Errorf("cached Filename = %q, want b_ar.txt", second.Filename)
	}
}

func TestProcessNoText(t *testing.T) {
	f := newFixture(t, Config{}, testutil.EchoProvider("groq", nil))

	_, err := f.proc.Process(context.Background(), task("t1", "blank.txt", " \n\t\n"))
	if !errors.Is(err, extract.ErrNoText) {
		t.Errorf("error = %v, want ErrNoText", err)
	}
}

func TestProcessUnsupportedFormat(t *testing.T) {
	f := newFixture(t, Config{}, testutil.EchoProvider("groq", nil))

	_, err := f.proc.Process(context.Background(), task("t1", "scan.pdf", "%PDF-1.4"))
	if !errors.Is(err, extract.ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestProcessFailedChunkPlaceholder(t *testing.T) {
	flaky := &testutil.StubProvider{
		ProviderName: "groq",
		Respond: func(_ context.Context, _, text string) (string, error) {
			if strings.Contains(text, "poison") {
				return "", errors.New("content rejected")
			}
			return strings.ToUpper(text), nil
		},
	}
	text := "First paragraph is fine.\n\nThis poison paragraph fails."
	f := newFixture(t, Config{ChunkSize: 30, Overlap: 0, TextType: translation.TextGeneral}, flaky)

	out, err := f.proc.Process(context.Background(), task("t1", "mixed.txt", text))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.FailedChunks != 1 || out.TotalChunks != 2 {
		t.Errorf("chunks = %d failed of %d, want 1 of 2", out.FailedChunks, out.TotalChunks)
	}
	if !strings.HasPrefix(out.Text, "FIRST PARAGRAPH IS FINE.") {
		t.Errorf("Text = %q, want translated first paragraph", out.Text)
	}
	if !strings.Contains(out.Text, "[translation failed for this part: This poison paragraph fails....]") {
		t.Errorf("Text = %q, missing placeholder", out.Text)
	}
	if f.store.Len() != 0 {
		t.Error("partial translation was cached")
	}
}

func TestProcessAllChunksFailStillRenders(t *testing.T) {
	f := newFixture(t, Config{TextType: translation.TextGeneral}, testutil.FailingProvider("groq", errors.New("down")))

	out, err := f.proc.Process(context.Background(), task("t1", "a.txt", "nothing works"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.FailedChunks != out.TotalChunks {
		t.Errorf("FailedChunks = %d, want %d", out.FailedChunks, out.TotalChunks)
	}
	if !strings.Contains(out.Text, "nothing works") {
		t.Errorf("placeholder lost the original text: %q", out.Text)
	}
}

func TestProcessCancelled(t *testing.T) {
	f := newFixture(t, Config{}, testutil.EchoProvider("groq", nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.proc.Process(ctx, task("t1", "a.txt", "text")); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestProcessNotifiesCheckpoints(t *testing.T) {
	f := newFixture(t, Config{}, testutil.EchoProvider("groq", nil))

	if _, err := f.proc.Process(context.Background(), task("t1", "notes.txt", "hello there")); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	msgs := f.inbox.Messages(7)
	want := []string{"extracted 11 characters", "translated 1 of 1 parts", "document ready"}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d: %+v", len(msgs), len(want), msgs)
	}
	for i, w := range want {
		if !strings.Contains(msgs[i].Text, w) {
			t.Errorf("message %d = %q, want it to contain %q", i, msgs[i].Text, w)
		}
	}
}

func TestProcessWritesOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	f := newFixture(t, Config{OutputDir: dir}, testutil.EchoProvider("groq", strings.ToUpper))

	out, err := f.proc.Process(context.Background(), task("t1", "report.txt", "written"))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if out.Path != filepath.Join(dir, "report_ar.txt") {
		t.Errorf("Path = %q", out.Path)
	}
	testutil.AssertFileContent(t, out.Path, []byte("WRITTEN\n"))
}

func TestPlaceholder(t *testing.T) {
	long := strings.Repeat("ب", 150)
	got := Placeholder(long)
	want := "[translation failed for this part: " + strings.Repeat("ب", 100) + "...]"
	if got != want {
		t.Errorf("Placeholder truncation wrong: %q", got)
	}
	if got := Placeholder("  short "); got != "[translation failed for this part: short...]" {
		t.Errorf("Placeholder(short) = %q", got)
	}
}
