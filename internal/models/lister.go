package models

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"codeberg.org/snonux/doctrans/internal/translation"
)

// Lister lists the models of one OpenAI-compatible service
type Lister struct {
	service string
	apiKey  string
	client  *openai.Client
}

// NewLister creates a model lister. An empty baseURL selects the service's
// default endpoint.
func NewLister(service, apiKey, baseURL string) *Lister {
	cfg := openai.DefaultConfig(apiKey)
	switch {
	case baseURL != "":
		cfg.BaseURL = baseURL
	case service == "groq":
		cfg.BaseURL = translation.GroqBaseURL
	}
	return &Lister{
		service: service,
		apiKey:  apiKey,
		client:  openai.NewClientWithConfig(cfg),
	}
}

// Groups holds model IDs by kind, each sorted
type Groups struct {
	Chat      []string
	Embedding []string
	Audio     []string
	Other     []string
}

// Group sorts model IDs into kinds
func Group(ids []string) Groups {
	var g Groups
	for _, id := range ids {
		lower := strings.ToLower(id)
		switch {
		case strings.Contains(lower, "embed"):
			g.Embedding = append(g.Embedding, id)
		case strings.Contains(lower, "whisper"), strings.Contains(lower, "tts"), strings.Contains(lower, "audio"):
			g.Audio = append(g.Audio, id)
		case strings.Contains(lower, "gpt"), strings.Contains(lower, "chat"), strings.Contains(lower, "llama"),
			strings.Contains(lower, "mixtral"), strings.Contains(lower, "gemma"), strings.Contains(lower, "qwen"):
			g.Chat = append(g.Chat, id)
		default:
			g.Other = append(g.Other, id)
		}
	}
	for _, s := range [][]string{g.Chat, g.Embedding, g.Audio, g.Other} {
		sort.Strings(s)
	}
	return g
}

// ListAvailableModels writes the service's models to w, chat models first
func (l *Lister) ListAvailableModels(ctx context.Context, w io.Writer) error {
	if l.apiKey == "" {
		return fmt.Errorf("%s API key not found. Set %s_KEYS or providers.%s.keys in .doctrans.yaml",
			l.service, strings.ToUpper(l.service), l.service)
	}

	list, err := l.client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list %s models: %w", l.service, err)
	}

	ids := make([]string, len(list.Models))
	for i, m := range list.Models {
		ids[i] = m.ID
	}
	g := Group(ids)

	fmt.Fprintf(w, "Available %s models:\n", l.service)
	section := func(title string, models []string) {
		fmt.Fprintf(w, "\n%s:\n", title)
		if len(models) == 0 {
			fmt.Fprintln(w, "  none")
			return
		}
		for _, m := range models {
			fmt.Fprintf(w, "  %s\n", m)
		}
	}
	section("Chat/Translation Models", g.Chat)
	section("Embedding Models", g.Embedding)
	section("Audio Models", g.Audio)
	section("Other Models", g.Other)
	return nil
}
