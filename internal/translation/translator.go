package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// Provider is one language-model service able to translate a text.
type Provider interface {
	// Name returns the service name used for credentials and logging
	Name() string

	// Translate sends instructions and text and returns the model's answer
	Translate(ctx context.Context, instructions, text string) (string, error)
}

// Backend binds a service name to a constructor that builds a Provider for
// one API key. The pipeline asks the credential pool for a key on every
// attempt, so keys rotate between calls.
type Backend struct {
	Service string
	Connect func(apiKey string) (Provider, error)
}

// ProviderConfig holds per-service model settings
type ProviderConfig struct {
	Model   string
	BaseURL string
}

// GroqBaseURL is Groq's OpenAI-compatible endpoint
const GroqBaseURL = "https://api.groq.com/openai/v1"

const (
	maxTokens   = 2000
	temperature = 0.1
)

// DefaultModels holds the model used when none is configured.
var DefaultModels = map[string]string{
	"groq":   "llama-3.1-8b-instant",
	"gemini": "gemini-2.0-flash",
	"openai": openai.GPT4oMini,
	"azure":  openai.GPT4oMini,
}

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("empty response")

// NewBackend returns the Backend for a known service.
func NewBackend(service string, cfg ProviderConfig) (Backend, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModels[service]
	}

	switch service {
	case "groq", "openai", "azure":
		if service == "azure" && cfg.BaseURL == "" {
			return Backend{}, fmt.Errorf("azure requires a base URL")
		}
		return Backend{Service: service, Connect: func(apiKey string) (Provider, error) {
			p, err := NewOpenAIProvider(service, apiKey, cfg)
			if err != nil {
				return nil, err
			}
			return p, nil
		}}, nil
	case "gemini":
		return Backend{Service: service, Connect: func(apiKey string) (Provider, error) {
			p, err := NewGeminiProvider(apiKey, cfg)
			if err != nil {
				return nil, err
			}
			return p, nil
		}}, nil
	default:
		return Backend{}, fmt.Errorf("unknown translation service: %s", service)
	}
}

// OpenAIProvider talks to OpenAI-compatible chat completion APIs: OpenAI
// itself, Groq and Azure OpenAI.
type OpenAIProvider struct {
	service string
	model   string
	client  *openai.Client
}

// NewOpenAIProvider creates a chat completion client for service
func NewOpenAIProvider(service, apiKey string, cfg ProviderConfig) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s API key not found", service)
	}

	var clientConfig openai.ClientConfig
	switch service {
	case "azure":
		clientConfig = openai.DefaultAzureConfig(apiKey, cfg.BaseURL)
	case "groq":
		clientConfig = openai.DefaultConfig(apiKey)
		clientConfig.BaseURL = GroqBaseURL
	default:
		clientConfig = openai.DefaultConfig(apiKey)
	}
	if cfg.BaseURL != "" && service != "azure" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModels[service]
	}

	return &OpenAIProvider{
		service: service,
		model:   model,
		client:  openai.NewClientWithConfig(clientConfig),
	}, nil
}

// Name returns the service name
func (p *OpenAIProvider) Name() string {
	return p.service
}

// Translate runs one chat completion
func (p *OpenAIProvider) Translate(ctx context.Context, instructions, text string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instructions},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s API error: %w", p.service, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: no choices returned: %w", p.service, ErrEmptyResponse)
	}

	translation := strings.TrimSpace(resp.Choices[0].Message.Content)
	if translation == "" {
		return "", fmt.Errorf("%s: %w", p.service, ErrEmptyResponse)
	}
	return translation, nil
}

// GeminiProvider talks to the Gemini API
type GeminiProvider struct {
	apiKey string
	model  string
}

// NewGeminiProvider creates a Gemini provider. The client is created per
// call because it needs the call's context.
func NewGeminiProvider(apiKey string, cfg ProviderConfig) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key not found")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModels["gemini"]
	}
	return &GeminiProvider{apiKey: apiKey, model: model}, nil
}

// Name returns the service name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Translate runs one GenerateContent call
func (p *GeminiProvider) Translate(ctx context.Context, instructions, text string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(instructions, genai.RoleUser),
		Temperature:       genai.Ptr[float32](temperature),
		MaxOutputTokens:   maxTokens,
	}

	resp, err := client.Models.GenerateContent(ctx, p.model, genai.Text(text), config)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}

	translation := strings.TrimSpace(resp.Text())
	if translation == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return translation, nil
}
