package testutil

import (
	"context"
	"fmt"
	"sync"

	"codeberg.org/snonux/doctrans/internal/credentials"
)

// StubProvider is a scriptable translation provider. Without Respond it
// echoes the text it was given.
type StubProvider struct {
	ProviderName string
	Respond      func(ctx context.Context, instructions, text string) (string, error)

	mu    sync.Mutex
	texts []string
}

// Name returns the provider name
func (s *StubProvider) Name() string {
	return s.ProviderName
}

// Translate records the call and delegates to Respond
func (s *StubProvider) Translate(ctx context.Context, instructions, text string) (string, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()

	if s.Respond == nil {
		return text, nil
	}
	return s.Respond(ctx, instructions, text)
}

// Calls returns the number of Translate calls
func (s *StubProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.texts)
}

// Texts returns the texts passed to Translate, in call order
func (s *StubProvider) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

// EchoProvider returns transform(text) for every call. A nil transform
// echoes the text unchanged.
func EchoProvider(name string, transform func(string) string) *StubProvider {
	if transform == nil {
		return &StubProvider{ProviderName: name}
	}
	return &StubProvider{
		ProviderName: name,
		Respond: func(_ context.Context, _, text string) (string, error) {
			return transform(text), nil
		},
	}
}

// FailingProvider fails every call with err
func FailingProvider(name string, err error) *StubProvider {
	return &StubProvider{
		ProviderName: name,
		Respond: func(context.Context, string, string) (string, error) {
			return "", err
		},
	}
}

// BlockingProvider never answers; every call ends with its context
func BlockingProvider(name string) *StubProvider {
	return &StubProvider{
		ProviderName: name,
		Respond: func(ctx context.Context, _, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
}

// Report is one ReportUsage call seen by RecordingCredentials
type Report struct {
	Service string
	Key     string
	Success bool
}

// RecordingCredentials hands out one fixed key per service and records
// every usage report.
type RecordingCredentials struct {
	mu      sync.Mutex
	keys    map[string]*credentials.Key
	reports []Report
}

// NewRecordingCredentials creates a key named "<service>-key" per service
func NewRecordingCredentials(services ...string) *RecordingCredentials {
	keys := make(map[string]*credentials.Key, len(services))
	for _, s := range services {
		keys[s] = &credentials.Key{Value: fmt.Sprintf("%s-key", s), Service: s, DailyLimit: 1000}
	}
	return &RecordingCredentials{keys: keys}
}

// GetAvailableKey returns the service's key if one was configured
func (c *RecordingCredentials) GetAvailableKey(service string) (*credentials.Key, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.keys[service]
	return key, ok
}

// ReportUsage records the report
func (c *RecordingCredentials) ReportUsage(key *credentials.Key, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, Report{Service: key.Service, Key: key.Value, Success: success})
}

// Reports returns all recorded reports in order
func (c *RecordingCredentials) Reports() []Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Report(nil), c.reports...)
}
