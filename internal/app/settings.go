package app

import (
	"codeberg.org/snonux/doctrans/internal/cache"
	"codeberg.org/snonux/doctrans/internal/credentials"
	"codeberg.org/snonux/doctrans/internal/processor"
	"codeberg.org/snonux/doctrans/internal/queue"
	"codeberg.org/snonux/doctrans/internal/render"
	"codeberg.org/snonux/doctrans/internal/scheduler"
	"codeberg.org/snonux/doctrans/internal/translation"
)

// ProviderSettings configures one translation service
type ProviderSettings struct {
	Service    string
	Keys       []string
	Model      string
	BaseURL    string
	DailyLimit int
}

// Settings is the complete, resolved configuration of the application
type Settings struct {
	Queue       queue.Config
	MaxFileSize int64
	Translation translation.Options
	Processing  processor.Config
	Scheduler   scheduler.Config
	// Workers sizes the pool running extraction and rendering.
	Workers int
	// Providers lists the services in fallback order.
	Providers    []ProviderSettings
	Cache        cache.Config
	ServerAddr   string
	OutputFormat string
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() Settings {
	providers := make([]ProviderSettings, len(credentials.DefaultOrder))
	for i, service := range credentials.DefaultOrder {
		providers[i] = ProviderSettings{
			Service:    service,
			Model:      translation.DefaultModels[service],
			DailyLimit: credentials.DefaultDailyLimits[service],
		}
	}

	return Settings{
		Queue:       queue.DefaultConfig(),
		MaxFileSize: 20 * 1024 * 1024,
		Translation: translation.Options{
			MaxRetries:  3,
			Timeout:     translation.DefaultTimeout,
			BackoffBase: translation.DefaultBackoffBase,
		},
		Processing:   processor.DefaultConfig(),
		Scheduler:    scheduler.DefaultConfig(),
		Workers:      4,
		Providers:    providers,
		Cache:        cache.DefaultConfig(),
		ServerAddr:   ":8080",
		OutputFormat: render.FormatText,
	}
}
