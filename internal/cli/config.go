package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"codeberg.org/snonux/doctrans/internal/app"
	"codeberg.org/snonux/doctrans/internal/credentials"
	"codeberg.org/snonux/doctrans/internal/translation"
)

// InitConfig initializes viper configuration. A .env file in the working
// directory is loaded into the environment first.
func InitConfig(cfgFile string) {
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting home directory: %v\n", err)
			return
		}

		// Search config in home directory with name ".doctrans" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".doctrans")
	}

	// Environment variables: DOCTRANS_LIMITS_PER_USER_DAILY and so on
	viper.SetEnvPrefix("DOCTRANS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func setDefaults() {
	d := app.DefaultSettings()

	viper.SetDefault("limits.per_user_concurrent", d.Queue.PerUserConcurrent)
	viper.SetDefault("limits.per_user_daily", d.Queue.PerUserDaily)
	viper.SetDefault("limits.global_concurrent", d.Queue.GlobalConcurrent)
	viper.SetDefault("limits.max_file_size_mb", d.MaxFileSize/(1024*1024))

	viper.SetDefault("queue.history_size", d.Queue.HistorySize)
	viper.SetDefault("queue.avg_processing_seconds", int(d.Queue.AvgProcessingTime/time.Second))
	viper.SetDefault("queue.priority_threshold", d.Queue.PriorityThreshold)
	viper.SetDefault("queue.premium_bonus", d.Queue.PremiumBonus)

	viper.SetDefault("translation.chunk_size", d.Processing.ChunkSize)
	viper.SetDefault("translation.overlap", d.Processing.Overlap)
	viper.SetDefault("translation.max_retries", d.Translation.MaxRetries)
	viper.SetDefault("translation.timeout", d.Translation.Timeout)
	viper.SetDefault("translation.backoff_base", d.Translation.BackoffBase)
	viper.SetDefault("translation.target_lang", d.Processing.TargetLang)
	viper.SetDefault("translation.chunk_parallelism", d.Processing.ChunkParallelism)

	viper.SetDefault("scheduler.idle_interval", d.Scheduler.IdleInterval)
	viper.SetDefault("scheduler.workers", d.Workers)

	viper.SetDefault("cache.backend", d.Cache.Backend)
	viper.SetDefault("cache.ttl", d.Cache.TTL)
	viper.SetDefault("cache.max_entries", d.Cache.MaxEntries)

	viper.SetDefault("server.addr", d.ServerAddr)
	viper.SetDefault("output.format", d.OutputFormat)
}

// GetProviderKeys returns the API keys of a service from <SERVICE>_KEYS
// and providers.<service>.keys. Both accept comma-separated lists. For
// openai, OPENAI_API_KEY is honoured too.
func GetProviderKeys(service string) []string {
	var raw []string
	raw = append(raw, os.Getenv(strings.ToUpper(service)+"_KEYS"))
	if service == credentials.ServiceOpenAI {
		raw = append(raw, os.Getenv("OPENAI_API_KEY"))
	}
	raw = append(raw, viper.GetStringSlice("providers."+service+".keys")...)

	seen := make(map[string]bool)
	var keys []string
	for _, r := range raw {
		for _, k := range strings.Split(r, ",") {
			k = strings.TrimSpace(k)
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// LoadSettings resolves the application settings from viper. Nothing reads
// viper after this.
func LoadSettings() (app.Settings, error) {
	s := app.DefaultSettings()

	s.Queue.PerUserConcurrent = viper.GetInt("limits.per_user_concurrent")
	s.Queue.PerUserDaily = viper.GetInt("limits.per_user_daily")
	s.Queue.GlobalConcurrent = viper.GetInt("limits.global_concurrent")
	s.MaxFileSize = viper.GetInt64("limits.max_file_size_mb") * 1024 * 1024

	s.Queue.HistorySize = viper.GetInt("queue.history_size")
	s.Queue.AvgProcessingTime = time.Duration(viper.GetInt("queue.avg_processing_seconds")) * time.Second
	s.Queue.PriorityThreshold = viper.GetInt("queue.priority_threshold")
	s.Queue.PremiumBonus = viper.GetInt("queue.premium_bonus")
	for _, id := range viper.GetIntSlice("queue.premium_users") {
		s.Queue.PremiumUsers = append(s.Queue.PremiumUsers, int64(id))
	}

	s.Translation.MaxRetries = viper.GetInt("translation.max_retries")
	s.Translation.Timeout = viper.GetDuration("translation.timeout")
	s.Translation.BackoffBase = viper.GetDuration("translation.backoff_base")

	s.Processing.TargetLang = viper.GetString("translation.target_lang")
	s.Processing.ChunkSize = viper.GetInt("translation.chunk_size")
	s.Processing.Overlap = viper.GetInt("translation.overlap")
	s.Processing.ChunkParallelism = viper.GetInt("translation.chunk_parallelism")
	s.Processing.OutputDir = viper.GetString("output.directory")
	if raw := viper.GetString("translation.text_type"); raw != "" {
		s.Processing.TextType = translation.ParseTextType(raw)
		if s.Processing.TextType == "" {
			return s, fmt.Errorf("unknown text type %q: use general, technical or academic", raw)
		}
	}
	if s.Processing.ChunkSize <= 0 {
		return s, fmt.Errorf("translation.chunk_size must be positive, got %d", s.Processing.ChunkSize)
	}
	if s.Processing.Overlap < 0 || s.Processing.Overlap >= s.Processing.ChunkSize {
		return s, fmt.Errorf("translation.overlap must be between 0 and the chunk size, got %d", s.Processing.Overlap)
	}

	s.Scheduler.IdleInterval = viper.GetDuration("scheduler.idle_interval")
	s.Workers = viper.GetInt("scheduler.workers")

	for i := range s.Providers {
		p := &s.Providers[i]
		prefix := "providers." + p.Service
		p.Keys = GetProviderKeys(p.Service)
		if model := viper.GetString(prefix + ".model"); model != "" {
			p.Model = model
		}
		p.BaseURL = viper.GetString(prefix + ".base_url")
		if limit := viper.GetInt(prefix + ".daily_limit"); limit > 0 {
			p.DailyLimit = limit
		}
	}

	s.Cache.Backend = viper.GetString("cache.backend")
	s.Cache.Path = viper.GetString("cache.path")
	s.Cache.RedisAddr = viper.GetString("cache.redis_addr")
	s.Cache.TTL = viper.GetDuration("cache.ttl")
	s.Cache.MaxEntries = viper.GetInt("cache.max_entries")
	s.Processing.CacheTTL = s.Cache.TTL

	s.ServerAddr = viper.GetString("server.addr")
	s.OutputFormat = viper.GetString("output.format")
	return s, nil
}

// NewLogger builds the process logger. Verbose selects zap's development
// configuration.
func NewLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}
