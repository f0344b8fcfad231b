package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestCreateRootCommand(t *testing.T) {
	resetViper(t)
	flags := NewFlags()
	cmd := CreateRootCommand(flags, Actions{})

	if cmd.Use != "doctrans" {
		t.Errorf("Expected Use to be 'doctrans', got %s", cmd.Use)
	}
	if !strings.Contains(cmd.Short, "document translation") {
		t.Errorf("Unexpected Short description %q", cmd.Short)
	}

	flagTests := []struct {
		command string
		name    string
	}{
		{"", "config"},
		{"", "verbose"},
		{"", "output"},
		{"", "format"},
		{"", "lang"},
		{"", "workers"},
		{"", "cache"},
		{"", "cache-path"},
		{"", "archive"},
		{"serve", "addr"},
		{"translate", "batch"},
		{"translate", "user"},
		{"translate", "text-type"},
		{"translate", "chunk-size"},
		{"translate", "overlap"},
		{"models", "service"},
	}

	for _, tt := range flagTests {
		t.Run("flag_"+tt.command+"_"+tt.name, func(t *testing.T) {
			target := cmd
			if tt.command != "" {
				sub, _, err := cmd.Find([]string{tt.command})
				if err != nil {
					t.Fatalf("subcommand %s not found: %v", tt.command, err)
				}
				target = sub
			}
			var flag *pflag.Flag
			if flag = target.Flags().Lookup(tt.name); flag == nil {
				flag = target.PersistentFlags().Lookup(tt.name)
			}
			if flag == nil {
				t.Errorf("Expected flag %s to exist", tt.name)
			}
		})
	}
}

func TestSetupFlags(t *testing.T) {
	cmd := &cobra.Command{}
	flags := NewFlags()

	setupFlags(cmd, flags)

	outputFlag := cmd.PersistentFlags().Lookup("output")
	if outputFlag == nil {
		t.Fatal("output flag not found")
	}
	home, _ := os.UserHomeDir()
	expectedDefault := filepath.Join(home, ".local", "state", "doctrans", "output")
	if outputFlag.DefValue != expectedDefault {
		t.Errorf("Expected default output dir to be %s, got %s", expectedDefault, outputFlag.DefValue)
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	if formatFlag == nil {
		t.Fatal("format flag not found")
	}
	if formatFlag.DefValue != "txt" {
		t.Errorf("Expected default format to be txt, got %s", formatFlag.DefValue)
	}
}

func TestCommandDispatch(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"serve"}, "serve"},
		{[]string{"translate", "a.txt", "b.md"}, "translate a.txt b.md"},
		{[]string{"providers"}, "providers"},
		{[]string{"models", "--service", "openai"}, "models openai"},
		{[]string{"--archive"}, "archive"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			resetViper(t)
			flags := NewFlags()
			var got string
			cmd := CreateRootCommand(flags, Actions{
				Archive: func(*cobra.Command) error { got = "archive"; return nil },
				Serve:   func(*cobra.Command) error { got = "serve"; return nil },
				Translate: func(_ *cobra.Command, files []string) error {
					got = strings.Join(append([]string{"translate"}, files...), " ")
					return nil
				},
				Providers: func(*cobra.Command) error { got = "providers"; return nil },
				Models:    func(*cobra.Command) error { got = "models " + flags.Service; return nil },
			})
			cmd.SetArgs(tt.args)
			cmd.SetOut(&bytes.Buffer{})

			if err := cmd.Execute(); err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("ran %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandPropagatesErrors(t *testing.T) {
	resetViper(t)
	boom := errors.New("boom")
	cmd := CreateRootCommand(NewFlags(), Actions{Serve: func(*cobra.Command) error { return boom }})
	cmd.SetArgs([]string{"serve"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	if err := cmd.Execute(); !errors.Is(err, boom) {
		t.Errorf("Execute error = %v, want boom", err)
	}
}

func TestInitConfig(t *testing.T) {
	tests := []struct {
		name      string
		setupFunc func(t *testing.T) string
		check     func(t *testing.T)
	}{
		{
			name: "with config file",
			setupFunc: func(t *testing.T) string {
				cfgPath := filepath.Join(t.TempDir(), "test-config.yaml")
				content := `limits:
  per_user_daily: 5
translation:
  target_lang: de
  timeout: 10s
output:
  directory: /test/output`
				if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
					t.Fatalf("Failed to create test config: %v", err)
				}
				return cfgPath
			},
			check: func(t *testing.T) {
				if viper.GetInt("limits.per_user_daily") != 5 {
					t.Errorf("per_user_daily = %d, want 5", viper.GetInt("limits.per_user_daily"))
				}
				if viper.GetString("translation.target_lang") != "de" {
					t.Errorf("target_lang = %q, want de", viper.GetString("translation.target_lang"))
				}
				if viper.GetDuration("translation.timeout") != 10*time.Second {
					t.Errorf("timeout = %v, want 10s", viper.GetDuration("translation.timeout"))
				}
				if viper.GetInt("limits.per_user_concurrent") != 3 {
					t.Errorf("default per_user_concurrent lost: %d", viper.GetInt("limits.per_user_concurrent"))
				}
			},
		},
		{
			name:      "without config file",
			setupFunc: func(t *testing.T) string { return "" },
			check: func(t *testing.T) {
				if viper.GetString("translation.target_lang") != "ar" {
					t.Errorf("target_lang = %q, want ar", viper.GetString("translation.target_lang"))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			t.Setenv("DOCTRANS_TEST_VAR", "test-value")
			t.Setenv("DOCTRANS_LIMITS_GLOBAL_CONCURRENT", "7")

			InitConfig(tt.setupFunc(t))

			if viper.GetString("test_var") != "test-value" {
				t.Error("Environment variable not properly loaded")
			}
			if viper.GetInt("limits.global_concurrent") != 7 {
				t.Errorf("nested key from environment = %d, want 7", viper.GetInt("limits.global_concurrent"))
			}
			tt.check(t)
		})
	}
}

func TestGetProviderKeys(t *testing.T) {
	tests := []struct {
		name      string
		service   string
		env       map[string]string
		configKey interface{}
		expected  []string
	}{
		{
			name:     "from environment",
			service:  "groq",
			env:      map[string]string{"GROQ_KEYS": "k1, k2,,k3"},
			expected: []string{"k1", "k2", "k3"},
		},
		{
			name:      "environment and config merged without duplicates",
			service:   "gemini",
			env:       map[string]string{"GEMINI_KEYS": "a"},
			configKey: []string{"a", "b"},
			expected:  []string{"a", "b"},
		},
		{
			name:      "comma separated config string",
			service:   "azure",
			configKey: "x,y",
			expected:  []string{"x", "y"},
		},
		{
			name:     "legacy openai variable",
			service:  "openai",
			env:      map[string]string{"OPENAI_API_KEY": "sk-legacy"},
			expected: []string{"sk-legacy"},
		},
		{
			name:     "empty when neither set",
			service:  "groq",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			for _, name := range []string{"GROQ_KEYS", "GEMINI_KEYS", "OPENAI_KEYS", "AZURE_KEYS", "OPENAI_API_KEY"} {
				t.Setenv(name, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if tt.configKey != nil {
				viper.Set("providers."+tt.service+".keys", tt.configKey)
			}

			if got := GetProviderKeys(tt.service); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("GetProviderKeys(%s) = %v, want %v", tt.service, got, tt.expected)
			}
		})
	}
}

func TestLoadSettings(t *testing.T) {
	resetViper(t)
	setDefaults()
	t.Setenv("GROQ_KEYS", "gsk-1")
	viper.Set("queue.premium_users", []int{42, 7})
	viper.Set("translation.text_type", "technical")
	viper.Set("providers.azure.base_url", "https://example.openai.azure.com")
	viper.Set("cache.backend", "sqlite")
	viper.Set("cache.path", "/tmp/cache.db")

	s, err := LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}

	if s.Queue.PerUserConcurrent != 3 || s.Queue.PerUserDaily != 50 || s.Queue.GlobalConcurrent != 10 {
		t.Errorf("limits = %+v", s.Queue)
	}
	if s.MaxFileSize != 20*1024*1024 {
		t.Errorf("MaxFileSize = %d", s.MaxFileSize)
	}
	if !reflect.DeepEqual(s.Queue.PremiumUsers, []int64{42, 7}) {
		t.Errorf("PremiumUsers = %v", s.Queue.PremiumUsers)
	}
	if s.Processing.TextType != "technical" || s.Processing.ChunkSize != 1000 || s.Processing.Overlap != 100 {
		t.Errorf("Processing = %+v", s.Processing)
	}
	if s.Translation.Timeout != 30*time.Second || s.Translation.MaxRetries != 3 {
		t.Errorf("Translation = %+v", s.Translation)
	}
	if s.Providers[0].Service != "groq" || !reflect.DeepEqual(s.Providers[0].Keys, []string{"gsk-1"}) {
		t.Errorf("first provider = %+v", s.Providers[0])
	}
	if s.Providers[3].BaseURL != "https://example.openai.azure.com" {
		t.Errorf("azure provider = %+v", s.Providers[3])
	}
	if s.Cache.Backend != "sqlite" || s.Cache.Path != "/tmp/cache.db" || s.Cache.TTL != 2*time.Hour {
		t.Errorf("Cache = %+v", s.Cache)
	}
}

func TestLoadSettingsErrors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   interface{}
		wantErr string
	}{
		{"unknown text type", "translation.text_type", "poetry", "unknown text type"},
		{"overlap too large", "translation.overlap", 1000, "translation.overlap"},
		{"zero chunk size", "translation.chunk_size", 0, "translation.chunk_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			setDefaults()
			viper.Set(tt.key, tt.value)
			if _, err := LoadSettings(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadSettings error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		log, err := NewLogger(verbose)
		if err != nil {
			t.Fatalf("NewLogger(%v) failed: %v", verbose, err)
		}
		if log.Core().Enabled(-1) != verbose {
			t.Errorf("NewLogger(%v): debug enabled = %v", verbose, !verbose)
		}
	}
}
