package cli

import (
	"reflect"
	"testing"
)

func TestNewFlags(t *testing.T) {
	flags := NewFlags()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"OutputFormat", flags.OutputFormat, "txt"},
		{"TargetLang", flags.TargetLang, "ar"},
		{"UserID", flags.UserID, int64(1)},
		{"ChunkSize", flags.ChunkSize, 1000},
		{"Overlap", flags.Overlap, 100},
		{"Addr", flags.Addr, ":8080"},
		{"Workers", flags.Workers, 4},
		{"CacheBackend", flags.CacheBackend, "memory"},
		{"Service", flags.Service, "groq"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !reflect.DeepEqual(tt.got, tt.expected) {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	boolTests := []struct {
		name  string
		value bool
	}{
		{"Verbose", flags.Verbose},
		{"Archive", flags.Archive},
	}
	for _, tt := range boolTests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value {
				t.Errorf("%s = true, want false", tt.name)
			}
		})
	}

	stringTests := []struct {
		name  string
		value string
	}{
		{"CfgFile", flags.CfgFile},
		{"OutputDir", flags.OutputDir},
		{"TextType", flags.TextType},
		{"BatchFile", flags.BatchFile},
		{"CachePath", flags.CachePath},
	}
	for _, tt := range stringTests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Errorf("%s = %v, want empty string", tt.name, tt.value)
			}
		})
	}
}
