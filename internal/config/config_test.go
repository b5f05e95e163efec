package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gale/internal/config"
)

// The thresholds are policy, not semantics. This test pins the shipped
// defaults so a change to them is a visible decision.
func TestDefault_Conformance(t *testing.T) {
	cfg := config.Default()
	if cfg.Lowering.StringSwitchThreshold != 8 {
		t.Errorf("expected string_switch_threshold 8, got %d", cfg.Lowering.StringSwitchThreshold)
	}
	if cfg.Lowering.PlaceholderPenalty != 2 {
		t.Errorf("expected placeholder_penalty 2, got %d", cfg.Lowering.PlaceholderPenalty)
	}
	if cfg.Lowering.MaxBufferEntries != 256 {
		t.Errorf("expected max_buffer_entries 256, got %d", cfg.Lowering.MaxBufferEntries)
	}
	if cfg.Pipeline.InlineMaxSize != 24 {
		t.Errorf("expected inline_max_size 24, got %d", cfg.Pipeline.InlineMaxSize)
	}
	if cfg.RegAlloc.RegisterFileSize != 250 {
		t.Errorf("expected register_file_size 250, got %d", cfg.RegAlloc.RegisterFileSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[pipeline]
verify = true
disable = ["inline"]

[lowering]
string_switch_threshold = 3
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Pipeline.Verify {
		t.Errorf("expected verify to be enabled")
	}
	if !cfg.Pipeline.Disabled("inline") || cfg.Pipeline.Disabled("dce") {
		t.Errorf("expected only inline to be disabled, got %v", cfg.Pipeline.Disable)
	}
	if cfg.Lowering.StringSwitchThreshold != 3 {
		t.Errorf("expected threshold 3, got %d", cfg.Lowering.StringSwitchThreshold)
	}
	if cfg.Lowering.PlaceholderPenalty != config.Default().Lowering.PlaceholderPenalty {
		t.Errorf("expected untouched keys to keep defaults")
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown_key", "[lowering]\nstring_switch = 3\n", "unknown keys lowering.string_switch"},
		{"range", "[regalloc]\nregister_file_size = 2\n", "register_file_size"},
		{"syntax", "[lowering\n", "failed to parse TOML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoad_InvalidIsWrapped(t *testing.T) {
	_, err := config.Load(writeConfig(t, "[lowering]\nmax_buffer_entries = 0\n"))
	if !errors.Is(err, config.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestResolve_FindsNearestManifest(t *testing.T) {
	path := writeConfig(t, "[pipeline]\ninline_max_size = 5\n")
	sub := filepath.Join(filepath.Dir(path), "src", "deep")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Resolve("", sub)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Pipeline.InlineMaxSize != 5 {
		t.Errorf("expected inline_max_size 5 from the parent manifest, got %d", cfg.Pipeline.InlineMaxSize)
	}
}
