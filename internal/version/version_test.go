package version_test

import (
	"testing"

	"github.com/fatih/color"

	"gale/internal/version"
)

func TestBanner(t *testing.T) {
	color.NoColor = true
	orig := version.Version
	defer func() { version.Version = orig }()

	tests := []struct {
		version string
		want    string
	}{
		{"0.1.0-dev", "0.1.0-dev"},
		{"1.22.3", "1.22.3"},
		{"dev", "dev"},
		{"1.2", "1.2"},
	}
	for _, tt := range tests {
		version.Version = tt.version
		if got := version.Banner(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}
