package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version {
		t.Errorf("Version = %q, want %q", info.Version, Version)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q", info.GoVersion)
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Errorf("Platform = %q", info.Platform)
	}
	if info.GitCommit == "" {
		t.Error("GitCommit is empty")
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{
			name: "long commit is shortened",
			info: Info{Version: "1.2.0", GitCommit: "0123456789abcdef", BuildDate: "2026-01-02", GoVersion: "go1.24.0", Platform: "linux/arm64"},
			want: "logwire 1.2.0 (commit 0123456, built 2026-01-02, go1.24.0 linux/arm64)",
		},
		{
			name: "unknown commit kept",
			info: Info{Version: "dev", GitCommit: "unknown", BuildDate: "unknown", GoVersion: "go1.24.0", Platform: "linux/amd64"},
			want: "logwire dev (commit unknown, built unknown, go1.24.0 linux/amd64)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.Summary(); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestString(t *testing.T) {
	if !strings.Contains(Get().Summary(), String()) {
		t.Error("summary does not contain the version")
	}
}
