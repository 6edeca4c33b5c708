package version

import "testing"

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if info.Version == "" || info.GitCommit == "" || info.BuildDate == "" {
		t.Fatalf("expected non-empty version info")
	}
}

func TestGetShortCommit(t *testing.T) {
	GitCommit = "abcdef123456"
	if GetShortCommit() != "abcdef1" {
		t.Fatalf("expected short commit")
	}
}

func TestString(t *testing.T) {
	Version, GitCommit, BuildDate = "v1.0.0", "0123456789", "2024-01-15"
	if got := String(); got != "v1.0.0 (0123456, built 2024-01-15)" {
		t.Fatalf("unexpected version string %q", got)
	}
}
