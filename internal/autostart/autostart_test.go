package autostart_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"memsweep/internal/autostart"
)

func TestEnableDisableRoundTrip(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	if enabled, err := autostart.Enabled(); err != nil || enabled {
		t.Fatalf("expected disabled before Enable, got %v err=%v", enabled, err)
	}

	path, err := autostart.Enable("/usr/local/bin/memsweep", "/home/u/.config/memsweep/config.toml")
	if err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if want := filepath.Join(base, "autostart", "memsweep.desktop"); path != want {
		t.Fatalf("unexpected entry path: got %q want %q", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if !strings.Contains(string(data), "Exec=/usr/local/bin/memsweep --config /home/u/.config/memsweep/config.toml run\n") {
		t.Fatalf("unexpected Exec line:\n%s", data)
	}
	if enabled, err := autostart.Enabled(); err != nil || !enabled {
		t.Fatalf("expected enabled, got %v err=%v", enabled, err)
	}

	if _, err := autostart.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if enabled, _ := autostart.Enabled(); enabled {
		t.Fatal("expected disabled after Disable")
	}
	if _, err := autostart.Disable(); err != nil {
		t.Fatalf("second Disable should be a no-op: %v", err)
	}
}

func TestEnableRejectsEmptyExecutable(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if _, err := autostart.Enable("  ", ""); err == nil {
		t.Fatal("expected error for empty executable")
	}
}

func TestEntryQuotesExecArguments(t *testing.T) {
	tests := []struct {
		name       string
		executable string
		configPath string
		wantExec   string
	}{
		{"plain", "/opt/memsweep", "", "Exec=/opt/memsweep run"},
		{"space", "/opt/my tools/memsweep", "", `Exec="/opt/my tools/memsweep" run`},
		{"dollar", "/opt/memsweep", "/tmp/$HOME.toml", `Exec=/opt/memsweep --config "/tmp/\\$HOME.toml" run`},
		{"percent", "/opt/memsweep", "/tmp/100%.toml", `Exec=/opt/memsweep --config "/tmp/100%%.toml" run`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := autostart.Entry(tt.executable, tt.configPath)
			if !strings.Contains(entry, tt.wantExec+"\n") {
				t.Fatalf("missing %q in:\n%s", tt.wantExec, entry)
			}
			if !strings.HasPrefix(entry, "[Desktop Entry]\n") {
				t.Fatalf("missing group header:\n%s", entry)
			}
		})
	}
}
