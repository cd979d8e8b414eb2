package blockset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
	"github.com/ForyoungYu/dwm-status/pkg/config"
	"github.com/ForyoungYu/dwm-status/pkg/driver"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testEnv(t *testing.T) (Env, *driver.FakeRunner) {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "sys/class/backlight/intel_backlight/brightness", "480\n")
	writeFile(t, root, "sys/class/backlight/intel_backlight/max_brightness", "960\n")
	writeFile(t, root, "sys/class/net/eth0/operstate", "down\n")

	runner := &driver.FakeRunner{}
	runner.Set("amixer -M get PCM", "  Front Left: Playback 40 [62%] [-20.00dB] [on]\n")

	fixed := time.Date(2024, time.March, 9, 14, 5, 0, 0, time.UTC)
	return Env{
		FS:       driver.FS{Root: root},
		Runner:   runner,
		Now:      func() time.Time { return fixed },
		NoEvents: true,
	}, runner
}

func boolPtr(b bool) *bool { return &b }

func TestBuild(t *testing.T) {
	env, _ := testEnv(t)
	cfgs := []config.BlockConfig{
		{Kind: "volume", Name: "vol", Options: map[string]string{"control": "PCM"}, Timeout: config.Duration{Duration: time.Second}},
		{Kind: "wired", Options: map[string]string{"interface": "eth0", "down": "offline"}},
		{Kind: "backlight", Format: "☀{BL}", MaxWidth: 5, Notify: boolPtr(false)},
		{Kind: "clock", Format: "%H:%M", Options: map[string]string{"location": "UTC"}},
	}

	set, err := Build(cfgs, env)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if diff := cmp.Diff([]string{"vol", "wired", "backlight", "clock"}, set.Names()); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]time.Duration{"vol": time.Second}, set.Timeouts); diff != "" {
		t.Errorf("timeouts:\n%s", diff)
	}
	if diff := cmp.Diff(map[string]int{"backlight": 5}, set.Widths); diff != "" {
		t.Errorf("widths:\n%s", diff)
	}
	if diff := cmp.Diff(map[string]bool{"backlight": true}, set.Silent); diff != "" {
		t.Errorf("silent:\n%s", diff)
	}

	want := map[string]string{
		"vol":       "62%",
		"wired":     "offline",
		"backlight": "☀50",
		"clock":     "14:05",
	}
	for _, b := range set.Registry.Blocks() {
		f, err := b.Refresh(context.Background())
		if err != nil {
			t.Errorf("%s: Refresh: %v", b.Name(), err)
			continue
		}
		if f.Text != want[b.Name()] {
			t.Errorf("%s: Text = %q, want %q", b.Name(), f.Text, want[b.Name()])
		}
	}
}

func TestBuildNoEventsUsesPolling(t *testing.T) {
	env, _ := testEnv(t)
	set, err := Build([]config.BlockConfig{{Kind: "volume", Options: map[string]string{"control": "PCM"}}}, env)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := set.Registry.Get("volume")
	if got := b.Cadence().Kind; got != blocks.CadenceInterval {
		t.Errorf("cadence = %v, want interval", got)
	}

	env.NoEvents = false
	set, err = Build([]config.BlockConfig{{Kind: "volume", Event: boolPtr(false)}}, env)
	if err != nil {
		t.Fatal(err)
	}
	b, _ = set.Registry.Get("volume")
	if got := b.Cadence().Kind; got != blocks.CadenceInterval {
		t.Errorf("event=false cadence = %v, want interval", got)
	}
}

func TestBuildErrors(t *testing.T) {
	env, _ := testEnv(t)

	tests := []struct {
		name string
		cfgs []config.BlockConfig
		want []string
	}{
		{"empty", nil, []string{"no blocks configured"}},
		{"unknown kind", []config.BlockConfig{{Kind: "weather"}}, []string{`unknown kind "weather"`}},
		{"unknown option", []config.BlockConfig{{Kind: "clock", Options: map[string]string{"zone": "UTC"}}}, []string{"unknown options [zone]"}},
		{"wired without interface", []config.BlockConfig{{Kind: "wired"}}, []string{"interface is required"}},
		{"bad option value", []config.BlockConfig{{Kind: "memory", Options: map[string]string{"alert_above": "lots"}}}, []string{"alert_above"}},
		{"duplicate", []config.BlockConfig{{Kind: "clock"}, {Kind: "clock"}}, []string{"already registered"}},
		{"collects all", []config.BlockConfig{{Kind: "weather"}, {Kind: "clock", Options: map[string]string{"location": "Not/AZone"}}}, []string{"block[0]", "block[1] clock"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.cfgs, env)
			if err == nil {
				t.Fatal("expected error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not contain %q", err, w)
				}
			}
		})
	}
}

func TestBuildPresets(t *testing.T) {
	env, _ := testEnv(t)
	for _, name := range config.Presets {
		if _, err := Build(config.BlockPreset(name), env); err != nil {
			t.Errorf("preset %s: %v", name, err)
		}
	}
}
