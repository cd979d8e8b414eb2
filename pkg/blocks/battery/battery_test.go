package battery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
	"github.com/ForyoungYu/dwm-status/pkg/driver"
)

func supply(t *testing.T, root, name string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, supplyDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for f, v := range files {
		if err := os.WriteFile(filepath.Join(dir, f), []byte(v+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func newBlock(root string) *Block {
	return New(Config{
		Charging:    "charging",
		Discharging: "discharging",
		NoBattery:   "no_battery",
		Separator:   "-separator-",
		FS:          driver.FS{Root: root},
	})
}

func TestInfoRender(t *testing.T) {
	tests := []struct {
		info Info
		want string
	}{
		{Info{Capacity: 0, Estimation: 0}, "0%"},
		{Info{Capacity: 0.356, Estimation: 11759 * time.Second}, "36% (03:15)"},
		{Info{Capacity: 0.356}, "36%"},
		{Info{Capacity: 0.56, Estimation: 600 * time.Second}, "56% (00:10)"},
	}
	for _, tt := range tests {
		if got := tt.info.Render(); got != tt.want {
			t.Errorf("Render(%+v) = %q, want %q", tt.info, got, tt.want)
		}
	}
}

func TestNoBattery(t *testing.T) {
	root := t.TempDir()
	supply(t, root, "AC", map[string]string{"type": "Mains", "online": "1"})

	f, err := newBlock(root).Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.Text != "no_battery" {
		t.Errorf("Text = %q", f.Text)
	}
}

func TestNoPowerSupplyClass(t *testing.T) {
	f, err := newBlock(t.TempDir()).Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.Text != "no_battery" {
		t.Errorf("Text = %q", f.Text)
	}
}

func TestDischargingSorted(t *testing.T) {
	root := t.TempDir()
	supply(t, root, "AC", map[string]string{"type": "Mains", "online": "0"})
	// 56% with 10 minutes left: 5.6 Wh at 33.6 W.
	supply(t, root, "BAT1", map[string]string{
		"type": "Battery", "status": "Discharging",
		"energy_now": "5600000", "energy_full": "10000000", "power_now": "33600000",
	})
	// 75% via charge_*, 12 minutes left: 0.75 Ah at 3.75 A.
	supply(t, root, "BAT0", map[string]string{
		"type": "Battery", "status": "Discharging",
		"charge_now": "750000", "charge_full": "1000000", "current_now": "3750000",
	})

	f, err := newBlock(root).Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := "discharging 75% (00:12)-separator-56% (00:10)"
	if f.Text != want {
		t.Errorf("Text = %q, want %q", f.Text, want)
	}
	if f.Alert != "" {
		t.Errorf("unexpected alert %q at 66%%", f.Alert)
	}
}

func TestChargingEstimate(t *testing.T) {
	root := t.TempDir()
	supply(t, root, "ADP1", map[string]string{"type": "Mains", "online": "1"})
	// 2 Wh to go at 12 W: 10 minutes.
	supply(t, root, "BAT0", map[string]string{
		"type": "Battery", "status": "Charging",
		"energy_now": "8000000", "energy_full": "10000000", "power_now": "12000000",
	})

	f, err := newBlock(root).Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.Text != "charging 80% (00:10)" {
		t.Errorf("Text = %q", f.Text)
	}
}

func TestCapacityFallback(t *testing.T) {
	root := t.TempDir()
	supply(t, root, "BAT0", map[string]string{"type": "Battery", "capacity": "42"})

	f, err := newBlock(root).Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.Text != "discharging 42%" {
		t.Errorf("Text = %q", f.Text)
	}
}

func TestAbsentBatterySkipped(t *testing.T) {
	root := t.TempDir()
	supply(t, root, "BAT0", map[string]string{"type": "Battery", "present": "0"})

	f, err := newBlock(root).Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.Text != "no_battery" {
		t.Errorf("Text = %q", f.Text)
	}
}

func TestUnreadableBattery(t *testing.T) {
	root := t.TempDir()
	supply(t, root, "BAT0", map[string]string{"type": "Battery"})

	_, err := newBlock(root).Refresh(context.Background())
	var se *blocks.SourceError
	if !errors.As(err, &se) || se.Block != "battery" {
		t.Fatalf("err = %v, want SourceError", err)
	}
}

func TestAlertLevels(t *testing.T) {
	tests := []struct {
		capacity string
		online   string
		alert    string
		urgency  blocks.Urgency
	}{
		{"50", "0", "", blocks.UrgencyLow},
		{"18", "0", "battery below 20%", blocks.UrgencyNormal},
		{"15", "0", "battery below 15%", blocks.UrgencyNormal},
		{"9", "0", "battery below 10%", blocks.UrgencyCritical},
		{"1", "0", "battery below 2%", blocks.UrgencyCritical},
		{"1", "1", "", blocks.UrgencyLow},
	}

	for _, tt := range tests {
		t.Run(tt.capacity+"/"+tt.online, func(t *testing.T) {
			root := t.TempDir()
			supply(t, root, "AC", map[string]string{"type": "Mains", "online": tt.online})
			supply(t, root, "BAT0", map[string]string{"type": "Battery", "capacity": tt.capacity})

			f, err := newBlock(root).Refresh(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if f.Alert != tt.alert || f.Urgency != tt.urgency {
				t.Errorf("alert = %q (%s), want %q (%s)", f.Alert, f.Urgency, tt.alert, tt.urgency)
			}
		})
	}
}

func TestAlertsDisabledWithEmptyLevels(t *testing.T) {
	root := t.TempDir()
	supply(t, root, "BAT0", map[string]string{"type": "Battery", "capacity": "1"})

	b := New(Config{Levels: []int{}, FS: driver.FS{Root: root}})
	f, err := b.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f.Alert != "" {
		t.Errorf("alert = %q with no levels", f.Alert)
	}
}
