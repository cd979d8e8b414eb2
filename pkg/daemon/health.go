package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
)

// HealthStatus is a point-in-time snapshot of the daemon, served over IPC
// STATUS and optionally mirrored to a file after each render.
type HealthStatus struct {
	PID     int       `json:"pid"`
	Version string    `json:"version,omitempty"`
	Started time.Time `json:"started"`
	Uptime  string    `json:"uptime"`

	Line    string `json:"line"`
	State   string `json:"state"`
	Renders int64  `json:"renders"`

	Blocks  []blocks.Status `json:"blocks"`
	Healthy int             `json:"healthy_blocks"`
	Failing []string        `json:"failing_blocks,omitempty"`

	Updated time.Time `json:"updated"`
}

// NewHealthStatus summarizes block statuses into a HealthStatus.
func NewHealthStatus(started time.Time, line string, statuses []blocks.Status) *HealthStatus {
	now := time.Now()
	h := &HealthStatus{
		PID:     os.Getpid(),
		Started: started,
		Uptime:  now.Sub(started).Round(time.Second).String(),
		Line:    line,
		Blocks:  statuses,
		Updated: now,
	}
	for _, s := range statuses {
		if s.Healthy {
			h.Healthy++
		} else {
			h.Failing = append(h.Failing, s.Name)
		}
	}
	return h
}

// WriteHealthFile writes the health status as indented JSON to path.
// The write is atomic: content goes to a temporary file first, then is
// renamed into place to prevent partial reads.
func WriteHealthFile(path string, status *HealthStatus) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create health directory: %w", err)
	}

	data, err := healthStatusToJSON(status)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(data), 0o644); err != nil {
		return fmt.Errorf("write temp health file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename health file: %w", err)
	}
	return nil
}

// ReadHealthFile reads and parses the health status JSON from path.
func ReadHealthFile(path string) (*HealthStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read health file: %w", err)
	}

	var status HealthStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("unmarshal health file: %w", err)
	}
	return &status, nil
}

func healthStatusToJSON(status *HealthStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal health status: %w", err)
	}
	return string(data), nil
}
