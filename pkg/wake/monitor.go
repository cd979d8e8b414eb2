package wake

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Monitor runs a long-lived command and signals once per line it prints,
// e.g. `alsactl monitor` for mixer changes.
type Monitor struct {
	Command string
	Args    []string
}

// NewMonitor returns a Monitor for the given command line.
func NewMonitor(command string, args ...string) *Monitor {
	return &Monitor{Command: command, Args: args}
}

// Name returns the command line.
func (m *Monitor) Name() string {
	return strings.Join(append([]string{m.Command}, m.Args...), " ")
}

// Watch starts the command and reads its stdout until it exits or ctx is
// cancelled. A command exiting on its own is reported as an error so the
// scheduler can resubscribe with backoff.
func (m *Monitor) Watch(ctx context.Context, notify func()) error {
	path, err := exec.LookPath(m.Command)
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	cmd := exec.CommandContext(ctx, path, m.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("monitor: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("monitor: start %s: %w", m.Name(), err)
	}

	// Grandchildren may hold the pipe open after the command is killed.
	stop := context.AfterFunc(ctx, func() { stdout.Close() })
	defer stop()

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		notify()
	}
	scanErr := scanner.Err()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if scanErr != nil {
		return fmt.Errorf("monitor: read %s: %w", m.Name(), scanErr)
	}
	if waitErr != nil {
		return fmt.Errorf("monitor: %s exited: %w", m.Name(), waitErr)
	}
	return fmt.Errorf("monitor: %s exited", m.Name())
}
