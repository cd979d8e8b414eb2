// Package driver is the thin I/O layer blocks call into for raw values:
// external command-line tools and sysfs/procfs files. Both are fallible
// black boxes; blocks wrap their failures as SourceErrors.
package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Runner executes an external tool and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs tools via os/exec, locating them through PATH.
type ExecRunner struct{}

// Run executes name with args. The process is killed when ctx is done.
// Non-zero exits return an error carrying the trimmed stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("locate %s: %w", name, err)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", name, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
			}
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// FakeRunner returns canned output keyed by the full command line
// ("amixer -M get Master"). It is used by block tests.
type FakeRunner struct {
	Outputs map[string]string
	Errors  map[string]error

	// Calls records every command line run, in order.
	Calls []string

	mu sync.Mutex
}

// Run looks up the command line in Errors then Outputs.
func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	line := strings.Join(append([]string{name}, args...), " ")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, line)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.Errors[line]; ok {
		return nil, err
	}
	if out, ok := f.Outputs[line]; ok {
		return []byte(out), nil
	}
	return nil, fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}

// Set replaces the canned output for a command line and clears any error.
func (f *FakeRunner) Set(line, out string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Outputs == nil {
		f.Outputs = make(map[string]string)
	}
	f.Outputs[line] = out
	delete(f.Errors, line)
}

// Fail makes a command line return err.
func (f *FakeRunner) Fail(line string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Errors == nil {
		f.Errors = make(map[string]error)
	}
	f.Errors[line] = err
}
