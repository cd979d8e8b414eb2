package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ForyoungYu/dwm-status/pkg/blocks"
	"github.com/ForyoungYu/dwm-status/pkg/blockset"
	"github.com/ForyoungYu/dwm-status/pkg/config"
	"github.com/ForyoungYu/dwm-status/pkg/sink"
)

func newSet(t *testing.T, bs ...blocks.Block) *blockset.Set {
	t.Helper()
	reg := blocks.NewRegistry()
	for _, b := range bs {
		if err := reg.Register(b); err != nil {
			t.Fatal(err)
		}
	}
	return &blockset.Set{
		Registry: reg,
		Timeouts: map[string]time.Duration{},
		Widths:   map[string]int{},
		Silent:   map[string]bool{},
	}
}

func testGeneral(t *testing.T) config.GeneralConfig {
	t.Helper()
	g := config.DefaultConfig().General
	dir := t.TempDir()
	g.PIDFile = filepath.Join(dir, "d.pid")
	g.Socket = filepath.Join(dir, "d.sock")
	g.HealthFile = filepath.Join(dir, "health.json")
	g.Debounce = config.Duration{Duration: 5 * time.Millisecond}
	g.Timeout = config.Duration{Duration: 200 * time.Millisecond}
	return g
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "dwm-status.pid")

	if err := AcquirePID(path); err != nil {
		t.Fatalf("AcquirePID: %v", err)
	}
	pid, err := ReadPID(path)
	if err != nil {
		t.Fatal(err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	// Re-acquiring our own file succeeds.
	if err := AcquirePID(path); err != nil {
		t.Errorf("re-acquire: %v", err)
	}
	if err := ReleasePID(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("pid file still present after release")
	}
	if err := ReleasePID(path); err != nil {
		t.Errorf("release of missing file: %v", err)
	}
}

func TestPIDFileHeldByLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.pid")
	other := os.Getppid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(other)), 0o644); err != nil {
		t.Fatal(err)
	}

	err := AcquirePID(path)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}

	// Release leaves a file owned by someone else alone.
	if err := ReleasePID(path); err != nil {
		t.Fatal(err)
	}
	if pid, _ := ReadPID(path); pid != other {
		t.Errorf("foreign pid file was modified")
	}
}

func TestPIDFileStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.pid")
	if err := os.WriteFile(path, []byte("0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := AcquirePID(path); err != nil {
		t.Fatalf("stale pid file should be replaced: %v", err)
	}
	if pid, _ := ReadPID(path); pid != os.Getpid() {
		t.Errorf("pid = %d after takeover", pid)
	}
}

func TestParseIPCCommand(t *testing.T) {
	tests := []struct {
		line     string
		wantCmd  string
		wantArgs map[string]string
	}{
		{"STATUS", "STATUS", map[string]string{}},
		{"line", "LINE", map[string]string{}},
		{"REFRESH", "REFRESH", map[string]string{}},
		{"refresh volume", "REFRESH", map[string]string{"block": "volume"}},
		{"QUIT now", "QUIT", map[string]string{}},
		{"   ", "", nil},
	}
	for _, tt := range tests {
		cmd, args := parseIPCCommand(tt.line)
		if cmd != tt.wantCmd {
			t.Errorf("%q: cmd = %q, want %q", tt.line, cmd, tt.wantCmd)
		}
		if diff := cmp.Diff(tt.wantArgs, args); diff != "" {
			t.Errorf("%q: args (-want +got):\n%s", tt.line, diff)
		}
	}
}

func TestNewHealthStatus(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	h := NewHealthStatus(started, "a | n/a", []blocks.Status{
		{Name: "a", Healthy: true},
		{Name: "b", Healthy: false, LastError: "boom"},
	})
	if h.Healthy != 1 {
		t.Errorf("healthy = %d, want 1", h.Healthy)
	}
	if diff := cmp.Diff([]string{"b"}, h.Failing); diff != "" {
		t.Errorf("failing:\n%s", diff)
	}
	if h.PID != os.Getpid() || h.Line != "a | n/a" {
		t.Errorf("health = %+v", h)
	}

	path := filepath.Join(t.TempDir(), "h", "health.json")
	if err := WriteHealthFile(path, h); err != nil {
		t.Fatal(err)
	}
	got, err := ReadHealthFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Line != h.Line || len(got.Blocks) != 2 || got.Blocks[1].LastError != "boom" {
		t.Errorf("read back %+v", got)
	}
}

type echoHandler struct{}

func (echoHandler) HandleCommand(cmd string, args map[string]string) (string, error) {
	if cmd == "FAIL" {
		return "", errors.New("nope")
	}
	data, _ := json.MarshalIndent(map[string]any{"cmd": cmd, "args": args}, "", "  ")
	return string(data), nil
}

func TestIPCServer(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ipc.sock")
	srv := NewIPCServer(sock, echoHandler{}, nil)
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	defer srv.Stop()

	info, err := os.Stat(sock)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("socket mode = %o, want 600", perm)
	}

	ctx := context.Background()
	client := NewIPCClient(sock)
	resp, err := client.SendCommand(ctx, "refresh clock")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(resp, "\n") {
		t.Errorf("response not compacted: %q", resp)
	}
	var got struct {
		Cmd  string            `json:"cmd"`
		Args map[string]string `json:"args"`
	}
	if err := json.Unmarshal([]byte(resp), &got); err != nil {
		t.Fatal(err)
	}
	if got.Cmd != "REFRESH" || got.Args["block"] != "clock" {
		t.Errorf("response = %+v", got)
	}

	if _, err := client.SendCommand(ctx, "FAIL"); err == nil || err.Error() != "nope" {
		t.Errorf("err = %v, want nope", err)
	}

	// A second server on a live socket is refused.
	if err := NewIPCServer(sock, echoHandler{}, nil).Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start err = %v, want ErrAlreadyRunning", err)
	}

	srv.Stop()
	srv.Stop()
	if _, err := os.Stat(sock); !os.IsNotExist(err) {
		t.Errorf("socket not removed on Stop")
	}
	if _, err := client.SendCommand(ctx, "STATUS"); err == nil {
		t.Error("expected dial error after Stop")
	}
}

func TestIPCServerReplacesStaleSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ipc.sock")
	if err := os.WriteFile(sock, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	srv := NewIPCServer(sock, echoHandler{}, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start over stale file: %v", err)
	}
	srv.Stop()
}

func TestDaemonRun(t *testing.T) {
	g := testGeneral(t)
	a := blocks.NewMockBlock("a", 0, blocks.WithText("A"))
	b := blocks.NewMockBlock("b", 0, blocks.WithError(errors.New("down")))
	rec := sink.NewRecorder()

	d := New(Options{General: g, Blocks: newSet(t, a, b), Sink: rec, Version: "test"})

	errc := make(chan error, 1)
	go func() { errc <- d.Run(context.Background()) }()

	eventually(t, "first render", func() bool { return rec.Last() == "A | n/a" })

	if pid, err := ReadPID(g.PIDFile); err != nil || pid != os.Getpid() {
		t.Errorf("pid file = %d, %v", pid, err)
	}

	ctx := context.Background()
	client := NewIPCClient(g.Socket)

	resp, err := client.SendCommand(ctx, CmdLine)
	if err != nil {
		t.Fatal(err)
	}
	var line struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(resp), &line); err != nil {
		t.Fatal(err)
	}
	if line.Text != "A | n/a" {
		t.Errorf("LINE = %q", line.Text)
	}

	resp, err = client.SendCommand(ctx, CmdStatus)
	if err != nil {
		t.Fatal(err)
	}
	var h HealthStatus
	if err := json.Unmarshal([]byte(resp), &h); err != nil {
		t.Fatal(err)
	}
	if h.Version != "test" || h.Healthy != 1 || len(h.Blocks) != 2 {
		t.Errorf("STATUS = %+v", h)
	}
	if diff := cmp.Diff([]string{"b"}, h.Failing); diff != "" {
		t.Errorf("failing:\n%s", diff)
	}

	b.SetText("B")
	b.SetError(nil)
	if _, err := client.SendCommand(ctx, "REFRESH b"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "refreshed render", func() bool { return rec.Last() == "A | B" })

	if _, err := client.SendCommand(ctx, "REFRESH nope"); err == nil {
		t.Error("expected error for unknown block")
	}
	if _, err := client.SendCommand(ctx, "DANCE"); err == nil {
		t.Error("expected error for unknown command")
	}

	eventually(t, "health file", func() bool {
		hf, err := ReadHealthFile(g.HealthFile)
		return err == nil && hf.Line == "A | B"
	})

	if _, err := client.SendCommand(ctx, CmdQuit); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after QUIT")
	}

	if !rec.Closed() {
		t.Error("sink not closed")
	}
	if _, err := os.Stat(g.PIDFile); !os.IsNotExist(err) {
		t.Error("pid file not released")
	}
	if _, err := os.Stat(g.Socket); !os.IsNotExist(err) {
		t.Error("socket not removed")
	}
}

func TestDaemonRunRefusesSecondInstance(t *testing.T) {
	g := testGeneral(t)
	if err := os.WriteFile(g.PIDFile, []byte(strconv.Itoa(os.Getppid())), 0o644); err != nil {
		t.Fatal(err)
	}
	d := New(Options{General: g, Blocks: newSet(t, blocks.NewMockBlock("a", 0)), Sink: sink.NewRecorder()})
	if err := d.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("err = %v, want ErrAlreadyRunning", err)
	}
}

func TestOnce(t *testing.T) {
	g := testGeneral(t)
	g.Timeout = config.Duration{Duration: 50 * time.Millisecond}

	slow := blocks.NewMockBlock("slow", 0, blocks.WithRefreshFunc(func(ctx context.Context) (blocks.Fragment, error) {
		<-ctx.Done()
		return blocks.Fragment{}, ctx.Err()
	}))
	set := newSet(t,
		blocks.NewMockBlock("a", time.Second, blocks.WithText("A")),
		blocks.NewMockBlock("b", 0, blocks.WithError(errors.New("boom"))),
		slow,
	)

	line, err := Once(context.Background(), g, set, nil)
	if err != nil {
		t.Fatal(err)
	}
	if line != "A | n/a | n/a" {
		t.Errorf("line = %q", line)
	}
}

func TestOnceCancelled(t *testing.T) {
	g := testGeneral(t)
	g.Timeout = config.Duration{Duration: time.Minute}
	hang := blocks.NewMockBlock("hang", 0, blocks.WithRefreshFunc(func(ctx context.Context) (blocks.Fragment, error) {
		<-ctx.Done()
		return blocks.Fragment{}, ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := Once(ctx, g, newSet(t, hang), nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
