package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// IPC commands understood by the daemon.
const (
	CmdRefresh = "REFRESH"
	CmdStatus  = "STATUS"
	CmdLine    = "LINE"
	CmdQuit    = "QUIT"
)

// ioTimeout bounds a single IPC exchange.
const ioTimeout = 5 * time.Second

// IPCHandler processes incoming IPC commands. Implementations dispatch
// commands to the appropriate daemon subsystem.
type IPCHandler interface {
	HandleCommand(cmd string, args map[string]string) (string, error)
}

// IPCServer listens on a Unix domain socket for line-based text commands
// and returns JSON responses.
//
// Protocol:
//   - Client sends a single line: COMMAND [arg]
//   - Server responds with a JSON line followed by a newline.
//   - Supported commands: REFRESH [block], STATUS, LINE, QUIT
type IPCServer struct {
	socketPath string
	handler    IPCHandler
	log        *slog.Logger
	listener   net.Listener
	wg         sync.WaitGroup
	done       chan struct{}
	stopOnce   sync.Once
}

// NewIPCServer creates an IPC server that will listen on socketPath and
// dispatch commands to handler.
func NewIPCServer(socketPath string, handler IPCHandler, log *slog.Logger) *IPCServer {
	if log == nil {
		log = slog.Default()
	}
	return &IPCServer{
		socketPath: socketPath,
		handler:    handler,
		log:        log.With("component", "ipc"),
		done:       make(chan struct{}),
	}
}

// Start begins listening for connections on the Unix socket. The socket file
// is created with mode 0600. A stale socket left by a dead daemon is
// removed first; a socket that still accepts connections is an error.
func (s *IPCServer) Start() error {
	if conn, err := net.DialTimeout("unix", s.socketPath, time.Second); err == nil {
		conn.Close()
		return fmt.Errorf("%w: socket %s is in use", ErrAlreadyRunning, s.socketPath)
	}
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Debug("listening", "socket", s.socketPath)
	return nil
}

// Stop closes the listener, waits for active connections to finish, and
// removes the socket file. It is safe to call more than once.
func (s *IPCServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
		os.Remove(s.socketPath)
	})
}

func (s *IPCServer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Debug("accept failed", "error", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn reads one command line, dispatches it, and writes the
// response.
func (s *IPCServer) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(ioTimeout))

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}

	line := strings.TrimSpace(scanner.Text())
	if line == "" {
		return
	}

	cmd, args := parseIPCCommand(line)
	s.log.Debug("command", "cmd", cmd, "args", args)

	response, err := s.handler.HandleCommand(cmd, args)
	if err != nil {
		data, _ := json.Marshal(map[string]string{"error": err.Error()})
		fmt.Fprintf(conn, "%s\n", data)
		return
	}

	// Compact the JSON response to a single line for the line-based protocol.
	if compacted, err := compactJSON(response); err == nil {
		response = compacted
	}
	fmt.Fprintf(conn, "%s\n", response)
}

// parseIPCCommand parses a line-based IPC command into the command name
// and a map of positional arguments.
//
// Format:
//
//	STATUS          -> cmd="STATUS", args={}
//	LINE            -> cmd="LINE", args={}
//	REFRESH         -> cmd="REFRESH", args={}
//	REFRESH volume  -> cmd="REFRESH", args={block:volume}
//	QUIT            -> cmd="QUIT", args={}
func parseIPCCommand(line string) (string, map[string]string) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "", nil
	}

	cmd := strings.ToUpper(parts[0])
	args := make(map[string]string)

	switch cmd {
	case CmdRefresh:
		if len(parts) >= 2 {
			args["block"] = parts[1]
		}
	}
	return cmd, args
}

// IPCClient connects to a running daemon via Unix socket to send commands.
type IPCClient struct {
	socketPath string
}

// NewIPCClient creates a client that will connect to the daemon at socketPath.
func NewIPCClient(socketPath string) *IPCClient {
	return &IPCClient{socketPath: socketPath}
}

// SendCommand sends a text command to the daemon and returns the raw JSON
// response. A response carrying an "error" key is returned as an error.
func (c *IPCClient) SendCommand(ctx context.Context, cmd string) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return "", fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(ioTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)

	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return "", fmt.Errorf("send command: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}
		return "", fmt.Errorf("empty response from daemon")
	}

	resp := scanner.Text()
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(resp), &e) == nil && e.Error != "" {
		return "", errors.New(e.Error)
	}
	return resp, nil
}

// compactJSON removes whitespace from JSON to produce a single-line string
// suitable for line-based IPC transport.
func compactJSON(s string) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return "", err
	}
	return buf.String(), nil
}
