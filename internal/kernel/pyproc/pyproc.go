// Package pyproc runs an interactive Python session as a child process
// speaking a JSON-lines protocol over its pipes. It implements
// kernel.Session for deployments that do not embed an execution engine.
package pyproc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	_ "embed"

	"github.com/rgbkrk/honchkrow/internal/display"
	"github.com/rgbkrk/honchkrow/internal/kernel"
	"github.com/rgbkrk/honchkrow/internal/logger"
)

//go:embed harness.py
var harnessSource string

// Config holds session settings
type Config struct {
	// PythonBin is the interpreter binary, e.g. "python3"
	PythonBin string

	// StartupTimeout bounds how long to wait for the harness ready line
	StartupTimeout time.Duration

	Logger *logger.Logger
}

// Session is a kernel.Session backed by one Python child process.
//
// All Execute and Lookup calls share one namespace inside the child, so
// they are serialized behind a single mutex: overlapping requests cannot
// interleave side effects. There is no cancellation of an in-flight cell;
// a non-terminating cell blocks the slot indefinitely.
type Session struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	logger *logger.Logger
	closed bool
}

type request struct {
	Op   string `json:"op"`
	Code string `json:"code,omitempty"`
	Name string `json:"name,omitempty"`
}

type execResponse struct {
	Success  bool           `json:"success"`
	Result   *display.Data  `json:"result"`
	Error    string         `json:"error"`
	Stdout   string         `json:"stdout"`
	Stderr   string         `json:"stderr"`
	Displays []display.Data `json:"displays"`
}

type lookupResponse struct {
	Found bool          `json:"found"`
	Value *display.Data `json:"value"`
}

// New launches the harness and waits for it to report ready
func New(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.PythonBin == "" {
		cfg.PythonBin = "python3"
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = 10 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logger.New("info", "text", "pyproc")
	}

	cmd := exec.Command(cfg.PythonBin, "-u", "-c", harnessSource)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", cfg.PythonBin, err)
	}

	s := &Session{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReaderSize(stdout, 1<<20),
		logger: log,
	}

	// Drain interpreter stderr so the child never blocks on it
	go s.drainStderr(stderr)

	if err := s.awaitReady(ctx, cfg.StartupTimeout); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}

	log.Info("kernel session started", logger.Fields{
		"python": cfg.PythonBin,
		"pid":    cmd.Process.Pid,
	})
	return s, nil
}

func (s *Session) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug("kernel stderr", logger.Fields{"line": scanner.Text()})
	}
}

func (s *Session) awaitReady(ctx context.Context, timeout time.Duration) error {
	type readyResult struct {
		line string
		err  error
	}
	ch := make(chan readyResult, 1)

	go func() {
		line, err := s.stdout.ReadString('\n')
		ch <- readyResult{line, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("kernel exited before ready: %w", res.err)
		}
		var ready struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal([]byte(res.line), &ready); err != nil || ready.Status != "ready" {
			return fmt.Errorf("unexpected kernel greeting: %q", res.line)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("kernel did not become ready within %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// roundTrip sends one request and reads one response line. Callers must
// hold s.mu.
func (s *Session) roundTrip(req request) ([]byte, error) {
	if s.closed {
		return nil, fmt.Errorf("session is closed")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	if _, err := s.stdin.Write(append(payload, '\n')); err != nil {
		return nil, fmt.Errorf("failed to write to kernel: %w", err)
	}

	line, err := s.stdout.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read from kernel: %w", err)
	}
	return []byte(line), nil
}

// Execute runs one code string against the shared namespace
func (s *Session) Execute(ctx context.Context, code string) (*kernel.Outcome, error) {
	// Honor cancellation while queued, not once the cell is in flight
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.roundTrip(request{Op: "exec", Code: code})
	if err != nil {
		return nil, err
	}

	var resp execResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("malformed kernel response: %w", err)
	}

	return &kernel.Outcome{
		Success:     resp.Success,
		Result:      resp.Result,
		ErrorDetail: resp.Error,
		Stdout:      resp.Stdout,
		Stderr:      resp.Stderr,
		Displays:    resp.Displays,
	}, nil
}

// Lookup fetches the formatted representation of a namespace variable
func (s *Session) Lookup(ctx context.Context, name string) (*display.Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.roundTrip(request{Op: "lookup", Name: name})
	if err != nil {
		return nil, err
	}

	var resp lookupResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("malformed kernel response: %w", err)
	}

	if !resp.Found {
		return nil, &kernel.NotDefinedError{Name: name}
	}
	return resp.Value, nil
}

// Ping verifies the child process still answers
func (s *Session) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.roundTrip(request{Op: "ping"})
	if err != nil {
		return err
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Status != "ok" {
		return fmt.Errorf("unexpected ping response: %q", raw)
	}
	return nil
}

// Close asks the harness to exit and reaps the child
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// Best-effort polite shutdown; the pipe close ends the stdin loop
	// even if the shutdown frame is lost
	if payload, err := json.Marshal(request{Op: "shutdown"}); err == nil {
		_, _ = s.stdin.Write(append(payload, '\n'))
	}
	_ = s.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		_ = s.cmd.Process.Kill()
		return <-done
	}
}
