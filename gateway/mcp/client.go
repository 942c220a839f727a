// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"axonflow/campaign-gateway/shared/logger"
)

const (
	// DefaultCallTimeout bounds a single RPC round-trip.
	DefaultCallTimeout = 30 * time.Second

	// maxLineBytes caps one response line. Tool results can be large.
	maxLineBytes = 1024 * 1024

	stopGracePeriod = 5 * time.Second
)

// State is the lifecycle state of a Client.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
)

// ServerConfig describes one tool worker process.
type ServerConfig struct {
	// Name identifies the server in logs and registry lookups.
	Name string `yaml:"name"`

	// Command and Args launch the worker.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`

	// Env entries are appended to the parent environment.
	Env []string `yaml:"env"`

	// Tools lists the tool names this server provides.
	Tools []string `yaml:"tools"`

	// CallTimeout overrides DefaultCallTimeout when positive.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// DisableRestart leaves the client stopped after a worker exit
	// instead of relaunching on the next call.
	DisableRestart bool `yaml:"disable_restart"`
}

// Client supervises one worker process. Calls are correlated by
// numeric id through a pending map; a worker exit abandons in-flight
// calls, whose timeouts then free their slots.
type Client struct {
	config ServerConfig
	log    *logger.Logger

	mu       sync.Mutex
	state    State
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	nextID   int64
	pending  map[int64]chan *rpcResponse
	exited   bool
	procDone chan struct{}

	// writeMu keeps concurrent request lines from interleaving
	writeMu sync.Mutex

	callTimeout time.Duration
}

// NewClient creates a stopped client. The worker launches lazily on
// the first call, or explicitly with Start.
func NewClient(config ServerConfig, log *logger.Logger) *Client {
	if log == nil {
		log = logger.New("mcp")
	}
	timeout := config.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Client{
		config:      config,
		log:         log,
		state:       StateStopped,
		pending:     make(map[int64]chan *rpcResponse),
		callTimeout: timeout,
	}
}

// State reports the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start launches the worker process. It is idempotent while the
// worker is running.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(ctx)
}

func (c *Client) startLocked(_ context.Context) error {
	if c.state == StateRunning || c.state == StateStarting {
		return nil
	}
	if c.exited && c.config.DisableRestart {
		return fmt.Errorf("%w: %s", ErrServerExited, c.config.Name)
	}

	c.state = StateStarting

	// Not CommandContext: the worker outlives the call that happened
	// to launch it.
	cmd := exec.Command(c.config.Command, c.config.Args...)
	if len(c.config.Env) > 0 {
		cmd.Env = append(os.Environ(), c.config.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.state = StateStopped
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.state = StateStopped
		_ = stdin.Close()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		c.state = StateStopped
		_ = stdin.Close()
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		c.state = StateStopped
		_ = stdin.Close()
		return fmt.Errorf("failed to start tool server %s: %w", c.config.Name, err)
	}

	c.attachLocked(cmd, stdin, stdout, stderr)
	c.log.Info("", "", "Tool server started", map[string]interface{}{
		"server":  c.config.Name,
		"command": c.config.Command,
	})
	return nil
}

// attachLocked wires the worker's streams and starts the reader
// goroutines. cmd is nil when the transport is injected directly.
func (c *Client) attachLocked(cmd *exec.Cmd, stdin io.WriteCloser, stdout, stderr io.Reader) {
	c.cmd = cmd
	c.stdin = stdin
	c.state = StateRunning
	c.procDone = make(chan struct{})

	stdoutDone := make(chan struct{})
	stderrDone := make(chan struct{})
	procDone := c.procDone

	go func() {
		c.readLoop(stdout)
		close(stdoutDone)
	}()
	go func() {
		c.relayStderr(stderr)
		close(stderrDone)
	}()
	go func() {
		<-stdoutDone
		<-stderrDone
		var exitErr error
		if cmd != nil {
			exitErr = cmd.Wait()
		}
		c.markStopped(exitErr)
		close(procDone)
	}()
}

// startWithStreams wires an externally supplied transport in place of
// a spawned process. Used by tests.
func (c *Client) startWithStreams(stdin io.WriteCloser, stdout, stderr io.Reader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachLocked(nil, stdin, stdout, stderr)
}

// Call sends one request, launching the worker if needed, and waits
// for the matching response, the call timeout, or ctx cancellation. A
// timed-out call frees its pending slot; a response arriving after
// that is ignored by the read loop.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if err := c.Start(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrServerExited, c.config.Name)
	}
	c.nextID++
	id := c.nextID
	ch := make(chan *rpcResponse, 1)
	c.pending[id] = ch
	stdin := c.stdin
	c.mu.Unlock()

	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	_, err = stdin.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("failed to write to tool server %s: %w", c.config.Name, err)
	}

	timer := time.NewTimer(c.callTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, &RPCError{Method: method, Code: resp.Error.Code, Message: resp.Error.Message}
		}
		return resp.Result, nil
	case <-timer.C:
		c.removePending(id)
		return nil, fmt.Errorf("%w: %s %s after %s", ErrCallTimeout, c.config.Name, method, c.callTimeout)
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	}
}

// ExecuteTool invokes a named tool and returns its decoded payload.
// Failures the worker reports in-band surface as *ToolError.
func (c *Client) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	if args == nil {
		args = map[string]interface{}{}
	}

	raw, err := c.Call(ctx, toolsCallMethod, toolCallParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}

	var result toolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode tool result: %w", err)
	}

	var text string
	if len(result.Content) > 0 {
		text = result.Content[0].Text
	}

	if result.IsError {
		return nil, &ToolError{Tool: name, Message: text}
	}

	payload := map[string]interface{}{}
	if text != "" {
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			return nil, fmt.Errorf("failed to parse tool payload: %w", err)
		}
	}
	return payload, nil
}

// Stop closes the worker's stdin and waits for it to exit, killing it
// after a grace period. In-flight calls are abandoned to their
// timeouts.
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return nil
	}
	stdin := c.stdin
	cmd := c.cmd
	procDone := c.procDone
	c.mu.Unlock()

	_ = stdin.Close()

	select {
	case <-procDone:
	case <-time.After(stopGracePeriod):
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-procDone
	}

	// A deliberate stop permits a later relaunch even with
	// DisableRestart set.
	c.mu.Lock()
	c.exited = false
	c.mu.Unlock()
	return nil
}

// readLoop parses response lines from the worker's stdout. The scanner
// keeps a partial trailing segment buffered until its newline arrives.
// Malformed lines are logged and dropped; ids with no pending call are
// ignored.
func (c *Client) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			c.log.Warn("", "", "Dropping malformed tool server line", map[string]interface{}{
				"server": c.config.Name,
				"line":   clip(string(line)),
			})
			continue
		}
		c.dispatch(&resp)
	}

	if err := scanner.Err(); err != nil {
		c.log.Warn("", "", "Tool server stdout read failed", map[string]interface{}{
			"server": c.config.Name,
			"error":  err.Error(),
		})
	}
}

func (c *Client) dispatch(resp *rpcResponse) {
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()

	if ok {
		ch <- resp
	}
}

// relayStderr forwards the worker's stderr lines into the structured
// log so worker diagnostics stay visible.
func (c *Client) relayStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 4*1024), maxLineBytes)

	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			c.log.Info("", "", "Tool server stderr", map[string]interface{}{
				"server": c.config.Name,
				"line":   clip(line),
			})
		}
	}
}

// markStopped transitions to Stopped after the worker goes away.
// Pending entries stay in the map so their timeouts fire normally.
func (c *Client) markStopped(exitErr error) {
	c.mu.Lock()
	c.state = StateStopped
	c.exited = true
	inFlight := len(c.pending)
	c.mu.Unlock()

	fields := map[string]interface{}{
		"server":    c.config.Name,
		"in_flight": inFlight,
	}
	if exitErr != nil {
		fields["error"] = exitErr.Error()
	}
	c.log.Info("", "", "Tool server stopped", fields)
}

func (c *Client) removePending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func clip(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
