// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

// receivedRequest keeps params raw so tests can decode them as the
// concrete payload type.
type receivedRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// pipeServer is a scripted worker on the far end of the client's pipes.
type pipeServer struct {
	t        *testing.T
	requests *bufio.Scanner
	out      *io.PipeWriter
}

func newPipeClient(t *testing.T, cfg ServerConfig) (*Client, *pipeServer) {
	t.Helper()

	if cfg.Name == "" {
		cfg.Name = "test-server"
	}

	requestR, requestW := io.Pipe()
	responseR, responseW := io.Pipe()

	c := NewClient(cfg, nil)
	c.startWithStreams(requestW, responseR, strings.NewReader(""))

	srv := &pipeServer{
		t:        t,
		requests: bufio.NewScanner(requestR),
		out:      responseW,
	}
	t.Cleanup(func() {
		_ = responseW.Close()
		_ = requestR.Close()
	})
	return c, srv
}

func (s *pipeServer) nextRequest() receivedRequest {
	s.t.Helper()
	if !s.requests.Scan() {
		s.t.Fatal("no request line available")
	}
	var req receivedRequest
	if err := json.Unmarshal(s.requests.Bytes(), &req); err != nil {
		s.t.Fatalf("failed to parse request line: %v", err)
	}
	return req
}

func (s *pipeServer) respond(id int64, result string) {
	s.t.Helper()
	s.writeRaw(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, id, result) + "\n")
}

func (s *pipeServer) writeRaw(raw string) {
	s.t.Helper()
	if _, err := io.WriteString(s.out, raw); err != nil {
		s.t.Fatalf("failed to write to client: %v", err)
	}
}

func (s *pipeServer) exit() {
	_ = s.out.Close()
}

type callOutcome struct {
	raw     json.RawMessage
	payload map[string]interface{}
	err     error
}

func goCall(c *Client, method string, params interface{}) chan callOutcome {
	ch := make(chan callOutcome, 1)
	go func() {
		raw, err := c.Call(context.Background(), method, params)
		ch <- callOutcome{raw: raw, err: err}
	}()
	return ch
}

func goExecuteTool(c *Client, name string, args map[string]interface{}) chan callOutcome {
	ch := make(chan callOutcome, 1)
	go func() {
		payload, err := c.ExecuteTool(context.Background(), name, args)
		ch <- callOutcome{payload: payload, err: err}
	}()
	return ch
}

func waitOutcome(t *testing.T, ch chan callOutcome) callOutcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(3 * time.Second):
		t.Fatal("call did not finish in time")
		return callOutcome{}
	}
}

func decodeResult(t *testing.T, raw json.RawMessage) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	return m
}

func TestCallResolvesResult(t *testing.T) {
	c, srv := newPipeClient(t, ServerConfig{CallTimeout: 2 * time.Second})

	outcome := goCall(c, "ping", map[string]interface{}{"n": 1})

	req := srv.nextRequest()
	if req.JSONRPC != "2.0" {
		t.Errorf("expected jsonrpc 2.0, got %q", req.JSONRPC)
	}
	if req.Method != "ping" {
		t.Errorf("expected method ping, got %q", req.Method)
	}
	if req.ID != 1 {
		t.Errorf("expected first id 1, got %d", req.ID)
	}

	srv.respond(req.ID, `{"pong":true}`)

	out := waitOutcome(t, outcome)
	if out.err != nil {
		t.Fatalf("unexpected error: %v", out.err)
	}
	if got := decodeResult(t, out.raw); got["pong"] != true {
		t.Errorf("expected pong result, got %v", got)
	}
	if c.State() != StateRunning {
		t.Errorf("expected running state, got %s", c.State())
	}
}

func TestOutOfOrderResponsesMatchByID(t *testing.T) {
	c, srv := newPipeClient(t, ServerConfig{CallTimeout: 2 * time.Second})

	alpha := goCall(c, "alpha", nil)
	beta := goCall(c, "beta", nil)

	first := srv.nextRequest()
	second := srv.nextRequest()
	ids := map[string]int64{first.Method: first.ID, second.Method: second.ID}
	if len(ids) != 2 {
		t.Fatalf("expected two distinct methods, got %v", ids)
	}

	// Reply to the later call first.
	srv.respond(ids["beta"], `{"from":"beta"}`)
	srv.respond(ids["alpha"], `{"from":"alpha"}`)

	outAlpha := waitOutcome(t, alpha)
	outBeta := waitOutcome(t, beta)
	if outAlpha.err != nil || outBeta.err != nil {
		t.Fatalf("unexpected errors: %v, %v", outAlpha.err, outBeta.err)
	}
	if got := decodeResult(t, outAlpha.raw); got["from"] != "alpha" {
		t.Errorf("alpha call got %v", got)
	}
	if got := decodeResult(t, outBeta.raw); got["from"] != "beta" {
		t.Errorf("beta call got %v", got)
	}
}

func TestTimeoutFreesSlotAndIgnoresLateResponse(t *testing.T) {
	c, srv := newPipeClient(t, ServerConfig{CallTimeout: 150 * time.Millisecond})

	outcome := goCall(c, "slow", nil)
	req := srv.nextRequest()

	out := waitOutcome(t, outcome)
	if !errors.Is(out.err, ErrCallTimeout) {
		t.Fatalf("expected timeout error, got %v", out.err)
	}

	c.mu.Lock()
	pending := len(c.pending)
	c.mu.Unlock()
	if pending != 0 {
		t.Errorf("expected pending slot freed, got %d entries", pending)
	}

	// The late response must be ignored, and the next call must work.
	srv.respond(req.ID, `{"late":true}`)

	next := goCall(c, "next", nil)
	req2 := srv.nextRequest()
	if req2.ID != req.ID+1 {
		t.Errorf("expected id %d, got %d", req.ID+1, req2.ID)
	}
	srv.respond(req2.ID, `{"ok":true}`)

	out2 := waitOutcome(t, next)
	if out2.err != nil {
		t.Fatalf("unexpected error after timeout: %v", out2.err)
	}
}

func TestMalformedAndPartialLines(t *testing.T) {
	c, srv := newPipeClient(t, ServerConfig{CallTimeout: 2 * time.Second})

	outcome := goCall(c, "framed", nil)
	req := srv.nextRequest()

	// Garbage and unmatched ids must be dropped without breaking the
	// stream; a response split across writes must reassemble.
	srv.writeRaw("this is not json\n")
	srv.writeRaw(`{"jsonrpc":"2.0","id":999,"result":{}}` + "\n")
	srv.writeRaw(`{"jsonrpc":"2.0","id":`)
	time.Sleep(50 * time.Millisecond)
	srv.writeRaw(fmt.Sprintf(`%d,"result":{"ok":true}}`, req.ID) + "\n")

	out := waitOutcome(t, outcome)
	if out.err != nil {
		t.Fatalf("unexpected error: %v", out.err)
	}
	if got := decodeResult(t, out.raw); got["ok"] != true {
		t.Errorf("expected ok result, got %v", got)
	}
}

func TestCallRPCErrorResponse(t *testing.T) {
	c, srv := newPipeClient(t, ServerConfig{CallTimeout: 2 * time.Second})

	outcome := goCall(c, "missing", nil)
	req := srv.nextRequest()
	srv.writeRaw(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":-32601,"message":"method not found"}}`, req.ID) + "\n")

	out := waitOutcome(t, outcome)
	var rpcErr *RPCError
	if !errors.As(out.err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", out.err)
	}
	if rpcErr.Code != -32601 || rpcErr.Message != "method not found" {
		t.Errorf("unexpected error fields: %+v", rpcErr)
	}
}

func TestExecuteToolParsesPayload(t *testing.T) {
	c, srv := newPipeClient(t, ServerConfig{CallTimeout: 2 * time.Second})

	outcome := goExecuteTool(c, "generate_banner", map[string]interface{}{"width": 300})

	req := srv.nextRequest()
	if req.Method != "tools/call" {
		t.Errorf("expected tools/call, got %q", req.Method)
	}
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		t.Fatalf("failed to decode params: %v", err)
	}
	if params.Name != "generate_banner" {
		t.Errorf("expected tool name in params, got %q", params.Name)
	}
	if params.Arguments["width"] != float64(300) {
		t.Errorf("expected width argument, got %v", params.Arguments)
	}

	srv.respond(req.ID, `{"content":[{"type":"text","text":"{\"asset_id\":\"a-1\",\"url\":\"https://cdn.example.com/a-1.png\"}"}]}`)

	out := waitOutcome(t, outcome)
	if out.err != nil {
		t.Fatalf("unexpected error: %v", out.err)
	}
	if out.payload["asset_id"] != "a-1" {
		t.Errorf("expected parsed payload, got %v", out.payload)
	}
}

func TestExecuteToolErrorResult(t *testing.T) {
	c, srv := newPipeClient(t, ServerConfig{CallTimeout: 2 * time.Second})

	outcome := goExecuteTool(c, "generate_banner", nil)
	req := srv.nextRequest()
	srv.respond(req.ID, `{"content":[{"type":"text","text":"render pipeline crashed"}],"isError":true}`)

	out := waitOutcome(t, outcome)
	var toolErr *ToolError
	if !errors.As(out.err, &toolErr) {
		t.Fatalf("expected ToolError, got %v", out.err)
	}
	if toolErr.Tool != "generate_banner" || toolErr.Message != "render pipeline crashed" {
		t.Errorf("unexpected tool error: %+v", toolErr)
	}
}

func TestExecuteToolEmptyContentDefaults(t *testing.T) {
	c, srv := newPipeClient(t, ServerConfig{CallTimeout: 2 * time.Second})

	outcome := goExecuteTool(c, "noop", nil)
	req := srv.nextRequest()
	srv.respond(req.ID, `{"content":[]}`)

	out := waitOutcome(t, outcome)
	if out.err != nil {
		t.Fatalf("unexpected error: %v", out.err)
	}
	if out.payload == nil || len(out.payload) != 0 {
		t.Errorf("expected empty payload, got %v", out.payload)
	}
}

func TestWorkerExitAbandonsInFlight(t *testing.T) {
	c, srv := newPipeClient(t, ServerConfig{CallTimeout: 300 * time.Millisecond})

	outcome := goCall(c, "doomed", nil)
	_ = srv.nextRequest()

	srv.exit()

	// The exit itself must not resolve the call; the timeout does.
	select {
	case out := <-outcome:
		t.Fatalf("call resolved before timeout: %v", out.err)
	case <-time.After(100 * time.Millisecond):
	}

	out := waitOutcome(t, outcome)
	if !errors.Is(out.err, ErrCallTimeout) {
		t.Fatalf("expected timeout error, got %v", out.err)
	}
	if c.State() != StateStopped {
		t.Errorf("expected stopped state, got %s", c.State())
	}
}

func TestStartIdempotentWhileRunning(t *testing.T) {
	c, _ := newPipeClient(t, ServerConfig{CallTimeout: time.Second})

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.State() != StateRunning {
		t.Errorf("expected running state, got %s", c.State())
	}
}

func TestRestartDisabledAfterExit(t *testing.T) {
	c, srv := newPipeClient(t, ServerConfig{
		CallTimeout:    time.Second,
		DisableRestart: true,
	})

	srv.exit()
	deadline := time.Now().Add(2 * time.Second)
	for c.State() != StateStopped {
		if time.Now().After(deadline) {
			t.Fatal("client never observed worker exit")
		}
		time.Sleep(10 * time.Millisecond)
	}

	_, err := c.Call(context.Background(), "ping", nil)
	if !errors.Is(err, ErrServerExited) {
		t.Fatalf("expected ErrServerExited, got %v", err)
	}
}
