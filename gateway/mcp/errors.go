// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrCallTimeout is returned when a call receives no response
	// within the call timeout.
	ErrCallTimeout = errors.New("tool call timed out")

	// ErrServerExited is returned when the worker has exited and
	// restarting is disabled.
	ErrServerExited = errors.New("tool server exited")

	// ErrUnknownTool is returned by the registry for a tool name no
	// configured server provides.
	ErrUnknownTool = errors.New("no tool server registered for tool")
)

// ToolError is a tool invocation that the worker completed but flagged
// as failed. The message is the text the worker returned.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// RPCError is a JSON-RPC level error response from the worker.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc %s failed with code %d: %s", e.Method, e.Code, e.Message)
}
