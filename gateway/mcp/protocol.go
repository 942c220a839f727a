// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package mcp

import "encoding/json"

// toolsCallMethod is the JSON-RPC method for invoking a tool.
const toolsCallMethod = "tools/call"

// rpcRequest is a JSON-RPC 2.0 request line. Ids are numeric and
// assigned by the client.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response line. Exactly one of Result
// or Error is set.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is a JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolCallParams is the tools/call request payload.
type toolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// toolCallResult is the tools/call response payload. The first content
// block's text carries the tool's JSON payload; IsError marks a failed
// invocation whose text is the error message.
type toolCallResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// contentBlock is one entry of a tool result's content array.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
