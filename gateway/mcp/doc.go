// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package mcp runs tool worker processes and speaks newline-delimited
// JSON-RPC 2.0 with them over stdio.
//
// A Client supervises one worker process: it assigns monotonically
// increasing request ids, correlates responses through a pending map,
// and bounds every call with a timeout. A worker exit abandons calls
// that are still in flight; their timeouts free the pending slots, so
// callers always get an answer within the call timeout. By default the
// next call after an exit relaunches the worker.
//
// A Registry maps tool names to configured workers, starting each
// worker lazily on first use and reusing it afterwards.
package mcp
