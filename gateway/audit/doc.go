// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package audit records one immutable entry per gateway request. Entries
// are queued and batch-written off the request path: a full queue, a slow
// sink, or a failing sink never block or change the response already sent
// to the caller. Batches that exhaust their write retries are appended to
// a JSONL fallback file so no entry is silently lost while the primary
// sink is down.
package audit
