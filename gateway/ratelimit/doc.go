// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package ratelimit bounds request rates per API key with a sliding-window
// log. Every check consults two buckets in order: a global per-key bucket
// and an action-specific bucket. A global denial short-circuits without
// consuming the action bucket, so a blocked caller does not burn action
// capacity it never got to use.
//
// The window algorithm lives behind the Backend interface. MemoryBackend
// is the process-local default; RedisBackend coordinates limits across
// instances using a sorted set per bucket and falls back to memory when
// Redis is unreachable.
package ratelimit
