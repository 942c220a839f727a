// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package apikeys issues and validates the bearer credentials that drive the
Campaign Gateway.

A key is minted as <prefix>_<32 alphanumeric characters> and shown to the
caller exactly once; only a fixed-cost irreversible hash and a short
non-secret display prefix are persisted. Validation narrows candidates by
the indexed display prefix, then compares the full secret hash in constant
time, so the lookup stays O(prefix collisions) without weakening the
timing-safe comparison.

Permissions are a resource → allowed-actions map with default deny: an
absent resource denies every action on it.
*/
package apikeys
