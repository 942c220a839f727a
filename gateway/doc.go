// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package gateway provides the Campaign Gateway service - the authenticated
API surface that lets an autonomous agent (or any API-key holder) safely
drive campaign operations.

# Overview

The gateway sits in front of the campaign platform and handles, per request:

  - Bearer API-key authentication (apikeys subpackage)
  - Per-resource permission checks with default deny
  - Two-tier sliding-window rate limiting, global then per-action
    (ratelimit subpackage)
  - Monthly organization budget enforcement on campaign writes
    (budget subpackage)
  - Asynchronous, fire-and-forget audit logging (audit subpackage)
  - Tool execution through supervised stdio worker processes
    (mcp subpackage) with optional asset archiving (assetstore subpackage)

# Request pipeline

	Client → AuthGate (parse bearer → validate key → derive action →
	         permission check → rate limit) → handler → audit (async)

Every response, success or failure, carries an X-Request-ID header and the
same id inside the body envelope so it can be cross-referenced against the
audit trail.

# Envelopes

Success:

	{"success":true,"data":{...}}

Failure:

	{"success":false,"error":{"code":"BUDGET_EXCEEDED","message":"...",
	 "details":{...},"timestamp":"...","request_id":"req_..."}}

# Operational endpoints

/health and /ready report liveness and readiness; /metrics exposes
Prometheus collectors. The data plane is authenticated by API keys, the
admin plane (key management) by dashboard JWTs.
*/
package gateway
