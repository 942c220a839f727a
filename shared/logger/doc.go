// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package logger provides structured JSON logging for Campaign Gateway
components.

# Overview

The logger outputs single-line JSON to stdout, making logs easily
consumable by CloudWatch, ELK, or other log aggregation systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (gateway, audit, mcp, etc.)
  - Instance ID and host (for distributed tracing)
  - Organization ID (for multi-tenant isolation)
  - Request ID (for correlation against the audit trail)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("gateway")

Log messages with organization and request context:

	log.Info("org-123", "req_1734000000000_a1b2c3d4", "Campaign created", map[string]interface{}{
	    "campaign_id": "c0ffee",
	    "budget":      2500.0,
	})

Log errors with the taxonomy code:

	log.ErrorWithCode("org-123", requestID, "Datastore write failed", "DATABASE_ERROR", err, nil)

# Environment Variables

  - INSTANCE_ID: deployment instance identifier
  - LOG_LEVEL: minimum level emitted (default INFO)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
