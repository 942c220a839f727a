// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package main is the entry point for the Campaign Gateway service.
//
// The gateway fronts the campaign management API for automated agents:
// - Authenticates API keys and scopes every request to an organization
// - Enforces per-action sliding-window rate limits
// - Validates campaign budgets against the monthly cap
// - Records an asynchronous audit trail of every API call
// - Bridges asset generation to external tool workers
//
// Usage:
//
//	./gateway
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	CONFIG_PATH - optional YAML configuration file
//	DATABASE_URL - PostgreSQL connection string
//	REDIS_ADDR - Redis address for shared rate limiting
//	JWT_SECRET - Secret for dashboard token validation
package main

import (
	"axonflow/campaign-gateway/gateway"
)

func main() {
	gateway.Run()
}
