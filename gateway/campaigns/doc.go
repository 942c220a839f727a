// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package campaigns manages campaign records for the gateway's business
// routes. Writes are guarded twice: duplicate names within an
// organization are rejected, and every create or budget-relevant update
// must pass the monthly spend validation in the budget package before it
// reaches the datastore.
package campaigns
