// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package budget

import "time"

// Campaign is the budget-relevant slice of a campaign record
type Campaign struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Budget    float64   `json:"budget"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// CampaignRef identifies a committed campaign in budget error details
type CampaignRef struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Budget float64 `json:"budget"`
}

// MonthlySnapshot is one organization-month's committed spend: every
// campaign whose date range intersects the month, with their summed
// full budgets.
type MonthlySnapshot struct {
	Year      int        `json:"year"`
	Month     time.Month `json:"month"`
	Total     float64    `json:"total"`
	Campaigns []Campaign `json:"campaigns"`
}

// ValidationResult reports a budget decision. On rejection the fields
// describe the first offending month; on success they describe the first
// month the campaign touches, as a representative figure.
type ValidationResult struct {
	Valid             bool          `json:"valid"`
	MonthlyLimit      float64       `json:"monthly_limit"`
	CurrentTotal      float64       `json:"current_total"`
	Requested         float64       `json:"requested"`
	Available         float64       `json:"available"`
	AffectedMonth     string        `json:"affected_month"`
	ExistingCampaigns []CampaignRef `json:"existing_campaigns"`
}
