// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package campaigns

import "time"

// Campaign statuses
const (
	StatusDraft     = "draft"
	StatusActive    = "active"
	StatusPaused    = "paused"
	StatusCompleted = "completed"
)

// ValidStatus reports whether s is a recognized campaign status
func ValidStatus(s string) bool {
	switch s {
	case StatusDraft, StatusActive, StatusPaused, StatusCompleted:
		return true
	}
	return false
}

// Campaign is a stored campaign. OrganizationID is derived from the
// owning user on reads and is not a column of its own.
type Campaign struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Budget         float64   `json:"budget"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CreateParams carries a validated create request. Field-level validation
// happens at the HTTP boundary; by the time params reach the service the
// dates are parsed and ordered and the budget is positive.
type CreateParams struct {
	UserID      string
	Name        string
	Description string
	Budget      float64
	StartDate   time.Time
	EndDate     time.Time
	Status      string
}

// UpdateParams carries a partial update; nil fields are left unchanged
type UpdateParams struct {
	Name        *string
	Description *string
	Budget      *float64
	StartDate   *time.Time
	EndDate     *time.Time
	Status      *string
}
