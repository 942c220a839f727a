// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package campaigns

import (
	"errors"
	"fmt"

	"axonflow/campaign-gateway/gateway/budget"
)

var (
	// ErrCampaignNotFound is returned when a campaign does not exist or
	// belongs to a different organization
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrDuplicateCampaignName is returned when another campaign in the
	// organization already uses the name
	ErrDuplicateCampaignName = errors.New("campaign name already exists")

	// ErrMissingUser is returned when a create carries no owning user
	ErrMissingUser = errors.New("campaign requires an owning user")
)

// BudgetError wraps a failed monthly budget validation so handlers can
// surface the offending month and committed campaigns to the caller.
type BudgetError struct {
	Result *budget.ValidationResult
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("monthly budget exceeded for %s: %.2f committed, %.2f requested, limit %.2f",
		e.Result.AffectedMonth, e.Result.CurrentTotal, e.Result.Requested, e.Result.MonthlyLimit)
}
