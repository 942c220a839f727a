// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package budget

import "context"

// Repository loads the campaigns counted against an organization's
// budget. Implementations resolve the organization's member users and
// return all of their campaigns; date filtering happens in the service.
type Repository interface {
	// ListByOrganization returns every campaign owned by any member of
	// the organization, skipping excludeCampaignID when non-empty (the
	// campaign being updated must not count against itself).
	ListByOrganization(ctx context.Context, orgID, excludeCampaignID string) ([]Campaign, error)
}
