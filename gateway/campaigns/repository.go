// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package campaigns

import "context"

// Repository is the campaign persistence contract. All reads are scoped
// to an organization through the owning user's membership.
type Repository interface {
	Create(ctx context.Context, c *Campaign) error
	GetByID(ctx context.Context, id, orgID string) (*Campaign, error)
	ListByOrganization(ctx context.Context, orgID string) ([]*Campaign, error)
	Update(ctx context.Context, c *Campaign) error
	Delete(ctx context.Context, id, orgID string) error

	// ExistsByName reports whether any campaign in the organization other
	// than excludeID already uses the name
	ExistsByName(ctx context.Context, orgID, name, excludeID string) (bool, error)
}
