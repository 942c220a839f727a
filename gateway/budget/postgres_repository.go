// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package budget

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepository resolves an organization's campaigns through its
// member users. Tables are owned by the campaigns package; this
// repository only reads them.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repository backed by the given database
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

// ListByOrganization joins campaigns to the organization's users
func (r *PostgresRepository) ListByOrganization(ctx context.Context, orgID, excludeCampaignID string) ([]Campaign, error) {
	query := `
		SELECT c.id, c.name, c.budget, c.start_date, c.end_date
		FROM campaigns c
		JOIN users u ON c.user_id = u.id
		WHERE u.organization_id = $1
		  AND ($2 = '' OR c.id != $2)
	`

	rows, err := r.db.QueryContext(ctx, query, orgID, excludeCampaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []Campaign
	for rows.Next() {
		var c Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.Budget, &c.StartDate, &c.EndDate); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate campaigns: %w", err)
	}
	return campaigns, nil
}
