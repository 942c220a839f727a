// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package campaigns

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PostgresRepository stores campaigns in PostgreSQL. It also owns the
// users table, since every campaign read resolves its organization
// through the owning user.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repository backed by the given database
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

// EnsureSchema creates the users and campaigns tables if missing
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		email TEXT UNIQUE,
		name TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_users_org ON users(organization_id);

	CREATE TABLE IF NOT EXISTS campaigns (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		description TEXT,
		budget DOUBLE PRECISION NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE(user_id, name)
	);

	CREATE INDEX IF NOT EXISTS idx_campaigns_user ON campaigns(user_id);
	`

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure campaign schema: %w", err)
	}
	return nil
}

// Create inserts a campaign
func (r *PostgresRepository) Create(ctx context.Context, c *Campaign) error {
	query := `
		INSERT INTO campaigns (
			id, user_id, name, description, budget, start_date, end_date,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.Name, nullString(c.Description), c.Budget,
		c.StartDate, c.EndDate, c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateCampaignName
		}
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

const campaignColumns = `c.id, c.user_id, u.organization_id, c.name, c.description,
	c.budget, c.start_date, c.end_date, c.status, c.created_at, c.updated_at`

// GetByID retrieves a campaign scoped to an organization
func (r *PostgresRepository) GetByID(ctx context.Context, id, orgID string) (*Campaign, error) {
	query := `SELECT ` + campaignColumns + `
		FROM campaigns c
		JOIN users u ON c.user_id = u.id
		WHERE c.id = $1 AND u.organization_id = $2`

	c, err := scanCampaign(r.db.QueryRowContext(ctx, query, id, orgID))
	if err == sql.ErrNoRows {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return c, nil
}

// ListByOrganization returns the organization's campaigns, newest first
func (r *PostgresRepository) ListByOrganization(ctx context.Context, orgID string) ([]*Campaign, error) {
	query := `SELECT ` + campaignColumns + `
		FROM campaigns c
		JOIN users u ON c.user_id = u.id
		WHERE u.organization_id = $1
		ORDER BY c.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []*Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate campaigns: %w", err)
	}
	return campaigns, nil
}

// Update rewrites a campaign's mutable fields, scoped to its organization
func (r *PostgresRepository) Update(ctx context.Context, c *Campaign) error {
	query := `
		UPDATE campaigns SET
			name = $3, description = $4, budget = $5, start_date = $6,
			end_date = $7, status = $8, updated_at = $9
		WHERE id = $1
		  AND user_id IN (SELECT id FROM users WHERE organization_id = $2)
	`

	result, err := r.db.ExecContext(ctx, query,
		c.ID, c.OrganizationID, c.Name, nullString(c.Description), c.Budget,
		c.StartDate, c.EndDate, c.Status, c.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateCampaignName
		}
		return fmt.Errorf("failed to update campaign: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// Delete removes a campaign, scoped to its organization
func (r *PostgresRepository) Delete(ctx context.Context, id, orgID string) error {
	query := `
		DELETE FROM campaigns
		WHERE id = $1
		  AND user_id IN (SELECT id FROM users WHERE organization_id = $2)
	`

	result, err := r.db.ExecContext(ctx, query, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// ExistsByName reports an organization-wide name collision
func (r *PostgresRepository) ExistsByName(ctx context.Context, orgID, name, excludeID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM campaigns c
			JOIN users u ON c.user_id = u.id
			WHERE u.organization_id = $1
			  AND c.name = $2
			  AND ($3 = '' OR c.id != $3)
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, orgID, name, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check campaign name: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*Campaign, error) {
	var c Campaign
	var description sql.NullString

	err := row.Scan(
		&c.ID, &c.UserID, &c.OrganizationID, &c.Name, &description,
		&c.Budget, &c.StartDate, &c.EndDate, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Description = description.String
	return &c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// InsertUser registers a user row; deployments seed users out of band,
// this exists for bootstrap and tests
func (r *PostgresRepository) InsertUser(ctx context.Context, id, orgID, email, name string) error {
	query := `
		INSERT INTO users (id, organization_id, email, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, id, orgID, nullString(email), nullString(name), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}
