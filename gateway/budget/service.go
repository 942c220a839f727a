// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package budget

import (
	"context"
	"fmt"
	"time"

	"axonflow/campaign-gateway/shared/logger"
)

// DefaultMonthlyCap is the spend ceiling per organization per calendar
// month, in currency units
const DefaultMonthlyCap = 10000

// Service computes and enforces monthly spend totals
type Service struct {
	repo Repository
	cap  float64
	log  *logger.Logger
}

// NewService creates a Service. A non-positive cap falls back to
// DefaultMonthlyCap.
func NewService(repo Repository, monthlyCap float64, log *logger.Logger) *Service {
	if monthlyCap <= 0 {
		monthlyCap = DefaultMonthlyCap
	}
	if log == nil {
		log = logger.New("budget")
	}
	return &Service{repo: repo, cap: monthlyCap, log: log}
}

// Cap returns the configured monthly limit
func (s *Service) Cap() float64 {
	return s.cap
}

// CalculateMonthlyBudget returns the organization's committed spend for
// one calendar month: all campaigns whose [start,end] range intersects
// the month, each counted at full budget.
func (s *Service) CalculateMonthlyBudget(ctx context.Context, orgID string, year int, month time.Month, excludeCampaignID string) (*MonthlySnapshot, error) {
	campaigns, err := s.repo.ListByOrganization(ctx, orgID, excludeCampaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaigns for budget: %w", err)
	}
	return snapshotMonth(campaigns, year, month), nil
}

// ValidateCampaignBudget checks a proposed campaign budget against every
// calendar month the [start,end] range touches, in chronological order,
// and rejects on the first month that would exceed the cap. The existing
// totals exclude excludeCampaignID so updates do not count a campaign
// against itself.
func (s *Service) ValidateCampaignBudget(ctx context.Context, orgID string, newBudget float64, start, end time.Time, excludeCampaignID string) (*ValidationResult, error) {
	campaigns, err := s.repo.ListByOrganization(ctx, orgID, excludeCampaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaigns for budget: %w", err)
	}

	months := touchedMonths(start, end)

	var first *MonthlySnapshot
	for _, m := range months {
		snap := snapshotMonth(campaigns, m.Year(), m.Month())
		if first == nil {
			first = snap
		}

		if snap.Total+newBudget > s.cap {
			s.log.Warn(orgID, "", "Campaign budget rejected", map[string]interface{}{
				"affected_month": formatMonth(m),
				"current_total":  snap.Total,
				"requested":      newBudget,
				"monthly_limit":  s.cap,
			})
			return &ValidationResult{
				Valid:             false,
				MonthlyLimit:      s.cap,
				CurrentTotal:      snap.Total,
				Requested:         newBudget,
				Available:         s.cap - snap.Total,
				AffectedMonth:     formatMonth(m),
				ExistingCampaigns: refs(snap.Campaigns),
			}, nil
		}
	}

	// No month objects; report the first touched month as representative
	firstMonth := months[0]
	return &ValidationResult{
		Valid:             true,
		MonthlyLimit:      s.cap,
		CurrentTotal:      first.Total,
		Requested:         newBudget,
		Available:         s.cap - first.Total - newBudget,
		AffectedMonth:     formatMonth(firstMonth),
		ExistingCampaigns: refs(first.Campaigns),
	}, nil
}

// snapshotMonth filters campaigns to those overlapping the month and
// sums their full budgets
func snapshotMonth(campaigns []Campaign, year int, month time.Month) *MonthlySnapshot {
	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)

	snap := &MonthlySnapshot{Year: year, Month: month}
	for _, c := range campaigns {
		// Closed-interval overlap: start <= monthEnd && end >= monthStart
		if c.StartDate.After(monthEnd) || c.EndDate.Before(monthStart) {
			continue
		}
		snap.Campaigns = append(snap.Campaigns, c)
		snap.Total += c.Budget
	}
	return snap
}

// touchedMonths enumerates the first day of every calendar month the
// range covers, in chronological order. A range whose end precedes its
// start still yields its start month so callers always get a
// representative month to report.
func touchedMonths(start, end time.Time) []time.Time {
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)

	months := []time.Time{cur}
	for cur.Before(last) {
		cur = cur.AddDate(0, 1, 0)
		months = append(months, cur)
	}
	return months
}

func formatMonth(monthStart time.Time) string {
	return monthStart.Format("January 2006")
}

func refs(campaigns []Campaign) []CampaignRef {
	out := make([]CampaignRef, 0, len(campaigns))
	for _, c := range campaigns {
		out = append(out, CampaignRef{ID: c.ID, Name: c.Name, Budget: c.Budget})
	}
	return out
}
