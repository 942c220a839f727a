// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"axonflow/campaign-gateway/gateway/budget"
	"axonflow/campaign-gateway/gateway/campaigns"
	"axonflow/campaign-gateway/shared/logger"
)

// CampaignHandler handles HTTP requests for campaign management
type CampaignHandler struct {
	service *campaigns.Service
	log     *logger.Logger
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(service *campaigns.Service, log *logger.Logger) *CampaignHandler {
	if log == nil {
		log = logger.New("gateway")
	}
	return &CampaignHandler{service: service, log: log}
}

type createCampaignRequest struct {
	UserID      string  `json:"user_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Budget      float64 `json:"budget"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	Status      string  `json:"status"`
}

type updateCampaignRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Budget      *float64 `json:"budget"`
	StartDate   *string  `json:"start_date"`
	EndDate     *string  `json:"end_date"`
	Status      *string  `json:"status"`
}

// parseDate accepts RFC3339 timestamps and bare dates
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// HandleCreate handles POST /api/campaigns/create
func (h *CampaignHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	auth, ok := AuthFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromContext(r.Context()), ErrCodeUnauthorized, "Authentication required", nil)
		return
	}

	var req createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, auth.RequestID, ErrCodeValidation, "Request body must be valid JSON", nil)
		return
	}

	params := campaigns.CreateParams{
		UserID:      req.UserID,
		Name:        req.Name,
		Description: req.Description,
		Budget:      req.Budget,
		Status:      req.Status,
	}

	var fieldErrors []FieldError
	if req.UserID == "" {
		fieldErrors = append(fieldErrors, FieldError{Field: "user_id", Message: "user_id is required"})
	}
	if req.Name == "" {
		fieldErrors = append(fieldErrors, FieldError{Field: "name", Message: "name is required"})
	}
	if req.Budget <= 0 {
		fieldErrors = append(fieldErrors, FieldError{Field: "budget", Message: "budget must be greater than zero"})
	}
	if req.StartDate == "" {
		fieldErrors = append(fieldErrors, FieldError{Field: "start_date", Message: "start_date is required"})
	} else if t, err := parseDate(req.StartDate); err != nil {
		fieldErrors = append(fieldErrors, FieldError{Field: "start_date", Message: "start_date must be an RFC3339 timestamp or YYYY-MM-DD date"})
	} else {
		params.StartDate = t
	}
	if req.EndDate == "" {
		fieldErrors = append(fieldErrors, FieldError{Field: "end_date", Message: "end_date is required"})
	} else if t, err := parseDate(req.EndDate); err != nil {
		fieldErrors = append(fieldErrors, FieldError{Field: "end_date", Message: "end_date must be an RFC3339 timestamp or YYYY-MM-DD date"})
	} else {
		params.EndDate = t
	}
	if !params.StartDate.IsZero() && !params.EndDate.IsZero() && params.EndDate.Before(params.StartDate) {
		fieldErrors = append(fieldErrors, FieldError{Field: "end_date", Message: "end_date must not precede start_date"})
	}
	if req.Status != "" && !campaigns.ValidStatus(req.Status) {
		fieldErrors = append(fieldErrors, FieldError{Field: "status", Message: "status must be one of draft, active, paused, completed"})
	}
	if len(fieldErrors) > 0 {
		writeValidationError(w, auth.RequestID, fieldErrors)
		return
	}

	campaign, err := h.service.Create(r.Context(), auth.OrganizationID, params)
	if err != nil {
		h.writeCampaignError(w, auth.RequestID, err)
		return
	}

	writeSuccess(w, http.StatusCreated, campaign)
}

// HandleList handles GET /api/campaigns/list
func (h *CampaignHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	auth, ok := AuthFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromContext(r.Context()), ErrCodeUnauthorized, "Authentication required", nil)
		return
	}

	list, err := h.service.List(r.Context(), auth.OrganizationID)
	if err != nil {
		writeDatabaseError(w, auth.RequestID, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"campaigns": list,
		"count":     len(list),
	})
}

// HandleGet handles GET /api/campaigns/{id}
func (h *CampaignHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	auth, ok := AuthFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromContext(r.Context()), ErrCodeUnauthorized, "Authentication required", nil)
		return
	}

	id := mux.Vars(r)["id"]
	campaign, err := h.service.Get(r.Context(), id, auth.OrganizationID)
	if err != nil {
		h.writeCampaignError(w, auth.RequestID, err)
		return
	}

	writeSuccess(w, http.StatusOK, campaign)
}

// HandleUpdate handles PATCH /api/campaigns/{id}/update
func (h *CampaignHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	auth, ok := AuthFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromContext(r.Context()), ErrCodeUnauthorized, "Authentication required", nil)
		return
	}

	var req updateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, auth.RequestID, ErrCodeValidation, "Request body must be valid JSON", nil)
		return
	}

	params := campaigns.UpdateParams{
		Name:        req.Name,
		Description: req.Description,
		Budget:      req.Budget,
		Status:      req.Status,
	}

	var fieldErrors []FieldError
	if req.Name != nil && *req.Name == "" {
		fieldErrors = append(fieldErrors, FieldError{Field: "name", Message: "name must not be empty"})
	}
	if req.Budget != nil && *req.Budget <= 0 {
		fieldErrors = append(fieldErrors, FieldError{Field: "budget", Message: "budget must be greater than zero"})
	}
	if req.StartDate != nil {
		t, err := parseDate(*req.StartDate)
		if err != nil {
			fieldErrors = append(fieldErrors, FieldError{Field: "start_date", Message: "start_date must be an RFC3339 timestamp or YYYY-MM-DD date"})
		} else {
			params.StartDate = &t
		}
	}
	if req.EndDate != nil {
		t, err := parseDate(*req.EndDate)
		if err != nil {
			fieldErrors = append(fieldErrors, FieldError{Field: "end_date", Message: "end_date must be an RFC3339 timestamp or YYYY-MM-DD date"})
		} else {
			params.EndDate = &t
		}
	}
	if params.StartDate != nil && params.EndDate != nil && params.EndDate.Before(*params.StartDate) {
		fieldErrors = append(fieldErrors, FieldError{Field: "end_date", Message: "end_date must not precede start_date"})
	}
	if req.Status != nil && !campaigns.ValidStatus(*req.Status) {
		fieldErrors = append(fieldErrors, FieldError{Field: "status", Message: "status must be one of draft, active, paused, completed"})
	}
	if len(fieldErrors) > 0 {
		writeValidationError(w, auth.RequestID, fieldErrors)
		return
	}

	id := mux.Vars(r)["id"]
	campaign, err := h.service.Update(r.Context(), id, auth.OrganizationID, params)
	if err != nil {
		h.writeCampaignError(w, auth.RequestID, err)
		return
	}

	writeSuccess(w, http.StatusOK, campaign)
}

// HandleDelete handles DELETE /api/campaigns/{id}
func (h *CampaignHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	auth, ok := AuthFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromContext(r.Context()), ErrCodeUnauthorized, "Authentication required", nil)
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.service.Delete(r.Context(), id, auth.OrganizationID); err != nil {
		h.writeCampaignError(w, auth.RequestID, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"id":      id,
		"deleted": true,
	})
}

// writeCampaignError maps service errors onto the error taxonomy
func (h *CampaignHandler) writeCampaignError(w http.ResponseWriter, requestID string, err error) {
	var budgetErr *campaigns.BudgetError
	switch {
	case errors.As(err, &budgetErr):
		metricBudgetRejections.Inc()
		writeError(w, requestID, ErrCodeBudgetExceeded, "Campaign budget exceeds the monthly limit", budgetDetails(budgetErr.Result))
	case errors.Is(err, campaigns.ErrCampaignNotFound):
		writeError(w, requestID, ErrCodeResourceNotFound, "Campaign not found", nil)
	case errors.Is(err, campaigns.ErrDuplicateCampaignName):
		writeError(w, requestID, ErrCodeDuplicateResource, "A campaign with this name already exists", nil)
	case errors.Is(err, campaigns.ErrMissingUser):
		writeValidationError(w, requestID, []FieldError{{Field: "user_id", Message: "user_id is required"}})
	default:
		writeDatabaseError(w, requestID, err)
	}
}

func budgetDetails(result *budget.ValidationResult) map[string]interface{} {
	return map[string]interface{}{
		"monthly_limit":      result.MonthlyLimit,
		"current_total":      result.CurrentTotal,
		"requested":          result.Requested,
		"available":          result.Available,
		"affected_month":     result.AffectedMonth,
		"existing_campaigns": result.ExistingCampaigns,
	}
}
