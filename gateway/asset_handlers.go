// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"axonflow/campaign-gateway/gateway/assetstore"
	"axonflow/campaign-gateway/gateway/mcp"
	"axonflow/campaign-gateway/shared/logger"
)

// toolExecutor abstracts the tool registry so handler tests can stub it
type toolExecutor interface {
	ExecuteTool(ctx context.Context, tool string, args map[string]interface{}) (map[string]interface{}, error)
}

// AssetHandler handles asset generation through the tool workers and
// listing of archived assets. The store is nil when no archive is
// configured; generation then returns the payload without a location.
type AssetHandler struct {
	tools toolExecutor
	store assetstore.Store
	log   *logger.Logger
}

// NewAssetHandler creates a new asset handler
func NewAssetHandler(tools toolExecutor, store assetstore.Store, log *logger.Logger) *AssetHandler {
	if log == nil {
		log = logger.New("gateway")
	}
	return &AssetHandler{tools: tools, store: store, log: log}
}

type generateAssetRequest struct {
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments"`
}

func assetKey(orgID, assetID string) string {
	return fmt.Sprintf("orgs/%s/assets/%s.json", orgID, assetID)
}

func assetPrefix(orgID string) string {
	return fmt.Sprintf("orgs/%s/assets/", orgID)
}

// HandleGenerate handles POST /api/assets/generate
func (h *AssetHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	auth, ok := AuthFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromContext(r.Context()), ErrCodeUnauthorized, "Authentication required", nil)
		return
	}

	var req generateAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, auth.RequestID, ErrCodeValidation, "Request body must be valid JSON", nil)
		return
	}
	if req.Tool == "" {
		writeValidationError(w, auth.RequestID, []FieldError{{Field: "tool", Message: "tool is required"}})
		return
	}

	started := time.Now()
	result, err := h.tools.ExecuteTool(r.Context(), req.Tool, req.Arguments)
	elapsed := float64(time.Since(started).Milliseconds())
	metricToolCallDuration.WithLabelValues(req.Tool).Observe(elapsed)
	if err != nil {
		metricToolCalls.WithLabelValues(req.Tool, "error").Inc()
		h.writeToolError(w, auth, req.Tool, err)
		return
	}
	metricToolCalls.WithLabelValues(req.Tool, "success").Inc()

	assetID := uuid.New().String()
	data := map[string]interface{}{
		"asset_id": assetID,
		"tool":     req.Tool,
		"result":   result,
	}

	if h.store != nil {
		payload, err := json.Marshal(result)
		if err != nil {
			writeError(w, auth.RequestID, ErrCodeInternalError, "Failed to encode generated asset", nil)
			return
		}
		location, err := h.store.Put(r.Context(), assetKey(auth.OrganizationID, assetID), payload, "application/json")
		if err != nil {
			h.log.Error(auth.OrganizationID, auth.RequestID, "Asset archive write failed", map[string]interface{}{
				"asset_id": assetID,
				"tool":     req.Tool,
				"error":    err.Error(),
			})
			writeError(w, auth.RequestID, ErrCodeInternalError, "Failed to archive generated asset", nil)
			return
		}
		data["location"] = location
	}

	writeSuccess(w, http.StatusOK, data)
}

// HandleList handles GET /api/assets/list
func (h *AssetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	auth, ok := AuthFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromContext(r.Context()), ErrCodeUnauthorized, "Authentication required", nil)
		return
	}

	if h.store == nil {
		writeSuccess(w, http.StatusOK, map[string]interface{}{
			"assets": []assetstore.Object{},
			"count":  0,
		})
		return
	}

	objects, err := h.store.List(r.Context(), assetPrefix(auth.OrganizationID))
	if err != nil {
		h.log.Error(auth.OrganizationID, auth.RequestID, "Asset archive list failed", map[string]interface{}{
			"error": err.Error(),
		})
		writeError(w, auth.RequestID, ErrCodeInternalError, "Failed to list archived assets", nil)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"assets": objects,
		"count":  len(objects),
	})
}

// writeToolError maps tool execution failures onto the error taxonomy
func (h *AssetHandler) writeToolError(w http.ResponseWriter, auth *AuthContext, tool string, err error) {
	var toolErr *mcp.ToolError
	switch {
	case errors.Is(err, mcp.ErrUnknownTool):
		writeError(w, auth.RequestID, ErrCodeValidation, "Unknown tool", map[string]interface{}{
			"tool": tool,
		})
	case errors.As(err, &toolErr):
		writeError(w, auth.RequestID, ErrCodeInternalError, toolErr.Message, map[string]interface{}{
			"tool": tool,
		})
	case errors.Is(err, mcp.ErrCallTimeout):
		writeError(w, auth.RequestID, ErrCodeInternalError, "Tool call timed out", map[string]interface{}{
			"tool": tool,
		})
	default:
		h.log.Error(auth.OrganizationID, auth.RequestID, "Tool execution failed", map[string]interface{}{
			"tool":  tool,
			"error": err.Error(),
		})
		writeError(w, auth.RequestID, ErrCodeInternalError, "Tool execution failed", map[string]interface{}{
			"tool": tool,
		})
	}
}
