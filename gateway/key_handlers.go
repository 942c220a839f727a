// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"axonflow/campaign-gateway/gateway/apikeys"
	"axonflow/campaign-gateway/shared/logger"
)

// KeyHandler serves the dashboard-facing API key management plane.
// These routes authenticate with a user JWT, not an API key, so they
// sit outside the gate and run their own adminAuth middleware.
type KeyHandler struct {
	service   *apikeys.Service
	jwtSecret []byte
	log       *logger.Logger
}

// NewKeyHandler creates a new key management handler
func NewKeyHandler(service *apikeys.Service, jwtSecret []byte, log *logger.Logger) *KeyHandler {
	if log == nil {
		log = logger.New("gateway")
	}
	return &KeyHandler{service: service, jwtSecret: jwtSecret, log: log}
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}

// AdminAuth validates the dashboard JWT and attaches an AuthContext
// carrying the token's organization. Admin requests skip the rate
// limiter; the dashboard is trusted, agent keys are not.
func (h *KeyHandler) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		track := trackFromContext(r.Context())
		requestID := ""
		if track != nil {
			requestID = track.requestID
		}
		if requestID == "" {
			requestID = newRequestID()
			w.Header().Set("X-Request-ID", requestID)
		}

		tokenString, reason := bearerToken(r.Header.Get("Authorization"))
		if reason != "" {
			metricAuthFailures.WithLabelValues(reason).Inc()
			writeError(w, requestID, ErrCodeUnauthorized, "Missing or malformed Authorization header", nil)
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			return h.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			metricAuthFailures.WithLabelValues("invalid_jwt").Inc()
			writeError(w, requestID, ErrCodeUnauthorized, "Invalid or expired token", nil)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			metricAuthFailures.WithLabelValues("invalid_jwt").Inc()
			writeError(w, requestID, ErrCodeUnauthorized, "Invalid or expired token", nil)
			return
		}

		orgID := getClaimString(claims, "org_id")
		if orgID == "" {
			writeError(w, requestID, ErrCodeForbidden, "Token carries no organization", nil)
			return
		}

		action := adminAction(r.Method)
		if track != nil {
			track.orgID = orgID
			track.action = action
		}

		auth := &AuthContext{
			OrganizationID: orgID,
			KeyName:        getClaimString(claims, "email"),
			RequestID:      requestID,
			Action:         action,
		}
		ctx := context.WithValue(r.Context(), authContextKey, auth)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func adminAction(method string) string {
	switch method {
	case http.MethodPost:
		return "keys.create"
	case http.MethodDelete:
		return "keys.revoke"
	default:
		return "keys.list"
	}
}

type createKeyRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Permissions apikeys.Permissions `json:"permissions"`
	Metadata    apikeys.Metadata    `json:"metadata"`
	ExpiresAt   *time.Time          `json:"expires_at"`
}

// HandleCreate handles POST /api/admin/keys. The plaintext key appears
// in this response and nowhere else; only its hash is stored.
func (h *KeyHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	auth, ok := AuthFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromContext(r.Context()), ErrCodeUnauthorized, "Authentication required", nil)
		return
	}

	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, auth.RequestID, ErrCodeValidation, "Request body must be valid JSON", nil)
		return
	}

	plaintext, key, err := h.service.Generate(r.Context(), apikeys.CreateParams{
		OrganizationID: auth.OrganizationID,
		CreatorID:      auth.KeyName,
		Name:           req.Name,
		Description:    req.Description,
		Permissions:    req.Permissions,
		Metadata:       req.Metadata,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		h.writeKeyError(w, auth.RequestID, err)
		return
	}

	writeSuccess(w, http.StatusCreated, map[string]interface{}{
		"api_key": plaintext,
		"key":     key,
	})
}

// HandleList handles GET /api/admin/keys
func (h *KeyHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	auth, ok := AuthFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromContext(r.Context()), ErrCodeUnauthorized, "Authentication required", nil)
		return
	}

	keys, err := h.service.List(r.Context(), auth.OrganizationID)
	if err != nil {
		writeDatabaseError(w, auth.RequestID, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"keys":  keys,
		"count": len(keys),
	})
}

// HandleRevoke handles DELETE /api/admin/keys/{id}
func (h *KeyHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	auth, ok := AuthFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromContext(r.Context()), ErrCodeUnauthorized, "Authentication required", nil)
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.service.Revoke(r.Context(), id, auth.OrganizationID); err != nil {
		h.writeKeyError(w, auth.RequestID, err)
		return
	}

	h.log.Info(auth.OrganizationID, auth.RequestID, "API key revoked", map[string]interface{}{
		"key_id": id,
	})
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"id":      id,
		"revoked": true,
	})
}

// writeKeyError maps key service errors onto the error taxonomy
func (h *KeyHandler) writeKeyError(w http.ResponseWriter, requestID string, err error) {
	switch {
	case errors.Is(err, apikeys.ErrKeyNotFound):
		writeError(w, requestID, ErrCodeResourceNotFound, "API key not found", nil)
	case errors.Is(err, apikeys.ErrDuplicateKeyName):
		writeError(w, requestID, ErrCodeDuplicateResource, "An API key with this name already exists", nil)
	case errors.Is(err, apikeys.ErrInvalidName):
		writeValidationError(w, requestID, []FieldError{{Field: "name", Message: "name is required"}})
	case errors.Is(err, apikeys.ErrNoPermissions):
		writeValidationError(w, requestID, []FieldError{{Field: "permissions", Message: "permissions must grant at least one resource"}})
	case errors.Is(err, apikeys.ErrExpiryInPast):
		writeValidationError(w, requestID, []FieldError{{Field: "expires_at", Message: "expires_at must be in the future"}})
	case errors.Is(err, apikeys.ErrInvalidOrganization):
		writeError(w, requestID, ErrCodeForbidden, "Token carries no organization", nil)
	default:
		writeDatabaseError(w, requestID, err)
	}
}
