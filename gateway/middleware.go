// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"axonflow/campaign-gateway/gateway/apikeys"
	"axonflow/campaign-gateway/gateway/audit"
	"axonflow/campaign-gateway/gateway/ratelimit"
	"axonflow/campaign-gateway/shared/logger"
)

type contextKey string

const (
	authContextKey  contextKey = "gateway.auth"
	trackContextKey contextKey = "gateway.track"
)

// AuthContext is the authenticated identity attached to a request after
// the gate admits it.
type AuthContext struct {
	APIKeyID       string
	OrganizationID string
	KeyName        string
	Permissions    apikeys.Permissions
	RequestID      string
	Action         string
	RateLimit      ratelimit.Result
}

// AuthFromContext returns the AuthContext attached by the gate
func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey).(*AuthContext)
	return auth, ok
}

// requestTrack accumulates correlation data across the middleware chain
// so the trailing audit write sees what the gate and handlers learned.
type requestTrack struct {
	requestID    string
	startedAt    time.Time
	apiKeyID     string
	orgID        string
	action       string
	bodySnapshot string
}

func trackFromContext(ctx context.Context) *requestTrack {
	track, _ := ctx.Value(trackContextKey).(*requestTrack)
	return track
}

// requestIDFromContext returns the request's correlation id, or "" when
// no tracking middleware ran.
func requestIDFromContext(ctx context.Context) string {
	if auth, ok := AuthFromContext(ctx); ok {
		return auth.RequestID
	}
	if track := trackFromContext(ctx); track != nil {
		return track.requestID
	}
	return ""
}

// AuthGate authenticates data plane requests: bearer key validation,
// per-action permission check, then the two-tier rate limit.
type AuthGate struct {
	keys    *apikeys.Service
	limiter *ratelimit.Limiter
	log     *logger.Logger
}

// NewAuthGate wires the gate
func NewAuthGate(keys *apikeys.Service, limiter *ratelimit.Limiter, log *logger.Logger) *AuthGate {
	if log == nil {
		log = logger.New("gateway")
	}
	return &AuthGate{keys: keys, limiter: limiter, log: log}
}

// Middleware runs the gate ahead of next. Denials are terminal here:
// 401 for credential failures, 403 for permission failures, 429 for
// rate limit failures, each in the uniform error envelope.
func (g *AuthGate) Middleware(next http.Handler) http.Handler {
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

		plaintext, reason := bearerToken(r.Header.Get("Authorization"))
		if reason != "" {
			metricAuthFailures.WithLabelValues(reason).Inc()
			writeError(w, requestID, ErrCodeUnauthorized, "Missing or malformed Authorization header", nil)
			return
		}

		result, err := g.keys.Validate(r.Context(), plaintext)
		if err != nil {
			metricAuthFailures.WithLabelValues("error").Inc()
			g.log.Error("", requestID, "API key validation failed", map[string]interface{}{
				"error": err.Error(),
			})
			writeDatabaseError(w, requestID, err)
			return
		}
		if !result.Valid {
			metricAuthFailures.WithLabelValues(result.Reason).Inc()
			message := "Invalid API key"
			if result.Reason == apikeys.ReasonExpired {
				message = "API key expired"
			}
			writeError(w, requestID, ErrCodeUnauthorized, message, nil)
			return
		}

		key := result.Key
		action := deriveAction(r.Method, r.URL.Path)
		if track != nil {
			track.apiKeyID = key.ID
			track.orgID = key.OrganizationID
			track.action = action
		}

		resource, act := splitAction(action)
		if !apikeys.HasPermission(key.Permissions, resource, act) {
			g.log.Warn(key.OrganizationID, requestID, "Permission denied", map[string]interface{}{
				"api_key_id": key.ID,
				"action":     action,
			})
			writeError(w, requestID, ErrCodeForbidden, "API key lacks permission for this action", map[string]interface{}{
				"required": action,
			})
			return
		}

		rl := g.limiter.Check(r.Context(), key.ID, action, key.Metadata.RateLimits)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rl.ResetAt.Unix(), 10))
		if !rl.Allowed {
			metricRateLimitDenials.WithLabelValues(rl.Scope).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter))
			writeError(w, requestID, ErrCodeRateLimitExceeded, "Rate limit exceeded", map[string]interface{}{
				"scope":       rl.Scope,
				"limit":       rl.Limit,
				"retry_after": rl.RetryAfter,
			})
			return
		}

		auth := &AuthContext{
			APIKeyID:       key.ID,
			OrganizationID: key.OrganizationID,
			KeyName:        key.Name,
			Permissions:    key.Permissions,
			RequestID:      requestID,
			Action:         action,
			RateLimit:      rl,
		}
		ctx := context.WithValue(r.Context(), authContextKey, auth)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the key from an Authorization header. The second
// return names the failure: "missing" or "malformed", empty on success.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", "missing"
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", "malformed"
	}
	return strings.TrimSpace(parts[1]), ""
}

// deriveAction maps method plus path to a permission action name. The
// rules are checked in order; the first match wins.
func deriveAction(method, path string) string {
	resource := resourceFromPath(path)

	switch {
	case method == http.MethodGet && strings.HasSuffix(path, "/list"):
		return resource + ".list"
	case method == http.MethodPost && strings.HasSuffix(path, "/create"):
		return resource + ".create"
	case method == http.MethodPatch && strings.Contains(path, "/update"):
		return resource + ".update"
	case method == http.MethodDelete:
		return resource + ".delete"
	case method == http.MethodGet:
		return resource + ".get"
	case method == http.MethodPost && resource == "assets" && strings.Contains(path, "generate"):
		return "ai.generate"
	default:
		return resource + "." + lastSegmentOrMethod(method, path)
	}
}

// resourceFromPath returns the first path segment after /api
func resourceFromPath(path string) string {
	segments := pathSegments(path)
	if len(segments) > 1 && segments[0] == "api" {
		return segments[1]
	}
	if len(segments) > 0 {
		return segments[0]
	}
	return "unknown"
}

// lastSegmentOrMethod returns the final path segment past the resource,
// falling back to the lowercased method for bare resource paths.
func lastSegmentOrMethod(method, path string) string {
	segments := pathSegments(path)
	resource := resourceFromPath(path)
	last := ""
	if len(segments) > 0 {
		last = segments[len(segments)-1]
	}
	if last == "" || last == resource {
		return strings.ToLower(method)
	}
	return last
}

func pathSegments(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

func splitAction(action string) (resource, act string) {
	idx := strings.Index(action, ".")
	if idx < 0 {
		return action, ""
	}
	return action[:idx], action[idx+1:]
}

// responseCaptureLimit bounds how much of a response body the audit
// snapshot keeps.
const responseCaptureLimit = 1024

// responseRecorder captures the status code and a bounded copy of the
// body on its way out.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if remain := responseCaptureLimit - r.body.Len(); remain > 0 {
		if len(b) <= remain {
			r.body.Write(b)
		} else {
			r.body.Write(b[:remain])
		}
	}
	return r.ResponseWriter.Write(b)
}

// trackMiddleware opens the request's correlation scope: it assigns the
// request id, snapshots the request body, lets the chain run, then hands
// the outcome to the audit logger and the request metrics. Audit failures
// cannot reach the response from here; by the time Record runs the
// response is already written.
func trackMiddleware(auditLog *audit.Logger, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			track := &requestTrack{
				requestID: newRequestID(),
				startedAt: time.Now().UTC(),
			}
			w.Header().Set("X-Request-ID", track.requestID)

			if r.Body != nil && r.Body != http.NoBody && hasRequestBody(r.Method) {
				if body, err := io.ReadAll(r.Body); err == nil {
					track.bodySnapshot = audit.Truncate(string(body))
					r.Body = io.NopCloser(bytes.NewReader(body))
				}
			}

			rec := newResponseRecorder(w)
			ctx := context.WithValue(r.Context(), trackContextKey, track)
			next.ServeHTTP(rec, r.WithContext(ctx))

			durationMs := time.Since(track.startedAt).Milliseconds()
			action := track.action
			if action == "" {
				action = "unknown"
			}
			metricRequestsTotal.WithLabelValues(action, strconv.Itoa(rec.status)).Inc()
			metricRequestDuration.WithLabelValues(action).Observe(float64(durationMs))

			if auditLog == nil {
				return
			}
			auditLog.Record(audit.Entry{
				RequestID:       track.requestID,
				Timestamp:       track.startedAt,
				APIKeyID:        track.apiKeyID,
				OrganizationID:  track.orgID,
				Method:          r.Method,
				Path:            r.URL.Path,
				Action:          track.action,
				StatusCode:      rec.status,
				DurationMs:      durationMs,
				RequestBody:     track.bodySnapshot,
				ResponseSummary: audit.Truncate(rec.body.String()),
				ErrorMessage:    errorMessageFromBody(rec.status, rec.body.Bytes()),
			})
		})
	}
}

func hasRequestBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodPut:
		return true
	}
	return false
}

// errorMessageFromBody pulls error.message out of a failed response's
// envelope so the audit row carries it as a column.
func errorMessageFromBody(status int, body []byte) string {
	if status < http.StatusBadRequest || len(body) == 0 {
		return ""
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.Error.Message
}

// recoverMiddleware turns a panic into an INTERNAL_ERROR response. A
// panicking *APIError passes through with its own code.
func recoverMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				requestID := requestIDFromContext(r.Context())
				if apiErr, ok := rec.(*APIError); ok {
					writeAPIError(w, requestID, apiErr)
					return
				}
				log.Error("", requestID, "Handler panic recovered", map[string]interface{}{
					"panic": rec,
					"path":  r.URL.Path,
				})
				writeError(w, requestID, ErrCodeInternalError, "An internal error occurred", nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
