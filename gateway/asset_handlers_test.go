// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"axonflow/campaign-gateway/gateway/assetstore"
	"axonflow/campaign-gateway/gateway/mcp"
	"axonflow/campaign-gateway/shared/logger"
)

type stubExecutor struct {
	lastTool string
	lastArgs map[string]interface{}
	result   map[string]interface{}
	err      error
}

func (s *stubExecutor) ExecuteTool(_ context.Context, tool string, args map[string]interface{}) (map[string]interface{}, error) {
	s.lastTool = tool
	s.lastArgs = args
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, []byte, string) (string, error) {
	return "", errors.New("disk full")
}
func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk full") }
func (failingStore) List(context.Context, string) ([]assetstore.Object, error) {
	return nil, errors.New("disk full")
}
func (failingStore) Delete(context.Context, string) error { return errors.New("disk full") }

func authedAssetRequest(orgID, method, path, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	auth := &AuthContext{
		APIKeyID:       "key-1",
		OrganizationID: orgID,
		RequestID:      "req_test_1",
	}
	return req.WithContext(context.WithValue(req.Context(), authContextKey, auth))
}

func newAssetStore(t *testing.T) assetstore.Store {
	t.Helper()
	store, err := assetstore.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return store
}

func TestAssetGenerate(t *testing.T) {
	exec := &stubExecutor{result: map[string]interface{}{"url": "https://cdn.example.com/banner.png"}}
	store := newAssetStore(t)
	handler := NewAssetHandler(exec, store, logger.New("gateway-test"))

	rr := httptest.NewRecorder()
	handler.HandleGenerate(rr, authedAssetRequest("org-1", http.MethodPost, "/api/assets/generate",
		`{"tool":"generate_banner","arguments":{"width":300,"theme":"winter"}}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %s)", rr.Code, rr.Body.String())
	}
	data := decodeData(t, rr)
	if data["asset_id"] == "" || data["asset_id"] == nil {
		t.Error("expected a generated asset id")
	}
	if data["tool"] != "generate_banner" {
		t.Errorf("unexpected tool: %v", data["tool"])
	}
	result := data["result"].(map[string]interface{})
	if result["url"] != "https://cdn.example.com/banner.png" {
		t.Errorf("unexpected result: %v", result)
	}
	location, _ := data["location"].(string)
	if !strings.HasPrefix(location, "file://") {
		t.Errorf("expected a file location, got %q", location)
	}

	if exec.lastTool != "generate_banner" {
		t.Errorf("expected tool forwarded to the executor, got %s", exec.lastTool)
	}
	if exec.lastArgs["width"] != float64(300) || exec.lastArgs["theme"] != "winter" {
		t.Errorf("unexpected arguments: %v", exec.lastArgs)
	}

	objects, err := store.List(context.Background(), "orgs/org-1/assets/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(objects) != 1 {
		t.Fatalf("expected one archived asset, got %d", len(objects))
	}
	if !strings.HasSuffix(objects[0].Key, ".json") {
		t.Errorf("expected a json object key, got %s", objects[0].Key)
	}
}

func TestAssetGenerateWithoutArchive(t *testing.T) {
	exec := &stubExecutor{result: map[string]interface{}{"text": "ad copy"}}
	handler := NewAssetHandler(exec, nil, nil)

	rr := httptest.NewRecorder()
	handler.HandleGenerate(rr, authedAssetRequest("org-1", http.MethodPost, "/api/assets/generate",
		`{"tool":"generate_copy","arguments":{}}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	data := decodeData(t, rr)
	if _, present := data["location"]; present {
		t.Error("expected no location without an archive")
	}
}

func TestAssetGenerateRequiresTool(t *testing.T) {
	handler := NewAssetHandler(&stubExecutor{}, nil, nil)

	rr := httptest.NewRecorder()
	handler.HandleGenerate(rr, authedAssetRequest("org-1", http.MethodPost, "/api/assets/generate",
		`{"arguments":{}}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	envelope := decodeErrorEnvelope(t, rr)
	if envelope.Error.Code != ErrCodeValidation {
		t.Errorf("expected VALIDATION_ERROR, got %s", envelope.Error.Code)
	}
}

func TestAssetGenerateInvalidJSON(t *testing.T) {
	handler := NewAssetHandler(&stubExecutor{}, nil, nil)

	rr := httptest.NewRecorder()
	handler.HandleGenerate(rr, authedAssetRequest("org-1", http.MethodPost, "/api/assets/generate", `{"tool": `))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAssetGenerateUnknownTool(t *testing.T) {
	exec := &stubExecutor{err: fmt.Errorf("%w: generate_video", mcp.ErrUnknownTool)}
	handler := NewAssetHandler(exec, nil, nil)

	rr := httptest.NewRecorder()
	handler.HandleGenerate(rr, authedAssetRequest("org-1", http.MethodPost, "/api/assets/generate",
		`{"tool":"generate_video"}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	envelope := decodeErrorEnvelope(t, rr)
	if envelope.Error.Code != ErrCodeValidation {
		t.Errorf("expected VALIDATION_ERROR, got %s", envelope.Error.Code)
	}
	if envelope.Error.Details["tool"] != "generate_video" {
		t.Errorf("expected tool in details, got %v", envelope.Error.Details)
	}
}

func TestAssetGenerateToolFailure(t *testing.T) {
	exec := &stubExecutor{err: &mcp.ToolError{Tool: "generate_banner", Message: "render failed"}}
	handler := NewAssetHandler(exec, nil, nil)

	rr := httptest.NewRecorder()
	handler.HandleGenerate(rr, authedAssetRequest("org-1", http.MethodPost, "/api/assets/generate",
		`{"tool":"generate_banner"}`))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	envelope := decodeErrorEnvelope(t, rr)
	if envelope.Error.Code != ErrCodeInternalError {
		t.Errorf("expected INTERNAL_ERROR, got %s", envelope.Error.Code)
	}
	if envelope.Error.Message != "render failed" {
		t.Errorf("expected the tool's message, got %s", envelope.Error.Message)
	}
}

func TestAssetGenerateTimeout(t *testing.T) {
	exec := &stubExecutor{err: mcp.ErrCallTimeout}
	handler := NewAssetHandler(exec, nil, nil)

	rr := httptest.NewRecorder()
	handler.HandleGenerate(rr, authedAssetRequest("org-1", http.MethodPost, "/api/assets/generate",
		`{"tool":"generate_banner"}`))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	envelope := decodeErrorEnvelope(t, rr)
	if envelope.Error.Message != "Tool call timed out" {
		t.Errorf("unexpected message: %s", envelope.Error.Message)
	}
}

func TestAssetGenerateArchiveFailure(t *testing.T) {
	exec := &stubExecutor{result: map[string]interface{}{"url": "x"}}
	handler := NewAssetHandler(exec, failingStore{}, logger.New("gateway-test"))

	rr := httptest.NewRecorder()
	handler.HandleGenerate(rr, authedAssetRequest("org-1", http.MethodPost, "/api/assets/generate",
		`{"tool":"generate_banner"}`))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	envelope := decodeErrorEnvelope(t, rr)
	if envelope.Error.Message != "Failed to archive generated asset" {
		t.Errorf("unexpected message: %s", envelope.Error.Message)
	}
}

func TestAssetList(t *testing.T) {
	store := newAssetStore(t)
	ctx := context.Background()
	for _, key := range []string{
		"orgs/org-1/assets/a1.json",
		"orgs/org-1/assets/a2.json",
		"orgs/org-2/assets/b1.json",
	} {
		if _, err := store.Put(ctx, key, []byte(`{}`), "application/json"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	handler := NewAssetHandler(&stubExecutor{}, store, nil)

	rr := httptest.NewRecorder()
	handler.HandleList(rr, authedAssetRequest("org-1", http.MethodGet, "/api/assets/list", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	data := decodeData(t, rr)
	if data["count"] != float64(2) {
		t.Errorf("expected 2 assets for org-1, got %v", data["count"])
	}
	assets := data["assets"].([]interface{})
	for _, item := range assets {
		asset := item.(map[string]interface{})
		key := asset["key"].(string)
		if !strings.HasPrefix(key, "orgs/org-1/assets/") {
			t.Errorf("expected org-1 keys only, got %s", key)
		}
		if asset["location"] == "" {
			t.Error("expected a location per asset")
		}
	}
}

func TestAssetListWithoutArchive(t *testing.T) {
	handler := NewAssetHandler(&stubExecutor{}, nil, nil)

	rr := httptest.NewRecorder()
	handler.HandleList(rr, authedAssetRequest("org-1", http.MethodGet, "/api/assets/list", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	data := decodeData(t, rr)
	if data["count"] != float64(0) {
		t.Errorf("expected empty listing, got %v", data["count"])
	}
}

func TestAssetListFailure(t *testing.T) {
	handler := NewAssetHandler(&stubExecutor{}, failingStore{}, logger.New("gateway-test"))

	rr := httptest.NewRecorder()
	handler.HandleList(rr, authedAssetRequest("org-1", http.MethodGet, "/api/assets/list", ""))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}
