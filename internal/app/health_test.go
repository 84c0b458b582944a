package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore(), nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if ok, exists := response["ok"]; !exists || ok != true {
		t.Errorf("expected ok=true, got %v", ok)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestReadyEndpointHealthy(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore(), nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var response struct {
		OK     bool                      `json:"ok"`
		Status string                    `json:"status"`
		Checks map[string]map[string]any `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !response.OK || response.Status != "ready" {
		t.Errorf("unexpected response %+v", response)
	}
	if response.Checks["database"]["status"] != "ok" {
		t.Errorf("expected database ok, got %v", response.Checks["database"])
	}
}

func TestReadyEndpointDatabaseDown(t *testing.T) {
	fs := newFakeStore()
	fs.pingFn = func(context.Context) error { return errors.New("connection refused") }
	server := NewHTTPServer(newTestService(fs, nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["status"] != "not_ready" {
		t.Errorf("expected not_ready, got %v", response["status"])
	}
}

func TestPreflightRequestsShortCircuit(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore(), nil), nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/blog-posts", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("expected CORS origin header, got %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	server := NewHTTPServer(newTestService(newFakeStore(), nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["code"] != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %v", response["code"])
	}
}
