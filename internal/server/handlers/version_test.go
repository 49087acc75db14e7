package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVersionHandlerIncludesBuildMetadata(t *testing.T) {
	SetVersionInfo("1.2.3", "abcd123", "2026-08-30T12:00:00Z")

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()

	VersionHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp VersionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.App.Version != "1.2.3" {
		t.Fatalf("expected version 1.2.3, got %s", resp.App.Version)
	}

	if resp.App.Commit != "abcd123" {
		t.Fatalf("expected commit abcd123, got %s", resp.App.Commit)
	}

	if resp.App.GoVersion == "" {
		t.Fatal("expected go version to be populated")
	}

	if resp.Runtime.NumCPU <= 0 {
		t.Fatalf("expected positive cpu count, got %d", resp.Runtime.NumCPU)
	}
}
