package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateRun_OversizedBody(t *testing.T) {
	srv := newTestHTTPServer(&mockRunService{}, &mockRunReader{})

	body := `{"niche":"` + strings.Repeat("a", maxRequestBodySize) + `"}`
	rr := serveHTTP(srv, httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(body)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", rr.Code)
	}
}

func TestGetRun_DoesNotEchoMaliciousID(t *testing.T) {
	srv := newTestHTTPServer(&mockRunService{}, &mockRunReader{})

	payload := "%3Cscript%3Ealert(1)"
	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+payload, nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "script") {
		t.Errorf("response echoes the path parameter: %s", rr.Body.String())
	}
}

func TestWriteDomainError_NeverLeaksInternalDetails(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "generic error with DB details", err: fmt.Errorf("FATAL: password authentication failed for user \"keyhunter\"")},
		{name: "wrapped postgres error", err: fmt.Errorf("repository: %w", fmt.Errorf("relation \"keyword_runs\" does not exist"))},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeDomainError(rr, tc.err)

			if rr.Code != http.StatusInternalServerError {
				t.Errorf("expected 500, got %d", rr.Code)
			}

			var resp map[string]string
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["error"] != "internal server error" {
				t.Errorf("expected generic message, got %q", resp["error"])
			}
		})
	}

	rr := httptest.NewRecorder()
	writeDomainError(rr, nil)
	if rr.Body.Len() != 0 {
		t.Errorf("expected nil error to write nothing")
	}
}
