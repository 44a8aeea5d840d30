package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSPAHandler(t *testing.T) {
	t.Parallel()

	h := SPAHandler()
	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/", http.StatusOK, "<title>postlens</title>"},
		{"/history/abc", http.StatusOK, "<title>postlens</title>"},
		{"/api/unknown", http.StatusNotFound, `"not found"`},
		{"/ws/unknown", http.StatusNotFound, `"not found"`},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.status {
			t.Errorf("%s: status = %d, want %d", tt.path, rec.Code, tt.status)
		}
		if !strings.Contains(rec.Body.String(), tt.body) {
			t.Errorf("%s: body missing %q", tt.path, tt.body)
		}
	}
}
