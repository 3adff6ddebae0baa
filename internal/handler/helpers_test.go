package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// queryString tests
// ---------------------------------------------------------------------------

func TestQueryString(t *testing.T) {
	tests := []struct {
		name string
		url  string
		key  string
		want string
	}{
		{"returns value", "/test?format=json", "format", "json"},
		{"returns empty for missing", "/test", "format", ""},
		{"returns empty string for empty", "/test?format=", "format", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", tt.url, nil)
			got := queryString(r, tt.key)
			if got != tt.want {
				t.Errorf("queryString(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// tenantKey tests
// ---------------------------------------------------------------------------

func TestTenantKey(t *testing.T) {
	if got := tenantKey(42); got != "42" {
		t.Errorf("tenantKey(42) = %q, want %q", got, "42")
	}
}

// ---------------------------------------------------------------------------
// classifyDBError tests
// ---------------------------------------------------------------------------

func TestClassifyDBError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unique constraint", errors.New(`duplicate key value violates unique constraint "users_email_key"`), http.StatusConflict},
		{"mysql duplicate", errors.New("Error 1062: Duplicate entry 'a@b.com' for key 'email'"), http.StatusConflict},
		{"not null", errors.New(`null value in column "email" violates not-null constraint`), http.StatusBadRequest},
		{"missing relation", errors.New(`relation "ghost" does not exist`), http.StatusNotFound},
		{"mysql missing table", errors.New("Error 1146: Table 'app.ghost' doesn't exist"), http.StatusNotFound},
		{"foreign key", errors.New("insert or update violates foreign key constraint"), http.StatusBadRequest},
		{"unknown", errors.New("connection reset by peer"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := classifyDBError(tt.err, "query failed")
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if !strings.HasPrefix(msg, "query failed: ") {
				t.Errorf("message %q missing fallback prefix", msg)
			}
		})
	}
}
