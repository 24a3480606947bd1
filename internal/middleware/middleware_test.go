package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethodOverride(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		header string
		want   string
	}{
		{"query put", http.MethodPost, "/x?_method=PUT", "", http.MethodPut},
		{"query lower case", http.MethodPost, "/x?_method=delete", "", http.MethodDelete},
		{"header patch", http.MethodPost, "/x", "PATCH", http.MethodPatch},
		{"header wins", http.MethodPost, "/x?_method=PUT", "DELETE", http.MethodDelete},
		{"plain post", http.MethodPost, "/x", "", http.MethodPost},
		{"not overridable", http.MethodPost, "/x?_method=GET", "", http.MethodPost},
		{"only on post", http.MethodGet, "/x?_method=DELETE", "", http.MethodGet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := MethodOverride(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.Method
			}))
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(OverrideHeader, tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMethodOverride_FormBodySurvivesDelete(t *testing.T) {
	var method, email string
	h := MethodOverride(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		email = r.FormValue("email")
	}))
	body := strings.NewReader("_method=DELETE&email=alice%40example.com")
	req := httptest.NewRequest(http.MethodPost, "/users/delete", body)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "alice@example.com", email)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tripFolders/abc", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	line := buf.String()
	assert.True(t, strings.Contains(line, "level=WARN"), line)
	assert.Contains(t, line, "path=/tripFolders/abc")
	assert.Contains(t, line, "status=404")
	assert.Contains(t, line, `size="4 B"`)
}
