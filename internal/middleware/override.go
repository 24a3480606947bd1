package middleware

import (
	"net/http"
	"strings"
)

// OverrideParam and OverrideHeader carry the intended method on a POST.
const (
	OverrideParam  = "_method"
	OverrideHeader = "X-HTTP-Method-Override"
)

var overridable = map[string]bool{
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// MethodOverride lets HTML forms, which can only GET and POST, reach PUT,
// PATCH and DELETE routes. A POST carrying _method=PUT (header, query
// string or urlencoded body field) is routed as a PUT. Any other method,
// or an unknown override value, passes through unchanged.
//
// Urlencoded bodies are parsed before the method changes because
// Request.ParseForm ignores the body of a DELETE. Multipart bodies are left
// alone for the upload handlers to stream.
func MethodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			m := r.Header.Get(OverrideHeader)
			if m == "" {
				m = r.URL.Query().Get(OverrideParam)
			}
			if m == "" && isURLEncoded(r) {
				if err := r.ParseForm(); err == nil {
					m = r.PostForm.Get(OverrideParam)
				}
			}
			if m = strings.ToUpper(strings.TrimSpace(m)); overridable[m] {
				if isURLEncoded(r) {
					_ = r.ParseForm()
				}
				r = r.Clone(r.Context())
				r.Method = m
			}
		}
		next.ServeHTTP(w, r)
	})
}

func isURLEncoded(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded")
}
