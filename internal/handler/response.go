package handler

// RESPONSE HELPERS:
// Pages and JSON endpoints fail differently.
//
//   - Form routes redirect back to the page the form lives on with the
//     error text in ?errorMessage=. Only *apperror.AppError messages are
//     shown; anything else becomes the route's generic message and is
//     logged, since raw errors may carry SQL or bucket details.
//   - JSON routes (upload, download) answer with a status code and
//     {"error": "...", "message": "..."}.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sakif/tripsync/internal/apperror"
	"github.com/sakif/tripsync/internal/auth"
)

// Renderer turns a named view and its data into a response. The server
// ships with JSONRenderer; an HTML template renderer can replace it without
// touching the handlers.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request, status int, view string, data any) error
}

// Page is what every view receives. Messages come from the query string so
// redirects can carry them.
type Page struct {
	View           string `json:"view"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
	SuccessMessage string `json:"successMessage,omitempty"`
	Data           any    `json:"data"`
}

// JSONRenderer writes the Page as JSON.
type JSONRenderer struct{}

var _ Renderer = JSONRenderer{}

func (JSONRenderer) Render(w http.ResponseWriter, r *http.Request, status int, view string, data any) error {
	q := r.URL.Query()
	return encodeJSON(w, status, Page{
		View:           view,
		ErrorMessage:   q.Get("errorMessage"),
		SuccessMessage: q.Get("successMessage"),
		Data:           data,
	})
}

// ErrorResponse is the body of every failed JSON request.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable, e.g. "not_found"
	Message string `json:"message"` // safe to show
}

func encodeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(data)
}

// writeJSON sends data with status. Headers are already out by the time
// encoding can fail, so the failure is only logged.
func writeJSON(w http.ResponseWriter, status int, data any) {
	if err := encodeJSON(w, status, data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// statusOf maps an error class onto an HTTP status and a machine name.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrIO):
		return http.StatusBadGateway, "io_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError answers a JSON request with the mapped status. Unknown errors
// are logged and reported as a bare 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, kind := statusOf(err)
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}
	if appErr.Cause != nil {
		logger.Warn("request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, ErrorResponse{Error: kind, Message: appErr.Message})
}

// redirectWithError sends the browser to target with the error's message,
// or generic when err carries none.
func redirectWithError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, target string, err error, generic string) {
	msg := apperror.Message(err, generic)
	if msg == generic {
		logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	http.Redirect(w, r, withQuery(target, "errorMessage", msg), http.StatusSeeOther)
}

// withQuery adds key=value to target, keeping any query it already has.
func withQuery(target, key, value string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// currentUserID is the authenticated caller. Routes that use it sit behind
// auth.RequireAuth, so it is never empty there.
func currentUserID(r *http.Request) string {
	return auth.IdentityFromContext(r.Context()).UserID
}

// setSession stores a freshly issued JWT in an HttpOnly cookie that lives
// as long as the token.
func setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.TokenTTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
