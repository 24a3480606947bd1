package handler

import (
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/tripsync/internal/auth"
	"github.com/sakif/tripsync/internal/model"
	"github.com/sakif/tripsync/internal/service"
)

const (
	msgResetSent = "Email sent successfully."
	stateCookie  = "oauth_state"
)

// UserHandler serves sign-up, sign-in, account settings, password reset
// and user search.
type UserHandler struct {
	accounts Accounts
	users    UserResolver
	github   GitHubAuth // nil when GitHub sign-in is not configured
	render   Renderer
	logger   *slog.Logger
}

func NewUserHandler(accounts Accounts, users UserResolver, github GitHubAuth, render Renderer, logger *slog.Logger) *UserHandler {
	return &UserHandler{accounts: accounts, users: users, github: github, render: render, logger: logger}
}

// UserSummary is the public part of an account shown in search results.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// HandleLanding shows the landing page, or sends signed-in users to their
// folders.
//
// HTTP: GET /
func (h *UserHandler) HandleLanding(w http.ResponseWriter, r *http.Request) {
	if auth.IdentityFromContext(r.Context()).Authenticated() {
		http.Redirect(w, r, "/tripFolders", http.StatusSeeOther)
		return
	}
	h.show(w, r, "index", nil)
}

// HandleLoginPage and HandleRegisterPage render the empty forms.
func (h *UserHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.show(w, r, "users/login", nil)
}

func (h *UserHandler) HandleRegisterPage(w http.ResponseWriter, r *http.Request) {
	h.show(w, r, "users/register", nil)
}

// HandleRegister creates an account and signs it in. Accounts are private
// unless the form sends isPrivate=false.
//
// HTTP: POST /users/register
func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	res, err := h.accounts.Register(r.Context(), service.RegisterInput{
		Username:  r.PostFormValue("username"),
		Email:     r.PostFormValue("email"),
		Password:  r.PostFormValue("password"),
		IsPrivate: r.PostFormValue("isPrivate") != "false",
	})
	if err != nil {
		redirectWithError(w, r, h.logger, "/users/register", err, "Error: Something went wrong")
		return
	}
	setSession(w, res.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogin checks the credentials and sets the session cookie.
//
// HTTP: POST /users/login
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	res, err := h.accounts.Login(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	if err != nil {
		redirectWithError(w, r, h.logger, "/users/login", err, "Error: something went wrong")
		return
	}
	setSession(w, res.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the session cookie. Tokens are stateless, so there
// is nothing to revoke server-side.
//
// HTTP: GET /users/logout
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	clearSession(w)
	http.Redirect(w, r, "/users/login", http.StatusSeeOther)
}

// HandleSearch lists public accounts matching ?username=.
//
// HTTP: GET /users
func (h *UserHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("username")
	users, err := h.accounts.SearchUsers(r.Context(), currentUserID(r), query)
	if err != nil {
		redirectWithError(w, r, h.logger, "/", err, "Error searching users")
		return
	}
	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, UserSummary{ID: u.ID, Username: u.Username})
	}
	h.show(w, r, "users/index", map[string]any{"users": out, "username": query})
}

// HandleSettingsPage shows the settings form.
//
// HTTP: GET /users/settings
func (h *UserHandler) HandleSettingsPage(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.ResolveUser(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		redirectWithError(w, r, h.logger, "/", err, "Error editing user")
		return
	}
	h.show(w, r, "users/settings", user)
}

// HandleSettings saves the settings form. The form's delete button posts
// action=delete here and is forwarded to the confirmation page.
//
// HTTP: PUT /users/settings
func (h *UserHandler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	if r.PostFormValue("action") == "delete" {
		http.Redirect(w, r, "/users/delete", http.StatusSeeOther)
		return
	}
	_, err := h.accounts.UpdateSettings(r.Context(), currentUserID(r), service.SettingsInput{
		Username:    r.PostFormValue("username"),
		Email:       r.PostFormValue("email"),
		Password:    r.PostFormValue("password"),
		NewPassword: r.PostFormValue("newPassword"),
		IsPrivate:   r.PostFormValue("isPrivate") != "false",
	})
	if err != nil {
		redirectWithError(w, r, h.logger, "/users/settings", err, "Error updating user")
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleDeletePage asks for email and password before deleting.
//
// HTTP: GET /users/delete
func (h *UserHandler) HandleDeletePage(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.ResolveUser(r.Context(), auth.IdentityFromContext(r.Context()))
	if err != nil {
		redirectWithError(w, r, h.logger, "/", err, "Error deleting user")
		return
	}
	h.show(w, r, "users/delete", user)
}

// HandleDelete removes the account and everything it alone owned.
//
// HTTP: DELETE /users/delete
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	err := h.accounts.DeleteAccount(r.Context(), currentUserID(r), r.PostFormValue("email"), r.PostFormValue("password"))
	if err != nil {
		redirectWithError(w, r, h.logger, "/users/delete", err, "Error deleting user")
		return
	}
	http.Redirect(w, r, "/users/logout", http.StatusSeeOther)
}

// HandleForgotPage shows the reset request form.
//
// HTTP: GET /users/forgotPassword
func (h *UserHandler) HandleForgotPage(w http.ResponseWriter, r *http.Request) {
	h.show(w, r, "users/forgotPassword", nil)
}

// HandleSendReset emails a reset link.
//
// HTTP: POST /users/sendPasswordResetEmail
func (h *UserHandler) HandleSendReset(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.RequestPasswordReset(r.Context(), r.PostFormValue("email")); err != nil {
		redirectWithError(w, r, h.logger, "/users/forgotPassword", err, "Error sending email")
		return
	}
	http.Redirect(w, r, withQuery("/users/forgotPassword", "successMessage", msgResetSent), http.StatusSeeOther)
}

// HandleResetPage validates the emailed token and shows the new-password
// form.
//
// HTTP: GET /users/resetPassword?token=
func (h *UserHandler) HandleResetPage(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if _, err := h.accounts.VerifyResetToken(r.Context(), token); err != nil {
		redirectWithError(w, r, h.logger, "/users/forgotPassword", err,
			"Error validating token: resend verification email to continue")
		return
	}
	h.show(w, r, "users/resetPassword", map[string]string{"token": token})
}

// HandleReset sets the new password and consumes the token.
//
// HTTP: PUT /users/resetPassword
func (h *UserHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	token := r.FormValue("token")
	err := h.accounts.ResetPassword(r.Context(), token, r.PostFormValue("newPassword"), r.PostFormValue("confirmPassword"))
	if err != nil {
		redirectWithError(w, r, h.logger, withQuery("/users/resetPassword", "token", token), err, "Error Resetting Password")
		return
	}
	http.Redirect(w, r, "/users/login", http.StatusSeeOther)
}

// HandleGitHubLogin redirects to GitHub's consent page. A random state is
// kept in a short-lived cookie and checked on the callback.
//
// HTTP: GET /auth/github/login
func (h *UserHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		http.NotFound(w, r)
		return
	}
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback finishes the OAuth flow and signs the user in.
//
// HTTP: GET /auth/github/callback?code=&state=
func (h *UserHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		http.NotFound(w, r)
		return
	}
	const failed = "GitHub sign-in failed"

	c, err := r.Cookie(stateCookie)
	q := r.URL.Query()
	if err != nil || c.Value == "" || q.Get("state") != c.Value {
		h.logger.Warn("github callback: state mismatch")
		http.Redirect(w, r, withQuery("/users/login", "errorMessage", failed), http.StatusSeeOther)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/", MaxAge: -1})

	if q.Get("error") != "" || q.Get("code") == "" {
		http.Redirect(w, r, withQuery("/users/login", "errorMessage", failed), http.StatusSeeOther)
		return
	}

	gh, err := h.github.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		http.Redirect(w, r, withQuery("/users/login", "errorMessage", failed), http.StatusSeeOther)
		return
	}
	res, err := h.accounts.LoginWithGitHub(r.Context(), gh)
	if err != nil {
		redirectWithError(w, r, h.logger, "/users/login", err, failed)
		return
	}
	setSession(w, res.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *UserHandler) show(w http.ResponseWriter, r *http.Request, view string, data any) {
	if u, ok := data.(*model.User); ok {
		data = map[string]any{"user": u}
	}
	if err := h.render.Render(w, r, http.StatusOK, view, data); err != nil {
		h.logger.Error("render failed", slog.String("view", view), slog.String("error", err.Error()))
	}
}
