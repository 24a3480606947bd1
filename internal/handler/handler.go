// Package handler contains the HTTP handlers for the trip-sharing app.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the request (URL params, query, form, multipart body)
//  2. Call one service method
//  3. Render a view, redirect, or write JSON
//
// Handlers hold no business rules. Every rule about who may do what lives
// in internal/service; handlers only translate HTTP to calls and errors
// back to HTTP.
package handler

import (
	"context"
	"io"
	"time"

	"github.com/sakif/tripsync/internal/apperror"
	"github.com/sakif/tripsync/internal/auth"
	"github.com/sakif/tripsync/internal/imaging"
	"github.com/sakif/tripsync/internal/model"
	"github.com/sakif/tripsync/internal/service"
)

// The interfaces below are the service methods each handler calls. The
// concrete services satisfy them; tests substitute fakes.

type Accounts interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*service.AuthResult, error)
	UpdateSettings(ctx context.Context, userID string, in service.SettingsInput) (*model.User, error)
	DeleteAccount(ctx context.Context, userID, email, password string) error
	RequestPasswordReset(ctx context.Context, email string) error
	VerifyResetToken(ctx context.Context, rawToken string) (*model.User, error)
	ResetPassword(ctx context.Context, rawToken, newPassword, confirm string) error
	SearchUsers(ctx context.Context, viewerID, query string) ([]model.User, error)
}

type Folders interface {
	Create(ctx context.Context, userID, name string, tripDate time.Time) (*model.Folder, error)
	Get(ctx context.Context, userID, folderID string) (*service.FolderPage, error)
	List(ctx context.Context, userID string, scope service.Scope, nameFilter string) ([]model.Folder, error)
	Update(ctx context.Context, userID, folderID, name string, tripDate time.Time) (*model.Folder, error)
	Delete(ctx context.Context, userID, folderID string) error
}

type Files interface {
	Upload(ctx context.Context, userID, folderID string, in service.UploadInput) (*model.File, error)
	Edit(ctx context.Context, userID, folderID, fileID string, in service.EditInput) (*model.File, error)
	Delete(ctx context.Context, userID, folderID, fileID string) error
	Download(ctx context.Context, userID, folderID, fileID string) (*imaging.Download, error)
}

type Sharing interface {
	Invite(ctx context.Context, inviterID, inviteeName, folderID string) error
	Accept(ctx context.Context, recipientID, senderID, folderID string) error
	Decline(ctx context.Context, recipientID, senderID, folderID string) error
	Cancel(ctx context.Context, senderID, recipientID, folderID string) error
	Leave(ctx context.Context, userID, folderID string) error
}

type Notifications interface {
	ActivityCenter(ctx context.Context, userID string) (*service.ActivityCenter, error)
	Delete(ctx context.Context, userID string, displayIndex int) error
}

// UserResolver loads the account behind a request's identity.
type UserResolver interface {
	ResolveUser(ctx context.Context, id auth.Identity) (*model.User, error)
}

// GitHubAuth is the OAuth round trip with GitHub.
type GitHubAuth interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

var (
	_ Accounts      = (*service.AccountService)(nil)
	_ Folders       = (*service.FolderService)(nil)
	_ Files         = (*service.FileService)(nil)
	_ Sharing       = (*service.SharingService)(nil)
	_ Notifications = (*service.NotificationService)(nil)
	_ UserResolver  = (*auth.Gate)(nil)
	_ GitHubAuth    = (*auth.GitHubProvider)(nil)
)

const dateLayout = "2006-01-02"

// parseDate reads an HTML date input. Empty means "not given".
func parseDate(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, apperror.ValidationFailed(field, "Invalid date: expected YYYY-MM-DD")
	}
	return t, nil
}

// readLimited reads at most limit bytes from r, failing when there is more.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, apperror.ValidationFailed("image", "File is too large")
	}
	return data, nil
}
