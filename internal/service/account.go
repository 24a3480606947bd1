package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/sakif/tripsync/internal/apperror"
	"github.com/sakif/tripsync/internal/auth"
	"github.com/sakif/tripsync/internal/mail"
	"github.com/sakif/tripsync/internal/metrics"
	"github.com/sakif/tripsync/internal/model"
)

const (
	MaxUsernameLength = 32
	MinPasswordLength = 8

	msgInvalidEmail      = "Invalid Email"
	msgPasswordIncorrect = "Password incorrect"
	msgEmailFailed       = "Failed to send email to inputted address"

	resetSubject = "TripSync Password Reset"
)

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Username  string `validate:"required,alphanum,max=32"`
	Email     string `validate:"required,email"`
	Password  string `validate:"required,min=8,max=72"`
	IsPrivate bool
}

// SettingsInput is the account settings form. Password is the current
// password and is required when the account has one. An empty NewPassword
// keeps the current password.
type SettingsInput struct {
	Username    string `validate:"required,alphanum,max=32"`
	Email       string `validate:"required,email"`
	Password    string
	NewPassword string `validate:"omitempty,min=8,max=72"`
	IsPrivate   bool
}

// AuthResult bundles the user record and the issued JWT so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// AccountService owns registration, sign-in, settings, password reset and
// account deletion.
type AccountService struct {
	*cascade
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	mailer    mail.Mailer
	baseURL   string
	now       func() time.Time
}

func NewAccountService(
	stores Stores,
	images Images,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	mailer mail.Mailer,
	baseURL string,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		cascade:   &cascade{Stores: stores, images: images, metrics: m, logger: logger},
		passwords: passwords,
		tokens:    tokens,
		mailer:    mailer,
		baseURL:   strings.TrimRight(baseURL, "/"),
		now:       time.Now,
	}
}

// Register creates a password account and signs it in.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := checkStruct(in); err != nil {
		return nil, err
	}
	if err := s.checkUnique(ctx, "", in.Username, in.Email); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service: hashing password: %w", err)
	}
	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		IsPrivate:    in.IsPrivate,
	}
	if err := s.Users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service: registering %s: %w", in.Username, err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return s.issue(user)
}

// Login checks email and password and issues a session token.
func (s *AccountService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.Users.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.ValidationFailed("email", msgInvalidEmail)
	}
	if err != nil {
		return nil, fmt.Errorf("service: logging in: %w", err)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.ValidationFailed("password", msgPasswordIncorrect)
	}
	return s.issue(user)
}

// LoginWithGitHub signs in the account linked to gh, linking an existing
// account with the same email on first use, or creating a new private
// account with a username derived from the GitHub login.
func (s *AccountService) LoginWithGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil || gh.ID == 0 {
		return nil, fmt.Errorf("service: GitHub user must not be empty")
	}

	var user *model.User
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.Users.GetByGitHubID(ctx, gh.ID)
		if err == nil {
			user = existing
			return nil
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return err
		}

		if gh.Email != "" {
			byEmail, err := s.Users.GetByEmail(ctx, gh.Email)
			if err == nil {
				byEmail.GitHubID = &gh.ID
				user = byEmail
				return s.Users.Save(ctx, byEmail)
			}
			if !errors.Is(err, apperror.ErrNotFound) {
				return err
			}
		}

		username, err := s.freeUsername(ctx, gh.Login)
		if err != nil {
			return err
		}
		email := gh.Email
		if email == "" {
			email = fmt.Sprintf("%d+%s@users.noreply.github.com", gh.ID, gh.Login)
		}
		user = &model.User{Username: username, Email: email, GitHubID: &gh.ID, IsPrivate: true}
		return s.Users.Create(ctx, user)
	})
	if err != nil {
		return nil, fmt.Errorf("service: GitHub sign-in (githubID=%d): %w", gh.ID, err)
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", gh.Login),
	)
	return s.issue(user)
}

// UpdateSettings changes username, email, visibility and optionally the
// password. Accounts with a password must confirm it.
func (s *AccountService) UpdateSettings(ctx context.Context, userID string, in SettingsInput) (*model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := checkStruct(in); err != nil {
		return nil, err
	}

	var user *model.User
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		u, err := s.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if err := s.checkUnique(ctx, u.ID, in.Username, in.Email); err != nil {
			return err
		}
		if u.HasPassword() {
			if err := s.passwords.Verify(u.PasswordHash, in.Password); err != nil {
				return apperror.ValidationFailed("password", "Password incorrect: Cannot edit user information")
			}
		}
		if in.NewPassword != "" {
			hash, err := s.passwords.Hash(in.NewPassword)
			if err != nil {
				return fmt.Errorf("hashing password: %w", err)
			}
			u.PasswordHash = hash
		}
		u.Username = in.Username
		u.Email = in.Email
		u.IsPrivate = in.IsPrivate
		user = u
		return s.Users.Save(ctx, u)
	})
	if err != nil {
		return nil, fmt.Errorf("service: updating settings of %s: %w", userID, err)
	}
	return user, nil
}

// DeleteAccount removes userID after checking email and password.
//
// CASCADE, per folder the user belongs to:
//  1. delete every file they uploaded there, or every file when they are
//     the last member (object first, then record, one file at a time)
//  2. if they were the last member, delete the folder outright
//  3. otherwise leave it: remaining members are notified and a folder
//     left with one member turns private
//
// Then their pending invites are withdrawn in both directions and the
// account record is deleted. Steps 2 and 3 and the request clean-up share
// one transaction. Notifications that name them on other users survive and
// fall back to the stored username.
func (s *AccountService) DeleteAccount(ctx context.Context, userID, email, password string) error {
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("service: deleting account %s: %w", userID, err)
	}
	if !strings.EqualFold(strings.TrimSpace(email), user.Email) {
		return apperror.ValidationFailed("email", "Email Incorrect")
	}
	if user.HasPassword() {
		if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
			return apperror.ValidationFailed("password", "Password Incorrect")
		}
	}

	err = s.purgeThen(ctx, func(ctx context.Context) ([]model.File, error) {
		return s.filesForDeletion(ctx, userID)
	}, func(ctx context.Context) error {
		user, err := s.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		for _, folderID := range user.AllFolders() {
			if err := s.leaveForDeletion(ctx, user, folderID); err != nil {
				return err
			}
		}
		if err := s.withdrawOutgoing(ctx, user, ""); err != nil {
			return err
		}
		if err := s.dropIncoming(ctx, user); err != nil {
			return err
		}
		return s.Users.Delete(ctx, user.ID)
	})
	if err != nil {
		return fmt.Errorf("service: deleting account %s: %w", userID, err)
	}

	s.logger.Info("account deleted", slog.String("userID", userID))
	return nil
}

// filesForDeletion lists the files that go with userID's account: all files
// of folders they are the last member of, and their own uploads elsewhere.
func (s *AccountService) filesForDeletion(ctx context.Context, userID string) ([]model.File, error) {
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []model.File
	for _, folderID := range user.AllFolders() {
		folder, err := s.Folders.GetByID(ctx, folderID)
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !folder.IsMember(userID) {
			continue
		}
		var files []model.File
		if len(folder.MemberIDs) == 1 {
			files, err = s.Files.FindByIDs(ctx, folder.FileIDs)
		} else {
			files, err = s.Files.FindByFolderAndUploader(ctx, folder.ID, userID)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	return out, nil
}

// leaveForDeletion drops user from folderID without touching image objects.
// It returns errFilesRemain if files that should have been purged are still
// there.
func (s *AccountService) leaveForDeletion(ctx context.Context, user *model.User, folderID string) error {
	folder, err := s.Folders.GetByID(ctx, folderID)
	if errors.Is(err, apperror.ErrNotFound) {
		user.ForgetFolder(folderID)
		return nil
	}
	if err != nil {
		return err
	}
	if !folder.IsMember(user.ID) {
		user.ForgetFolder(folderID)
		return nil
	}

	if len(folder.MemberIDs) == 1 {
		return s.deleteFolder(ctx, folder, user)
	}

	files, err := s.Files.FindByFolderAndUploader(ctx, folder.ID, user.ID)
	if err != nil {
		return err
	}
	if len(files) > 0 {
		return errFilesRemain
	}
	if err := s.detachMember(ctx, folder, user); err != nil {
		return err
	}
	return s.Folders.Save(ctx, folder)
}

// RequestPasswordReset emails a one-hour reset link to the account
// registered under email. Only the SHA-256 of the token is stored.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.Users.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, apperror.ErrNotFound) {
		return apperror.ValidationFailed("email", msgInvalidEmail)
	}
	if err != nil {
		return fmt.Errorf("service: requesting password reset: %w", err)
	}

	token, err := auth.NewResetToken(s.now())
	if err != nil {
		return err
	}
	user.PasswordResetHash = token.Hash
	user.PasswordResetExpires = &token.Expires
	if err := s.Users.Save(ctx, user); err != nil {
		return fmt.Errorf("service: storing reset token for %s: %w", user.ID, err)
	}

	link := s.baseURL + "/users/resetPassword?token=" + url.QueryEscape(token.Raw)
	body := fmt.Sprintf(`<p>Click the link below to reset your password.</p><a href="%s">Reset Password</a>`,
		html.EscapeString(link))
	if err := s.mailer.Send(ctx, user.Email, resetSubject, body); err != nil {
		return apperror.IO(msgEmailFailed, err)
	}

	s.logger.Info("password reset requested", slog.String("userID", user.ID))
	return nil
}

// VerifyResetToken returns the account a raw reset token belongs to, if
// the token is known and unexpired.
func (s *AccountService) VerifyResetToken(ctx context.Context, rawToken string) (*model.User, error) {
	if rawToken == "" {
		return nil, apperror.NotFoundMessage("Password reset token is invalid or has expired")
	}
	user, err := s.Users.GetByResetHash(ctx, auth.HashResetToken(rawToken))
	if err != nil {
		return nil, fmt.Errorf("service: verifying reset token: %w", err)
	}
	return user, nil
}

// ResetPassword sets a new password using a valid reset token. The token
// is consumed.
func (s *AccountService) ResetPassword(ctx context.Context, rawToken, newPassword, confirm string) error {
	if newPassword != confirm {
		return apperror.ValidationFailed("confirmPassword", "Passwords must match")
	}
	if len(newPassword) < MinPasswordLength {
		return apperror.ValidationFailed("newPassword",
			fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}

	return s.Tx.InTx(ctx, func(ctx context.Context) error {
		user, err := s.VerifyResetToken(ctx, rawToken)
		if err != nil {
			return err
		}
		hash, err := s.passwords.Hash(newPassword)
		if err != nil {
			return apperror.ValidationFailed("newPassword", "Password is too long")
		}
		user.PasswordHash = hash
		user.PasswordResetHash = ""
		user.PasswordResetExpires = nil
		if err := s.Users.Save(ctx, user); err != nil {
			return fmt.Errorf("service: resetting password of %s: %w", user.ID, err)
		}
		s.logger.Info("password reset", slog.String("userID", user.ID))
		return nil
	})
}

// SearchUsers lists public accounts whose username contains query, leaving
// out viewerID.
func (s *AccountService) SearchUsers(ctx context.Context, viewerID, query string) ([]model.User, error) {
	users, err := s.Users.Search(ctx, strings.TrimSpace(query), viewerID)
	if err != nil {
		return nil, fmt.Errorf("service: searching users: %w", err)
	}
	return users, nil
}

func (s *AccountService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// checkUnique fails when username or email belongs to an account other
// than selfID.
func (s *AccountService) checkUnique(ctx context.Context, selfID, username, email string) error {
	other, err := s.Users.GetByEmail(ctx, email)
	switch {
	case err == nil && other.ID != selfID:
		return apperror.ValidationFailed("email", "Account with inputted email already exists")
	case err != nil && !errors.Is(err, apperror.ErrNotFound):
		return err
	}

	other, err = s.Users.GetByUsername(ctx, username)
	switch {
	case err == nil && other.ID != selfID:
		return apperror.ValidationFailed("username", "Account with inputted username already exists")
	case err != nil && !errors.Is(err, apperror.ErrNotFound):
		return err
	}
	return nil
}

// freeUsername turns a GitHub login into an unused alphanumeric username,
// appending a number when the plain form is taken.
func (s *AccountService) freeUsername(ctx context.Context, login string) (string, error) {
	base := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, login)
	if base == "" {
		base = "traveller"
	}
	if len(base) > MaxUsernameLength-4 {
		base = base[:MaxUsernameLength-4]
	}

	candidate := base
	for n := 2; n < 10000; n++ {
		_, err := s.Users.GetByUsername(ctx, candidate)
		if errors.Is(err, apperror.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = base + strconv.Itoa(n)
	}
	return "", apperror.Conflict("username", base)
}
