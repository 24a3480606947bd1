package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/tripsync/internal/apperror"
	"github.com/sakif/tripsync/internal/model"
	"github.com/sakif/tripsync/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB stores the User aggregate.
type UserDB struct {
	db *DB
}

const userColumns = `id, username, email, password_hash, github_id, is_private,
	new_notification_count, reset_hash, reset_expires, created_at, updated_at`

const (
	listPrivate = "private"
	listShared  = "shared"
	listRecent  = "recent"

	dirIncoming = "in"
	dirOutgoing = "out"
)

// Create inserts user and its collections, assigning ID and timestamps.
// A taken username or email yields apperror.ErrConflict.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	return u.db.InTx(ctx, func(ctx context.Context) error {
		_, err := u.db.q(ctx).ExecContext(ctx,
			`INSERT INTO users (`+userColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			user.ID,
			user.Username,
			user.Email,
			user.PasswordHash,
			nullInt64(user.GitHubID),
			boolToInt(user.IsPrivate),
			user.NewNotificationCount,
			user.PasswordResetHash,
			nullTime(user.PasswordResetExpires),
			user.CreatedAt,
			user.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("user", user.Username)
			}
			return fmt.Errorf("sqlite: inserting user %s: %w", user.Username, err)
		}
		return u.writeChildren(ctx, user)
	})
}

// GetByID returns the full aggregate or apperror.ErrNotFound.
func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return u.getOne(ctx, "id = ?", id, "user", id)
}

func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.getOne(ctx, "email = ?", email, "user", email)
}

func (u *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return u.getOne(ctx, "username = ?", username, "user", username)
}

func (u *UserDB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return u.getOne(ctx, "github_id = ?", githubID, "user", fmt.Sprintf("github:%d", githubID))
}

// GetByResetHash only matches tokens that have not expired yet.
func (u *UserDB) GetByResetHash(ctx context.Context, hash string) (*model.User, error) {
	invalid := apperror.NotFoundMessage("Password reset token is invalid or has expired")
	if hash == "" {
		return nil, invalid
	}
	user, err := u.getOne(ctx, "reset_hash = ?", hash, "user", "reset token")
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	if user.PasswordResetExpires == nil || !time.Now().Before(*user.PasswordResetExpires) {
		return nil, invalid
	}
	return user, nil
}

func (u *UserDB) FindByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := u.db.q(ctx).QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding users by id: %w", err)
	}
	users, err := scanUsers(rows)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if err := u.readChildren(ctx, &users[i]); err != nil {
			return nil, err
		}
	}
	return users, nil
}

// Search matches public accounts by username substring. Only profile
// columns are loaded.
func (u *UserDB) Search(ctx context.Context, query, excludeID string) ([]model.User, error) {
	rows, err := u.db.q(ctx).QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE is_private = 0 AND id != ? AND username LIKE ? ESCAPE '\'
		 ORDER BY username COLLATE NOCASE
		 LIMIT 50`,
		excludeID, likePattern(query),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching users: %w", err)
	}
	return scanUsers(rows)
}

// Save rewrites the profile row and every embedded collection.
func (u *UserDB) Save(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()

	return u.db.InTx(ctx, func(ctx context.Context) error {
		res, err := u.db.q(ctx).ExecContext(ctx,
			`UPDATE users SET username = ?, email = ?, password_hash = ?, github_id = ?,
			        is_private = ?, new_notification_count = ?, reset_hash = ?,
			        reset_expires = ?, updated_at = ?
			 WHERE id = ?`,
			user.Username,
			user.Email,
			user.PasswordHash,
			nullInt64(user.GitHubID),
			boolToInt(user.IsPrivate),
			user.NewNotificationCount,
			user.PasswordResetHash,
			nullTime(user.PasswordResetExpires),
			user.UpdatedAt,
			user.ID,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("user", user.Username)
			}
			return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NotFound("user", user.ID)
		}

		for _, table := range []string{"user_folders", "user_requests", "notifications"} {
			if _, err := u.db.q(ctx).ExecContext(ctx,
				`DELETE FROM `+table+` WHERE user_id = ?`, user.ID); err != nil {
				return fmt.Errorf("sqlite: clearing %s for %s: %w", table, user.ID, err)
			}
		}
		return u.writeChildren(ctx, user)
	})
}

// Delete removes the user; child rows go with it via ON DELETE CASCADE.
func (u *UserDB) Delete(ctx context.Context, id string) error {
	res, err := u.db.q(ctx).ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

// =========================================================================
// INTERNALS
// =========================================================================

func (u *UserDB) getOne(ctx context.Context, where string, arg any, resource, ident string) (*model.User, error) {
	row := u.db.q(ctx).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(resource, ident)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", ident, err)
	}
	if err := u.readChildren(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*model.User, error) {
	var (
		user     model.User
		githubID sql.NullInt64
		expires  sql.NullTime
	)
	err := s.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&githubID,
		&user.IsPrivate,
		&user.NewNotificationCount,
		&user.PasswordResetHash,
		&expires,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if githubID.Valid {
		id := githubID.Int64
		user.GitHubID = &id
	}
	if expires.Valid {
		t := expires.Time
		user.PasswordResetExpires = &t
	}
	return &user, nil
}

func scanUsers(rows *sql.Rows) ([]model.User, error) {
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (u *UserDB) readChildren(ctx context.Context, user *model.User) error {
	q := u.db.q(ctx)

	rows, err := q.QueryContext(ctx,
		`SELECT list, folder_id FROM user_folders WHERE user_id = ? ORDER BY list, position`, user.ID)
	if err != nil {
		return fmt.Errorf("sqlite: reading folders of %s: %w", user.ID, err)
	}
	user.PrivateFolders, user.SharedFolders, user.RecentFolders = nil, nil, nil
	for rows.Next() {
		var list, folderID string
		if err := rows.Scan(&list, &folderID); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite: scanning folder ref: %w", err)
		}
		switch list {
		case listPrivate:
			user.PrivateFolders = append(user.PrivateFolders, folderID)
		case listShared:
			user.SharedFolders = append(user.SharedFolders, folderID)
		case listRecent:
			user.RecentFolders = append(user.RecentFolders, folderID)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.QueryContext(ctx,
		`SELECT direction, other_user_id, folder_id FROM user_requests
		 WHERE user_id = ? ORDER BY direction, position`, user.ID)
	if err != nil {
		return fmt.Errorf("sqlite: reading requests of %s: %w", user.ID, err)
	}
	user.IncomingRequests, user.OutgoingRequests = nil, nil
	for rows.Next() {
		var dir string
		var r model.Request
		if err := rows.Scan(&dir, &r.UserID, &r.FolderID); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite: scanning request: %w", err)
		}
		if dir == dirIncoming {
			user.IncomingRequests = append(user.IncomingRequests, r)
		} else {
			user.OutgoingRequests = append(user.OutgoingRequests, r)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = q.QueryContext(ctx,
		`SELECT actor_id, folder_id, kind, fallback_actor_name, fallback_folder_name, created_at
		 FROM notifications WHERE user_id = ? ORDER BY position`, user.ID)
	if err != nil {
		return fmt.Errorf("sqlite: reading notifications of %s: %w", user.ID, err)
	}
	defer rows.Close()
	user.Notifications = nil
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ActorID, &n.FolderID, &n.Kind,
			&n.FallbackActorName, &n.FallbackFolderName, &n.CreatedAt); err != nil {
			return fmt.Errorf("sqlite: scanning notification: %w", err)
		}
		user.Notifications = append(user.Notifications, n)
	}
	return rows.Err()
}

func (u *UserDB) writeChildren(ctx context.Context, user *model.User) error {
	q := u.db.q(ctx)

	lists := []struct {
		name string
		ids  []string
	}{
		{listPrivate, user.PrivateFolders},
		{listShared, user.SharedFolders},
		{listRecent, user.RecentFolders},
	}
	for _, l := range lists {
		for i, id := range l.ids {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO user_folders (user_id, list, position, folder_id) VALUES (?, ?, ?, ?)`,
				user.ID, l.name, i, id); err != nil {
				return fmt.Errorf("sqlite: writing %s folder ref: %w", l.name, err)
			}
		}
	}

	requests := []struct {
		dir  string
		reqs []model.Request
	}{
		{dirIncoming, user.IncomingRequests},
		{dirOutgoing, user.OutgoingRequests},
	}
	for _, r := range requests {
		for i, req := range r.reqs {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO user_requests (user_id, direction, position, other_user_id, folder_id)
				 VALUES (?, ?, ?, ?, ?)`,
				user.ID, r.dir, i, req.UserID, req.FolderID); err != nil {
				return fmt.Errorf("sqlite: writing request: %w", err)
			}
		}
	}

	for i, n := range user.Notifications {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO notifications (user_id, position, actor_id, folder_id, kind,
			                            fallback_actor_name, fallback_folder_name, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			user.ID, i, n.ActorID, n.FolderID, string(n.Kind),
			n.FallbackActorName, n.FallbackFolderName, n.CreatedAt); err != nil {
			return fmt.Errorf("sqlite: writing notification: %w", err)
		}
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
