// Package model defines the data structures used throughout the application.
//
// The User type is an aggregate: it owns its folder reference lists, its
// pending requests and its notification feed. All mutation of those embedded
// collections goes through methods on *User so the ordering and uniqueness
// rules live in one place and the service layer only orchestrates.
package model

import (
	"slices"
	"time"
)

// MaxRecentFolders bounds User.RecentFolders.
const MaxRecentFolders = 10

// Request is one half of a pending invitation. On the invitee it sits in
// IncomingRequests with UserID = the inviter; on the inviter it sits in
// OutgoingRequests with UserID = the invitee.
type Request struct {
	UserID   string `json:"userId"`
	FolderID string `json:"folderId"`
}

// User represents a registered account.
//
// PasswordHash is empty for accounts created through GitHub sign-in; those
// accounts can set a password later from the settings page.
//
// GitHubID is nil until the account is linked to GitHub.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	GitHubID     *int64 `json:"-"`
	IsPrivate    bool   `json:"isPrivate"`

	// Folder reference lists. RecentFolders is most-recent-last.
	PrivateFolders []string `json:"privateFolders"`
	SharedFolders  []string `json:"sharedFolders"`
	RecentFolders  []string `json:"recentFolders"`

	IncomingRequests []Request `json:"incomingRequests"`
	OutgoingRequests []Request `json:"outgoingRequests"`

	// Notifications are stored oldest-first; the feed shows them reversed.
	Notifications        []Notification `json:"notifications"`
	NewNotificationCount int            `json:"newNotificationCount"`

	PasswordResetHash    string     `json:"-"`
	PasswordResetExpires *time.Time `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// =========================================================================
// FOLDER REFERENCES
// =========================================================================

// AddPrivateFolder appends id to PrivateFolders unless already present.
func (u *User) AddPrivateFolder(id string) {
	if !slices.Contains(u.PrivateFolders, id) {
		u.PrivateFolders = append(u.PrivateFolders, id)
	}
}

// AddSharedFolder appends id to SharedFolders unless already present.
func (u *User) AddSharedFolder(id string) {
	if !slices.Contains(u.SharedFolders, id) {
		u.SharedFolders = append(u.SharedFolders, id)
	}
}

// MoveFolderToShared migrates id from PrivateFolders to SharedFolders.
// It is a no-op when id is not in PrivateFolders.
func (u *User) MoveFolderToShared(id string) bool {
	var ok bool
	if u.PrivateFolders, ok = removeValue(u.PrivateFolders, id); !ok {
		return false
	}
	u.AddSharedFolder(id)
	return true
}

// MoveFolderToPrivate migrates id from SharedFolders to PrivateFolders.
// It is a no-op when id is not in SharedFolders.
func (u *User) MoveFolderToPrivate(id string) bool {
	var ok bool
	if u.SharedFolders, ok = removeValue(u.SharedFolders, id); !ok {
		return false
	}
	u.AddPrivateFolder(id)
	return true
}

// VisitFolder records id as the most recently opened folder. A folder that
// is already in the list is moved to the end, and the oldest entries are
// dropped once the list exceeds MaxRecentFolders.
func (u *User) VisitFolder(id string) {
	u.RecentFolders, _ = removeValue(u.RecentFolders, id)
	u.RecentFolders = append(u.RecentFolders, id)
	if over := len(u.RecentFolders) - MaxRecentFolders; over > 0 {
		u.RecentFolders = slices.Delete(u.RecentFolders, 0, over)
	}
}

// ForgetFolder removes every reference to id from the three folder lists.
func (u *User) ForgetFolder(id string) {
	u.PrivateFolders, _ = removeValue(u.PrivateFolders, id)
	u.SharedFolders, _ = removeValue(u.SharedFolders, id)
	u.RecentFolders, _ = removeValue(u.RecentFolders, id)
}

// OwnsFolderRef reports whether id is in either the private or shared list.
func (u *User) OwnsFolderRef(id string) bool {
	return slices.Contains(u.PrivateFolders, id) || slices.Contains(u.SharedFolders, id)
}

// AllFolders returns private then shared folder ids.
func (u *User) AllFolders() []string {
	out := make([]string, 0, len(u.PrivateFolders)+len(u.SharedFolders))
	out = append(out, u.PrivateFolders...)
	return append(out, u.SharedFolders...)
}

// =========================================================================
// REQUESTS
// =========================================================================

// HasIncomingRequest reports whether from already asked u to join folderID.
func (u *User) HasIncomingRequest(from, folderID string) bool {
	return slices.Contains(u.IncomingRequests, Request{UserID: from, FolderID: folderID})
}

func (u *User) AddIncomingRequest(from, folderID string) {
	u.IncomingRequests = append(u.IncomingRequests, Request{UserID: from, FolderID: folderID})
}

func (u *User) AddOutgoingRequest(to, folderID string) {
	u.OutgoingRequests = append(u.OutgoingRequests, Request{UserID: to, FolderID: folderID})
}

// RemoveIncomingRequest deletes the request from `from` for folderID and
// reports whether one was found.
func (u *User) RemoveIncomingRequest(from, folderID string) bool {
	var ok bool
	u.IncomingRequests, ok = removeValue(u.IncomingRequests, Request{UserID: from, FolderID: folderID})
	return ok
}

// RemoveOutgoingRequest deletes the request to `to` for folderID and reports
// whether one was found.
func (u *User) RemoveOutgoingRequest(to, folderID string) bool {
	var ok bool
	u.OutgoingRequests, ok = removeValue(u.OutgoingRequests, Request{UserID: to, FolderID: folderID})
	return ok
}

// =========================================================================
// NOTIFICATIONS
// =========================================================================

// PushNotification appends n to the feed and bumps the badge counter.
func (u *User) PushNotification(n Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	u.Notifications = append(u.Notifications, n)
	u.NewNotificationCount++
}

// ResetNotificationCount clears the badge. Only the feed view calls this.
func (u *User) ResetNotificationCount() {
	u.NewNotificationCount = 0
}

// RemoveNotification deletes the first notification matching actor, folder
// and kind. It reports whether one was found.
func (u *User) RemoveNotification(actorID, folderID string, kind NotificationKind) bool {
	i := slices.IndexFunc(u.Notifications, func(n Notification) bool {
		return n.ActorID == actorID && n.FolderID == folderID && n.Kind == kind
	})
	if i < 0 {
		return false
	}
	u.Notifications = slices.Delete(u.Notifications, i, i+1)
	return true
}

// NotificationIndex maps a display index (newest-first) onto the storage
// index (oldest-first). ok is false when the display index is out of range.
func (u *User) NotificationIndex(displayIndex int) (int, bool) {
	if displayIndex < 0 || displayIndex >= len(u.Notifications) {
		return 0, false
	}
	return len(u.Notifications) - 1 - displayIndex, true
}

// DeleteNotificationAt removes the notification shown at displayIndex.
func (u *User) DeleteNotificationAt(displayIndex int) bool {
	i, ok := u.NotificationIndex(displayIndex)
	if !ok {
		return false
	}
	u.Notifications = slices.Delete(u.Notifications, i, i+1)
	return true
}

// PurgeFolderRequests drops every pending request half and every pending
// invitation notification that refers to folderID. Used when the folder is
// deleted.
func (u *User) PurgeFolderRequests(folderID string) {
	u.IncomingRequests = slices.DeleteFunc(u.IncomingRequests, func(r Request) bool {
		return r.FolderID == folderID
	})
	u.OutgoingRequests = slices.DeleteFunc(u.OutgoingRequests, func(r Request) bool {
		return r.FolderID == folderID
	})
	u.Notifications = slices.DeleteFunc(u.Notifications, func(n Notification) bool {
		return n.FolderID == folderID && n.Kind == NotifIncomingRequest
	})
}

// removeValue deletes the first occurrence of v and reports whether it was
// present. The returned slice must replace the input.
func removeValue[T comparable](list []T, v T) ([]T, bool) {
	i := slices.Index(list, v)
	if i < 0 {
		return list, false
	}
	return slices.Delete(list, i, i+1), true
}
