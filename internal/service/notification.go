package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sakif/tripsync/internal/apperror"
	"github.com/sakif/tripsync/internal/model"
)

// MaxDisplayNameLength is how many characters of a username or folder name
// the activity feed shows before cutting to an ellipsis.
const MaxDisplayNameLength = 16

// RequestView is a pending request resolved for display. UserID is the
// counterpart: the inviter for incoming requests, the invitee for
// outgoing ones.
type RequestView struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	FolderID   string `json:"folderId"`
	FolderName string `json:"folderName"`
}

// NotificationView is one rendered feed entry. Index is the display index
// the delete endpoint expects.
type NotificationView struct {
	Index     int                    `json:"index"`
	Kind      model.NotificationKind `json:"kind"`
	Message   string                 `json:"message"`
	Age       string                 `json:"age"`
	CreatedAt time.Time              `json:"createdAt"`
}

// ActivityCenter is the feed page. Every list is newest first.
type ActivityCenter struct {
	User          *model.User        `json:"user"`
	Incoming      []RequestView      `json:"incomingRequests"`
	Outgoing      []RequestView      `json:"outgoingRequests"`
	Notifications []NotificationView `json:"notifications"`
}

type NotificationService struct {
	stores Stores
	logger *slog.Logger
	now    func() time.Time
}

func NewNotificationService(stores Stores, logger *slog.Logger) *NotificationService {
	return &NotificationService{stores: stores, logger: logger, now: time.Now}
}

// ActivityCenter builds the feed for userID and resets the badge counter.
//
// Actors and folders are looked up live so renames show up; when one has
// been deleted the notification falls back to the names captured when it
// was created. Requests whose counterpart or folder is gone are skipped.
func (s *NotificationService) ActivityCenter(ctx context.Context, userID string) (*ActivityCenter, error) {
	var page *ActivityCenter
	err := s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		user, err := s.stores.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}

		names, err := s.resolveNames(ctx, user)
		if err != nil {
			return err
		}

		page = &ActivityCenter{
			User:          user,
			Incoming:      names.requests(user.IncomingRequests),
			Outgoing:      names.requests(user.OutgoingRequests),
			Notifications: make([]NotificationView, 0, len(user.Notifications)),
		}
		now := s.now()
		for display := range user.Notifications {
			n := user.Notifications[len(user.Notifications)-1-display]
			msg, ok := notificationMessage(n.Kind, names.actor(n), names.folder(n))
			if !ok {
				s.logger.Warn("skipping notification of unknown kind",
					slog.String("userID", user.ID),
					slog.String("kind", string(n.Kind)),
				)
				continue
			}
			page.Notifications = append(page.Notifications, NotificationView{
				Index:     display,
				Kind:      n.Kind,
				Message:   msg,
				Age:       humanize.RelTime(n.CreatedAt, now, "ago", "from now"),
				CreatedAt: n.CreatedAt,
			})
		}

		user.ResetNotificationCount()
		return s.stores.Users.Save(ctx, user)
	})
	if err != nil {
		return nil, fmt.Errorf("service: loading activity center for %s: %w", userID, err)
	}
	return page, nil
}

// Delete removes the notification shown at displayIndex (0 = newest).
func (s *NotificationService) Delete(ctx context.Context, userID string, displayIndex int) error {
	err := s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		user, err := s.stores.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if !user.DeleteNotificationAt(displayIndex) {
			return apperror.ValidationFailed("index", "Invalid notification index")
		}
		return s.stores.Users.Save(ctx, user)
	})
	if err != nil {
		return fmt.Errorf("service: deleting notification %d of %s: %w", displayIndex, userID, err)
	}
	return nil
}

// displayNames holds the live names of every user and folder a feed
// refers to.
type displayNames struct {
	users   map[string]string
	folders map[string]string
}

func (s *NotificationService) resolveNames(ctx context.Context, user *model.User) (*displayNames, error) {
	userIDs := make([]string, 0)
	folderIDs := make([]string, 0)
	for _, r := range user.IncomingRequests {
		userIDs, folderIDs = append(userIDs, r.UserID), append(folderIDs, r.FolderID)
	}
	for _, r := range user.OutgoingRequests {
		userIDs, folderIDs = append(userIDs, r.UserID), append(folderIDs, r.FolderID)
	}
	for _, n := range user.Notifications {
		userIDs, folderIDs = append(userIDs, n.ActorID), append(folderIDs, n.FolderID)
	}

	users, err := s.stores.Users.FindByIDs(ctx, dedupe(userIDs))
	if err != nil {
		return nil, err
	}
	folders, err := s.stores.Folders.FindByIDs(ctx, dedupe(folderIDs), "")
	if err != nil {
		return nil, err
	}

	names := &displayNames{
		users:   make(map[string]string, len(users)),
		folders: make(map[string]string, len(folders)),
	}
	for _, u := range users {
		names.users[u.ID] = u.Username
	}
	for _, f := range folders {
		names.folders[f.ID] = f.Name
	}
	return names, nil
}

func (d *displayNames) actor(n model.Notification) string {
	if name, ok := d.users[n.ActorID]; ok {
		return shorten(name, MaxDisplayNameLength)
	}
	return shorten(n.FallbackActorName, MaxDisplayNameLength)
}

func (d *displayNames) folder(n model.Notification) string {
	if name, ok := d.folders[n.FolderID]; ok {
		return shorten(name, MaxDisplayNameLength)
	}
	return shorten(n.FallbackFolderName, MaxDisplayNameLength)
}

// requests resolves reqs newest first, dropping any whose user or folder
// no longer exists. Names are shortened like notification text.
func (d *displayNames) requests(reqs []model.Request) []RequestView {
	out := make([]RequestView, 0, len(reqs))
	for i := len(reqs) - 1; i >= 0; i-- {
		r := reqs[i]
		username, okUser := d.users[r.UserID]
		folderName, okFolder := d.folders[r.FolderID]
		if !okUser || !okFolder {
			continue
		}
		out = append(out, RequestView{
			UserID:     r.UserID,
			Username:   shorten(username, MaxDisplayNameLength),
			FolderID:   r.FolderID,
			FolderName: shorten(folderName, MaxDisplayNameLength),
		})
	}
	return out
}

func notificationMessage(kind model.NotificationKind, actor, folder string) (string, bool) {
	switch kind {
	case model.NotifIncomingRequest:
		return fmt.Sprintf("%s invited you to join: %s", actor, folder), true
	case model.NotifRemovedUser:
		return fmt.Sprintf("%s left shared folder: %s", actor, folder), true
	case model.NotifAcceptedRequest:
		return fmt.Sprintf("%s has joined %s", actor, folder), true
	case model.NotifDeclinedRequest:
		return fmt.Sprintf("%s declined to join %s", actor, folder), true
	}
	return "", false
}

// shorten cuts s to limit characters followed by "...".
func shorten(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
