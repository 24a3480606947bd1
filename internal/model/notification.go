package model

import "time"

// NotificationKind identifies what happened. The string values are stored
// in the database, so they must not change.
type NotificationKind string

const (
	NotifIncomingRequest NotificationKind = "incomingRequest"
	NotifAcceptedRequest NotificationKind = "acceptIncomingRequest"
	NotifDeclinedRequest NotificationKind = "declineIncomingRequest"
	NotifRemovedUser     NotificationKind = "removeUser"
)

func (k NotificationKind) Valid() bool {
	switch k {
	case NotifIncomingRequest, NotifAcceptedRequest, NotifDeclinedRequest, NotifRemovedUser:
		return true
	}
	return false
}

// Notification is one entry of a user's activity feed.
//
// ActorID and FolderID may point at records that no longer exist by the time
// the feed is rendered. The Fallback fields are snapshots taken when the
// notification was created and are shown in that case.
type Notification struct {
	ActorID            string           `json:"actorId"`
	FolderID           string           `json:"folderId"`
	Kind               NotificationKind `json:"kind"`
	FallbackActorName  string           `json:"fallbackActorName"`
	FallbackFolderName string           `json:"fallbackFolderName"`
	CreatedAt          time.Time        `json:"createdAt"`
}

// NewNotification builds a notification with name snapshots of actor and
// folder.
func NewNotification(kind NotificationKind, actor *User, folder *Folder) Notification {
	return Notification{
		ActorID:            actor.ID,
		FolderID:           folder.ID,
		Kind:               kind,
		FallbackActorName:  actor.Username,
		FallbackFolderName: folder.Name,
		CreatedAt:          time.Now(),
	}
}
