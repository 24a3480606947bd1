package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisitFolder(t *testing.T) {
	t.Run("appends new folder", func(t *testing.T) {
		u := &User{}
		u.VisitFolder("a")
		u.VisitFolder("b")
		assert.Equal(t, []string{"a", "b"}, u.RecentFolders)
	})

	t.Run("revisit moves to most recent", func(t *testing.T) {
		u := &User{RecentFolders: []string{"a", "b", "c"}}
		u.VisitFolder("a")
		assert.Equal(t, []string{"b", "c", "a"}, u.RecentFolders)
	})

	t.Run("revisit of last entry keeps a single copy", func(t *testing.T) {
		u := &User{RecentFolders: []string{"a", "b"}}
		u.VisitFolder("b")
		assert.Equal(t, []string{"a", "b"}, u.RecentFolders)
	})

	t.Run("caps at MaxRecentFolders dropping the oldest", func(t *testing.T) {
		u := &User{}
		for i := 0; i < MaxRecentFolders+3; i++ {
			u.VisitFolder(fmt.Sprintf("f%d", i))
		}
		assert.Len(t, u.RecentFolders, MaxRecentFolders)
		assert.Equal(t, "f3", u.RecentFolders[0])
		assert.Equal(t, fmt.Sprintf("f%d", MaxRecentFolders+2), u.RecentFolders[MaxRecentFolders-1])
	})
}

func TestMoveFolderBetweenLists(t *testing.T) {
	u := &User{PrivateFolders: []string{"trip"}}

	assert.True(t, u.MoveFolderToShared("trip"))
	assert.Empty(t, u.PrivateFolders)
	assert.Equal(t, []string{"trip"}, u.SharedFolders)

	// absent from private: no-op
	assert.False(t, u.MoveFolderToShared("trip"))
	assert.Equal(t, []string{"trip"}, u.SharedFolders)

	assert.True(t, u.MoveFolderToPrivate("trip"))
	assert.Equal(t, []string{"trip"}, u.PrivateFolders)
	assert.Empty(t, u.SharedFolders)
}

func TestForgetFolder(t *testing.T) {
	u := &User{
		PrivateFolders: []string{"a"},
		SharedFolders:  []string{"b", "c"},
		RecentFolders:  []string{"c", "a", "b"},
	}
	u.ForgetFolder("b")

	assert.Equal(t, []string{"a"}, u.PrivateFolders)
	assert.Equal(t, []string{"c"}, u.SharedFolders)
	assert.Equal(t, []string{"c", "a"}, u.RecentFolders)
	assert.False(t, u.OwnsFolderRef("b"))
}

func TestRequests(t *testing.T) {
	u := &User{}
	u.AddIncomingRequest("alice", "trip")

	assert.True(t, u.HasIncomingRequest("alice", "trip"))
	assert.False(t, u.HasIncomingRequest("alice", "other"))

	assert.True(t, u.RemoveIncomingRequest("alice", "trip"))
	assert.False(t, u.RemoveIncomingRequest("alice", "trip"), "second removal finds nothing")

	u.AddOutgoingRequest("bob", "trip")
	assert.False(t, u.RemoveOutgoingRequest("carol", "trip"))
	assert.True(t, u.RemoveOutgoingRequest("bob", "trip"))
	assert.Empty(t, u.OutgoingRequests)
}

func TestPushNotification_IncrementsBadge(t *testing.T) {
	u := &User{}
	for i := 1; i <= 3; i++ {
		u.PushNotification(Notification{ActorID: "a", FolderID: "f", Kind: NotifRemovedUser})
		assert.Equal(t, i, u.NewNotificationCount)
	}
	assert.False(t, u.Notifications[0].CreatedAt.IsZero(), "CreatedAt defaults to now")

	u.ResetNotificationCount()
	assert.Zero(t, u.NewNotificationCount)
	assert.Len(t, u.Notifications, 3, "reset keeps the feed")
}

func TestRemoveNotification_MatchesKind(t *testing.T) {
	u := &User{}
	u.PushNotification(Notification{ActorID: "a", FolderID: "f", Kind: NotifRemovedUser})
	u.PushNotification(Notification{ActorID: "a", FolderID: "f", Kind: NotifIncomingRequest})

	assert.True(t, u.RemoveNotification("a", "f", NotifIncomingRequest))
	assert.Len(t, u.Notifications, 1)
	assert.Equal(t, NotifRemovedUser, u.Notifications[0].Kind)

	assert.False(t, u.RemoveNotification("a", "f", NotifIncomingRequest))
}

func TestNotificationIndex(t *testing.T) {
	u := &User{Notifications: []Notification{
		{ActorID: "oldest"}, {ActorID: "middle"}, {ActorID: "newest"},
	}}

	tests := []struct {
		display int
		want    int
		ok      bool
	}{
		{0, 2, true},
		{1, 1, true},
		{2, 0, true},
		{3, 0, false},
		{-1, 0, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("display %d", tt.display), func(t *testing.T) {
			got, ok := u.NotificationIndex(tt.display)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDeleteNotificationAt(t *testing.T) {
	u := &User{Notifications: []Notification{
		{ActorID: "oldest"}, {ActorID: "middle"}, {ActorID: "newest"},
	}}

	assert.True(t, u.DeleteNotificationAt(0))
	assert.Equal(t, "middle", u.Notifications[len(u.Notifications)-1].ActorID)

	assert.False(t, u.DeleteNotificationAt(5))
	assert.Len(t, u.Notifications, 2)
}

func TestPurgeFolderRequests(t *testing.T) {
	u := &User{}
	u.AddIncomingRequest("a", "gone")
	u.AddIncomingRequest("a", "kept")
	u.AddOutgoingRequest("b", "gone")
	u.PushNotification(Notification{ActorID: "a", FolderID: "gone", Kind: NotifIncomingRequest})
	u.PushNotification(Notification{ActorID: "a", FolderID: "gone", Kind: NotifRemovedUser})

	u.PurgeFolderRequests("gone")

	assert.Equal(t, []Request{{UserID: "a", FolderID: "kept"}}, u.IncomingRequests)
	assert.Empty(t, u.OutgoingRequests)
	assert.Len(t, u.Notifications, 1, "history notifications survive")
	assert.Equal(t, NotifRemovedUser, u.Notifications[0].Kind)
}
