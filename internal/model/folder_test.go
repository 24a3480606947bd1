package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFolderMembership_TracksIsShared(t *testing.T) {
	f := &Folder{ID: "trip"}

	f.AddMember("alice")
	assert.False(t, f.IsShared, "one member is private")

	f.AddMember("bob")
	assert.True(t, f.IsShared)

	f.AddMember("bob")
	assert.Len(t, f.MemberIDs, 2, "AddMember is idempotent")

	assert.True(t, f.RemoveMember("alice"))
	assert.False(t, f.IsShared)
	assert.Equal(t, []string{"bob"}, f.MemberIDs)

	assert.False(t, f.RemoveMember("alice"))
}

func TestFolderOtherMembers(t *testing.T) {
	f := &Folder{MemberIDs: []string{"a", "b", "c"}}
	assert.Equal(t, []string{"a", "c"}, f.OtherMembers("b"))
	assert.Equal(t, []string{"a", "b", "c"}, f.OtherMembers("z"))
}

func TestFolderFiles(t *testing.T) {
	f := &Folder{}
	f.AddFile("x")
	f.AddFile("y")
	f.AddFile("x")
	assert.Equal(t, []string{"x", "y"}, f.FileIDs)

	assert.True(t, f.RemoveFile("x"))
	assert.False(t, f.RemoveFile("x"))
	assert.Equal(t, []string{"y"}, f.FileIDs)
}

func TestNotificationKindValid(t *testing.T) {
	assert.True(t, NotifIncomingRequest.Valid())
	assert.True(t, NotifRemovedUser.Valid())
	assert.False(t, NotificationKind("promoted").Valid())
}

func TestNewNotification_SnapshotsNames(t *testing.T) {
	actor := &User{ID: "u1", Username: "alice"}
	folder := &Folder{ID: "f1", Name: "Lisbon 2024"}

	n := NewNotification(NotifAcceptedRequest, actor, folder)

	assert.Equal(t, "u1", n.ActorID)
	assert.Equal(t, "f1", n.FolderID)
	assert.Equal(t, "alice", n.FallbackActorName)
	assert.Equal(t, "Lisbon 2024", n.FallbackFolderName)
	assert.False(t, n.CreatedAt.IsZero())
}
