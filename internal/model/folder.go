package model

import (
	"slices"
	"time"
)

// Folder is a trip folder. A folder is shared exactly when it has more than
// one member; AddMember and RemoveMember keep IsShared in step.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"folderName"`
	IsShared  bool      `json:"isShared"`
	MemberIDs []string  `json:"users"`
	FileIDs   []string  `json:"tripFiles"`
	TripDate  time.Time `json:"tripDate"`
	CreatedAt time.Time `json:"createdAtDate"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (f *Folder) IsMember(userID string) bool {
	return slices.Contains(f.MemberIDs, userID)
}

// AddMember appends userID unless already a member.
func (f *Folder) AddMember(userID string) {
	if !f.IsMember(userID) {
		f.MemberIDs = append(f.MemberIDs, userID)
	}
	f.syncShared()
}

// RemoveMember drops userID and reports whether it was a member.
func (f *Folder) RemoveMember(userID string) bool {
	var ok bool
	f.MemberIDs, ok = removeValue(f.MemberIDs, userID)
	f.syncShared()
	return ok
}

// OtherMembers returns every member except userID.
func (f *Folder) OtherMembers(userID string) []string {
	out := make([]string, 0, len(f.MemberIDs))
	for _, id := range f.MemberIDs {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}

func (f *Folder) AddFile(fileID string) {
	if !slices.Contains(f.FileIDs, fileID) {
		f.FileIDs = append(f.FileIDs, fileID)
	}
}

func (f *Folder) RemoveFile(fileID string) bool {
	var ok bool
	f.FileIDs, ok = removeValue(f.FileIDs, fileID)
	return ok
}

func (f *Folder) syncShared() {
	f.IsShared = len(f.MemberIDs) > 1
}
