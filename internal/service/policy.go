package service

import (
	"fmt"

	"github.com/sakif/tripsync/internal/apperror"
	"github.com/sakif/tripsync/internal/model"
)

// Authorization rules. Every mutating operation calls the relevant check
// before touching any aggregate.

func requireMember(folder *model.Folder, userID string) error {
	if !folder.IsMember(userID) {
		return apperror.Forbidden("You are not a member of this folder")
	}
	return nil
}

func requireUploader(file *model.File, userID string) error {
	if file.UploadedBy != userID {
		return apperror.Forbidden("Only the uploader can modify this file")
	}
	return nil
}

// checkInvite applies the invitation rules in order: shared inviter, no
// self-invite, invitee not yet a member, shared invitee, no duplicate
// pending request.
func checkInvite(inviter, invitee *model.User, folder *model.Folder) error {
	if inviter.IsPrivate {
		return apperror.ValidationFailed("isPrivate", "Private accounts cannot share folders")
	}
	if inviter.ID == invitee.ID {
		return apperror.ValidationFailed("username", "You cannot invite yourself")
	}
	if folder.IsMember(invitee.ID) {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("%s is already a member of this folder", invitee.Username))
	}
	if invitee.IsPrivate {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("%s has a private account", invitee.Username))
	}
	if invitee.HasIncomingRequest(inviter.ID, folder.ID) {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("%s has already been invited to this folder", invitee.Username))
	}
	return nil
}
