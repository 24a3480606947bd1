package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/tripsync/internal/apperror"
	"github.com/sakif/tripsync/internal/metrics"
	"github.com/sakif/tripsync/internal/model"
)

// maxPurgeRounds bounds how often purgeThen re-collects files that were
// uploaded while a deletion was under way.
const maxPurgeRounds = 3

// errFilesRemain is returned by record-only clean-up when the folder still
// references files whose objects were never deleted.
var errFilesRemain = errors.New("files remain")

// cascade holds the multi-aggregate clean-up steps shared by leaving a
// folder, deleting a folder and deleting an account. purgeFiles and
// purgeThen manage their own transactions and never run inside one. The
// other methods expect a transaction and save the aggregates they load
// themselves; aggregates passed in by the caller are mutated but not saved.
type cascade struct {
	Stores
	images  Images
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// purgeFiles deletes files one at a time: the object first, then in a short
// transaction the record and the folder's reference to it. It stops at the
// first failure, so every file not yet reached keeps both record and object.
func (c *cascade) purgeFiles(ctx context.Context, files []model.File) error {
	for i := range files {
		f := &files[i]
		if err := c.images.Delete(ctx, f.ImageURL); err != nil {
			return err
		}
		err := c.Tx.InTx(ctx, func(ctx context.Context) error {
			if err := c.Files.Delete(ctx, f.ID); err != nil && !errors.Is(err, apperror.ErrNotFound) {
				return err
			}
			folder, err := c.Folders.GetByID(ctx, f.FolderID)
			if errors.Is(err, apperror.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if !folder.RemoveFile(f.ID) {
				return nil
			}
			return c.Folders.Save(ctx, folder)
		})
		if err != nil {
			return fmt.Errorf("service: deleting file record %s: %w", f.ID, err)
		}
	}
	return nil
}

// purgeThen purges the files collect returns, then runs finish in one
// transaction. When finish reports errFilesRemain, files arrived after
// collect ran and the cycle repeats.
func (c *cascade) purgeThen(ctx context.Context, collect func(context.Context) ([]model.File, error), finish func(context.Context) error) error {
	for round := 1; ; round++ {
		files, err := collect(ctx)
		if err != nil {
			return err
		}
		if err := c.purgeFiles(ctx, files); err != nil {
			return err
		}
		err = c.Tx.InTx(ctx, finish)
		if !errors.Is(err, errFilesRemain) || round == maxPurgeRounds {
			return err
		}
		c.logger.Info("files added during deletion, collecting again", slog.Int("round", round))
	}
}

// deleteFolder removes the folder record, every member's reference to it,
// and every pending request for it. Its files must already be purged;
// otherwise it returns errFilesRemain. IDs with no file record behind them
// go with the folder. held, if not nil, is a member the caller already has
// in memory; it is updated in place instead of being reloaded.
func (c *cascade) deleteFolder(ctx context.Context, folder *model.Folder, held *model.User) error {
	remaining, err := c.Files.FindByIDs(ctx, folder.FileIDs)
	if err != nil {
		return fmt.Errorf("service: loading files of folder %s: %w", folder.ID, err)
	}
	if len(remaining) > 0 {
		return errFilesRemain
	}

	// Members hold the outgoing half of every pending request for the
	// folder; the invitees hold the incoming half.
	invitees := make(map[string]bool)
	collect := func(u *model.User) {
		for _, r := range u.OutgoingRequests {
			if r.FolderID == folder.ID {
				invitees[r.UserID] = true
			}
		}
		u.ForgetFolder(folder.ID)
		u.PurgeFolderRequests(folder.ID)
	}

	members, err := c.Users.FindByIDs(ctx, folder.MemberIDs)
	if err != nil {
		return fmt.Errorf("service: loading members of folder %s: %w", folder.ID, err)
	}
	for i := range members {
		m := &members[i]
		if held != nil && m.ID == held.ID {
			collect(held)
			continue
		}
		collect(m)
		if err := c.Users.Save(ctx, m); err != nil {
			return fmt.Errorf("service: saving member %s: %w", m.ID, err)
		}
	}

	for id := range invitees {
		if held != nil && id == held.ID {
			held.PurgeFolderRequests(folder.ID)
			continue
		}
		invitee, err := c.Users.GetByID(ctx, id)
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("service: loading invitee %s: %w", id, err)
		}
		invitee.PurgeFolderRequests(folder.ID)
		if err := c.Users.Save(ctx, invitee); err != nil {
			return fmt.Errorf("service: saving invitee %s: %w", id, err)
		}
	}

	if err := c.Folders.Delete(ctx, folder.ID); err != nil {
		return fmt.Errorf("service: deleting folder %s: %w", folder.ID, err)
	}
	c.logger.Info("folder deleted",
		slog.String("folderID", folder.ID),
		slog.Int("members", len(members)),
	)
	return nil
}

// detachMember removes leaver from folder and broadcasts a removeUser
// notification to everyone left. When a single member remains the folder
// turns private and that member's reference moves to PrivateFolders. The
// caller saves folder and leaver.
func (c *cascade) detachMember(ctx context.Context, folder *model.Folder, leaver *model.User) error {
	folder.RemoveMember(leaver.ID)
	leaver.ForgetFolder(folder.ID)

	remaining, err := c.Users.FindByIDs(ctx, folder.MemberIDs)
	if err != nil {
		return fmt.Errorf("service: loading members of folder %s: %w", folder.ID, err)
	}
	note := model.NewNotification(model.NotifRemovedUser, leaver, folder)
	for i := range remaining {
		m := &remaining[i]
		if !folder.IsShared {
			m.MoveFolderToPrivate(folder.ID)
		}
		m.PushNotification(note)
		if err := c.Users.Save(ctx, m); err != nil {
			return fmt.Errorf("service: saving member %s: %w", m.ID, err)
		}
		c.metrics.Notification(string(model.NotifRemovedUser))
	}
	return nil
}

// withdrawOutgoing cancels sender's pending invites for folderID, or for
// every folder when folderID is empty. The recipients lose the incoming
// half and the matching invitation notification. Recipients that no
// longer exist are skipped.
func (c *cascade) withdrawOutgoing(ctx context.Context, sender *model.User, folderID string) error {
	kept := sender.OutgoingRequests[:0:0]
	for _, r := range sender.OutgoingRequests {
		if folderID != "" && r.FolderID != folderID {
			kept = append(kept, r)
			continue
		}
		recipient, err := c.Users.GetByID(ctx, r.UserID)
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("service: loading invitee %s: %w", r.UserID, err)
		}
		recipient.RemoveIncomingRequest(sender.ID, r.FolderID)
		recipient.RemoveNotification(sender.ID, r.FolderID, model.NotifIncomingRequest)
		if err := c.Users.Save(ctx, recipient); err != nil {
			return fmt.Errorf("service: saving invitee %s: %w", r.UserID, err)
		}
		c.metrics.RequestTransition(transitionCancelled)
	}
	sender.OutgoingRequests = kept
	return nil
}

// dropIncoming removes the outgoing half of every request addressed to
// recipient, then clears recipient's incoming list.
func (c *cascade) dropIncoming(ctx context.Context, recipient *model.User) error {
	for _, r := range recipient.IncomingRequests {
		sender, err := c.Users.GetByID(ctx, r.UserID)
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("service: loading inviter %s: %w", r.UserID, err)
		}
		if sender.RemoveOutgoingRequest(recipient.ID, r.FolderID) {
			if err := c.Users.Save(ctx, sender); err != nil {
				return fmt.Errorf("service: saving inviter %s: %w", r.UserID, err)
			}
		}
	}
	recipient.IncomingRequests = nil
	return nil
}
