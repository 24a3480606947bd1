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

// SharingService runs the invitation workflow for shared folders.
//
// STATE MACHINE (per inviter, invitee, folder):
//
//	NONE ──Invite──▶ PENDING ──Accept──▶ (member)
//	                    │────Decline──▶ NONE
//	                    └────Cancel───▶ NONE
//
// A pending request is three records created and destroyed together: the
// incoming half on the invitee, the outgoing half on the inviter, and an
// incomingRequest notification on the invitee. Terminal transitions erase
// all three; Accept and Decline then leave a notification for the inviter.
type SharingService struct {
	*cascade
}

func NewSharingService(stores Stores, m *metrics.Metrics, logger *slog.Logger) *SharingService {
	return &SharingService{cascade: &cascade{Stores: stores, metrics: m, logger: logger}}
}

// Invite asks the user called inviteeName to join folderID on behalf of
// inviterID, who must be a member.
func (s *SharingService) Invite(ctx context.Context, inviterID, inviteeName, folderID string) error {
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		inviter, err := s.Users.GetByID(ctx, inviterID)
		if err != nil {
			return err
		}
		folder, err := s.Folders.GetByID(ctx, folderID)
		if err != nil {
			return err
		}
		if err := requireMember(folder, inviter.ID); err != nil {
			return err
		}

		invitee, err := s.Users.GetByUsername(ctx, inviteeName)
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.NotFoundMessage(fmt.Sprintf("No user found with username %s", inviteeName))
		}
		if err != nil {
			return err
		}
		if err := checkInvite(inviter, invitee, folder); err != nil {
			return err
		}

		invitee.AddIncomingRequest(inviter.ID, folder.ID)
		inviter.AddOutgoingRequest(invitee.ID, folder.ID)
		invitee.PushNotification(model.NewNotification(model.NotifIncomingRequest, inviter, folder))

		if err := s.Users.Save(ctx, invitee); err != nil {
			return err
		}
		return s.Users.Save(ctx, inviter)
	})
	if err != nil {
		return fmt.Errorf("service: inviting %s to folder %s: %w", inviteeName, folderID, err)
	}

	s.metrics.RequestTransition(transitionCreated)
	s.metrics.Notification(string(model.NotifIncomingRequest))
	s.logger.Info("share request created",
		slog.String("inviterID", inviterID),
		slog.String("invitee", inviteeName),
		slog.String("folderID", folderID),
	)
	return nil
}

// Accept makes recipientID a member of folderID and resolves senderID's
// pending request. The inviter's copy of the folder moves to their shared
// list and they get an acceptIncomingRequest notification.
func (s *SharingService) Accept(ctx context.Context, recipientID, senderID, folderID string) error {
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.loadRequest(ctx, recipientID, senderID, folderID)
		if err != nil {
			return err
		}
		if err := removeRequestAndNotification(p.recipient, p.sender, p.folder.ID); err != nil {
			return err
		}

		p.folder.AddMember(p.recipient.ID)
		p.sender.MoveFolderToShared(p.folder.ID)
		p.recipient.AddSharedFolder(p.folder.ID)
		p.sender.PushNotification(model.NewNotification(model.NotifAcceptedRequest, p.recipient, p.folder))

		if err := s.Folders.Save(ctx, p.folder); err != nil {
			return err
		}
		return p.save(ctx, s.cascade)
	})
	if err != nil {
		return fmt.Errorf("service: accepting request for folder %s: %w", folderID, err)
	}

	s.metrics.RequestTransition(transitionAccepted)
	s.metrics.Notification(string(model.NotifAcceptedRequest))
	s.logger.Info("share request accepted",
		slog.String("recipientID", recipientID),
		slog.String("senderID", senderID),
		slog.String("folderID", folderID),
	)
	return nil
}

// Decline resolves senderID's request without joining and tells the sender.
func (s *SharingService) Decline(ctx context.Context, recipientID, senderID, folderID string) error {
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.loadRequest(ctx, recipientID, senderID, folderID)
		if err != nil {
			return err
		}
		if err := removeRequestAndNotification(p.recipient, p.sender, p.folder.ID); err != nil {
			return err
		}
		p.sender.PushNotification(model.NewNotification(model.NotifDeclinedRequest, p.recipient, p.folder))
		return p.save(ctx, s.cascade)
	})
	if err != nil {
		return fmt.Errorf("service: declining request for folder %s: %w", folderID, err)
	}

	s.metrics.RequestTransition(transitionDeclined)
	s.metrics.Notification(string(model.NotifDeclinedRequest))
	return nil
}

// Cancel withdraws senderID's own request to recipientID. Nobody is
// notified.
func (s *SharingService) Cancel(ctx context.Context, senderID, recipientID, folderID string) error {
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.loadRequest(ctx, recipientID, senderID, folderID)
		if err != nil {
			return err
		}
		if err := removeRequestAndNotification(p.recipient, p.sender, p.folder.ID); err != nil {
			return err
		}
		return p.save(ctx, s.cascade)
	})
	if err != nil {
		return fmt.Errorf("service: cancelling request for folder %s: %w", folderID, err)
	}

	s.metrics.RequestTransition(transitionCancelled)
	return nil
}

// Leave removes userID from folderID. The last member cannot leave; they
// delete the folder instead. The leaver's own pending invites for the
// folder are withdrawn.
func (s *SharingService) Leave(ctx context.Context, userID, folderID string) error {
	err := s.Tx.InTx(ctx, func(ctx context.Context) error {
		user, err := s.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		folder, err := s.Folders.GetByID(ctx, folderID)
		if err != nil {
			return err
		}
		if err := requireMember(folder, user.ID); err != nil {
			return err
		}
		if len(folder.MemberIDs) == 1 {
			return apperror.ValidationFailed("folder",
				"You are the only member of this folder: delete it instead")
		}

		if err := s.withdrawOutgoing(ctx, user, folder.ID); err != nil {
			return err
		}
		if err := s.detachMember(ctx, folder, user); err != nil {
			return err
		}
		if err := s.Folders.Save(ctx, folder); err != nil {
			return err
		}
		return s.Users.Save(ctx, user)
	})
	if err != nil {
		return fmt.Errorf("service: leaving folder %s: %w", folderID, err)
	}

	s.logger.Info("member left folder",
		slog.String("userID", userID),
		slog.String("folderID", folderID),
	)
	return nil
}

// pendingRequest is the set of aggregates one request transition touches.
type pendingRequest struct {
	recipient *model.User
	sender    *model.User
	folder    *model.Folder
}

func (s *SharingService) loadRequest(ctx context.Context, recipientID, senderID, folderID string) (*pendingRequest, error) {
	recipient, err := s.Users.GetByID(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	sender, err := s.Users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	folder, err := s.Folders.GetByID(ctx, folderID)
	if err != nil {
		return nil, err
	}
	return &pendingRequest{recipient: recipient, sender: sender, folder: folder}, nil
}

func (p *pendingRequest) save(ctx context.Context, c *cascade) error {
	if err := c.Users.Save(ctx, p.recipient); err != nil {
		return err
	}
	return c.Users.Save(ctx, p.sender)
}

// removeRequestAndNotification erases a pending request: the incoming half
// on recipient, the outgoing half on sender and the invitation notification
// on recipient. A missing half is ErrNotFound; a missing notification (the
// recipient may have dismissed it) is not an error.
func removeRequestAndNotification(recipient, sender *model.User, folderID string) error {
	if !recipient.RemoveIncomingRequest(sender.ID, folderID) {
		return apperror.NotFoundMessage("Incoming request not found")
	}
	if !sender.RemoveOutgoingRequest(recipient.ID, folderID) {
		return apperror.NotFoundMessage("Outgoing request not found")
	}
	recipient.RemoveNotification(sender.ID, folderID, model.NotifIncomingRequest)
	return nil
}
