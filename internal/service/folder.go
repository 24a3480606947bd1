package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/sakif/tripsync/internal/apperror"
	"github.com/sakif/tripsync/internal/metrics"
	"github.com/sakif/tripsync/internal/model"
)

const MaxFolderNameLength = 100

// Scope selects which of a user's folder lists to show.
type Scope string

const (
	ScopeAll     Scope = "all"
	ScopePrivate Scope = "private"
	ScopeShared  Scope = "shared"
	ScopeRecent  Scope = "recent"
)

// ParseScope maps a query value onto a Scope. An empty value is ScopeAll.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopePrivate, ScopeShared, ScopeRecent:
		return Scope(s), nil
	}
	return "", apperror.ValidationFailed("scope", fmt.Sprintf("Unknown folder scope %q", s))
}

// MemberView is a folder member as the folder page shows them.
type MemberView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// FolderPage is everything the folder view needs.
type FolderPage struct {
	Folder  *model.Folder `json:"folder"`
	Files   []model.File  `json:"files"`
	Members []MemberView  `json:"members"`
}

// FolderService manages trip folders. Membership changes go through
// SharingService; this service creates, shows, renames and deletes.
type FolderService struct {
	*cascade
}

func NewFolderService(stores Stores, images Images, m *metrics.Metrics, logger *slog.Logger) *FolderService {
	return &FolderService{cascade: &cascade{Stores: stores, images: images, metrics: m, logger: logger}}
}

// Create makes a private folder with userID as its only member. A zero
// tripDate defaults to now.
func (s *FolderService) Create(ctx context.Context, userID, name string, tripDate time.Time) (*model.Folder, error) {
	name, err := validateFolderName(name)
	if err != nil {
		return nil, err
	}
	if tripDate.IsZero() {
		tripDate = time.Now()
	}

	folder := &model.Folder{Name: name, MemberIDs: []string{userID}, TripDate: tripDate}
	err = s.Tx.InTx(ctx, func(ctx context.Context) error {
		user, err := s.Users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if err := s.Folders.Create(ctx, folder); err != nil {
			return err
		}
		user.AddPrivateFolder(folder.ID)
		return s.Users.Save(ctx, user)
	})
	if err != nil {
		return nil, fmt.Errorf("service: creating folder %q: %w", name, err)
	}

	s.logger.Info("folder created",
		slog.String("folderID", folder.ID),
		slog.String("userID", userID),
	)
	return folder, nil
}

// Get opens folderID for userID. Opening records the folder in the user's
// recent list and repairs stale uploader names on the files.
func (s *FolderService) Get(ctx context.Context, userID, folderID string) (*FolderPage, error) {
	var page *FolderPage
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

		files, err := s.Files.FindByIDs(ctx, folder.FileIDs)
		if err != nil {
			return err
		}
		members, err := s.Users.FindByIDs(ctx, folder.MemberIDs)
		if err != nil {
			return err
		}
		if err := s.repairUploaderNames(ctx, files); err != nil {
			return err
		}

		user.VisitFolder(folder.ID)
		if err := s.Users.Save(ctx, user); err != nil {
			return err
		}

		page = &FolderPage{Folder: folder, Files: files, Members: memberViews(folder, members)}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service: opening folder %s: %w", folderID, err)
	}
	return page, nil
}

// List returns userID's folders in scope whose name contains nameFilter.
// The recent scope is most recent first.
func (s *FolderService) List(ctx context.Context, userID string, scope Scope, nameFilter string) ([]model.Folder, error) {
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: listing folders: %w", err)
	}

	var ids []string
	switch scope {
	case ScopePrivate:
		ids = user.PrivateFolders
	case ScopeShared:
		ids = user.SharedFolders
	case ScopeRecent:
		ids = slices.Clone(user.RecentFolders)
		slices.Reverse(ids)
	default:
		ids = user.AllFolders()
	}

	folders, err := s.Folders.FindByIDs(ctx, ids, strings.TrimSpace(nameFilter))
	if err != nil {
		return nil, fmt.Errorf("service: listing folders of %s: %w", userID, err)
	}
	return folders, nil
}

// Update renames folderID and, when tripDate is not zero, moves its trip
// date. Any member may do this.
func (s *FolderService) Update(ctx context.Context, userID, folderID, name string, tripDate time.Time) (*model.Folder, error) {
	name, err := validateFolderName(name)
	if err != nil {
		return nil, err
	}

	var folder *model.Folder
	err = s.Tx.InTx(ctx, func(ctx context.Context) error {
		f, err := s.Folders.GetByID(ctx, folderID)
		if err != nil {
			return err
		}
		if err := requireMember(f, userID); err != nil {
			return err
		}
		f.Name = name
		if !tripDate.IsZero() {
			f.TripDate = tripDate
		}
		folder = f
		return s.Folders.Save(ctx, f)
	})
	if err != nil {
		return nil, fmt.Errorf("service: updating folder %s: %w", folderID, err)
	}
	return folder, nil
}

// Delete destroys folderID with all its files and image objects. Any
// member may delete a folder. Objects are deleted outside the transaction
// that removes the folder record.
func (s *FolderService) Delete(ctx context.Context, userID, folderID string) error {
	load := func(ctx context.Context) (*model.Folder, error) {
		folder, err := s.Folders.GetByID(ctx, folderID)
		if err != nil {
			return nil, err
		}
		if err := requireMember(folder, userID); err != nil {
			return nil, err
		}
		return folder, nil
	}

	err := s.purgeThen(ctx, func(ctx context.Context) ([]model.File, error) {
		folder, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return s.Files.FindByIDs(ctx, folder.FileIDs)
	}, func(ctx context.Context) error {
		folder, err := load(ctx)
		if err != nil {
			return err
		}
		return s.deleteFolder(ctx, folder, nil)
	})
	if err != nil {
		return fmt.Errorf("service: deleting folder %s: %w", folderID, err)
	}
	return nil
}

// repairUploaderNames rewrites UploadedByName on files whose uploader has
// since renamed themselves.
func (s *FolderService) repairUploaderNames(ctx context.Context, files []model.File) error {
	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.UploadedBy)
	}
	uploaders, err := s.Users.FindByIDs(ctx, dedupe(ids))
	if err != nil {
		return err
	}
	names := make(map[string]string, len(uploaders))
	for _, u := range uploaders {
		names[u.ID] = u.Username
	}

	for i := range files {
		f := &files[i]
		current, ok := names[f.UploadedBy]
		if !ok || current == f.UploadedByName {
			continue
		}
		f.UploadedByName = current
		if err := s.Files.Save(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// memberViews keeps the folder's member order.
func memberViews(folder *model.Folder, members []model.User) []MemberView {
	byID := make(map[string]string, len(members))
	for _, m := range members {
		byID[m.ID] = m.Username
	}
	out := make([]MemberView, 0, len(folder.MemberIDs))
	for _, id := range folder.MemberIDs {
		if name, ok := byID[id]; ok {
			out = append(out, MemberView{ID: id, Username: name})
		}
	}
	return out
}

func validateFolderName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed("folderName", "Folder name is required")
	}
	if len([]rune(name)) > MaxFolderNameLength {
		return "", apperror.ValidationFailed("folderName",
			fmt.Sprintf("Folder name must be at most %d characters", MaxFolderNameLength))
	}
	return name, nil
}
