// Package repository declares the persistence contracts the services depend on.
//
// Aggregates are loaded and saved whole: Save on a user rewrites its folder
// lists, requests and notifications together. Multi-aggregate changes (an
// accepted invite touches two users and a folder) run inside Transactor.InTx
// so they commit or roll back as one.
package repository

import (
	"context"

	"github.com/sakif/tripsync/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	// GetByResetHash finds the account holding an unexpired reset token hash.
	GetByResetHash(ctx context.Context, hash string) (*model.User, error)
	// FindByIDs returns the users that still exist, in no particular order.
	FindByIDs(ctx context.Context, ids []string) ([]model.User, error)
	// Search matches public accounts whose username contains query
	// (case-insensitive), excluding excludeID. Results carry profile fields
	// only, not the embedded collections.
	Search(ctx context.Context, query, excludeID string) ([]model.User, error)
	Save(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id string) error
}

type FolderRepository interface {
	Create(ctx context.Context, folder *model.Folder) error
	GetByID(ctx context.Context, id string) (*model.Folder, error)
	// FindByIDs returns the folders among ids whose name contains
	// nameFilter (case-insensitive, "" matches all), in the order of ids.
	FindByIDs(ctx context.Context, ids []string, nameFilter string) ([]model.Folder, error)
	Save(ctx context.Context, folder *model.Folder) error
	Delete(ctx context.Context, id string) error
}

type FileRepository interface {
	Create(ctx context.Context, file *model.File) error
	GetByID(ctx context.Context, id string) (*model.File, error)
	// FindByIDs returns the files among ids in the order of ids.
	FindByIDs(ctx context.Context, ids []string) ([]model.File, error)
	FindByFolderAndUploader(ctx context.Context, folderID, uploaderID string) ([]model.File, error)
	Save(ctx context.Context, file *model.File) error
	Delete(ctx context.Context, id string) error
}

// Transactor runs fn in a single database transaction. Repository calls
// made with the ctx passed to fn join that transaction. Nested calls reuse
// the outer transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
