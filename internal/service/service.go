// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services accept plain values (ids, usernames, bytes) and return domain
// errors from apperror; none of them knows about HTTP.
//
// TRANSACTIONS:
// Most operations touch more than one aggregate. An accepted invite, for
// example, changes the folder, the inviter and the invitee. Each such
// operation loads, mutates and saves everything inside one
// Transactor.InTx call, so it commits or rolls back as a unit. Every
// repository call inside the callback must use the callback's ctx.
//
// OBJECT STORAGE:
// Image objects live outside the database. Deletes never call the store
// while a transaction is open: each file loses its object first and then,
// in its own short transaction, its record. Folder and account records go
// in a final transaction once every file is gone. A failure part way
// leaves the unreached files whole. See imaging.Pipeline.Replace for the
// edit ordering.
package service

import (
	"context"

	"github.com/sakif/tripsync/internal/imaging"
	"github.com/sakif/tripsync/internal/model"
	"github.com/sakif/tripsync/internal/repository"
)

// Stores bundles the repositories the services work against.
type Stores struct {
	Users   repository.UserRepository
	Folders repository.FolderRepository
	Files   repository.FileRepository
	Tx      repository.Transactor
}

// Images is the slice of the image pipeline the services call.
// *imaging.Pipeline satisfies it.
type Images interface {
	Ingest(ctx context.Context, raw []byte, mimeType string) (*imaging.Image, error)
	Replace(ctx context.Context, file *model.File, newRaw []byte, mimeType string, commit func(context.Context) error) (bool, error)
	Delete(ctx context.Context, imageURL string) error
	Download(ctx context.Context, file *model.File) (*imaging.Download, error)
}

var _ Images = (*imaging.Pipeline)(nil)

// Request transition labels for metrics.
const (
	transitionCreated   = "created"
	transitionAccepted  = "accepted"
	transitionDeclined  = "declined"
	transitionCancelled = "cancelled"
)
