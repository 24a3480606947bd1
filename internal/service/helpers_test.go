package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/tripsync/internal/auth"
	"github.com/sakif/tripsync/internal/imaging"
	"github.com/sakif/tripsync/internal/mail"
	"github.com/sakif/tripsync/internal/metrics"
	"github.com/sakif/tripsync/internal/model"
	"github.com/sakif/tripsync/internal/repository/sqlite"
	"github.com/sakif/tripsync/internal/storage/memstore"
)

// =========================================================================
// TEST HARNESS
// =========================================================================
//
// The services run against a real in-memory SQLite database and an
// in-memory object store. That exercises the transaction boundaries and
// lets tests count object puts and deletes exactly.

const testPassword = "correct-horse"

var testTripDate = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

type harness struct {
	db        *sqlite.DB
	store     *memstore.Store
	mailer    *mail.LogMailer
	metrics   *metrics.Metrics
	passwords *auth.PasswordService

	sharing       *SharingService
	notifications *NotificationService
	folders       *FolderService
	files         *FileService
	accounts      *AccountService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stores := Stores{Users: db.Users(), Folders: db.Folders(), Files: db.Files(), Tx: db}
	store := memstore.New("http://objects.test/trips")
	m := metrics.New()
	images := imaging.New(store, imaging.DefaultConfig(), logger, m)
	tokens, err := auth.NewTokenService("test-secret-0123456789")
	require.NoError(t, err)
	passwords := auth.NewPasswordServiceForTest(4)
	mailer := mail.NewLogMailer(logger)

	return &harness{
		db:            db,
		store:         store,
		mailer:        mailer,
		metrics:       m,
		passwords:     passwords,
		sharing:       NewSharingService(stores, m, logger),
		notifications: NewNotificationService(stores, logger),
		folders:       NewFolderService(stores, images, m, logger),
		files:         NewFileService(stores, images, m, logger),
		accounts:      NewAccountService(stores, images, passwords, tokens, mailer, "http://trips.test", m, logger),
	}
}

// user creates a public account whose password is testPassword.
func (h *harness) user(t *testing.T, name string) *model.User {
	t.Helper()
	hash, err := h.passwords.Hash(testPassword)
	require.NoError(t, err)
	u := &model.User{Username: name, Email: name + "@example.com", PasswordHash: hash}
	require.NoError(t, h.db.Users().Create(context.Background(), u))
	return u
}

func (h *harness) privateUser(t *testing.T, name string) *model.User {
	t.Helper()
	u := h.user(t, name)
	u.IsPrivate = true
	require.NoError(t, h.db.Users().Save(context.Background(), u))
	return u
}

func (h *harness) folder(t *testing.T, owner *model.User, name string) *model.Folder {
	t.Helper()
	f, err := h.folders.Create(context.Background(), owner.ID, name, testTripDate)
	require.NoError(t, err)
	return f
}

// share invites each of others into folder on behalf of inviter and
// accepts on their behalf.
func (h *harness) share(t *testing.T, folder *model.Folder, inviter *model.User, others ...*model.User) {
	t.Helper()
	ctx := context.Background()
	for _, o := range others {
		require.NoError(t, h.sharing.Invite(ctx, inviter.ID, o.Username, folder.ID))
		require.NoError(t, h.sharing.Accept(ctx, o.ID, inviter.ID, folder.ID))
	}
}

func (h *harness) upload(t *testing.T, uploader *model.User, folder *model.Folder, raw []byte) *model.File {
	t.Helper()
	f, err := h.files.Upload(context.Background(), uploader.ID, folder.ID, UploadInput{
		Raw:      raw,
		MimeType: "image/jpeg",
		Title:    "photo",
	})
	require.NoError(t, err)
	return f
}

func (h *harness) reloadUser(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := h.db.Users().GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (h *harness) reloadFolder(t *testing.T, id string) *model.Folder {
	t.Helper()
	f, err := h.db.Folders().GetByID(context.Background(), id)
	require.NoError(t, err)
	return f
}

// failNthDelete makes the nth object delete fail. Every other call goes
// through.
func (h *harness) failNthDelete(n int) {
	calls := 0
	h.store.BeforeDelete = func(string) error {
		calls++
		if calls == n {
			return errors.New("bucket unavailable")
		}
		return nil
	}
}

// fileIntact reports whether f still has its record and its object. It
// fails the test when only one of the two survives.
func (h *harness) fileIntact(t *testing.T, f *model.File) bool {
	t.Helper()
	_, err := h.db.Files().GetByID(context.Background(), f.ID)
	hasRecord := err == nil
	hasObject := h.store.Has(imaging.KeyFromURL(f.ImageURL))
	require.Equal(t, hasRecord, hasObject, "file %s: record=%v object=%v", f.ID, hasRecord, hasObject)
	return hasRecord
}

// photo returns a JPEG whose pixels depend on seed, so different seeds
// give different hashes after transcoding.
func photo(t *testing.T, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x*4) + seed, G: uint8(y*5) ^ seed, B: seed, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}
