package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/tripsync/internal/apperror"
	"github.com/sakif/tripsync/internal/imaging"
	"github.com/sakif/tripsync/internal/metrics"
	"github.com/sakif/tripsync/internal/model"
)

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 2000
)

// UploadInput is a new image plus its optional metadata.
type UploadInput struct {
	Raw         []byte
	MimeType    string
	Title       string
	Description string
	TripDate    time.Time // zero means the upload time
}

// EditInput changes a file's metadata and, when Raw is not empty, its image.
type EditInput struct {
	Title       string
	Description string
	TripDate    time.Time // zero keeps the current date
	Raw         []byte
	MimeType    string
}

// FileService manages the images inside a folder. Members may upload and
// download; only the uploader may edit or delete.
type FileService struct {
	*cascade
}

func NewFileService(stores Stores, images Images, m *metrics.Metrics, logger *slog.Logger) *FileService {
	return &FileService{cascade: &cascade{Stores: stores, images: images, metrics: m, logger: logger}}
}

// Upload stores a new image in folderID. The object is written before the
// record; if the record cannot be committed the object is removed again.
func (s *FileService) Upload(ctx context.Context, userID, folderID string, in UploadInput) (*model.File, error) {
	if err := validateFileMeta(in.Title, in.Description); err != nil {
		return nil, err
	}

	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: uploading to folder %s: %w", folderID, err)
	}
	folder, err := s.Folders.GetByID(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("service: uploading to folder %s: %w", folderID, err)
	}
	if err := requireMember(folder, user.ID); err != nil {
		return nil, err
	}

	img, err := s.images.Ingest(ctx, in.Raw, in.MimeType)
	if err != nil {
		return nil, err
	}

	file := &model.File{
		FolderID:       folderID,
		ImageURL:       img.URL,
		ImageHash:      img.Hash,
		UploadedBy:     user.ID,
		UploadedByName: user.Username,
		Title:          strings.TrimSpace(in.Title),
		Description:    strings.TrimSpace(in.Description),
		TripDate:       in.TripDate,
	}
	err = s.Tx.InTx(ctx, func(ctx context.Context) error {
		// Reload: membership may have changed while the image was processed.
		folder, err := s.Folders.GetByID(ctx, folderID)
		if err != nil {
			return err
		}
		if err := requireMember(folder, user.ID); err != nil {
			return err
		}
		if err := s.Files.Create(ctx, file); err != nil {
			return err
		}
		folder.AddFile(file.ID)
		return s.Folders.Save(ctx, folder)
	})
	if err != nil {
		if delErr := s.images.Delete(ctx, img.URL); delErr != nil {
			s.logger.Warn("orphaned upload",
				slog.String("key", img.Key),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("service: saving upload to folder %s: %w", folderID, err)
	}

	s.logger.Info("file uploaded",
		slog.String("fileID", file.ID),
		slog.String("folderID", folderID),
		slog.String("hash", file.ImageHash),
	)
	return file, nil
}

// Edit updates the metadata of fileID and optionally replaces its image.
// A replacement with identical content (same hash) only saves metadata.
func (s *FileService) Edit(ctx context.Context, userID, folderID, fileID string, in EditInput) (*model.File, error) {
	if err := validateFileMeta(in.Title, in.Description); err != nil {
		return nil, err
	}

	file, err := s.authorizeFile(ctx, userID, folderID, fileID, true)
	if err != nil {
		return nil, err
	}

	file.Title = strings.TrimSpace(in.Title)
	file.Description = strings.TrimSpace(in.Description)
	if !in.TripDate.IsZero() {
		file.TripDate = in.TripDate
	}

	save := func(ctx context.Context) error { return s.Files.Save(ctx, file) }

	if len(in.Raw) > 0 {
		replaced, err := s.images.Replace(ctx, file, in.Raw, in.MimeType, save)
		if err != nil {
			return nil, fmt.Errorf("service: replacing image of file %s: %w", fileID, err)
		}
		if replaced {
			return file, nil
		}
	}
	if err := save(ctx); err != nil {
		return nil, fmt.Errorf("service: saving file %s: %w", fileID, err)
	}
	return file, nil
}

// Delete removes fileID and its image object.
func (s *FileService) Delete(ctx context.Context, userID, folderID, fileID string) error {
	file, err := s.authorizeFile(ctx, userID, folderID, fileID, true)
	if err != nil {
		return fmt.Errorf("service: deleting file %s: %w", fileID, err)
	}
	if err := s.purgeFiles(ctx, []model.File{*file}); err != nil {
		return fmt.Errorf("service: deleting file %s: %w", fileID, err)
	}
	return nil
}

// Download opens the image of fileID for any member of its folder.
func (s *FileService) Download(ctx context.Context, userID, folderID, fileID string) (*imaging.Download, error) {
	file, err := s.authorizeFile(ctx, userID, folderID, fileID, false)
	if err != nil {
		return nil, err
	}
	return s.images.Download(ctx, file)
}

// authorizeFile loads fileID, checks it lives in folderID, that userID is
// a member there and, when uploaderOnly is set, that userID uploaded it.
func (s *FileService) authorizeFile(ctx context.Context, userID, folderID, fileID string, uploaderOnly bool) (*model.File, error) {
	file, err := s.Files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.FolderID != folderID {
		return nil, apperror.NotFound("file", fileID)
	}
	folder, err := s.Folders.GetByID(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(folder, userID); err != nil {
		return nil, err
	}
	if uploaderOnly {
		if err := requireUploader(file, userID); err != nil {
			return nil, err
		}
	}
	return file, nil
}

func validateFileMeta(title, description string) error {
	if len([]rune(strings.TrimSpace(title))) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("Title must be at most %d characters", MaxTitleLength))
	}
	if len([]rune(strings.TrimSpace(description))) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("Description must be at most %d characters", MaxDescriptionLength))
	}
	return nil
}
