package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/tripsync/internal/apperror"
	"github.com/sakif/tripsync/internal/model"
	"github.com/sakif/tripsync/internal/repository"
)

var _ repository.FileRepository = (*FileDB)(nil)

// FileDB stores image file records. The folder's ordered file list lives in
// folder_files and is maintained through FolderDB.Save.
type FileDB struct {
	db *DB
}

const fileColumns = `id, folder_id, image_url, image_hash, uploaded_by, uploaded_by_name,
	title, description, upload_date, trip_date, updated_at`

// Create assigns ID, UploadDate and UpdatedAt. A zero TripDate defaults to
// the upload date.
func (f *FileDB) Create(ctx context.Context, file *model.File) error {
	now := time.Now()
	file.ID = xid.New().String()
	file.UploadDate = now
	file.UpdatedAt = now
	if file.TripDate.IsZero() {
		file.TripDate = now
	}

	_, err := f.db.q(ctx).ExecContext(ctx,
		`INSERT INTO files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID,
		file.FolderID,
		file.ImageURL,
		file.ImageHash,
		file.UploadedBy,
		file.UploadedByName,
		file.Title,
		file.Description,
		file.UploadDate,
		file.TripDate,
		file.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting file in folder %s: %w", file.FolderID, err)
	}
	return nil
}

func (f *FileDB) GetByID(ctx context.Context, id string) (*model.File, error) {
	row := f.db.q(ctx).QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("file", id)
		}
		return nil, fmt.Errorf("sqlite: getting file %s: %w", id, err)
	}
	return file, nil
}

func (f *FileDB) FindByIDs(ctx context.Context, ids []string) ([]model.File, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := f.db.q(ctx).QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id IN (`+placeholders(len(ids))+`)`,
		stringArgs(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding files: %w", err)
	}
	files, err := scanFiles(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.File, len(files))
	for _, file := range files {
		byID[file.ID] = file
	}
	out := make([]model.File, 0, len(files))
	for _, id := range ids {
		if file, ok := byID[id]; ok {
			out = append(out, file)
			delete(byID, id)
		}
	}
	return out, nil
}

func (f *FileDB) FindByFolderAndUploader(ctx context.Context, folderID, uploaderID string) ([]model.File, error) {
	rows, err := f.db.q(ctx).QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files
		 WHERE folder_id = ? AND uploaded_by = ?
		 ORDER BY upload_date`,
		folderID, uploaderID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding files of %s in %s: %w", uploaderID, folderID, err)
	}
	return scanFiles(rows)
}

func (f *FileDB) Save(ctx context.Context, file *model.File) error {
	file.UpdatedAt = time.Now()
	res, err := f.db.q(ctx).ExecContext(ctx,
		`UPDATE files SET image_url = ?, image_hash = ?, uploaded_by_name = ?, title = ?,
		        description = ?, trip_date = ?, updated_at = ?
		 WHERE id = ?`,
		file.ImageURL,
		file.ImageHash,
		file.UploadedByName,
		file.Title,
		file.Description,
		file.TripDate,
		file.UpdatedAt,
		file.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating file %s: %w", file.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("file", file.ID)
	}
	return nil
}

func (f *FileDB) Delete(ctx context.Context, id string) error {
	res, err := f.db.q(ctx).ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting file %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("file", id)
	}
	return nil
}

func scanFile(s scanner) (*model.File, error) {
	var file model.File
	err := s.Scan(
		&file.ID,
		&file.FolderID,
		&file.ImageURL,
		&file.ImageHash,
		&file.UploadedBy,
		&file.UploadedByName,
		&file.Title,
		&file.Description,
		&file.UploadDate,
		&file.TripDate,
		&file.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func scanFiles(rows *sql.Rows) ([]model.File, error) {
	defer rows.Close()
	var files []model.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning file: %w", err)
		}
		files = append(files, *file)
	}
	return files, rows.Err()
}
