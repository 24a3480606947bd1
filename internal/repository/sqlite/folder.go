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

var _ repository.FolderRepository = (*FolderDB)(nil)

// FolderDB stores folders with their ordered member and file lists.
type FolderDB struct {
	db *DB
}

const folderColumns = `id, name, is_shared, trip_date, created_at, updated_at`

func (f *FolderDB) Create(ctx context.Context, folder *model.Folder) error {
	now := time.Now()
	folder.ID = xid.New().String()
	folder.CreatedAt = now
	folder.UpdatedAt = now
	folder.IsShared = len(folder.MemberIDs) > 1

	return f.db.InTx(ctx, func(ctx context.Context) error {
		_, err := f.db.q(ctx).ExecContext(ctx,
			`INSERT INTO folders (`+folderColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			folder.ID,
			folder.Name,
			boolToInt(folder.IsShared),
			folder.TripDate,
			folder.CreatedAt,
			folder.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting folder %q: %w", folder.Name, err)
		}
		return f.writeChildren(ctx, folder)
	})
}

// GetByID returns the folder or apperror.ErrNotFound.
func (f *FolderDB) GetByID(ctx context.Context, id string) (*model.Folder, error) {
	row := f.db.q(ctx).QueryRowContext(ctx,
		`SELECT `+folderColumns+` FROM folders WHERE id = ?`, id)
	folder, err := scanFolder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("folder", id)
		}
		return nil, fmt.Errorf("sqlite: getting folder %s: %w", id, err)
	}
	if err := f.readChildren(ctx, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

// FindByIDs keeps the order of ids, which is the order of the caller's
// folder list. Unknown ids are skipped.
func (f *FolderDB) FindByIDs(ctx context.Context, ids []string, nameFilter string) ([]model.Folder, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := append(stringArgs(ids), likePattern(nameFilter))
	rows, err := f.db.q(ctx).QueryContext(ctx,
		`SELECT `+folderColumns+` FROM folders
		 WHERE id IN (`+placeholders(len(ids))+`) AND name LIKE ? ESCAPE '\'`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding folders: %w", err)
	}

	byID := make(map[string]*model.Folder, len(ids))
	for rows.Next() {
		folder, err := scanFolder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning folder: %w", err)
		}
		byID[folder.ID] = folder
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.Folder, 0, len(byID))
	for _, id := range ids {
		folder, ok := byID[id]
		if !ok {
			continue
		}
		if err := f.readChildren(ctx, folder); err != nil {
			return nil, err
		}
		out = append(out, *folder)
		delete(byID, id) // duplicate ids appear once
	}
	return out, nil
}

// Save rewrites the folder row and its member and file lists.
func (f *FolderDB) Save(ctx context.Context, folder *model.Folder) error {
	folder.UpdatedAt = time.Now()
	folder.IsShared = len(folder.MemberIDs) > 1

	return f.db.InTx(ctx, func(ctx context.Context) error {
		res, err := f.db.q(ctx).ExecContext(ctx,
			`UPDATE folders SET name = ?, is_shared = ?, trip_date = ?, updated_at = ? WHERE id = ?`,
			folder.Name,
			boolToInt(folder.IsShared),
			folder.TripDate,
			folder.UpdatedAt,
			folder.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating folder %s: %w", folder.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NotFound("folder", folder.ID)
		}
		for _, table := range []string{"folder_members", "folder_files"} {
			if _, err := f.db.q(ctx).ExecContext(ctx,
				`DELETE FROM `+table+` WHERE folder_id = ?`, folder.ID); err != nil {
				return fmt.Errorf("sqlite: clearing %s for %s: %w", table, folder.ID, err)
			}
		}
		return f.writeChildren(ctx, folder)
	})
}

func (f *FolderDB) Delete(ctx context.Context, id string) error {
	res, err := f.db.q(ctx).ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting folder %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("folder", id)
	}
	return nil
}

func scanFolder(s scanner) (*model.Folder, error) {
	var folder model.Folder
	err := s.Scan(
		&folder.ID,
		&folder.Name,
		&folder.IsShared,
		&folder.TripDate,
		&folder.CreatedAt,
		&folder.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

func (f *FolderDB) readChildren(ctx context.Context, folder *model.Folder) error {
	members, err := f.readIDs(ctx,
		`SELECT user_id FROM folder_members WHERE folder_id = ? ORDER BY position`, folder.ID)
	if err != nil {
		return fmt.Errorf("sqlite: reading members of %s: %w", folder.ID, err)
	}
	files, err := f.readIDs(ctx,
		`SELECT file_id FROM folder_files WHERE folder_id = ? ORDER BY position`, folder.ID)
	if err != nil {
		return fmt.Errorf("sqlite: reading files of %s: %w", folder.ID, err)
	}
	folder.MemberIDs, folder.FileIDs = members, files
	return nil
}

func (f *FolderDB) readIDs(ctx context.Context, query, id string) ([]string, error) {
	rows, err := f.db.q(ctx).QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		ids = append(ids, v)
	}
	return ids, rows.Err()
}

func (f *FolderDB) writeChildren(ctx context.Context, folder *model.Folder) error {
	for i, userID := range folder.MemberIDs {
		if _, err := f.db.q(ctx).ExecContext(ctx,
			`INSERT INTO folder_members (folder_id, position, user_id) VALUES (?, ?, ?)`,
			folder.ID, i, userID); err != nil {
			return fmt.Errorf("sqlite: writing member of %s: %w", folder.ID, err)
		}
	}
	for i, fileID := range folder.FileIDs {
		if _, err := f.db.q(ctx).ExecContext(ctx,
			`INSERT INTO folder_files (folder_id, position, file_id) VALUES (?, ?, ?)`,
			folder.ID, i, fileID); err != nil {
			return fmt.Errorf("sqlite: writing file ref of %s: %w", folder.ID, err)
		}
	}
	return nil
}
