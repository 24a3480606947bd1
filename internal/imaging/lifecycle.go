package imaging

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"unicode"

	"github.com/sakif/tripsync/internal/apperror"
	"github.com/sakif/tripsync/internal/metrics"
	"github.com/sakif/tripsync/internal/model"
)

const (
	msgDownload = "Error downloading file"
	msgDelete   = "Error deleting file"
)

// Replace swaps the image behind file for newRaw.
//
// ORDERING:
//  1. transcode + hash; identical hash → return (false, nil), nothing stored
//  2. put the new object
//  3. point file at it and call commit to persist the record
//  4. delete the old object
//
// If commit fails the new object is removed and file is restored, so the
// record never points at a missing object. A failed delete in step 4 only
// leaks the old object; it is logged and the replace still succeeds.
func (p *Pipeline) Replace(ctx context.Context, file *model.File, newRaw []byte, mimeType string, commit func(context.Context) error) (bool, error) {
	if err := checkUpload(newRaw, mimeType); err != nil {
		return false, err
	}

	encoded, err := p.Transcode(newRaw)
	if err != nil {
		p.metrics.ImageOp("replace", metrics.ResultError)
		return false, apperror.IO(msgCannotProcess, err)
	}
	hash := Hash(encoded)
	if hash == file.ImageHash {
		p.metrics.ImageOp("replace", metrics.ResultUnchanged)
		return false, nil
	}

	img, err := p.put(ctx, encoded, hash)
	if err != nil {
		p.metrics.ImageOp("replace", metrics.ResultError)
		return false, err
	}

	oldURL, oldHash := file.ImageURL, file.ImageHash
	file.ImageURL, file.ImageHash = img.URL, img.Hash

	if err := commit(ctx); err != nil {
		file.ImageURL, file.ImageHash = oldURL, oldHash
		if delErr := p.store.Delete(ctx, img.Key); delErr != nil {
			p.logger.Warn("orphaned replacement image",
				slog.String("key", img.Key),
				slog.String("error", delErr.Error()),
			)
		}
		p.metrics.ImageOp("replace", metrics.ResultError)
		return false, err
	}

	if key := KeyFromURL(oldURL); key != "" {
		if err := p.store.Delete(ctx, key); err != nil {
			p.logger.Warn("old image not deleted after replace",
				slog.String("key", key),
				slog.String("fileID", file.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	p.metrics.ImageOp("replace", metrics.ResultOK)
	return true, nil
}

// Delete removes the object behind imageURL. The key is the last path
// segment of the URL. An empty URL is a no-op.
func (p *Pipeline) Delete(ctx context.Context, imageURL string) error {
	key := KeyFromURL(imageURL)
	if key == "" {
		return nil
	}
	if err := p.store.Delete(ctx, key); err != nil {
		p.metrics.ImageOp("delete", metrics.ResultError)
		return apperror.IO(msgDelete, err)
	}
	p.metrics.ImageOp("delete", metrics.ResultOK)
	p.logger.Info("image deleted", slog.String("key", key))
	return nil
}

// Download is an open image ready to be streamed to a client.
type Download struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
	Filename    string
}

// Download opens the object behind file. Every backend failure, missing
// objects included, surfaces as the same generic ErrIO.
func (p *Pipeline) Download(ctx context.Context, file *model.File) (*Download, error) {
	key := KeyFromURL(file.ImageURL)
	if key == "" {
		p.metrics.ImageOp("download", metrics.ResultError)
		return nil, apperror.IO(msgDownload, nil)
	}
	obj, err := p.store.Get(ctx, key)
	if err != nil {
		p.metrics.ImageOp("download", metrics.ResultError)
		return nil, apperror.IO(msgDownload, err)
	}
	p.metrics.ImageOp("download", metrics.ResultOK)

	ct := obj.ContentType
	if ct == "" {
		ct = contentType
	}
	return &Download{
		Body:        obj.Body,
		ContentType: ct,
		Size:        obj.Size,
		Filename:    downloadName(file.Title, key),
	}, nil
}

// KeyFromURL returns the trailing path segment of an object URL, or "" if
// there is none.
func KeyFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// downloadName turns a free-text title into a safe attachment filename.
func downloadName(title, key string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return key
	}
	return b.String() + ".jpg"
}
