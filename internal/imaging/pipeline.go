// Package imaging turns uploaded photos into stored, content-hashed JPEGs.
//
// PIPELINE:
//
//	raw upload → decode (jpeg/png/gif/webp) → downscale → JPEG q=10 → SHA-256 → object store
//
// Re-encoding drops every metadata segment (EXIF, GPS, XMP), so two uploads
// that differ only in metadata produce identical bytes and the same hash.
// The hash is what Replace compares to skip no-op edits.
package imaging

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"strings"

	// Decoders register themselves with image.Decode.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/dustin/go-humanize"
	"github.com/nfnt/resize"
	"github.com/rs/xid"

	"github.com/sakif/tripsync/internal/apperror"
	"github.com/sakif/tripsync/internal/metrics"
	"github.com/sakif/tripsync/internal/storage"
)

const (
	DefaultQuality      = 10
	DefaultMaxDimension = 2048

	contentType = "image/jpeg"

	msgNoFile        = "No file uploaded"
	msgNotImage      = "Only image files can be uploaded"
	msgCannotProcess = "Cannot process upload"
)

// Config tunes the transcoder.
type Config struct {
	Quality      int  // JPEG quality, 1..100
	MaxDimension uint // longest edge after downscaling; 0 disables it
}

func DefaultConfig() Config {
	return Config{Quality: DefaultQuality, MaxDimension: DefaultMaxDimension}
}

// Image describes a stored, transcoded upload.
type Image struct {
	Key  string
	URL  string
	Hash string
	Size int
}

// Pipeline is safe for concurrent use; it holds no per-request state.
type Pipeline struct {
	store   storage.ObjectStore
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(store storage.ObjectStore, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	if cfg.Quality < 1 || cfg.Quality > 100 {
		cfg.Quality = DefaultQuality
	}
	return &Pipeline{store: store, cfg: cfg, logger: logger, metrics: m}
}

// Ingest validates, transcodes, hashes and stores a new upload.
//
// Errors:
//   - ErrValidation "No file uploaded" for an empty body
//   - ErrValidation when the declared type is not an image
//   - ErrIO "Cannot process upload" when decoding, encoding or storing fails
func (p *Pipeline) Ingest(ctx context.Context, raw []byte, mimeType string) (*Image, error) {
	if err := checkUpload(raw, mimeType); err != nil {
		return nil, err
	}

	img, err := p.transcodeAndPut(ctx, raw)
	if err != nil {
		p.metrics.ImageOp("ingest", metrics.ResultError)
		return nil, err
	}
	p.metrics.ImageOp("ingest", metrics.ResultOK)
	return img, nil
}

// Transcode decodes raw, downsizes it and re-encodes it as JPEG.
func (p *Pipeline) Transcode(raw []byte) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("imaging: decoding: %w", err)
	}

	if limit := p.cfg.MaxDimension; limit > 0 {
		b := src.Bounds()
		if uint(b.Dx()) > limit || uint(b.Dy()) > limit {
			// Thumbnail keeps the aspect ratio and fits inside limit×limit.
			src = resize.Thumbnail(limit, limit, src, resize.Lanczos3)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: p.cfg.Quality}); err != nil {
		return nil, fmt.Errorf("imaging: encoding %s as jpeg: %w", format, err)
	}
	return buf.Bytes(), nil
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// transcodeAndPut transcodes raw and writes it under a fresh time-ordered key.
func (p *Pipeline) transcodeAndPut(ctx context.Context, raw []byte) (*Image, error) {
	encoded, err := p.Transcode(raw)
	if err != nil {
		return nil, apperror.IO(msgCannotProcess, err)
	}
	return p.put(ctx, encoded, Hash(encoded))
}

func (p *Pipeline) put(ctx context.Context, encoded []byte, hash string) (*Image, error) {
	key := xid.New().String() + ".jpg"
	url, err := p.store.Put(ctx, key, encoded, contentType)
	if err != nil {
		return nil, apperror.IO(msgCannotProcess, err)
	}
	p.metrics.ImageStored(len(encoded))
	p.logger.Info("image stored",
		slog.String("key", key),
		slog.String("size", humanize.Bytes(uint64(len(encoded)))),
	)
	return &Image{Key: key, URL: url, Hash: hash, Size: len(encoded)}, nil
}

func checkUpload(raw []byte, mimeType string) error {
	if len(raw) == 0 {
		return apperror.ValidationFailed("image", msgNoFile)
	}
	if mimeType != "" && !strings.HasPrefix(mimeType, "image/") {
		return apperror.ValidationFailed("image", msgNotImage)
	}
	return nil
}
