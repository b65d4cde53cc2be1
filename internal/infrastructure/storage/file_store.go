package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"morcore/internal/bootstrap/logging"
	"morcore/internal/domain/report"
	"morcore/internal/errs"
	"morcore/internal/ports"
)

// MediaStore keeps attachment files below a media root.
type MediaStore struct {
	root string
}

var _ ports.FileStore = (*MediaStore)(nil)

func NewMediaStore(root string) (*MediaStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("media root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errs.Wrapf(err, "resolve media root %q", root)
	}
	return &MediaStore{root: abs}, nil
}

func (s *MediaStore) Root() string { return s.root }

// Inspect detects the mime type from the file content. The extension is
// ignored.
func (s *MediaStore) Inspect(ctx context.Context, path string) (ports.FileInfo, error) {
	if err := checkContext(ctx); err != nil {
		return ports.FileInfo{}, err
	}
	full, err := s.resolve(path)
	if err != nil {
		return ports.FileInfo{}, err
	}

	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return ports.FileInfo{}, fmt.Errorf("%w: %s", report.ErrAttachmentNotFound, path)
	}
	if err != nil {
		return ports.FileInfo{}, errs.Wrapf(err, "open %q", path)
	}
	defer f.Close()

	detected, err := mimetype.DetectReader(f)
	if err != nil {
		return ports.FileInfo{}, errs.Wrapf(err, "detect mime type of %q", path)
	}
	// Drop parameters such as "; charset=utf-8".
	mimeType := detected.String()
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	info := ports.FileInfo{MimeType: mimeType, IsImage: report.IsImageMimeType(mimeType)}
	logging.Debug(logCtx(ctx), "file inspected", slog.String("path", path), slog.String("mime_type", info.MimeType))
	return info, nil
}

// Remove deletes path. A file that is already gone is not an error.
func (s *MediaStore) Remove(ctx context.Context, path string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.Debug(logCtx(ctx), "file already removed", slog.String("path", path))
			return nil
		}
		return errs.Wrapf(err, "remove %q", path)
	}
	logging.Info(logCtx(ctx), "file removed", slog.String("path", path))
	return nil
}

// resolve keeps paths inside the media root.
func (s *MediaStore) resolve(path string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimSpace(path)))
	if cleaned == "." || cleaned == "" || filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path %q is outside the media root", report.ErrInvalidEvent, path)
	}
	return filepath.Join(s.root, cleaned), nil
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	return nil
}

func logCtx(ctx context.Context) context.Context {
	return logging.WithAttrs(ctx, slog.String("component", "infrastructure.storage"))
}
