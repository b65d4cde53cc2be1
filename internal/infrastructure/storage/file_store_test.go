package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"morcore/internal/domain/report"
)

func writeFile(t *testing.T, root string, rel string, content []byte) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestMediaStoreInspect(t *testing.T) {
	root := t.TempDir()
	store, err := NewMediaStore(root)
	if err != nil {
		t.Fatalf("NewMediaStore() error = %v", err)
	}
	writeFile(t, root, "signals/1/photo.bin", append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...))
	writeFile(t, root, "signals/1/report.pdf", []byte("%PDF-1.7\n"))
	writeFile(t, root, "signals/1/notes.txt", []byte("broken tile near the entrance"))
	writeFile(t, root, "signals/1/upload.jpg", []byte("not really a photo"))
	writeFile(t, root, "signals/1/clip", append([]byte("GIF89a"), make([]byte, 16)...))

	tests := []struct {
		path    string
		mime    string
		isImage bool
	}{
		{path: "signals/1/photo.bin", mime: "image/png", isImage: true},
		{path: "signals/1/report.pdf", mime: "application/pdf"},
		{path: "signals/1/notes.txt", mime: "text/plain"},
		{path: "signals/1/upload.jpg", mime: "text/plain"},
		{path: "signals/1/clip", mime: "image/gif", isImage: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			info, err := store.Inspect(context.Background(), tt.path)
			if err != nil {
				t.Fatalf("Inspect() error = %v", err)
			}
			if info.MimeType != tt.mime || info.IsImage != tt.isImage {
				t.Fatalf("Inspect() = %+v, want %s image=%v", info, tt.mime, tt.isImage)
			}
		})
	}

	if _, err := store.Inspect(context.Background(), "signals/1/missing.jpg"); !errors.Is(err, report.ErrAttachmentNotFound) {
		t.Fatalf("Inspect(missing) error = %v", err)
	}
}

func TestMediaStoreRemove(t *testing.T) {
	root := t.TempDir()
	store, err := NewMediaStore(root)
	if err != nil {
		t.Fatalf("NewMediaStore() error = %v", err)
	}
	writeFile(t, root, "reports/2/photo.jpg", []byte("x"))

	if err := store.Remove(context.Background(), "reports/2/photo.jpg"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "reports", "2", "photo.jpg")); !os.IsNotExist(err) {
		t.Fatalf("file still present: %v", err)
	}
	if err := store.Remove(context.Background(), "reports/2/photo.jpg"); err != nil {
		t.Fatalf("Remove() twice error = %v", err)
	}
}

func TestMediaStoreRejectsEscapingPaths(t *testing.T) {
	store, err := NewMediaStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewMediaStore() error = %v", err)
	}
	for _, path := range []string{"../etc/passwd", "/etc/passwd", "", "a/../../b"} {
		if err := store.Remove(context.Background(), path); err == nil {
			t.Fatalf("Remove(%q) error = nil", path)
		}
	}
}

func TestNewMediaStoreRequiresRoot(t *testing.T) {
	if _, err := NewMediaStore(" "); err == nil {
		t.Fatalf("NewMediaStore() error = nil")
	}
}
