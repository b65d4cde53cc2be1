package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type OwnerKind string

const (
	OwnerReport      OwnerKind = "report"
	OwnerSignal      OwnerKind = "signal"
	OwnerReportEvent OwnerKind = "report_event"
	OwnerTaskEvent   OwnerKind = "task_event"
)

var ownerKinds = map[OwnerKind]struct{}{
	OwnerReport:      {},
	OwnerSignal:      {},
	OwnerReportEvent: {},
	OwnerTaskEvent:   {},
}

// AttachmentOwner identifies the single entity an attachment belongs to.
type AttachmentOwner struct {
	Kind OwnerKind
	ID   uint64
}

func ReportOwner(id uint64) AttachmentOwner      { return AttachmentOwner{Kind: OwnerReport, ID: id} }
func SignalOwner(id uint64) AttachmentOwner      { return AttachmentOwner{Kind: OwnerSignal, ID: id} }
func ReportEventOwner(id uint64) AttachmentOwner { return AttachmentOwner{Kind: OwnerReportEvent, ID: id} }
func TaskEventOwner(id uint64) AttachmentOwner   { return AttachmentOwner{Kind: OwnerTaskEvent, ID: id} }

// ParseOwnerKind maps a stored tag back to a kind.
func ParseOwnerKind(raw string) (OwnerKind, error) {
	kind := OwnerKind(raw)
	if _, ok := ownerKinds[kind]; !ok {
		return "", fmt.Errorf("unknown attachment owner kind %q", raw)
	}
	return kind, nil
}

func (o AttachmentOwner) String() string {
	return fmt.Sprintf("%s:%d", o.Kind, o.ID)
}

type Attachment struct {
	ID         uint64
	UUID       uuid.UUID
	Owner      AttachmentOwner
	File       string
	Image      string
	ImageThumb string
	MimeType   string
	IsImage    bool
	CreatedAt  time.Time
}

// FilePaths lists the stored file and its generated derivatives.
func (a Attachment) FilePaths() []string {
	paths := make([]string, 0, 3)
	for _, p := range []string{a.File, a.Image, a.ImageThumb} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

// CollectFilePaths flattens and deduplicates the files of all attachments.
func CollectFilePaths(attachments []Attachment) []string {
	seen := make(map[string]struct{}, len(attachments)*3)
	out := make([]string, 0, len(attachments)*3)
	for _, a := range attachments {
		for _, p := range a.FilePaths() {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// SelectThumbnail picks the last attachment, preferring images.
func SelectThumbnail(attachments []Attachment) (Attachment, bool) {
	if len(attachments) == 0 {
		return Attachment{}, false
	}
	for i := len(attachments) - 1; i >= 0; i-- {
		if attachments[i].IsImage {
			return attachments[i], true
		}
	}
	return attachments[len(attachments)-1], true
}

// IsImageMimeType reports whether attachments of this type get image
// renditions. HEIC counts even though browsers cannot show it directly.
func IsImageMimeType(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}
