package report

import "testing"

func TestParseOwnerKind(t *testing.T) {
	for _, owner := range []AttachmentOwner{ReportOwner(1), SignalOwner(2), ReportEventOwner(3), TaskEventOwner(4)} {
		kind, err := ParseOwnerKind(string(owner.Kind))
		if err != nil {
			t.Fatalf("ParseOwnerKind(%q) error = %v", owner.Kind, err)
		}
		if kind != owner.Kind {
			t.Fatalf("ParseOwnerKind() = %q, want %q", kind, owner.Kind)
		}
	}
	if _, err := ParseOwnerKind("user"); err == nil {
		t.Fatalf("ParseOwnerKind(user) expected error")
	}
}

func TestCollectFilePaths(t *testing.T) {
	attachments := []Attachment{
		{File: "attachments/a.jpg", Image: "attachments/a.webp", ImageThumb: "attachments/a_thumb.webp"},
		{File: "attachments/b.pdf"},
		{File: "attachments/a.jpg"},
	}

	got := CollectFilePaths(attachments)
	if len(got) != 4 {
		t.Fatalf("CollectFilePaths() = %v, want 4 unique paths", got)
	}
}

func TestSelectThumbnailPrefersLastImage(t *testing.T) {
	attachments := []Attachment{
		{ID: 1, IsImage: true},
		{ID: 2, IsImage: true},
		{ID: 3},
	}
	got, ok := SelectThumbnail(attachments)
	if !ok || got.ID != 2 {
		t.Fatalf("SelectThumbnail() = %d, %v, want 2", got.ID, ok)
	}

	if _, ok := SelectThumbnail(nil); ok {
		t.Fatalf("SelectThumbnail(nil) ok = true")
	}
}
