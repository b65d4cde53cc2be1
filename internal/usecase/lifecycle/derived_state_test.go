package lifecycle

import (
	"context"
	"testing"
)

func TestRefreshDerivedStateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := ingestNew(t, env, "1")
	if _, err := env.svc.IngestSignal(ctx, signalInput("2", 0.2, addressAt("Coolsingel", 40))); err != nil {
		t.Fatalf("IngestSignal() error = %v", err)
	}

	first, err := env.svc.RefreshDerivedState(ctx, item.ID)
	if err != nil {
		t.Fatalf("RefreshDerivedState() error = %v", err)
	}
	want := "1,2,Coolsingel 40,Sam Jansen,sam@example.org"
	if first.SearchText != want {
		t.Fatalf("search text = %q, want %q", first.SearchText, want)
	}

	second, err := env.svc.RefreshDerivedStateByUUID(ctx, item.UUID)
	if err != nil {
		t.Fatalf("RefreshDerivedStateByUUID() error = %v", err)
	}
	if second.SearchText != first.SearchText {
		t.Fatalf("second refresh = %q, want %q", second.SearchText, first.SearchText)
	}

	got, err := env.reports.GetReport(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if got.SearchText != want {
		t.Fatalf("stored search text = %q, want %q", got.SearchText, want)
	}
}

func TestRefreshDerivedStateFillsMissingReference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := ingestNew(t, env, "1")

	stored, err := env.reports.GetReport(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	stored.ReferenceLocationID = nil
	stored.ThumbnailAttachmentID = nil
	if err := env.reports.UpdateReport(ctx, stored); err != nil {
		t.Fatalf("UpdateReport() error = %v", err)
	}

	state, err := env.svc.RefreshDerivedState(ctx, item.ID)
	if err != nil {
		t.Fatalf("RefreshDerivedState() error = %v", err)
	}
	if state.ReferenceLocationID == nil || *state.ReferenceLocationID != *item.ReferenceLocationID {
		t.Fatalf("reference = %v, want %v", state.ReferenceLocationID, item.ReferenceLocationID)
	}
	if state.ThumbnailID == nil {
		t.Fatalf("thumbnail not filled")
	}
}

func TestRefreshAllDerivedState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ingestNew(t, env, "1")
	if _, err := env.svc.IngestSignal(ctx, signalInput("2", 0.2, addressAt("Blaak", 8))); err != nil {
		t.Fatalf("IngestSignal() error = %v", err)
	}

	n, err := env.svc.RefreshAllDerivedState(ctx)
	if err != nil {
		t.Fatalf("RefreshAllDerivedState() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("RefreshAllDerivedState() = %d, want 2", n)
	}
}

func TestRefreshDerivedStateIncludesSignalLocations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	input := signalInput("9001", 0.2, addressAt("Coolsingel", 40))
	input.Locations = append(input.Locations, addressAt("Blaak", 8))
	result, err := env.svc.IngestSignal(ctx, input)
	if err != nil {
		t.Fatalf("IngestSignal() error = %v", err)
	}

	state, err := env.svc.RefreshDerivedState(ctx, result.Report.ID)
	if err != nil {
		t.Fatalf("RefreshDerivedState() error = %v", err)
	}
	want := "9001,Blaak 8,Coolsingel 40,Sam Jansen,sam@example.org"
	if state.SearchText != want {
		t.Fatalf("search text = %q, want %q", state.SearchText, want)
	}
}
