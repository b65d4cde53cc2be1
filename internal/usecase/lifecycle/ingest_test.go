package lifecycle

import (
	"context"
	"errors"
	"testing"

	"morcore/internal/domain/report"
	"morcore/internal/ports"
)

func TestIngestSignalCreatesOpenReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	input := signalInput("1001", 0, addressAt("Coolsingel", 40))
	input.Urgency = nil
	result, err := env.svc.IngestSignal(ctx, input)
	if err != nil {
		t.Fatalf("IngestSignal() error = %v", err)
	}
	if !result.Created || result.Duplicate || result.Replayed {
		t.Fatalf("IngestSignal() result flags = %+v", result)
	}

	got, err := env.reports.GetReport(ctx, result.Report.ID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if got.CurrentStatusName() != report.StatusOpen {
		t.Fatalf("status = %q, want open", got.CurrentStatusName())
	}
	if got.Urgency != 0.2 {
		t.Fatalf("urgency = %v, want 0.2", got.Urgency)
	}
	if got.ReferenceLocationID == nil || got.ThumbnailAttachmentID == nil {
		t.Fatalf("reference = %v thumbnail = %v, want both set", got.ReferenceLocationID, got.ThumbnailAttachmentID)
	}

	types := eventTypes(t, env, got.ID)
	if len(types) != 1 || types[0] != report.EventReportCreated {
		t.Fatalf("events = %v, want [report_created]", types)
	}

	locations, err := env.reports.ListLocations(ctx, got.ID)
	if err != nil {
		t.Fatalf("ListLocations() error = %v", err)
	}
	if len(locations) != 1 || locations[0].Weight != 0.25 || !locations[0].Primary {
		t.Fatalf("locations = %+v, want one primary location with weight 0.25", locations)
	}

	if calls := env.dispatcher.Calls(); len(calls) != 1 || calls[0] != "report_created" {
		t.Fatalf("dispatcher calls = %v", calls)
	}
}

func TestIngestSignalAttachesDuplicateAndRaisesUrgency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := ingestNew(t, env, "2001")

	result, err := env.svc.IngestSignal(ctx, signalInput("2002", 0.8, addressAt("Coolsingel", 40)))
	if err != nil {
		t.Fatalf("IngestSignal() error = %v", err)
	}
	if !result.Duplicate || result.Report.ID != first.ID {
		t.Fatalf("IngestSignal() = %+v, want duplicate of report %d", result, first.ID)
	}
	if result.Report.Urgency != 0.8 {
		t.Fatalf("urgency = %v, want 0.8", result.Report.Urgency)
	}
	if result.Event.Type != report.EventSignalAttached {
		t.Fatalf("event type = %q, want signal_attached", result.Event.Type)
	}

	all, err := env.svc.ListReports(ctx, ports.ReportFilter{})
	if err != nil {
		t.Fatalf("ListReports() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len(ListReports()) = %d, want 1", len(all))
	}

	signals, err := env.reports.ListSignals(ctx, first.ID)
	if err != nil {
		t.Fatalf("ListSignals() error = %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("len(signals) = %d, want 2", len(signals))
	}
}

func TestIngestSignalNeverLowersUrgency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.IngestSignal(ctx, signalInput("3001", 0.7, addressAt("Coolsingel", 40)))
	if err != nil {
		t.Fatalf("IngestSignal() error = %v", err)
	}
	second, err := env.svc.IngestSignal(ctx, signalInput("3002", 0.2, addressAt("Coolsingel", 40)))
	if err != nil {
		t.Fatalf("IngestSignal() error = %v", err)
	}
	if second.Report.ID != first.Report.ID {
		t.Fatalf("second signal created report %d, want attach to %d", second.Report.ID, first.Report.ID)
	}
	if second.Report.Urgency != 0.7 {
		t.Fatalf("urgency = %v, want 0.7", second.Report.Urgency)
	}
	if second.Event.Urgency != nil {
		t.Fatalf("event urgency = %v, want nil when not raised", *second.Event.Urgency)
	}
}

func TestIngestSignalDifferentLocationCreatesNewReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := ingestNew(t, env, "4001")

	result, err := env.svc.IngestSignal(ctx, signalInput("4002", 0.2, addressAt("Blaak", 8)))
	if err != nil {
		t.Fatalf("IngestSignal() error = %v", err)
	}
	if !result.Created || result.Report.ID == first.ID {
		t.Fatalf("IngestSignal() = %+v, want new report", result)
	}
}

func TestIngestSignalSkipsClosedReports(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := ingestNew(t, env, "5001")

	if _, err := env.svc.ChangeStatus(ctx, ChangeStatusInput{ReportUUID: first.UUID, Status: report.StatusClosed}); err != nil {
		t.Fatalf("ChangeStatus() error = %v", err)
	}
	result, err := env.svc.IngestSignal(ctx, signalInput("5002", 0.2, addressAt("Coolsingel", 40)))
	if err != nil {
		t.Fatalf("IngestSignal() error = %v", err)
	}
	if !result.Created {
		t.Fatalf("IngestSignal() = %+v, want new report after close", result)
	}
}

func TestIngestSignalRedeliveryIsReplayed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := ingestNew(t, env, "6001")

	result, err := env.svc.IngestSignal(ctx, signalInput("6001", 0.9, addressAt("Coolsingel", 40)))
	if err != nil {
		t.Fatalf("IngestSignal() error = %v", err)
	}
	if !result.Replayed || result.Report.ID != first.ID {
		t.Fatalf("IngestSignal() = %+v, want replay of report %d", result, first.ID)
	}
	if result.Report.Urgency != 0.2 {
		t.Fatalf("urgency = %v, want unchanged 0.2", result.Report.Urgency)
	}
	if types := eventTypes(t, env, first.ID); len(types) != 1 {
		t.Fatalf("events = %v, want only report_created", types)
	}
}

func TestIngestSignalHighPrioritySubjectRaisesInitialUrgency(t *testing.T) {
	env := newTestEnv(t, WithSubjectCatalog(stubCatalog{
		testSubject: {URL: testSubject, Name: "Pothole", Priority: "HIGH"},
	}))

	result, err := env.svc.IngestSignal(context.Background(), signalInput("7001", 0.2, addressAt("Coolsingel", 40)))
	if err != nil {
		t.Fatalf("IngestSignal() error = %v", err)
	}
	if result.Report.Urgency != 0.5 {
		t.Fatalf("urgency = %v, want 0.5", result.Report.Urgency)
	}
}

func TestIngestSignalCatalogFailureKeepsSignalUrgency(t *testing.T) {
	env := newTestEnv(t, WithSubjectCatalog(stubCatalog{}))

	result, err := env.svc.IngestSignal(context.Background(), signalInput("7101", 0.3, addressAt("Coolsingel", 40)))
	if err != nil {
		t.Fatalf("IngestSignal() error = %v", err)
	}
	if result.Report.Urgency != 0.3 {
		t.Fatalf("urgency = %v, want 0.3", result.Report.Urgency)
	}
}

func TestIngestSignalValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	missing := signalInput("", 0.2, addressAt("Coolsingel", 40))
	if _, err := env.svc.IngestSignal(ctx, missing); !errors.Is(err, report.ErrInvalidSignal) {
		t.Fatalf("IngestSignal() error = %v, want ErrInvalidSignal", err)
	}

	urgent := signalInput("8001", 1.5, addressAt("Coolsingel", 40))
	if _, err := env.svc.IngestSignal(ctx, urgent); !errors.Is(err, report.ErrInvalidUrgency) {
		t.Fatalf("IngestSignal() error = %v, want ErrInvalidUrgency", err)
	}

	badLocation := signalInput("8002", 0.2, report.Location{Type: "moon"})
	if _, err := env.svc.IngestSignal(ctx, badLocation); !errors.Is(err, report.ErrInvalidLocation) {
		t.Fatalf("IngestSignal() error = %v, want ErrInvalidLocation", err)
	}
}

func TestIngestSignalSanitizesDescription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	input := signalInput("9001", 0.2, addressAt("Coolsingel", 40))
	input.Description = `<script>alert(1)</script>Broken <b>tile</b>`
	result, err := env.svc.IngestSignal(ctx, input)
	if err != nil {
		t.Fatalf("IngestSignal() error = %v", err)
	}
	if result.Signal.Description != "Broken tile" {
		t.Fatalf("description = %q, want %q", result.Signal.Description, "Broken tile")
	}
}

func TestResolveDuplicateDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.svc.cfg.DedupEnabled = false
	ctx := context.Background()
	ingestNew(t, env, "9101")

	match, err := env.svc.ResolveDuplicate(ctx, SignalCandidate{
		Subjects:  []string{testSubject},
		Locations: []report.Location{addressAt("Coolsingel", 40)},
	})
	if err != nil {
		t.Fatalf("ResolveDuplicate() error = %v", err)
	}
	if match != nil {
		t.Fatalf("ResolveDuplicate() = %+v, want nil when disabled", match)
	}
}

func TestResolveDuplicateCustomPolicy(t *testing.T) {
	env := newTestEnv(t, WithMatchPolicy(report.MatchPolicyFunc(func(signal, candidate report.Candidate) bool {
		return signal.Subject == candidate.Subject
	})))
	ctx := context.Background()
	first := ingestNew(t, env, "9201")

	match, err := env.svc.ResolveDuplicate(ctx, SignalCandidate{
		Subjects:  []string{testSubject},
		Locations: []report.Location{addressAt("Blaak", 8)},
	})
	if err != nil {
		t.Fatalf("ResolveDuplicate() error = %v", err)
	}
	if match == nil || match.ID != first.ID {
		t.Fatalf("ResolveDuplicate() = %+v, want report %d", match, first.ID)
	}
}

func TestIngestSignalPointOnlySignalsDeduplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	point := report.Location{Type: report.LocationPoint, Lat: floatPtr(51.9225), Lon: floatPtr(4.4792)}

	first, err := env.svc.IngestSignal(ctx, signalInput("8001", 0.2, point))
	if err != nil {
		t.Fatalf("IngestSignal() error = %v", err)
	}
	if !first.Created {
		t.Fatalf("first IngestSignal() = %+v, want created", first)
	}
	if first.Report.ReferenceLocationID != nil {
		t.Fatalf("reference location = %v, want none for a point", *first.Report.ReferenceLocationID)
	}

	second, err := env.svc.IngestSignal(ctx, signalInput("8002", 0.2, point))
	if err != nil {
		t.Fatalf("IngestSignal() error = %v", err)
	}
	if second.Created || !second.Duplicate || second.Report.ID != first.Report.ID {
		t.Fatalf("second IngestSignal() = %+v, want duplicate of report %d", second, first.Report.ID)
	}

	locations, err := env.reports.ListLocations(ctx, first.Report.ID)
	if err != nil {
		t.Fatalf("ListLocations() error = %v", err)
	}
	if len(locations) != 1 || locations[0].Type != report.LocationPoint || !locations[0].Primary {
		t.Fatalf("report locations = %+v, want one primary point", locations)
	}
}

func TestAttachOrCreateOpensNewReportWhenMatchClosed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := ingestNew(t, env, "9101")

	signal, err := env.svc.buildSignal(signalInput("9102", 0.4, addressAt("Coolsingel", 40)))
	if err != nil {
		t.Fatalf("buildSignal() error = %v", err)
	}
	stored, err := env.reports.CreateSignal(ctx, signal)
	if err != nil {
		t.Fatalf("CreateSignal() error = %v", err)
	}
	// Matched while open, closed before the attach ran.
	if err := env.reports.LinkSignal(ctx, stored.ID, first.ID); err != nil {
		t.Fatalf("LinkSignal() error = %v", err)
	}
	if _, err := env.svc.ChangeStatus(ctx, ChangeStatusInput{ReportUUID: first.UUID, Status: report.StatusClosed}); err != nil {
		t.Fatalf("ChangeStatus() error = %v", err)
	}

	result, err := env.svc.AttachOrCreate(ctx, stored.UUID)
	if err != nil {
		t.Fatalf("AttachOrCreate() error = %v", err)
	}
	if !result.Created || result.Duplicate || result.Report.ID == first.ID {
		t.Fatalf("AttachOrCreate() = %+v, want a new report", result)
	}
	if result.Signal.ReportID == nil || *result.Signal.ReportID != result.Report.ID {
		t.Fatalf("signal report = %v, want %d", result.Signal.ReportID, result.Report.ID)
	}
	if types := eventTypes(t, env, first.ID); countType(types, report.EventSignalAttached) != 0 {
		t.Fatalf("closed report events = %v, want no signal attached", types)
	}
}
