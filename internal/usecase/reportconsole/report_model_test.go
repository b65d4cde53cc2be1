package reportconsole

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"morcore/internal/domain/report"
	"morcore/internal/ports"
	"morcore/internal/usecase/lifecycle"
)

type stubService struct {
	reports      []report.Report
	lastFilter   ports.ReportFilter
	statusInput  *lifecycle.ChangeStatusInput
	urgencyInput *lifecycle.ChangeUrgencyInput
	err          error
}

func (s *stubService) ListReports(_ context.Context, filter ports.ReportFilter) ([]report.Report, error) {
	s.lastFilter = filter
	return s.reports, s.err
}

func (s *stubService) GetReport(_ context.Context, reportUUID uuid.UUID) (lifecycle.ReportDetail, error) {
	for _, item := range s.reports {
		if item.UUID == reportUUID {
			return lifecycle.ReportDetail{Report: item}, nil
		}
	}
	return lifecycle.ReportDetail{}, report.ErrReportNotFound
}

func (s *stubService) ChangeStatus(_ context.Context, input lifecycle.ChangeStatusInput) (report.Report, error) {
	s.statusInput = &input
	if s.err != nil {
		return report.Report{}, s.err
	}
	return report.Report{UUID: input.ReportUUID, Status: &report.Status{Name: input.Status}}, nil
}

func (s *stubService) ChangeUrgency(_ context.Context, input lifecycle.ChangeUrgencyInput) (report.Report, error) {
	s.urgencyInput = &input
	if s.err != nil {
		return report.Report{}, s.err
	}
	return report.Report{UUID: input.ReportUUID, Urgency: input.Urgency}, nil
}

func openReport(urgency float64, createdAt time.Time) report.Report {
	return report.Report{
		UUID:              uuid.New(),
		Urgency:           urgency,
		OriginalCreatedAt: createdAt,
		Status:            &report.Status{Name: report.StatusOpen},
		Subjects:          []string{"litter"},
	}
}

func loadedModel(t *testing.T, svc *stubService) *reportModel {
	t.Helper()
	model := NewReportModel(context.Background(), svc, Options{Actor: "alice"}).(*reportModel)
	msg := model.loadReportsCmd()()
	if _, cmd := model.Update(msg); cmd == nil {
		t.Fatalf("Update(reportsLoadedMsg) returned no detail command")
	}
	return model
}

func TestSortByUrgency(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	low := openReport(0.2, base)
	highNew := openReport(0.8, base.Add(time.Hour))
	highOld := openReport(0.8, base)

	sorted := sortByUrgency([]report.Report{low, highNew, highOld})
	if sorted[0].UUID != highOld.UUID || sorted[1].UUID != highNew.UUID || sorted[2].UUID != low.UUID {
		t.Fatalf("sortByUrgency() order = %v, %v, %v", sorted[0].Urgency, sorted[1].Urgency, sorted[2].Urgency)
	}
}

func TestNormalizeStatusFilter(t *testing.T) {
	testCases := []struct {
		input string
		want  report.StatusName
	}{
		{input: "", want: ""},
		{input: "all", want: ""},
		{input: "Review", want: report.StatusReview},
		{input: "unknown", want: ""},
	}

	for _, testCase := range testCases {
		if got := normalizeStatusFilter(testCase.input); got != testCase.want {
			t.Fatalf("normalizeStatusFilter(%q) = %q, want %q", testCase.input, got, testCase.want)
		}
	}
}

func TestClampUrgency(t *testing.T) {
	if got := clampUrgency(1.05); got != 1 {
		t.Fatalf("clampUrgency(1.05) = %v, want 1", got)
	}
	if got := clampUrgency(-0.1); got != 0 {
		t.Fatalf("clampUrgency(-0.1) = %v, want 0", got)
	}
	if got := clampUrgency(0.2 + 0.1); got != 0.3 {
		t.Fatalf("clampUrgency(0.3) = %v, want 0.3", got)
	}
}

func TestLoadReportsUsesFilter(t *testing.T) {
	svc := &stubService{}
	model := NewReportModel(context.Background(), svc, Options{StatusFilter: "paused", Limit: 10}).(*reportModel)

	msg := model.loadReportsCmd()()
	if _, ok := msg.(reportsLoadedMsg); !ok {
		t.Fatalf("loadReportsCmd() msg = %T, want reportsLoadedMsg", msg)
	}
	if !svc.lastFilter.OpenOnly || svc.lastFilter.Limit != 10 {
		t.Fatalf("filter = %+v, want open only with limit 10", svc.lastFilter)
	}
	if len(svc.lastFilter.Statuses) != 1 || svc.lastFilter.Statuses[0] != report.StatusPaused {
		t.Fatalf("filter statuses = %v, want [paused]", svc.lastFilter.Statuses)
	}
}

func TestCloseActionSetsResolution(t *testing.T) {
	item := openReport(0.4, time.Now().UTC())
	svc := &stubService{reports: []report.Report{item}}
	model := loadedModel(t, svc)

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if cmd == nil {
		t.Fatalf("close key returned no command")
	}
	done, ok := cmd().(actionDoneMsg)
	if !ok {
		t.Fatalf("close command msg type mismatch")
	}
	if done.err != nil {
		t.Fatalf("close action error = %v", done.err)
	}
	if svc.statusInput == nil || svc.statusInput.Status != report.StatusClosed {
		t.Fatalf("ChangeStatus input = %+v, want closed", svc.statusInput)
	}
	if svc.statusInput.Resolution == nil || *svc.statusInput.Resolution != report.ResolutionResolved {
		t.Fatalf("resolution = %v, want resolved", svc.statusInput.Resolution)
	}
	if svc.statusInput.Actor != "alice" {
		t.Fatalf("actor = %q, want alice", svc.statusInput.Actor)
	}

	model.Update(done)
	if len(model.auditLogs) != 1 || !strings.Contains(model.auditLogs[0], "action=status:closed") {
		t.Fatalf("audit log = %v", model.auditLogs)
	}
}

func TestDisallowedTransitionIsNotSent(t *testing.T) {
	item := openReport(0.4, time.Now().UTC())
	item.Status = &report.Status{Name: report.StatusOpen}
	svc := &stubService{reports: []report.Report{item}}
	model := loadedModel(t, svc)

	if _, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("o")}); cmd != nil {
		t.Fatalf("reopen of an open report returned a command")
	}
	if svc.statusInput != nil {
		t.Fatalf("ChangeStatus was called for a disallowed transition")
	}
	if !strings.Contains(model.status, "not allowed") {
		t.Fatalf("status = %q, want not allowed", model.status)
	}
}

func TestUrgencyKeys(t *testing.T) {
	item := openReport(0.95, time.Now().UTC())
	svc := &stubService{reports: []report.Report{item}}
	model := loadedModel(t, svc)

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("+")})
	if cmd == nil {
		t.Fatalf("urgency key returned no command")
	}
	cmd()
	if svc.urgencyInput == nil || svc.urgencyInput.Urgency != 1 {
		t.Fatalf("ChangeUrgency input = %+v, want 1", svc.urgencyInput)
	}
}

func TestActionErrorIsAudited(t *testing.T) {
	item := openReport(0.4, time.Now().UTC())
	svc := &stubService{reports: []report.Report{item}}
	model := loadedModel(t, svc)
	svc.err = errors.New("locked")

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	msg := cmd()
	model.Update(msg)
	if !strings.Contains(model.status, "failed") {
		t.Fatalf("status = %q, want failed", model.status)
	}
	if len(model.auditLogs) != 1 || !strings.Contains(model.auditLogs[0], "error: locked") {
		t.Fatalf("audit log = %v", model.auditLogs)
	}
}

func TestViewShowsQueue(t *testing.T) {
	item := openReport(0.7, time.Now().UTC())
	svc := &stubService{reports: []report.Report{item}}
	model := loadedModel(t, svc)

	view := model.View()
	if !strings.Contains(view, "Report Console") || !strings.Contains(view, item.UUID.String()[:8]) {
		t.Fatalf("View() missing header or report:\n%s", view)
	}
}
