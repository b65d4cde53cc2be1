package reportconsole

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"morcore/internal/bootstrap/logging"
	"morcore/internal/domain/report"
	"morcore/internal/ports"
	"morcore/internal/usecase/lifecycle"
)

const maxShownEvents = 5
const maxAuditLines = 8
const urgencyStep = 0.1

// Service is the part of the lifecycle service the console drives.
type Service interface {
	ListReports(ctx context.Context, filter ports.ReportFilter) ([]report.Report, error)
	GetReport(ctx context.Context, reportUUID uuid.UUID) (lifecycle.ReportDetail, error)
	ChangeStatus(ctx context.Context, input lifecycle.ChangeStatusInput) (report.Report, error)
	ChangeUrgency(ctx context.Context, input lifecycle.ChangeUrgencyInput) (report.Report, error)
}

type Options struct {
	Actor           string
	StatusFilter    string
	IncludeClosed   bool
	Limit           int
	RefreshInterval time.Duration
}

type reportModel struct {
	ctx             context.Context
	service         Service
	actor           string
	statusFilter    report.StatusName
	includeClosed   bool
	limit           int
	refreshInterval time.Duration

	reports       []report.Report
	selectedIndex int
	detail        lifecycle.ReportDetail
	hasDetail     bool
	status        string
	auditLogs     []string
}

type reportsLoadedMsg struct {
	items []report.Report
	err   error
}

type reportDetailLoadedMsg struct {
	reportUUID uuid.UUID
	detail     lifecycle.ReportDetail
	err        error
}

type tickMsg struct{}

type actionDoneMsg struct {
	action     string
	reportUUID uuid.UUID
	result     string
	err        error
}

func NewReportModel(ctx context.Context, service Service, options Options) tea.Model {
	actor := strings.TrimSpace(options.Actor)
	if actor == "" {
		actor = "console"
	}
	limit := options.Limit
	if limit <= 0 {
		limit = 100
	}
	interval := options.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &reportModel{
		ctx:             ctx,
		service:         service,
		actor:           actor,
		statusFilter:    normalizeStatusFilter(options.StatusFilter),
		includeClosed:   options.IncludeClosed,
		limit:           limit,
		refreshInterval: interval,
		status:          "loading",
	}
}

func (m *reportModel) Init() tea.Cmd {
	return tea.Batch(m.loadReportsCmd(), m.tickCmd())
}

func (m *reportModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case tickMsg:
		return m, tea.Batch(m.loadReportsCmd(), m.tickCmd())
	case reportsLoadedMsg:
		if msg.err != nil {
			m.status = "refresh failed: " + msg.err.Error()
			return m, nil
		}
		m.reports = msg.items
		if len(m.reports) == 0 {
			m.selectedIndex = 0
			m.hasDetail = false
			m.status = "queue is empty"
			return m, nil
		}
		if m.selectedIndex < 0 {
			m.selectedIndex = 0
		}
		if m.selectedIndex >= len(m.reports) {
			m.selectedIndex = len(m.reports) - 1
		}
		m.status = fmt.Sprintf("refreshed, %d reports", len(m.reports))
		return m, m.loadSelectedDetailCmd()
	case reportDetailLoadedMsg:
		if !m.isCurrentSelected(msg.reportUUID) {
			return m, nil
		}
		if msg.err != nil {
			m.hasDetail = false
			m.status = "detail failed: " + msg.err.Error()
			return m, nil
		}
		m.detail = msg.detail
		m.hasDetail = true
		return m, nil
	case actionDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			m.appendAuditLog(msg.action, msg.reportUUID, "failed", msg.err)
		} else {
			m.status = fmt.Sprintf("%s done: %s", msg.action, msg.result)
			m.appendAuditLog(msg.action, msg.reportUUID, msg.result, nil)
		}
		return m, m.loadReportsCmd()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "g":
			m.status = "refreshing"
			return m, m.loadReportsCmd()
		case "up", "k":
			if m.selectedIndex > 0 {
				m.selectedIndex--
				return m, m.loadSelectedDetailCmd()
			}
			return m, nil
		case "down", "j":
			if m.selectedIndex < len(m.reports)-1 {
				m.selectedIndex++
				return m, m.loadSelectedDetailCmd()
			}
			return m, nil
		case "p":
			return m, m.changeStatusCmd(report.StatusInProgress)
		case "v":
			return m, m.changeStatusCmd(report.StatusReview)
		case "z":
			return m, m.changeStatusCmd(report.StatusPaused)
		case "o":
			return m, m.changeStatusCmd(report.StatusOpen)
		case "x":
			return m, m.changeStatusCmd(report.StatusClosed)
		case "+", "=":
			return m, m.shiftUrgencyCmd(urgencyStep)
		case "-":
			return m, m.shiftUrgencyCmd(-urgencyStep)
		}
	}
	return m, nil
}

func (m *reportModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))
	urgentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	var builder strings.Builder
	builder.WriteString(titleStyle.Render("Report Console"))
	builder.WriteString("\n")
	builder.WriteString(dimStyle.Render(fmt.Sprintf(
		"actor=%s status=%s closed=%t limit=%d refresh=%s",
		m.actor,
		firstNonEmpty(string(m.statusFilter), "all"),
		m.includeClosed,
		m.limit,
		m.refreshInterval,
	)))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Queue"))
	builder.WriteString("\n")
	if len(m.reports) == 0 {
		builder.WriteString(dimStyle.Render("- no reports"))
		builder.WriteString("\n\n")
	} else {
		for index, item := range m.reports {
			line := fmt.Sprintf(
				"%s [%s] urgency=%.2f subjects=%s",
				shortUUID(item.UUID),
				firstNonEmpty(string(item.CurrentStatusName()), "-"),
				item.Urgency,
				firstNonEmpty(strings.Join(item.Subjects, ","), "-"),
			)
			switch {
			case index == m.selectedIndex:
				builder.WriteString(selectedStyle.Render("> " + line))
			case item.Urgency >= 0.5:
				builder.WriteString(urgentStyle.Render("  " + line))
			default:
				builder.WriteString("  " + line)
			}
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Detail"))
	builder.WriteString("\n")
	if !m.hasDetail {
		builder.WriteString(dimStyle.Render("- no detail"))
		builder.WriteString("\n\n")
	} else {
		item := m.detail.Report
		builder.WriteString(fmt.Sprintf("Report: %s\n", item.UUID))
		builder.WriteString(fmt.Sprintf("Status: %s\n", firstNonEmpty(string(item.CurrentStatusName()), "-")))
		builder.WriteString(fmt.Sprintf("Next: %s\n", joinStatuses(report.NextStatuses(item.CurrentStatusName()))))
		builder.WriteString(fmt.Sprintf("Urgency: %.2f\n", item.Urgency))
		builder.WriteString(fmt.Sprintf("Signals: %d  Locations: %d  Tasks: %d (open %d)\n",
			len(m.detail.Signals), len(m.detail.Locations), len(m.detail.Tasks), openTasks(m.detail.Tasks)))
		builder.WriteString("\nRecent Events:\n")
		events := m.detail.Events
		if len(events) == 0 {
			builder.WriteString("- none\n")
		} else {
			start := len(events) - maxShownEvents
			if start < 0 {
				start = 0
			}
			for _, event := range events[start:] {
				builder.WriteString(fmt.Sprintf("- %s %s %s %s\n",
					event.CreatedAt.Format("01-02 15:04"),
					event.Type,
					firstNonEmpty(event.Actor, "-"),
					firstNonEmptyLine(event.DescriptionInternal)))
			}
		}
		builder.WriteString("\n")
	}

	builder.WriteString(sectionStyle.Render("Status"))
	builder.WriteString("\n")
	builder.WriteString("- " + firstNonEmpty(m.status, "ready"))
	builder.WriteString("\n\n")

	builder.WriteString(sectionStyle.Render("Actions"))
	builder.WriteString("\n")
	builder.WriteString("- p in progress\n")
	builder.WriteString("- v review\n")
	builder.WriteString("- z pause\n")
	builder.WriteString("- o reopen\n")
	builder.WriteString("- x close as resolved\n")
	builder.WriteString("- +/- urgency\n")
	builder.WriteString("\n")

	builder.WriteString(sectionStyle.Render("Audit Log"))
	builder.WriteString("\n")
	if len(m.auditLogs) == 0 {
		builder.WriteString(dimStyle.Render("- no actions"))
		builder.WriteString("\n\n")
	} else {
		for _, line := range m.auditLogs {
			builder.WriteString("- " + line)
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	builder.WriteString(dimStyle.Render("Keys: ↑/k ↓/j move  g refresh  p/v/z/o/x status  +/- urgency  q quit"))
	return builder.String()
}

func (m *reportModel) tickCmd() tea.Cmd {
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *reportModel) loadReportsCmd() tea.Cmd {
	filter := ports.ReportFilter{OpenOnly: !m.includeClosed, Limit: m.limit}
	if m.statusFilter != "" {
		filter.Statuses = []report.StatusName{m.statusFilter}
	}
	return func() tea.Msg {
		items, err := m.service.ListReports(m.ctx, filter)
		if err != nil {
			return reportsLoadedMsg{err: err}
		}
		return reportsLoadedMsg{items: sortByUrgency(items)}
	}
}

func (m *reportModel) loadSelectedDetailCmd() tea.Cmd {
	selected, ok := m.selectedReport()
	if !ok {
		return nil
	}
	return func() tea.Msg {
		detail, err := m.service.GetReport(m.ctx, selected.UUID)
		if err != nil {
			return reportDetailLoadedMsg{reportUUID: selected.UUID, err: err}
		}
		return reportDetailLoadedMsg{reportUUID: selected.UUID, detail: detail}
	}
}

func (m *reportModel) changeStatusCmd(target report.StatusName) tea.Cmd {
	selected, ok := m.selectedReport()
	if !ok {
		m.status = "no report selected"
		return nil
	}
	action := "status:" + string(target)
	if !report.IsTransitionAllowed(selected.CurrentStatusName(), target) {
		m.status = fmt.Sprintf("%s not allowed from %s", action, firstNonEmpty(string(selected.CurrentStatusName()), "-"))
		return nil
	}
	m.status = "running " + action
	input := lifecycle.ChangeStatusInput{
		ReportUUID:          selected.UUID,
		Status:              target,
		Actor:               m.actor,
		DescriptionInternal: "console " + action,
	}
	if target == report.StatusClosed {
		resolution := report.ResolutionResolved
		input.Resolution = &resolution
	}
	return func() tea.Msg {
		item, err := m.service.ChangeStatus(m.ctx, input)
		if err != nil {
			return actionDoneMsg{action: action, reportUUID: selected.UUID, err: err}
		}
		return actionDoneMsg{action: action, reportUUID: selected.UUID, result: string(item.CurrentStatusName())}
	}
}

func (m *reportModel) shiftUrgencyCmd(delta float64) tea.Cmd {
	selected, ok := m.selectedReport()
	if !ok {
		m.status = "no report selected"
		return nil
	}
	if selected.IsClosed() {
		m.status = "report is closed"
		return nil
	}
	next := clampUrgency(selected.Urgency + delta)
	if next == selected.Urgency {
		m.status = fmt.Sprintf("urgency already %.2f", next)
		return nil
	}
	m.status = "running urgency"
	return func() tea.Msg {
		item, err := m.service.ChangeUrgency(m.ctx, lifecycle.ChangeUrgencyInput{
			ReportUUID:          selected.UUID,
			Urgency:             next,
			Actor:               m.actor,
			DescriptionInternal: "console urgency change",
		})
		if err != nil {
			return actionDoneMsg{action: "urgency", reportUUID: selected.UUID, err: err}
		}
		return actionDoneMsg{action: "urgency", reportUUID: selected.UUID, result: fmt.Sprintf("%.2f", item.Urgency)}
	}
}

func (m *reportModel) selectedReport() (report.Report, bool) {
	if len(m.reports) == 0 {
		return report.Report{}, false
	}
	if m.selectedIndex < 0 || m.selectedIndex >= len(m.reports) {
		return report.Report{}, false
	}
	return m.reports[m.selectedIndex], true
}

func (m *reportModel) isCurrentSelected(reportUUID uuid.UUID) bool {
	selected, ok := m.selectedReport()
	if !ok {
		return false
	}
	return selected.UUID == reportUUID
}

func (m *reportModel) appendAuditLog(action string, reportUUID uuid.UUID, result string, opErr error) {
	outcome := strings.TrimSpace(result)
	if opErr != nil {
		outcome = "error: " + opErr.Error()
	}
	if outcome == "" {
		outcome = "ok"
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	line := fmt.Sprintf("%s actor=%s report=%s action=%s result=%s", timestamp, m.actor, shortUUID(reportUUID), action, outcome)
	m.auditLogs = append([]string{line}, m.auditLogs...)
	if len(m.auditLogs) > maxAuditLines {
		m.auditLogs = m.auditLogs[:maxAuditLines]
	}

	logging.Info(m.ctx, "report console action",
		slog.String("actor", m.actor),
		slog.String("report_uuid", reportUUID.String()),
		slog.String("action", action),
		slog.String("result", outcome),
	)
}

// sortByUrgency puts the most urgent reports first, oldest first on ties.
func sortByUrgency(items []report.Report) []report.Report {
	sorted := make([]report.Report, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Urgency != sorted[j].Urgency {
			return sorted[i].Urgency > sorted[j].Urgency
		}
		return sorted[i].OriginalCreatedAt.Before(sorted[j].OriginalCreatedAt)
	})
	return sorted
}

func normalizeStatusFilter(input string) report.StatusName {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || strings.EqualFold(trimmed, "all") {
		return ""
	}
	name, err := report.ParseStatusName(trimmed)
	if err != nil {
		return ""
	}
	return name
}

func clampUrgency(value float64) float64 {
	rounded := math.Round(value*100) / 100
	return math.Max(0, math.Min(1, rounded))
}

func openTasks(tasks []report.Task) int {
	count := 0
	for _, task := range tasks {
		if task.IsOpen() {
			count++
		}
	}
	return count
}

func joinStatuses(names []report.StatusName) string {
	if len(names) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, string(name))
	}
	return strings.Join(parts, ",")
}

func shortUUID(id uuid.UUID) string {
	return id.String()[:8]
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		normalized := strings.TrimSpace(value)
		if normalized != "" {
			return normalized
		}
	}
	return ""
}

func firstNonEmptyLine(body string) string {
	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimSpace(raw)
		if line != "" {
			return line
		}
	}
	return ""
}

var errNoService = errors.New("report console needs a service")

// Run starts the console full screen until the user quits.
func Run(ctx context.Context, service Service, options Options) error {
	if service == nil {
		return errNoService
	}
	program := tea.NewProgram(NewReportModel(ctx, service, options), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}
