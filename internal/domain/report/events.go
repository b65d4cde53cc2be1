package report

import "github.com/google/uuid"

// The types below are the committed mutations handed to dispatchers.

type ReportCreated struct {
	Report Report
	Signal Signal
	Event  ReportEvent
}

type SignalAttached struct {
	Report          Report
	Signal          Signal
	Event           ReportEvent
	PreviousUrgency float64
	UrgencyRaised   bool
}

type StatusChanged struct {
	Report           Report
	Previous         *Status
	Current          Status
	Event            ReportEvent
	ForceClosedTasks []Task
}

// Closed reports whether the transition closed the report.
func (e StatusChanged) Closed() bool {
	return IsTerminal(e.Current.Name)
}

type UrgencyChanged struct {
	Report   Report
	Previous float64
	Current  float64
	Event    ReportEvent
}

type EventAdded struct {
	Report      Report
	Event       ReportEvent
	Location    *Location
	Attachments []Attachment
}

type TaskCreated struct {
	Report        Report
	Task          Task
	TaskEvent     TaskEvent
	Event         ReportEvent
	StatusChanged bool
}

type TaskStatusChanged struct {
	Report       Report
	Task         Task
	TaskEvent    TaskEvent
	Event        ReportEvent
	Notification bool
	Reopened     bool
	Attachments  []Attachment
}

type TaskDeleted struct {
	Report    Report
	Task      Task
	TaskEvent TaskEvent
	Event     ReportEvent
}

type ReportDeleted struct {
	ReportID   uint64
	ReportUUID uuid.UUID
	FilePaths  []string
	Deleted    map[string]int64
}
