package report

import (
	"testing"
	"time"
)

func TestCompletionResolution(t *testing.T) {
	invalid := TaskResolution("whatever")
	notFound := TaskResolutionNotFound

	if got := CompletionResolution(nil); got != TaskResolutionResolved {
		t.Fatalf("CompletionResolution(nil) = %q", got)
	}
	if got := CompletionResolution(&invalid); got != TaskResolutionResolved {
		t.Fatalf("CompletionResolution(invalid) = %q", got)
	}
	if got := CompletionResolution(&notFound); got != TaskResolutionNotFound {
		t.Fatalf("CompletionResolution(not_found) = %q", got)
	}
}

func TestHasOpenTaskOfType(t *testing.T) {
	now := time.Now()
	tasks := []Task{
		{TaskType: "https://apps.example/taaktypes/1/", ClosedAt: &now},
		{TaskType: "https://apps.example/taaktypes/2/", DeletedAt: &now},
		{TaskType: "https://apps.example/taaktypes/3/"},
	}

	if HasOpenTaskOfType(tasks, "https://apps.example/taaktypes/1/") {
		t.Fatalf("closed task counted as open")
	}
	if HasOpenTaskOfType(tasks, "https://apps.example/taaktypes/2/") {
		t.Fatalf("deleted task counted as open")
	}
	if !HasOpenTaskOfType(tasks, "https://apps.example/taaktypes/3/") {
		t.Fatalf("open task not found")
	}
	if got := CountOpenTasks(tasks); got != 1 {
		t.Fatalf("CountOpenTasks() = %d, want 1", got)
	}
}

func TestTaskClose(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	task := Task{CreatedAt: created}
	task.Close(created.Add(90*time.Minute), TaskResolutionCancelled)

	if task.IsOpen() {
		t.Fatalf("task still open after Close()")
	}
	if task.HandlingDuration == nil || *task.HandlingDuration != 90*time.Minute {
		t.Fatalf("HandlingDuration = %v", task.HandlingDuration)
	}
	if task.Resolution == nil || *task.Resolution != TaskResolutionCancelled {
		t.Fatalf("Resolution = %v", task.Resolution)
	}
}

func TestIsLatestTaskEvent(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	events := []TaskEvent{
		{ID: 1, CreatedAt: base},
		{ID: 2, CreatedAt: base.Add(2 * time.Hour)},
		{ID: 3, CreatedAt: base.Add(time.Hour)},
	}

	if IsLatestTaskEvent(events[2], events) {
		t.Fatalf("late delivered but earlier event reported as latest")
	}
	if !IsLatestTaskEvent(events[1], events) {
		t.Fatalf("latest event not reported as latest")
	}
}
