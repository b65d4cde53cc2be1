package report

import "morcore/internal/errs"

var (
	ErrReportInUse = errs.New(errs.KindContention, "report is in use, try again later")
	ErrTaskInUse   = errs.New(errs.KindContention, "task is in use, try again later")

	ErrReportClosed               = errs.New(errs.KindInvariant, "report is closed")
	ErrReportPaused               = errs.New(errs.KindInvariant, "report is paused")
	ErrTaskClosed                 = errs.New(errs.KindInvariant, "task is closed")
	ErrTaskAlreadyExistsForType   = errs.New(errs.KindInvariant, "an open task of this type already exists for the report")
	ErrStatusTransitionNotAllowed = errs.New(errs.KindInvariant, "status transition not allowed")
	ErrTaskStatusUnchanged        = errs.New(errs.KindInvariant, "task already has this status")
	ErrTaskEventMissing           = errs.New(errs.KindInvariant, "first task event is missing")

	ErrReportNotFound      = errs.New(errs.KindNotFound, "report not found")
	ErrSignalNotFound      = errs.New(errs.KindNotFound, "signal not found")
	ErrTaskNotFound        = errs.New(errs.KindNotFound, "task not found")
	ErrApplicationNotFound = errs.New(errs.KindNotFound, "application not found for url")
	ErrLocationNotFound    = errs.New(errs.KindNotFound, "location not found")
	ErrAttachmentNotFound  = errs.New(errs.KindNotFound, "attachment not found")

	ErrInvalidUrgency    = errs.New(errs.KindInvalid, "urgency must be between 0 and 1")
	ErrInvalidStatus     = errs.New(errs.KindInvalid, "unknown status")
	ErrInvalidResolution = errs.New(errs.KindInvalid, "unknown resolution")
	ErrInvalidEvent      = errs.New(errs.KindInvalid, "invalid event")
	ErrInvalidLocation   = errs.New(errs.KindInvalid, "invalid location")
	ErrInvalidSignal     = errs.New(errs.KindInvalid, "invalid signal")
	ErrInvalidTask       = errs.New(errs.KindInvalid, "invalid task")

	ErrUpstream = errs.New(errs.KindUpstream, "external system call failed")
)
