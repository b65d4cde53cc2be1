package model

// All lists every table, in migration order.
func All() []any {
	return []any{
		&Report{},
		&ReportSubject{},
		&Status{},
		&ReportEvent{},
		&Signal{},
		&SignalSubject{},
		&Reporter{},
		&Location{},
		&Attachment{},
		&Task{},
		&TaskStatus{},
		&TaskEvent{},
		&Application{},
		&Job{},
		&CacheEntry{},
		&SchemaMeta{},
	}
}
