package store

// Job is a persisted download-and-index run. Times are Unix milliseconds.
type Job struct {
	ID          string
	ChatID      int64
	ChatTitle   string
	TopicID     *int64
	Limit       int
	OffsetID    int64
	MinID       int64
	MaxID       int64
	State       string
	Downloaded  int
	Indexed     int
	Total       int
	ParseErrors int
	Error       string
	StartedAt   int64
	FinishedAt  *int64
}

// LogLine is one entry of a job's log.
type LogLine struct {
	Seq  int
	Kind string
	Text string
	At   int64
}
