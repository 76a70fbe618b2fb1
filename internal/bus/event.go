package bus

import "time"

// Event kinds. Subscribers filter on the prefix before the dot.
const (
	JobStarted      = "job.started"
	JobStateChanged = "job.state_changed"
	JobFinished     = "job.finished"

	CacheRefreshed   = "cache.refreshed"
	CacheInvalidated = "cache.invalidated"

	StatsChanged = "stats.changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
