package eventbus

import "time"

// Topics published by the dispatcher over the lifetime of one update.
const (
	EventUpdateReceived    = "update:received"
	EventCommandHandled    = "command:handled"
	EventAnalysisStarted   = "analysis:started"
	EventAnalysisCompleted = "analysis:completed"
	EventAnalysisFailed    = "analysis:failed"
	EventDispatchFailed    = "dispatch:failed"
)

// Topics lists every topic in publication order, for subscribers that want all of them.
var Topics = []string{
	EventUpdateReceived,
	EventCommandHandled,
	EventAnalysisStarted,
	EventAnalysisCompleted,
	EventAnalysisFailed,
	EventDispatchFailed,
}

// Route names the dispatcher branch an update took.
type Route string

const (
	RouteCallback Route = "callback"
	RoutePhoto    Route = "photo"
	RouteCommand  Route = "command"
	RouteText     Route = "text"
	RouteIgnored  Route = "ignored"
)

// Event is the single payload type carried on every topic.
type Event struct {
	Topic     string        `json:"topic"`
	RequestID string        `json:"request_id"`
	UpdateID  int64         `json:"update_id"`
	ChatID    int64         `json:"chat_id,omitempty"`
	Route     Route         `json:"route"`
	Command   string        `json:"command,omitempty"`
	Backend   string        `json:"backend,omitempty"`
	Chunks    int           `json:"chunks,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Error     string        `json:"error,omitempty"`
	At        time.Time     `json:"at"`
}
