package eventbus

import (
	"context"
	"time"

	"plant-doctor-bot/internal/platform/logging"
	"plant-doctor-bot/internal/platform/observability"
)

// Recorder turns lifecycle events into log lines and counters.
type Recorder struct {
	logger *logging.Logger
}

func NewRecorder(logger *logging.Logger) *Recorder {
	return &Recorder{logger: logger}
}

// Attach subscribes the recorder to every topic on bus.
func (r *Recorder) Attach(bus *AsyncEventBus) error {
	for _, topic := range Topics {
		if err := bus.Subscribe(topic, r.Handle); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) Handle(e Event) {
	ctx := context.Background()
	labels := map[string]string{"route": string(e.Route)}

	switch e.Topic {
	case EventUpdateReceived:
		r.logger.DebugTag("EVENT", "update %d received: route=%s chat=%d request=%s", e.UpdateID, e.Route, e.ChatID, e.RequestID)
		observability.RecordMetric(ctx, "updates_total", 1, labels)
	case EventCommandHandled:
		r.logger.DebugTag("EVENT", "command %s handled for chat %d", e.Command, e.ChatID)
		observability.RecordMetric(ctx, "commands_total", 1, map[string]string{"command": e.Command})
	case EventAnalysisStarted:
		r.logger.DebugTag("EVENT", "analysis started: chat=%d backend=%s request=%s", e.ChatID, e.Backend, e.RequestID)
	case EventAnalysisCompleted:
		r.logger.InfoTag("EVENT", "analysis completed: chat=%d backend=%s chunks=%d duration=%s",
			e.ChatID, e.Backend, e.Chunks, e.Duration.Round(time.Millisecond))
		observability.RecordMetric(ctx, "analysis_total", 1, map[string]string{"backend": e.Backend, "outcome": "ok"})
		observability.RecordMetric(ctx, "analysis_duration_ms", float64(e.Duration.Milliseconds()), map[string]string{"backend": e.Backend})
	case EventAnalysisFailed:
		r.logger.WarnTag("EVENT", "analysis failed: chat=%d backend=%s error=%s", e.ChatID, e.Backend, e.Error)
		observability.RecordMetric(ctx, "analysis_total", 1, map[string]string{"backend": e.Backend, "outcome": "failed"})
	case EventDispatchFailed:
		r.logger.WarnTag("EVENT", "dispatch failed: update=%d route=%s error=%s", e.UpdateID, e.Route, e.Error)
		observability.RecordMetric(ctx, "dispatch_failures_total", 1, labels)
	}
}
