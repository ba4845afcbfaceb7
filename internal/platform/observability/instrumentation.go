package observability

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	countersMu sync.Mutex
	counters   = map[string]float64{}
)

// Enabled reports whether span and metric logging is on.
func Enabled() bool {
	_, cfg := currentLogger()
	return cfg.Enabled
}

// StartSpan records a lightweight span lifecycle around an operation.
func StartSpan(ctx context.Context, component, operation string) (context.Context, func(error)) {
	logger, cfg := currentLogger()
	if logger == nil || !cfg.Enabled {
		return ctx, func(error) {}
	}

	start := time.Now()
	logger.LogAttrs(ctx, slog.LevelDebug, "[OBS] span start",
		slog.String("component", component),
		slog.String("operation", operation),
	)

	return ctx, func(err error) {
		level := slog.LevelDebug
		if err != nil {
			level = slog.LevelError
		}

		attrs := []slog.Attr{
			slog.String("component", component),
			slog.String("operation", operation),
			slog.Duration("duration", time.Since(start)),
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
		}

		logger.LogAttrs(ctx, level, "[OBS] span end", attrs...)
	}
}

// RecordMetric adds value to the named counter and, when enabled, logs the datapoint.
func RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	countersMu.Lock()
	counters[counterKey(name, labels)] += value
	countersMu.Unlock()

	logger, cfg := currentLogger()
	if logger == nil || !cfg.Enabled {
		return
	}

	attrs := []slog.Attr{
		slog.String("metric", name),
		slog.Float64("value", value),
	}
	for k, v := range labels {
		attrs = append(attrs, slog.String(k, v))
	}

	logger.LogAttrs(ctx, slog.LevelDebug, "[OBS] metric", attrs...)
}

// Snapshot returns a copy of the accumulated counters keyed by name{labels}.
func Snapshot() map[string]float64 {
	countersMu.Lock()
	defer countersMu.Unlock()

	out := make(map[string]float64, len(counters))
	for k, v := range counters {
		out[k] = v
	}
	return out
}

// Reset clears all counters.
func Reset() {
	countersMu.Lock()
	counters = map[string]float64{}
	countersMu.Unlock()
}

func counterKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+labels[k])
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}
