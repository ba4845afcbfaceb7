package observability

import (
	"context"
	"log/slog"
	"sync"
)

// Config captures observability toggles.
type Config struct {
	Enabled bool
}

// ShutdownFunc allows callers to flush and tear down instrumentation.
type ShutdownFunc func(context.Context) error

var (
	loggerMu             sync.RWMutex
	instrumentationLog   *slog.Logger
	instrumentationState Config
)

func currentLogger() (*slog.Logger, Config) {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return instrumentationLog, instrumentationState
}

// Setup installs the logger used for spans and metrics. Counters are always
// accumulated; span and metric log lines are only emitted when enabled.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (ShutdownFunc, error) {
	loggerMu.Lock()
	instrumentationLog = logger
	instrumentationState = cfg
	loggerMu.Unlock()

	if logger != nil {
		if cfg.Enabled {
			logger.InfoContext(ctx, "[OBS] span and metric logging enabled")
		} else {
			logger.InfoContext(ctx, "[OBS] span and metric logging disabled")
		}
	}

	return func(ctx context.Context) error {
		if logger != nil && cfg.Enabled {
			for name, value := range Snapshot() {
				logger.LogAttrs(ctx, slog.LevelDebug, "[OBS] final counter",
					slog.String("metric", name),
					slog.Float64("value", value),
				)
			}
		}
		return nil
	}, nil
}
