// Package adapters selects the configured vision backend at startup.
package adapters

import (
	"context"
	"fmt"
	"strings"

	"plant-doctor-bot/internal/domain/analyzer"
	"plant-doctor-bot/internal/domain/analyzer/adapters/gemini"
	"plant-doctor-bot/internal/domain/analyzer/adapters/openai"
	"plant-doctor-bot/internal/platform/config"
	"plant-doctor-bot/internal/platform/errors"
	"plant-doctor-bot/internal/platform/logging"
)

// New builds the analyzer named by cfg.Backend.
func New(ctx context.Context, cfg config.AnalyzerConfig, logger *logging.Logger) (analyzer.Analyzer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case config.BackendOpenAI:
		a, err := openai.New(cfg.OpenAI, logger)
		if err != nil {
			return nil, err
		}
		return a, nil
	case config.BackendGemini:
		a, err := gemini.New(ctx, cfg.Gemini, logger)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, errors.New(errors.KindConfig, "analyzer.new", fmt.Sprintf("unsupported analyzer backend: %q", cfg.Backend))
	}
}
