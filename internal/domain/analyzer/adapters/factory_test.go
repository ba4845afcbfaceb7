package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plant-doctor-bot/internal/platform/config"
	"plant-doctor-bot/internal/platform/errors"
)

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.DefaultConfig().Analyzer
	cfg.OpenAI.APIKey = "sk-test"
	cfg.Gemini.APIKey = "gemini-test"

	tests := []struct {
		backend string
		want    string
	}{
		{backend: "openai", want: "openai"},
		{backend: "OpenAI", want: "openai"},
		{backend: "gemini", want: "gemini"},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			cfg.Backend = tt.backend
			a, err := New(context.Background(), cfg, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Name())
		})
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := config.DefaultConfig().Analyzer
	cfg.Backend = "llava"

	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestNewPropagatesMissingKey(t *testing.T) {
	cfg := config.DefaultConfig().Analyzer
	cfg.Backend = "gemini"

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}
