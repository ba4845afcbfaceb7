package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"plant-doctor-bot/internal/domain/image"
	"plant-doctor-bot/internal/platform/config"
	"plant-doctor-bot/internal/platform/errors"
	"plant-doctor-bot/internal/platform/logging"
	"plant-doctor-bot/internal/platform/observability"
)

const Name = config.BackendGemini

const defaultModel = "gemini-2.5-flash"

// Analyzer sends the prompt and the raw image bytes to the Gemini API.
// Unlike the OpenAI adapter, backend failures are returned to the caller.
type Analyzer struct {
	client *genai.Client
	cfg    config.BackendConfig
	logger *logging.Logger
}

func New(ctx context.Context, cfg config.BackendConfig, logger *logging.Logger) (*Analyzer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New(errors.KindConfig, "gemini.new", "Gemini API key is required")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = defaultModel
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, "gemini.new", "failed to create genai client", err)
	}

	logger.DebugTag("ANALYZER", "gemini adapter ready: model=%s", cfg.ModelName)

	return &Analyzer{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (a *Analyzer) Name() string { return Name }

func (a *Analyzer) Analyze(ctx context.Context, prompt string, img *image.Output) (string, error) {
	if img == nil || len(img.Bytes) == 0 {
		return "", errors.New(errors.KindAnalyzer, "gemini.analyze", "image payload is required")
	}

	ctx, endSpan := observability.StartSpan(ctx, "analyzer", "gemini.generate_content")
	answer, err := a.generate(ctx, prompt, img)
	endSpan(err)
	if err != nil {
		a.logger.ErrorTag("ANALYZER", "Gemini API error: %v", err)
		observability.RecordMetric(ctx, "analyzer_backend_errors_total", 1, map[string]string{"backend": Name})
		return "", errors.Wrap(errors.KindAnalyzer, "gemini.analyze", "Gemini API error", err)
	}
	return answer, nil
}

func (a *Analyzer) generate(ctx context.Context, prompt string, img *image.Output) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				genai.NewPartFromText(prompt),
				genai.NewPartFromBytes(img.Bytes, img.MIMEType()),
			},
		},
	}

	genConfig := &genai.GenerateContentConfig{}
	if a.cfg.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(a.cfg.MaxTokens)
	}
	if a.cfg.Temperature > 0 {
		genConfig.Temperature = genai.Ptr(float32(a.cfg.Temperature))
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.cfg.ModelName, contents, genConfig)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no response candidates returned")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty response content")
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no text in response")
	}
	return b.String(), nil
}
