package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"plant-doctor-bot/internal/domain/image"
	"plant-doctor-bot/internal/platform/config"
	"plant-doctor-bot/internal/platform/errors"
	"plant-doctor-bot/internal/platform/logging"
	"plant-doctor-bot/internal/platform/observability"
)

// Name identifies this backend in config and logs.
const Name = config.BackendOpenAI

// FallbackAnswer is returned in place of any backend failure.
const FallbackAnswer = "I apologize, but I'm having trouble analyzing the image right now. Please try again with a clearer photo or contact a local gardening expert for immediate assistance."

const defaultMaxTokens = 1000

// Analyzer calls an OpenAI-compatible chat completion endpoint with a vision message.
type Analyzer struct {
	client *openai.Client
	cfg    config.BackendConfig
	logger *logging.Logger
}

// New builds the adapter. BaseURL overrides the API endpoint for compatible providers.
func New(cfg config.BackendConfig, logger *logging.Logger) (*Analyzer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New(errors.KindConfig, "openai.new", "OpenAI API key is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	logger.DebugTag("ANALYZER", "openai adapter ready: model=%s base_url=%s", cfg.ModelName, clientConfig.BaseURL)

	return &Analyzer{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (a *Analyzer) Name() string { return Name }

// Analyze sends one user message with the prompt and the image as a data URL.
// Backend errors are logged and replaced by FallbackAnswer with a nil error.
func (a *Analyzer) Analyze(ctx context.Context, prompt string, img *image.Output) (string, error) {
	if img == nil || img.Base64 == "" {
		return "", errors.New(errors.KindAnalyzer, "openai.analyze", "image payload is required")
	}

	ctx, endSpan := observability.StartSpan(ctx, "analyzer", "openai.chat_completion")
	answer, err := a.complete(ctx, prompt, img)
	endSpan(err)
	if err != nil {
		a.logger.ErrorTag("ANALYZER", "OpenAI API error: %v", err)
		observability.RecordMetric(ctx, "analyzer_backend_errors_total", 1, map[string]string{"backend": Name})
		return FallbackAnswer, nil
	}
	return answer, nil
}

func (a *Analyzer) complete(ctx context.Context, prompt string, img *image.Output) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     a.cfg.ModelName,
		MaxTokens: a.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: img.DataURL(),
						},
					},
				},
			},
		},
	}
	if a.cfg.Temperature > 0 {
		req.Temperature = float32(a.cfg.Temperature)
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}

	a.logger.DebugTag("ANALYZER", "openai completion received: model=%s tokens=%d", resp.Model, resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}
