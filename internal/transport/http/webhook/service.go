// Package webhook exposes the Telegram webhook endpoint and its registration helper.
package webhook

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot/models"

	"plant-doctor-bot/internal/domain/dedup/store"
	"plant-doctor-bot/internal/platform/errors"
	"plant-doctor-bot/internal/platform/logging"
	"plant-doctor-bot/internal/platform/observability"
)

// maxUpdateBytes bounds the body read for a single update.
const maxUpdateBytes = 1 << 20

// Dispatcher handles a decoded update to completion.
type Dispatcher interface {
	Dispatch(ctx context.Context, update *models.Update)
}

// Registrar points the platform at a webhook URL.
type Registrar interface {
	SetWebhook(ctx context.Context, url string) error
}

type Options struct {
	Dispatcher Dispatcher
	Registrar  Registrar
	// Ledger is optional; without it every delivery is dispatched.
	Ledger     store.Store
	WebhookURL string
	Logger     *logging.Logger
}

// Service serves POST /webhook and GET /set_webhook.
type Service struct {
	dispatcher Dispatcher
	registrar  Registrar
	ledger     store.Store
	webhookURL string
	logger     *logging.Logger
}

func NewService(opts Options) (*Service, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New(errors.KindConfig, "webhook.new", "dispatcher is required")
	}
	if opts.Registrar == nil {
		return nil, errors.New(errors.KindConfig, "webhook.new", "registrar is required")
	}
	return &Service{
		dispatcher: opts.Dispatcher,
		registrar:  opts.Registrar,
		ledger:     opts.Ledger,
		webhookURL: opts.WebhookURL,
		logger:     opts.Logger,
	}, nil
}

// Register mounts the webhook routes.
func (s *Service) Register(_ context.Context, router *gin.RouterGroup) error {
	router.POST("/webhook", s.handleWebhook)
	router.GET("/set_webhook", s.handleSetWebhook)
	s.logger.InfoTag("HTTP", "webhook routes registered")
	return nil
}

// handleWebhook receives one Telegram update.
// @Summary Telegram webhook
// @Description Receives a Telegram update and handles it synchronously. Always answers ok so Telegram does not redeliver.
// @Tags Telegram
// @Accept json
// @Produce json
// @Param update body object true "Telegram Update"
// @Success 200 {object} map[string]string
// @Router /webhook [post]
func (s *Service) handleWebhook(c *gin.Context) {
	ok := gin.H{"status": "ok"}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUpdateBytes))
	if err != nil {
		s.logger.WarnTag("TELEGRAM", "reading webhook body failed: %v", err)
		c.JSON(http.StatusOK, ok)
		return
	}

	var update models.Update
	if err := sonic.Unmarshal(body, &update); err != nil {
		s.logger.WarnTag("TELEGRAM", "dropping malformed update (%d bytes): %v", len(body), err)
		observability.RecordMetric(c.Request.Context(), "webhook_malformed_total", 1, nil)
		c.JSON(http.StatusOK, ok)
		return
	}

	// The platform only sees the response after dispatch, so the work must
	// outlive a client that hangs up early.
	ctx := context.WithoutCancel(c.Request.Context())

	if !s.firstDelivery(ctx, &update) {
		c.JSON(http.StatusOK, ok)
		return
	}

	s.dispatcher.Dispatch(ctx, &update)
	c.JSON(http.StatusOK, ok)
}

// firstDelivery consults the ledger. Ledger failures never block dispatch.
func (s *Service) firstDelivery(ctx context.Context, update *models.Update) bool {
	if s.ledger == nil || update.ID <= 0 {
		return true
	}

	kind, chatID := describe(update)
	first, err := s.ledger.MarkProcessed(ctx, store.Record{
		UpdateID:    update.ID,
		ChatID:      chatID,
		Kind:        kind,
		Metadata:    map[string]any{"received_at": time.Now().UTC().Format(time.RFC3339)},
		ProcessedAt: time.Now(),
	})
	if err != nil {
		s.logger.WarnTag("DEDUP", "ledger unavailable for update %d, dispatching anyway: %v", update.ID, err)
		return true
	}
	if !first {
		s.logger.InfoTag("DEDUP", "skipping redelivered update %d (%s)", update.ID, kind)
		observability.RecordMetric(ctx, "webhook_duplicates_total", 1, map[string]string{"kind": kind})
	}
	return first
}

func describe(update *models.Update) (string, int64) {
	switch {
	case update.Message != nil:
		if len(update.Message.Photo) > 0 {
			return "photo", update.Message.Chat.ID
		}
		return "message", update.Message.Chat.ID
	case update.CallbackQuery != nil:
		if m := update.CallbackQuery.Message.Message; m != nil {
			return "callback", m.Chat.ID
		}
		return "callback", 0
	default:
		return "other", 0
	}
}

// handleSetWebhook registers the configured public URL with Telegram.
// @Summary Register webhook
// @Description Points Telegram at the configured WEBHOOK_URL.
// @Tags Telegram
// @Produce plain
// @Success 200 {string} string "Webhook set successfully: <url>"
// @Failure 400 {string} string "WEBHOOK_URL environment variable not set"
// @Failure 500 {string} string "Failed to set webhook"
// @Router /set_webhook [get]
func (s *Service) handleSetWebhook(c *gin.Context) {
	if s.webhookURL == "" {
		c.String(http.StatusBadRequest, "WEBHOOK_URL environment variable not set")
		return
	}

	if err := s.registrar.SetWebhook(c.Request.Context(), s.webhookURL); err != nil {
		s.logger.ErrorTag("TELEGRAM", "setWebhook(%s) failed: %v", s.webhookURL, err)
		c.String(http.StatusInternalServerError, "Failed to set webhook")
		return
	}

	s.logger.InfoTag("TELEGRAM", "webhook registered at %s", s.webhookURL)
	c.String(http.StatusOK, "Webhook set successfully: %s", s.webhookURL)
}
