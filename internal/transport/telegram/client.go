// Package telegram wraps the Bot API for outbound messages, file downloads and webhook registration.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"plant-doctor-bot/internal/platform/config"
	"plant-doctor-bot/internal/platform/errors"
	"plant-doctor-bot/internal/platform/logging"
	"plant-doctor-bot/internal/platform/observability"
)

const defaultTimeout = 30 * time.Second

// Client implements the dispatcher's messenger and media fetcher on top of go-telegram/bot.
type Client struct {
	bot        *bot.Bot
	httpClient *http.Client
	logger     *logging.Logger
}

// New builds a client without calling getMe, so startup does not depend on Telegram being reachable.
func New(cfg config.TelegramConfig, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New(errors.KindConfig, "telegram.new", "bot token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}

	opts := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithHTTPClient(timeout, httpClient),
	}
	if cfg.APIBaseURL != "" {
		opts = append(opts, bot.WithServerURL(strings.TrimRight(cfg.APIBaseURL, "/")))
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, "telegram.new", "failed to create bot client", err)
	}

	return &Client{
		bot:        b,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// SendMessage sends text to chatID, using legacy Markdown when markdown is true,
// and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markdown bool) (int, error) {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if markdown {
		params.ParseMode = models.ParseModeMarkdownV1
	}

	_, endSpan := observability.StartSpan(ctx, "telegram", "sendMessage")
	msg, err := c.bot.SendMessage(ctx, params)
	endSpan(err)
	if err != nil {
		return 0, errors.Wrap(errors.KindMessenger, "telegram.send_message",
			fmt.Sprintf("send to chat %d failed (markdown=%t)", chatID, markdown), err)
	}
	if msg == nil {
		return 0, nil
	}
	return msg.ID, nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if _, err := c.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	}); err != nil {
		return errors.Wrap(errors.KindMessenger, "telegram.delete_message",
			fmt.Sprintf("delete message %d in chat %d failed", messageID, chatID), err)
	}
	return nil
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	if _, err := c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
	}); err != nil {
		return errors.Wrap(errors.KindMessenger, "telegram.answer_callback", "answer callback query failed", err)
	}
	return nil
}

// FetchFile resolves fileID and opens its download stream. The caller closes the body.
// The returned path is Telegram's file path, whose extension hints at the format.
func (c *Client) FetchFile(ctx context.Context, fileID string) (io.ReadCloser, string, error) {
	file, err := c.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, "", errors.Wrap(errors.KindMedia, "telegram.get_file", "resolve file failed", err)
	}
	if file == nil || file.FilePath == "" {
		return nil, "", errors.New(errors.KindMedia, "telegram.get_file", "file path missing in response")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.bot.FileDownloadLink(file), nil)
	if err != nil {
		return nil, "", errors.Wrap(errors.KindMedia, "telegram.download", "build download request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(errors.KindMedia, "telegram.download", "download failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", errors.New(errors.KindMedia, "telegram.download",
			fmt.Sprintf("download returned status %d", resp.StatusCode))
	}

	c.logger.DebugTag("TELEGRAM", "downloading %s (%d bytes declared)", file.FilePath, file.FileSize)
	return resp.Body, file.FilePath, nil
}

// SetWebhook registers url as the bot's webhook.
func (c *Client) SetWebhook(ctx context.Context, url string) error {
	ok, err := c.bot.SetWebhook(ctx, &bot.SetWebhookParams{URL: url})
	if err != nil {
		return errors.Wrap(errors.KindMessenger, "telegram.set_webhook", "set webhook failed", err)
	}
	if !ok {
		return errors.New(errors.KindMessenger, "telegram.set_webhook", "set webhook rejected")
	}
	return nil
}
