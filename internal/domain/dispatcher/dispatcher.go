// Package dispatcher routes one inbound Telegram update to its handler and
// guarantees that failures surface to the user as a single apology.
package dispatcher

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"plant-doctor-bot/internal/domain/analyzer"
	"plant-doctor-bot/internal/domain/eventbus"
	"plant-doctor-bot/internal/domain/image"
	"plant-doctor-bot/internal/platform/errors"
	"plant-doctor-bot/internal/platform/logging"
	"plant-doctor-bot/internal/platform/observability"
)

const defaultAnalyzerTimeout = 60 * time.Second

// Messenger sends and manages chat messages.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, markdown bool) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// MediaFetcher opens the bytes behind a platform file id. The returned path
// carries the platform's file name, used as a format hint.
type MediaFetcher interface {
	FetchFile(ctx context.Context, fileID string) (io.ReadCloser, string, error)
}

// ImageProcessor validates and encodes downloaded bytes.
type ImageProcessor interface {
	Process(ctx context.Context, input image.Input) (*image.Output, error)
}

type Options struct {
	Messenger       Messenger
	Fetcher         MediaFetcher
	Images          ImageProcessor
	Analyzer        analyzer.Analyzer
	Events          eventbus.Publisher
	Logger          *logging.Logger
	AnalyzerTimeout time.Duration
}

type Dispatcher struct {
	messenger Messenger
	fetcher   MediaFetcher
	images    ImageProcessor
	analyzer  analyzer.Analyzer
	events    eventbus.Publisher
	logger    *logging.Logger
	timeout   time.Duration
}

func New(opts Options) (*Dispatcher, error) {
	switch {
	case opts.Messenger == nil:
		return nil, errors.New(errors.KindConfig, "dispatcher.new", "messenger is required")
	case opts.Fetcher == nil:
		return nil, errors.New(errors.KindConfig, "dispatcher.new", "media fetcher is required")
	case opts.Images == nil:
		return nil, errors.New(errors.KindConfig, "dispatcher.new", "image processor is required")
	case opts.Analyzer == nil:
		return nil, errors.New(errors.KindConfig, "dispatcher.new", "analyzer is required")
	}

	timeout := opts.AnalyzerTimeout
	if timeout <= 0 {
		timeout = defaultAnalyzerTimeout
	}

	return &Dispatcher{
		messenger: opts.Messenger,
		fetcher:   opts.Fetcher,
		images:    opts.Images,
		analyzer:  opts.Analyzer,
		events:    opts.Events,
		logger:    opts.Logger,
		timeout:   timeout,
	}, nil
}

// request is the per-update routing context.
type request struct {
	id       string
	updateID int64
	chatID   int64
	route    eventbus.Route
}

// Dispatch handles one update to completion. It never panics and never returns
// an error: a failing branch results in exactly one apology to the originating chat.
func (d *Dispatcher) Dispatch(ctx context.Context, update *models.Update) {
	if update == nil {
		return
	}

	req := classify(update)
	req.id = uuid.NewString()

	ctx, endSpan := observability.StartSpan(ctx, "dispatcher", string(req.route))
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			d.fail(ctx, req, err)
		}
		endSpan(err)
	}()

	d.publish(eventbus.EventUpdateReceived, req, eventbus.Event{})

	switch req.route {
	case eventbus.RouteCallback:
		err = d.handleCallback(ctx, req, update.CallbackQuery)
	case eventbus.RoutePhoto:
		err = d.handlePhoto(ctx, req, update.Message)
	case eventbus.RouteCommand:
		err = d.handleCommand(ctx, req, update.Message.Text)
	case eventbus.RouteText:
		err = d.sendWelcome(ctx, req)
	default:
		d.logger.DebugTag("DISPATCH", "ignoring update %d: no handled variant", req.updateID)
	}

	if err != nil {
		d.fail(ctx, req, err)
	}
}

func classify(update *models.Update) request {
	req := request{updateID: update.ID, route: eventbus.RouteIgnored}

	switch {
	case update.CallbackQuery != nil:
		req.route = eventbus.RouteCallback
		req.chatID = callbackChatID(update.CallbackQuery)
	case update.Message != nil && len(update.Message.Photo) > 0:
		req.route = eventbus.RoutePhoto
		req.chatID = update.Message.Chat.ID
	case update.Message != nil && update.Message.Text != "":
		req.chatID = update.Message.Chat.ID
		if strings.HasPrefix(strings.TrimSpace(update.Message.Text), "/") {
			req.route = eventbus.RouteCommand
		} else {
			req.route = eventbus.RouteText
		}
	}
	return req
}

func callbackChatID(q *models.CallbackQuery) int64 {
	switch {
	case q.Message.Message != nil:
		return q.Message.Message.Chat.ID
	case q.Message.InaccessibleMessage != nil:
		return q.Message.InaccessibleMessage.Chat.ID
	default:
		return 0
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, req request, q *models.CallbackQuery) error {
	if err := d.messenger.AnswerCallback(ctx, q.ID); err != nil {
		return err
	}
	if req.chatID == 0 {
		d.logger.WarnTag("DISPATCH", "callback %s has no originating chat, skipping reply", q.ID)
		return nil
	}
	_, err := d.messenger.SendMessage(ctx, req.chatID, CallbackReplyText, false)
	return err
}

// commandName lower-cases the first word of text and strips any @botname suffix.
func commandName(text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return ""
	}
	cmd := strings.ToLower(fields[0])
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	return cmd
}

func (d *Dispatcher) handleCommand(ctx context.Context, req request, text string) error {
	cmd := commandName(text)

	var err error
	switch cmd {
	case "/start", "/help":
		err = d.sendWelcome(ctx, req)
	case "/analyze":
		_, err = d.messenger.SendMessage(ctx, req.chatID, AnalyzePromptText, false)
	default:
		d.logger.DebugTag("DISPATCH", "ignoring unknown command %q from chat %d", cmd, req.chatID)
		return nil
	}

	if err == nil {
		d.publish(eventbus.EventCommandHandled, req, eventbus.Event{Command: cmd})
	}
	return err
}

func (d *Dispatcher) sendWelcome(ctx context.Context, req request) error {
	_, err := d.messenger.SendMessage(ctx, req.chatID, WelcomeText, true)
	return err
}

// fail reports err to the user exactly once. Failures while apologising are only logged.
func (d *Dispatcher) fail(ctx context.Context, req request, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorTag("DISPATCH", "panic while reporting failure for update %d: %v", req.updateID, r)
		}
	}()

	d.logger.ErrorTag("DISPATCH", "update %d (%s, request %s) failed: %v", req.updateID, req.route, req.id, err)
	d.publish(eventbus.EventDispatchFailed, req, eventbus.Event{Error: err.Error()})

	if req.chatID == 0 {
		return
	}

	text := GenericFailureText
	if req.route == eventbus.RoutePhoto {
		text = PhotoFailureText
	}
	if _, sendErr := d.messenger.SendMessage(ctx, req.chatID, text, false); sendErr != nil {
		d.logger.ErrorTag("DISPATCH", "could not deliver apology to chat %d: %v", req.chatID, sendErr)
	}
}

func (d *Dispatcher) publish(topic string, req request, e eventbus.Event) {
	if d.events == nil {
		return
	}
	e.Topic = topic
	e.RequestID = req.id
	e.UpdateID = req.updateID
	e.ChatID = req.chatID
	e.Route = req.route
	e.At = time.Now()
	d.events.PublishAsync(topic, e)
}
