package dispatcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plant-doctor-bot/internal/domain/analyzer"
	"plant-doctor-bot/internal/domain/eventbus"
	"plant-doctor-bot/internal/domain/formatter"
	"plant-doctor-bot/internal/domain/image"
	"plant-doctor-bot/internal/platform/config"
	testutil "plant-doctor-bot/internal/platform/testing"
)

type sent struct {
	ChatID   int64
	Text     string
	Markdown bool
}

type fakeMessenger struct {
	mu       sync.Mutex
	sends    []sent
	deletes  []int
	answers  []string
	failSend func(text string, markdown bool) error
	failDel  error
	failAns  error
	nextID   int
}

func (m *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string, markdown bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, sent{ChatID: chatID, Text: text, Markdown: markdown})
	if m.failSend != nil {
		if err := m.failSend(text, markdown); err != nil {
			return 0, err
		}
	}
	m.nextID++
	return m.nextID, nil
}

func (m *fakeMessenger) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, messageID)
	return m.failDel
}

func (m *fakeMessenger) AnswerCallback(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, id)
	return m.failAns
}

type fakeFetcher struct {
	data    []byte
	err     error
	fileIDs []string
}

func (f *fakeFetcher) FetchFile(_ context.Context, fileID string) (io.ReadCloser, string, error) {
	f.fileIDs = append(f.fileIDs, fileID)
	if f.err != nil {
		return nil, "", f.err
	}
	return io.NopCloser(bytes.NewReader(f.data)), "photos/file_7.png", nil
}

type harness struct {
	messenger *fakeMessenger
	fetcher   *fakeFetcher
	bus       *eventbus.AsyncEventBus
	events    *[]eventbus.Event
	prompts   *[]string
	d         *Dispatcher
}

func newHarness(t *testing.T, analyze analyzer.Func, mutate func(*Options)) *harness {
	t.Helper()

	logger := testutil.SetupTestLogger(t)
	sec := config.DefaultConfig().Image
	pipeline, err := image.NewPipeline(image.Options{Security: &sec, Logger: logger})
	require.NoError(t, err)

	bus := eventbus.NewAsyncEventBus(1, 64)
	bus.Start()
	t.Cleanup(bus.Stop)

	var mu sync.Mutex
	events := []eventbus.Event{}
	for _, topic := range eventbus.Topics {
		require.NoError(t, bus.Subscribe(topic, func(e eventbus.Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		}))
	}

	prompts := []string{}
	h := &harness{
		messenger: &fakeMessenger{},
		fetcher:   &fakeFetcher{data: testutil.PNG(t, 16, 16)},
		bus:       bus,
		events:    &events,
		prompts:   &prompts,
	}

	wrapped := analyzer.Func(func(ctx context.Context, prompt string, img *image.Output) (string, error) {
		prompts = append(prompts, prompt)
		return analyze(ctx, prompt, img)
	})

	opts := Options{
		Messenger: h.messenger,
		Fetcher:   h.fetcher,
		Images:    pipeline,
		Analyzer:  wrapped,
		Events:    bus,
		Logger:    logger,
	}
	if mutate != nil {
		mutate(&opts)
	}

	h.d, err = New(opts)
	require.NoError(t, err)
	return h
}

func answer(text string) analyzer.Func {
	return func(context.Context, string, *image.Output) (string, error) { return text, nil }
}

func textUpdate(text string) *models.Update {
	return &models.Update{ID: 1, Message: &models.Message{ID: 10, Chat: models.Chat{ID: 99}, Text: text}}
}

func photoUpdate(sizes ...models.PhotoSize) *models.Update {
	return &models.Update{ID: 2, Message: &models.Message{ID: 11, Chat: models.Chat{ID: 99}, Photo: sizes}}
}

func defaultPhotos() []models.PhotoSize {
	return []models.PhotoSize{
		{FileID: "small", Width: 90, Height: 90},
		{FileID: "medium", Width: 320, Height: 320},
		{FileID: "large", Width: 1280, Height: 1280},
	}
}

func (h *harness) topics() []string {
	h.bus.Flush()
	out := make([]string, 0, len(*h.events))
	for _, e := range *h.events {
		out = append(out, e.Topic)
	}
	return out
}

func TestPlainTextGetsWelcome(t *testing.T) {
	h := newHarness(t, answer("unused"), nil)
	h.d.Dispatch(context.Background(), textUpdate("hello"))

	require.Len(t, h.messenger.sends, 1)
	assert.Equal(t, sent{ChatID: 99, Text: WelcomeText, Markdown: true}, h.messenger.sends[0])
}

func TestWhitespaceTextGetsWelcome(t *testing.T) {
	h := newHarness(t, answer("unused"), nil)
	h.d.Dispatch(context.Background(), textUpdate("   \n\t"))

	require.Len(t, h.messenger.sends, 1)
	assert.Equal(t, sent{ChatID: 99, Text: WelcomeText, Markdown: true}, h.messenger.sends[0])
}

func TestCommandRouting(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		want     string
		markdown bool
		silent   bool
	}{
		{name: "start", text: "/start", want: WelcomeText, markdown: true},
		{name: "help", text: "/help", want: WelcomeText, markdown: true},
		{name: "mixed case", text: "  /HELP  ", want: WelcomeText, markdown: true},
		{name: "bot suffix", text: "/start@PlantDoctorBot", want: WelcomeText, markdown: true},
		{name: "analyze", text: "/analyze", want: AnalyzePromptText},
		{name: "unknown", text: "/foo", silent: true},
		{name: "unknown with args", text: "/settings now", silent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, answer("unused"), nil)
			h.d.Dispatch(context.Background(), textUpdate(tt.text))

			if tt.silent {
				assert.Empty(t, h.messenger.sends)
				return
			}
			require.Len(t, h.messenger.sends, 1)
			assert.Equal(t, tt.want, h.messenger.sends[0].Text)
			assert.Equal(t, tt.markdown, h.messenger.sends[0].Markdown)
		})
	}
}

func TestStartAndHelpAreIdentical(t *testing.T) {
	a := newHarness(t, answer(""), nil)
	b := newHarness(t, answer(""), nil)
	a.d.Dispatch(context.Background(), textUpdate("/start"))
	b.d.Dispatch(context.Background(), textUpdate("/help"))
	assert.Equal(t, a.messenger.sends, b.messenger.sends)
}

func TestCallbackQuery(t *testing.T) {
	for _, payload := range []string{"", "diagnose", strings.Repeat("x", 64)} {
		h := newHarness(t, answer(""), nil)
		h.d.Dispatch(context.Background(), &models.Update{
			ID: 3,
			CallbackQuery: &models.CallbackQuery{
				ID:   "cb-" + payload,
				Data: payload,
				Message: models.MaybeInaccessibleMessage{
					Message: &models.Message{ID: 5, Chat: models.Chat{ID: 42}},
				},
			},
		})

		assert.Equal(t, []string{"cb-" + payload}, h.messenger.answers)
		require.Len(t, h.messenger.sends, 1)
		assert.Equal(t, sent{ChatID: 42, Text: CallbackReplyText}, h.messenger.sends[0])
	}
}

func TestCallbackOnInaccessibleMessage(t *testing.T) {
	h := newHarness(t, answer(""), nil)
	h.d.Dispatch(context.Background(), &models.Update{
		ID: 4,
		CallbackQuery: &models.CallbackQuery{
			ID: "cb",
			Message: models.MaybeInaccessibleMessage{
				InaccessibleMessage: &models.InaccessibleMessage{Chat: models.Chat{ID: 77}},
			},
		},
	})
	require.Len(t, h.messenger.sends, 1)
	assert.Equal(t, int64(77), h.messenger.sends[0].ChatID)
}

func TestCallbackAnswerFailureApologises(t *testing.T) {
	h := newHarness(t, answer(""), nil)
	h.messenger.failAns = errors.New("query too old")
	h.d.Dispatch(context.Background(), &models.Update{
		ID: 5,
		CallbackQuery: &models.CallbackQuery{
			ID:      "cb",
			Message: models.MaybeInaccessibleMessage{Message: &models.Message{Chat: models.Chat{ID: 42}}},
		},
	})
	require.Len(t, h.messenger.sends, 1)
	assert.Equal(t, GenericFailureText, h.messenger.sends[0].Text)
}

func TestUnhandledUpdatesAreSilent(t *testing.T) {
	h := newHarness(t, answer(""), nil)
	h.d.Dispatch(context.Background(), nil)
	h.d.Dispatch(context.Background(), &models.Update{ID: 6})
	h.d.Dispatch(context.Background(), &models.Update{ID: 7, Message: &models.Message{Chat: models.Chat{ID: 1}}})
	h.d.Dispatch(context.Background(), &models.Update{ID: 8, EditedMessage: &models.Message{Chat: models.Chat{ID: 1}, Text: "hi"}})

	assert.Empty(t, h.messenger.sends)
	assert.Empty(t, h.messenger.answers)
}

func TestPhotoHappyPath(t *testing.T) {
	h := newHarness(t, answer("Likely Issue: *root_rot*"), nil)
	h.d.Dispatch(context.Background(), photoUpdate(defaultPhotos()...))

	assert.Equal(t, []string{"large"}, h.fetcher.fileIDs)
	assert.Equal(t, []string{analyzer.DiagnosisPrompt}, *h.prompts)

	require.Len(t, h.messenger.sends, 2)
	assert.Equal(t, sent{ChatID: 99, Text: AnalyzingNotice}, h.messenger.sends[0])
	assert.Equal(t, sent{ChatID: 99, Text: formatter.Render("Likely Issue: *root_rot*"), Markdown: true}, h.messenger.sends[1])
	assert.Contains(t, h.messenger.sends[1].Text, `\*root\_rot\*`)
	assert.Equal(t, []int{1}, h.messenger.deletes, "the notice is deleted")

	assert.Equal(t, []string{
		eventbus.EventUpdateReceived,
		eventbus.EventAnalysisStarted,
		eventbus.EventAnalysisCompleted,
	}, h.topics())
}

func TestLargestPhoto(t *testing.T) {
	tests := []struct {
		name   string
		photos []models.PhotoSize
		want   string
	}{
		{name: "ascending", photos: defaultPhotos(), want: "large"},
		{name: "unordered", photos: []models.PhotoSize{{FileID: "b", Width: 800, Height: 600}, {FileID: "a", Width: 100, Height: 100}}, want: "b"},
		{name: "tie goes to later", photos: []models.PhotoSize{{FileID: "first", Width: 10, Height: 20}, {FileID: "second", Width: 20, Height: 10}}, want: "second"},
		{name: "single", photos: []models.PhotoSize{{FileID: "only"}}, want: "only"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, largestPhoto(tt.photos).FileID)
		})
	}
}

func TestPhotoFetchFailure(t *testing.T) {
	called := false
	h := newHarness(t, func(context.Context, string, *image.Output) (string, error) {
		called = true
		return "nope", nil
	}, nil)
	h.fetcher.err = errors.New("telegram down")

	h.d.Dispatch(context.Background(), photoUpdate(defaultPhotos()...))

	assert.False(t, called, "no analysis after fetch failure")
	require.Len(t, h.messenger.sends, 2)
	assert.Equal(t, AnalyzingNotice, h.messenger.sends[0].Text)
	assert.Equal(t, sent{ChatID: 99, Text: PhotoFailureText}, h.messenger.sends[1])

	topics := h.topics()
	assert.Contains(t, topics, eventbus.EventAnalysisFailed)
	assert.Contains(t, topics, eventbus.EventDispatchFailed)
}

func TestPhotoFailures(t *testing.T) {
	tests := []struct {
		name    string
		analyze analyzer.Func
		setup   func(h *harness)
	}{
		{
			name:    "analyzer error",
			analyze: func(context.Context, string, *image.Output) (string, error) { return "", errors.New("Gemini API error: quota") },
		},
		{
			name:    "analyzer panic",
			analyze: func(context.Context, string, *image.Output) (string, error) { panic("nil map") },
		},
		{
			name:    "invalid image bytes",
			analyze: answer("unused"),
			setup:   func(h *harness) { h.fetcher.data = []byte("not an image at all") },
		},
		{
			name:    "notice send fails",
			analyze: answer("unused"),
			setup: func(h *harness) {
				h.messenger.failSend = func(text string, _ bool) error {
					if text == AnalyzingNotice {
						return errors.New("chat not found")
					}
					return nil
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.analyze, nil)
			if tt.setup != nil {
				tt.setup(h)
			}

			assert.NotPanics(t, func() {
				h.d.Dispatch(context.Background(), photoUpdate(defaultPhotos()...))
			})

			apologies := 0
			for _, s := range h.messenger.sends {
				assert.NotContains(t, s.Text, formatter.Header, "no partial analysis")
				if s.Text == PhotoFailureText {
					apologies++
				}
			}
			assert.Equal(t, 1, apologies)
		})
	}
}

func TestAnalyzerTimeout(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, _ string, _ *image.Output) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}, func(o *Options) { o.AnalyzerTimeout = 20 * time.Millisecond })

	done := make(chan struct{})
	go func() {
		h.d.Dispatch(context.Background(), photoUpdate(defaultPhotos()...))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not honour the analyzer timeout")
	}
	require.NotEmpty(t, h.messenger.sends)
	assert.Equal(t, PhotoFailureText, h.messenger.sends[len(h.messenger.sends)-1].Text)
}

func TestNoticeDeleteFailureIsNonFatal(t *testing.T) {
	h := newHarness(t, answer("all good"), nil)
	h.messenger.failDel = errors.New("message can't be deleted")

	h.d.Dispatch(context.Background(), photoUpdate(defaultPhotos()...))

	require.Len(t, h.messenger.sends, 2)
	assert.Equal(t, formatter.Render("all good"), h.messenger.sends[1].Text)
}

func TestMarkdownFallbackPerChunk(t *testing.T) {
	h := newHarness(t, answer(strings.Repeat("a", 5000)), nil)
	h.messenger.failSend = func(text string, markdown bool) error {
		if markdown {
			return errors.New("Bad Request: can't parse entities")
		}
		return nil
	}

	h.d.Dispatch(context.Background(), photoUpdate(defaultPhotos()...))

	chunks := formatter.Format(strings.Repeat("a", 5000))
	require.Len(t, chunks, 2)
	require.Len(t, h.messenger.sends, 5)
	assert.Equal(t, sent{ChatID: 99, Text: chunks[0], Markdown: true}, h.messenger.sends[1])
	assert.Equal(t, sent{ChatID: 99, Text: chunks[0], Markdown: false}, h.messenger.sends[2])
	assert.Equal(t, sent{ChatID: 99, Text: chunks[1], Markdown: true}, h.messenger.sends[3])
	assert.Equal(t, sent{ChatID: 99, Text: chunks[1], Markdown: false}, h.messenger.sends[4])
}

func TestPlainFallbackFailureApologises(t *testing.T) {
	h := newHarness(t, answer("text"), nil)
	h.messenger.failSend = func(text string, _ bool) error {
		if strings.HasPrefix(text, formatter.Header) {
			return errors.New("forbidden: bot was blocked by the user")
		}
		return nil
	}

	h.d.Dispatch(context.Background(), photoUpdate(defaultPhotos()...))

	last := h.messenger.sends[len(h.messenger.sends)-1]
	assert.Equal(t, PhotoFailureText, last.Text)
}

func TestApologyFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, answer(""), nil)
	h.messenger.failSend = func(string, bool) error { return errors.New("network unreachable") }

	assert.NotPanics(t, func() {
		h.d.Dispatch(context.Background(), textUpdate("hello"))
	})
	require.Len(t, h.messenger.sends, 2)
	assert.Equal(t, GenericFailureText, h.messenger.sends[1].Text)
}

func TestLongAnalysisChunking(t *testing.T) {
	overhead := utf8.RuneCountInString(formatter.Render(""))
	body := strings.Repeat("a", 8050-overhead)
	require.Equal(t, 8050, utf8.RuneCountInString(formatter.Render(body)))

	h := newHarness(t, answer(body), nil)
	h.d.Dispatch(context.Background(), photoUpdate(defaultPhotos()...))

	require.Len(t, h.messenger.sends, 4)
	sizes := []int{}
	var joined strings.Builder
	for _, s := range h.messenger.sends[1:] {
		sizes = append(sizes, utf8.RuneCountInString(s.Text))
		joined.WriteString(s.Text)
	}
	assert.Equal(t, []int{4000, 4000, 50}, sizes)
	assert.Equal(t, formatter.Render(body), joined.String())
}

func TestCommandEvents(t *testing.T) {
	h := newHarness(t, answer(""), nil)
	h.d.Dispatch(context.Background(), textUpdate("/analyze"))

	assert.Equal(t, []string{eventbus.EventUpdateReceived, eventbus.EventCommandHandled}, h.topics())
	h.bus.Flush()
	assert.Equal(t, "/analyze", (*h.events)[1].Command)
	assert.Equal(t, eventbus.RouteCommand, (*h.events)[1].Route)
	assert.NotEmpty(t, (*h.events)[0].RequestID)
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{Messenger: &fakeMessenger{}, Fetcher: &fakeFetcher{}})
	assert.Error(t, err)
}

func TestCommandName(t *testing.T) {
	assert.Equal(t, "/start", commandName("/Start@MyBot extra"))
	assert.Equal(t, "/analyze", commandName(" /analyze "))
	assert.Equal(t, "", commandName("   "))
}
