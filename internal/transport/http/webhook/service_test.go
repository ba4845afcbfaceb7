package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plant-doctor-bot/internal/domain/dedup/store"
	"plant-doctor-bot/internal/platform/config"
	testutil "plant-doctor-bot/internal/platform/testing"
)

type recordingDispatcher struct {
	mu      sync.Mutex
	updates []*models.Update
	ctxErr  error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, update *models.Update) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, update)
	d.ctxErr = ctx.Err()
}

type fakeRegistrar struct {
	urls []string
	err  error
}

func (r *fakeRegistrar) SetWebhook(_ context.Context, url string) error {
	r.urls = append(r.urls, url)
	return r.err
}

type brokenLedger struct{ store.Store }

func (brokenLedger) MarkProcessed(context.Context, store.Record) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func newEngine(t *testing.T, opts Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	opts.Logger = testutil.SetupTestLogger(t)

	svc, err := NewService(opts)
	require.NoError(t, err)

	engine := gin.New()
	require.NoError(t, svc.Register(context.Background(), &engine.RouterGroup))
	return engine
}

func post(engine *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func newLedger(t *testing.T) store.Store {
	t.Helper()
	ledger := store.NewMemory(config.DedupConfig{TTL: time.Hour, Cleanup: time.Minute})
	t.Cleanup(func() { _ = ledger.Close(context.Background()) })
	return ledger
}

const photoUpdate = `{
	"update_id": 1001,
	"message": {
		"message_id": 7,
		"date": 1700000000,
		"chat": {"id": 42, "type": "private"},
		"photo": [
			{"file_id": "small", "file_unique_id": "s", "width": 90, "height": 90},
			{"file_id": "large", "file_unique_id": "l", "width": 1280, "height": 960}
		]
	}
}`

func TestWebhookDecodesAndDispatches(t *testing.T) {
	d := &recordingDispatcher{}
	engine := newEngine(t, Options{Dispatcher: d, Registrar: &fakeRegistrar{}})

	rec := post(engine, photoUpdate)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Len(t, d.updates, 1)
	got := d.updates[0]
	assert.Equal(t, int64(1001), got.ID)
	require.NotNil(t, got.Message)
	assert.Equal(t, int64(42), got.Message.Chat.ID)
	require.Len(t, got.Message.Photo, 2)
	assert.Equal(t, "large", got.Message.Photo[1].FileID)
	assert.NoError(t, d.ctxErr)
}

func TestWebhookDecodesCallback(t *testing.T) {
	d := &recordingDispatcher{}
	engine := newEngine(t, Options{Dispatcher: d, Registrar: &fakeRegistrar{}})

	rec := post(engine, `{
		"update_id": 5,
		"callback_query": {
			"id": "cb-1",
			"from": {"id": 1, "is_bot": false, "first_name": "Ann"},
			"chat_instance": "x",
			"data": "diagnose",
			"message": {"message_id": 3, "date": 1700000000, "chat": {"id": 77, "type": "private"}}
		}
	}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, d.updates, 1)
	require.NotNil(t, d.updates[0].CallbackQuery)
	assert.Equal(t, "cb-1", d.updates[0].CallbackQuery.ID)
	require.NotNil(t, d.updates[0].CallbackQuery.Message.Message)
	assert.Equal(t, int64(77), d.updates[0].CallbackQuery.Message.Message.Chat.ID)
}

func TestWebhookMalformedBodyStillOK(t *testing.T) {
	for _, body := range []string{"", "not json", `{"update_id": "abc"}`, `[1,2`} {
		d := &recordingDispatcher{}
		engine := newEngine(t, Options{Dispatcher: d, Registrar: &fakeRegistrar{}})

		rec := post(engine, body)

		assert.Equal(t, http.StatusOK, rec.Code, "body %q", body)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
		assert.Empty(t, d.updates, "body %q", body)
	}
}

func TestWebhookSkipsRedeliveredUpdates(t *testing.T) {
	d := &recordingDispatcher{}
	engine := newEngine(t, Options{Dispatcher: d, Registrar: &fakeRegistrar{}, Ledger: newLedger(t)})

	for i := 0; i < 3; i++ {
		rec := post(engine, photoUpdate)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	post(engine, `{"update_id": 1002, "message": {"message_id": 8, "date": 1, "chat": {"id": 42, "type": "private"}, "text": "hi"}}`)

	require.Len(t, d.updates, 2)
	assert.Equal(t, int64(1001), d.updates[0].ID)
	assert.Equal(t, int64(1002), d.updates[1].ID)
}

func TestWebhookDispatchesWhenLedgerFails(t *testing.T) {
	d := &recordingDispatcher{}
	engine := newEngine(t, Options{Dispatcher: d, Registrar: &fakeRegistrar{}, Ledger: brokenLedger{}})

	post(engine, photoUpdate)
	post(engine, photoUpdate)

	assert.Len(t, d.updates, 2)
}

func TestWebhookZeroUpdateIDBypassesLedger(t *testing.T) {
	d := &recordingDispatcher{}
	engine := newEngine(t, Options{Dispatcher: d, Registrar: &fakeRegistrar{}, Ledger: newLedger(t)})

	post(engine, `{"message": {"message_id": 1, "date": 1, "chat": {"id": 1, "type": "private"}, "text": "hi"}}`)
	post(engine, `{"message": {"message_id": 1, "date": 1, "chat": {"id": 1, "type": "private"}, "text": "hi"}}`)

	assert.Len(t, d.updates, 2)
}

func TestSetWebhook(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		err      error
		wantCode int
		wantBody string
	}{
		{name: "missing url", wantCode: http.StatusBadRequest, wantBody: "WEBHOOK_URL environment variable not set"},
		{name: "success", url: "https://plants.example.com/webhook", wantCode: http.StatusOK, wantBody: "Webhook set successfully: https://plants.example.com/webhook"},
		{name: "platform failure", url: "https://plants.example.com/webhook", err: errors.New("bad token"), wantCode: http.StatusInternalServerError, wantBody: "Failed to set webhook"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := &fakeRegistrar{err: tt.err}
			engine := newEngine(t, Options{Dispatcher: &recordingDispatcher{}, Registrar: reg, WebhookURL: tt.url})

			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/set_webhook", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			if tt.url == "" {
				assert.Empty(t, reg.urls)
			} else {
				assert.Equal(t, []string{tt.url}, reg.urls)
			}
		})
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(Options{})
	assert.Error(t, err)
	_, err = NewService(Options{Dispatcher: &recordingDispatcher{}})
	assert.Error(t, err)
}
