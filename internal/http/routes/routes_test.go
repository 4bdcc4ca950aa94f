package routes

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/background-remover/internal/config"
	"github.com/phambaophuc/background-remover/internal/http/handlers"
	"github.com/phambaophuc/background-remover/internal/http/response"
	"github.com/phambaophuc/background-remover/internal/models"
	"github.com/phambaophuc/background-remover/internal/services/auth"
	"github.com/phambaophuc/background-remover/internal/services/events"
	"github.com/phambaophuc/background-remover/internal/services/ratelimit"
	"github.com/phambaophuc/background-remover/internal/services/remover"
	"github.com/phambaophuc/background-remover/internal/services/validator"
	"github.com/phambaophuc/background-remover/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testAPIKey = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type countingRemover struct {
	calls  atomic.Int32
	output []byte
	err    error
	panics bool
}

func (r *countingRemover) Remove(_ context.Context, _ []byte, _ string) ([]byte, error) {
	r.calls.Add(1)
	if r.panics {
		panic("model state corrupted")
	}
	return r.output, r.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.RemovalEvent
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{}
}

func (p *recordingPublisher) Publish(_ context.Context, e *models.RemovalEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) HealthCheck() string { return models.HealthHealthy }
func (p *recordingPublisher) Close() error        { return nil }

type fixture struct {
	router    *gin.Engine
	remover   *countingRemover
	publisher *recordingPublisher
}

type option func(*config.Config)

func withFormat(format string) option {
	return func(c *config.Config) { c.Response.Format = format }
}

func testConfig(opts ...option) *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"*"}},
		Auth:   config.AuthConfig{Enabled: true, APIKey: testAPIKey, Header: "pango-api-key"},
		Upload: config.UploadConfig{
			MaxFileSize:  1024 * 1024,
			AllowedTypes: []string{models.MimeTypeJPEG, models.MimeTypePNG},
		},
		Response:  config.ResponseConfig{Format: config.ResponseFormatJSON},
		RateLimit: config.RateLimitConfig{Enabled: true, Window: time.Minute, Max: 60},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func newFixture(t *testing.T, rm remover.Remover, limiter ratelimit.Limiter, opts ...option) *fixture {
	t.Helper()

	cfg := testConfig(opts...)
	formatter, err := response.NewFormatter(cfg.Response.Format)
	require.NoError(t, err)

	counting, _ := rm.(*countingRemover)
	publisher := newRecordingPublisher()

	handler := handlers.NewBackgroundHandler(
		validator.NewImageValidator(cfg.Upload.MaxFileSize, cfg.Upload.AllowedTypes),
		rm,
		formatter,
		publisher,
		map[string]handlers.HealthCheckFunc{
			"rabbitmq": func(context.Context) string { return publisher.HealthCheck() },
			"redis":    func(context.Context) string { return models.HealthNotConfigured },
		},
		zap.NewNop(),
	)

	router, err := NewRouter(handler, auth.NewAPIKeyAuthenticator(cfg.Auth.Enabled, cfg.Auth.APIKey), limiter, cfg, zap.NewNop()).SetupRoutes()
	require.NoError(t, err)

	return &fixture{router: router, remover: counting, publisher: publisher}
}

func okRemover(t *testing.T) *countingRemover {
	return &countingRemover{output: testutil.PNG(t, 8, 8)}
}

func multipartRequest(t *testing.T, field, filename, contentType string, data []byte) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/remove-background", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("pango-api-key", testAPIKey)
	return req
}

func jsonRequest(t *testing.T, payload string) *http.Request {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/remove-background", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("pango-api-key", testAPIKey)
	return req
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Image string `json:"image"`
	} `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func decodeImage(t *testing.T, env envelope) []byte {
	t.Helper()

	const prefix = "data:image/png;base64,"
	require.True(t, strings.HasPrefix(env.Data.Image, prefix), env.Data.Image)
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(env.Data.Image, prefix))
	require.NoError(t, err)
	return data
}

func TestPing_NoAuthRequired(t *testing.T) {
	t.Parallel()

	f := newFixture(t, okRemover(t), nil)

	for _, key := range []string{"", "wrong", testAPIKey} {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if key != "" {
			req.Header.Set("pango-api-key", key)
		}
		w := serve(f.router, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"message":"Pong!!","data":null}`, w.Body.String())
	}
	assert.Zero(t, f.remover.calls.Load())
}

func TestPing_BinaryMode(t *testing.T) {
	t.Parallel()

	f := newFixture(t, okRemover(t), nil, withFormat(config.ResponseFormatBinary))
	w := serve(f.router, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Pong!!", w.Body.String())
}

func TestRemoveBackground_Unauthorized(t *testing.T) {
	t.Parallel()

	f := newFixture(t, okRemover(t), nil)

	for _, key := range []string{"", "wrong"} {
		req := multipartRequest(t, "image", "cat.png", "image/png", testutil.PNG(t, 16, 16))
		req.Header.Del("pango-api-key")
		if key != "" {
			req.Header.Set("pango-api-key", key)
		}
		w := serve(f.router, req)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		env := decodeEnvelope(t, w)
		assert.False(t, env.Success)
		assert.Equal(t, auth.MsgUnauthorized, env.Message)
	}
	assert.Zero(t, f.remover.calls.Load())
}

func TestRemoveBackground_Multipart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		filename    string
		contentType string
		data        func(t *testing.T) []byte
	}{
		{name: "png", filename: "cat.png", contentType: "image/png", data: func(t *testing.T) []byte { return testutil.PNG(t, 16, 16) }},
		{name: "jpeg", filename: "cat.jpg", contentType: "image/jpeg", data: func(t *testing.T) []byte { return testutil.JPEG(t, 16, 16) }},
		{name: "jpg alias", filename: "CAT.JPG", contentType: "image/jpg", data: func(t *testing.T) []byte { return testutil.JPEG(t, 16, 16) }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, okRemover(t), nil)
			w := serve(f.router, multipartRequest(t, "image", tt.filename, tt.contentType, tt.data(t)))

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			env := decodeEnvelope(t, w)
			assert.True(t, env.Success)
			assert.Equal(t, response.MsgRemoved, env.Message)
			assert.Equal(t, []byte{0x89, 0x50, 0x4E, 0x47}, decodeImage(t, env)[:4])
			assert.Equal(t, int32(1), f.remover.calls.Load())

			require.Len(t, f.publisher.events, 1)
			assert.Equal(t, models.StatusCompleted, f.publisher.events[0].Status)
			assert.Equal(t, tt.filename, f.publisher.events[0].OriginalName)
		})
	}
}

func TestRemoveBackground_BinaryMode(t *testing.T) {
	t.Parallel()

	rm := okRemover(t)
	f := newFixture(t, rm, nil, withFormat(config.ResponseFormatBinary))
	w := serve(f.router, multipartRequest(t, "image", "cat.png", "image/png", testutil.PNG(t, 16, 16)))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprint(len(rm.output)), w.Header().Get("Content-Length"))
	assert.Equal(t, rm.output, w.Body.Bytes())
}

func TestRemoveBackground_RejectsInvalidUploads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     func(t *testing.T) *http.Request
		message string
	}{
		{
			name:    "gif",
			req:     func(t *testing.T) *http.Request { return multipartRequest(t, "image", "a.gif", "image/gif", testutil.GIF()) },
			message: "Invalid file type 'image/gif'. Only jpg, jpeg, png are allowed.",
		},
		{
			name:    "text",
			req:     func(t *testing.T) *http.Request { return multipartRequest(t, "image", "a.txt", "text/plain", []byte("hello")) },
			message: "Invalid file type 'text/plain'. Only jpg, jpeg, png are allowed.",
		},
		{
			name:    "wrong field",
			req:     func(t *testing.T) *http.Request { return multipartRequest(t, "photo", "a.png", "image/png", testutil.PNG(t, 4, 4)) },
			message: "No file uploaded",
		},
		{
			name:    "oversize",
			req:     func(t *testing.T) *http.Request { return multipartRequest(t, "image", "big.png", "image/png", make([]byte, 1024*1024+1)) },
			message: "File size exceeds 1MB limit",
		},
		{
			name:    "dimensions over pixel limit",
			req:     func(t *testing.T) *http.Request { return multipartRequest(t, "image", "bomb.png", "image/png", testutil.PNGHeader(60000, 60000)) },
			message: "Image dimensions 60000x60000 exceed the 40 megapixel limit",
		},
		{
			name:    "disguised gif",
			req:     func(t *testing.T) *http.Request { return multipartRequest(t, "image", "a.png", "image/png", testutil.GIF()) },
			message: validator.MsgContentMismatch,
		},
		{
			name:    "malformed base64",
			req:     func(t *testing.T) *http.Request { return jsonRequest(t, `{"base64Image":"data:image/png;base64,@@@"}`) },
			message: handlers.MsgInvalidBase64,
		},
		{
			name:    "missing base64 prefix",
			req:     func(t *testing.T) *http.Request { return jsonRequest(t, `{"base64Image":"iVBORw0KGgo="}`) },
			message: handlers.MsgInvalidBase64,
		},
		{
			name:    "missing base64 field",
			req:     func(t *testing.T) *http.Request { return jsonRequest(t, `{}`) },
			message: "No file uploaded",
		},
		{
			name:    "not json",
			req:     func(t *testing.T) *http.Request { return jsonRequest(t, `{"base64Image":`) },
			message: handlers.MsgInvalidBase64,
		},
		{
			name: "unsupported content type",
			req: func(t *testing.T) *http.Request {
				req := jsonRequest(t, "hello")
				req.Header.Set("Content-Type", "text/plain")
				return req
			},
			message: "Unsupported content type 'text/plain'. Send multipart/form-data or application/json.",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, okRemover(t), nil)
			w := serve(f.router, tt.req(t))

			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			env := decodeEnvelope(t, w)
			assert.False(t, env.Success)
			assert.Equal(t, tt.message, env.Message)
			assert.Zero(t, f.remover.calls.Load())
			assert.Empty(t, f.publisher.events)
		})
	}
}

func TestRemoveBackground_Base64RoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t, remover.NewLocalRemover(48, 0), nil)

	src := testutil.EncodePNG(t, testutil.Subject(32, 32, testutil.White, testutil.Red))
	payload, err := json.Marshal(models.Base64ImageRequest{
		Base64Image: "data:image/png;base64," + base64.StdEncoding.EncodeToString(src),
	})
	require.NoError(t, err)

	w := serve(f.router, jsonRequest(t, string(payload)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	out := decodeImage(t, decodeEnvelope(t, w))
	assert.True(t, testutil.IsPNG(out))
}

func TestRemoveBackground_RateLimited(t *testing.T) {
	t.Parallel()

	const limit = 3
	rm := okRemover(t)
	now := time.Now()
	f := newFixture(t, rm, ratelimit.NewMemoryLimiter(limit, time.Minute, func() time.Time { return now }))

	png := testutil.PNG(t, 8, 8)
	for i := 0; i < limit; i++ {
		w := serve(f.router, multipartRequest(t, "image", "a.png", "image/png", png))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := serve(f.router, multipartRequest(t, "image", "a.png", "image/png", png))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Too many requests", decodeEnvelope(t, w).Message)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, int32(limit), rm.calls.Load())

	// Unauthenticated callers never consume quota.
	req := multipartRequest(t, "image", "a.png", "image/png", png)
	req.Header.Set("pango-api-key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(f.router, req).Code)
}

func TestRemoveBackground_RemoverFailure(t *testing.T) {
	t.Parallel()

	rm := &countingRemover{err: errors.New("inference server returned 502")}
	f := newFixture(t, rm, nil)

	w := serve(f.router, multipartRequest(t, "image", "cat.png", "image/png", testutil.PNG(t, 8, 8)))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, handlers.MsgRemoveFailed, env.Message)
	assert.NotContains(t, w.Body.String(), "502")

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, models.StatusFailed, f.publisher.events[0].Status)
}

func TestRemoveBackground_RemoverPanics(t *testing.T) {
	t.Parallel()

	t.Run("recovered by timeout decorator", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, remover.WithTimeout(&countingRemover{panics: true}, time.Second), nil)
		w := serve(f.router, multipartRequest(t, "image", "cat.png", "image/png", testutil.PNG(t, 8, 8)))
		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, handlers.MsgRemoveFailed, decodeEnvelope(t, w).Message)
	})

	t.Run("recovered by middleware", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, &countingRemover{panics: true}, nil)
		w := serve(f.router, multipartRequest(t, "image", "cat.png", "image/png", testutil.PNG(t, 8, 8)))
		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Internal server error", decodeEnvelope(t, w).Message)
	})
}

func TestHealthAndIndex(t *testing.T) {
	t.Parallel()

	f := newFixture(t, okRemover(t), nil)

	w := serve(f.router, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool               `json:"success"`
		Data    models.HealthCheck `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, models.HealthHealthy, body.Data.Status)
	assert.Equal(t, models.HealthNotConfigured, body.Data.Services["redis"])
	assert.Zero(t, f.remover.calls.Load())

	w = serve(f.router, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(f.router, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Route not found", decodeEnvelope(t, w).Message)
}

func TestHealth_Unhealthy(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	formatter, err := response.NewFormatter(cfg.Response.Format)
	require.NoError(t, err)

	handler := handlers.NewBackgroundHandler(
		validator.NewImageValidator(cfg.Upload.MaxFileSize, cfg.Upload.AllowedTypes),
		okRemover(t),
		formatter,
		nil,
		map[string]handlers.HealthCheckFunc{
			"redis": func(context.Context) string { return models.HealthUnhealthy },
		},
		zap.NewNop(),
	)
	router, err := NewRouter(handler, nil, nil, cfg, zap.NewNop()).SetupRoutes()
	require.NoError(t, err)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSetupRoutes_InvalidTrustedProxy(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.TrustedProxies = []string{"not-an-ip"}

	_, err := NewRouter(nil, nil, nil, cfg, zap.NewNop()).SetupRoutes()
	assert.Error(t, err)
}

type stuckBroker struct{ release chan struct{} }

func (b *stuckBroker) Publish(context.Context, *models.RemovalEvent) error {
	<-b.release
	return nil
}

func (b *stuckBroker) HealthCheck() string { return models.HealthHealthy }
func (b *stuckBroker) Close() error        { return nil }

func TestRemoveBackground_StalledBrokerDoesNotDelayResponse(t *testing.T) {
	t.Parallel()

	broker := &stuckBroker{release: make(chan struct{})}
	defer close(broker.release)

	publisher := events.NewAsyncPublisher(broker, 1, 50*time.Millisecond, zap.NewNop())
	defer publisher.Close()

	cfg := testConfig()
	formatter, err := response.NewFormatter(cfg.Response.Format)
	require.NoError(t, err)

	handler := handlers.NewBackgroundHandler(
		validator.NewImageValidator(cfg.Upload.MaxFileSize, cfg.Upload.AllowedTypes),
		okRemover(t),
		formatter,
		publisher,
		nil,
		zap.NewNop(),
	)
	router, err := NewRouter(handler, auth.NewAPIKeyAuthenticator(true, testAPIKey), nil, cfg, zap.NewNop()).SetupRoutes()
	require.NoError(t, err)

	png := testutil.PNG(t, 8, 8)
	for i := 0; i < 5; i++ {
		start := time.Now()
		w := serve(router, multipartRequest(t, "image", "cat.png", "image/png", png))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Less(t, time.Since(start), time.Second, "request %d", i+1)
	}
}
