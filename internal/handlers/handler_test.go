package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chatmux/chatmux/internal/config"
	"github.com/chatmux/chatmux/internal/i18n"
	"github.com/chatmux/chatmux/internal/middleware"
	"github.com/chatmux/chatmux/internal/services/ai"
	"github.com/chatmux/chatmux/internal/services/auth"
	"github.com/chatmux/chatmux/internal/services/chat"
	"github.com/chatmux/chatmux/internal/services/mode"
	"github.com/chatmux/chatmux/internal/services/storage"
	"github.com/chatmux/chatmux/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	reply     string
	err       error
	fragments []string
	// block holds the stream open after its fragments until cancelled
	block bool
}

func (p *stubProvider) Generate(ctx context.Context, prompt ai.Prompt) (string, error) {
	return p.reply, p.err
}

func (p *stubProvider) GenerateStream(ctx context.Context, prompt ai.Prompt) (ai.Stream, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &stubStream{ctx: ctx, fragments: append([]string(nil), p.fragments...), block: p.block}, nil
}

type stubStream struct {
	ctx       context.Context
	fragments []string
	block     bool
}

func (s *stubStream) Recv() (string, error) {
	if len(s.fragments) > 0 {
		f := s.fragments[0]
		s.fragments = s.fragments[1:]
		return f, nil
	}
	if s.block {
		<-s.ctx.Done()
		return "", s.ctx.Err()
	}
	return "", io.EOF
}

func (s *stubStream) Close() error { return nil }

type testServer struct {
	*httptest.Server
	orchestrator *chat.Orchestrator
	auth         *auth.Service
}

func newTestServer(t *testing.T, provider ai.Provider, maxRequests int) *testServer {
	t.Helper()

	log := logger.NewNop()
	localizer, err := i18n.NewLocalizer(&config.I18nConfig{DefaultLanguage: "en", Languages: []string{"en", "zh"}})
	require.NoError(t, err)

	authService, err := auth.NewService(&config.AuthConfig{Secret: "test-secret", Algorithm: "HS256", TokenTTL: time.Hour})
	require.NoError(t, err)

	store := storage.NewMemoryStorage(&config.MemoryConfig{DefaultExpiration: time.Hour}, log)
	o := chat.NewOrchestrator(chat.Deps{
		Provider:   provider,
		Store:      store,
		Classifier: mode.NewClassifier(time.Minute, localizer, log),
		Translator: localizer,
		Logger:     log,
	}, chat.Options{
		ResponseTimeout: time.Second,
		CacheEnabled:    true,
		ResponseTTL:     time.Minute,
		Context:         config.ContextConfig{MaxHistory: 15, TurnCeiling: 1000, TruncatedLength: 800},
	})

	h := NewHandler(o, store, localizer, log)
	srv := httptest.NewServer(NewRouter(h, RouterDeps{
		Limiter:        middleware.NewSlidingWindowLimiter(true, maxRequests, time.Minute, time.Now, log),
		ExemptPaths:    []string{"/", "/health"},
		Resolver:       authService,
		AllowedOrigins: []string{"*"},
	}))
	t.Cleanup(func() {
		srv.Close()
		require.NoError(t, o.Wait(context.Background()))
	})

	return &testServer{Server: srv, orchestrator: o, auth: authService}
}

func (s *testServer) do(t *testing.T, method, path, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHandleMessage(t *testing.T) {
	srv := newTestServer(t, &stubProvider{reply: "**bold** answer"}, 10)

	resp := srv.do(t, http.MethodPost, "/api/chat/message", `{"content":"what is a channel","mode":"research"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.NotEmpty(t, resp.Header.Get(middleware.CorrelationIDHeader))
	assert.NotEmpty(t, resp.Header.Get("X-Process-Time"))
	assert.Equal(t, "10", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", resp.Header.Get("X-RateLimit-Remaining"))

	body := decode(t, resp)
	assert.Equal(t, "research", body["mode"])
	assert.Contains(t, body["content"], "<strong>bold</strong>")
	assert.Len(t, body["steps"], 3)
}

func TestHandleMessage_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		provider   *stubProvider
		body       string
		wantStatus int
		wantDetail string
	}{
		{"malformed json", &stubProvider{}, `{"content":`, http.StatusBadRequest, "Invalid request"},
		{"missing content", &stubProvider{}, `{"mode":"code"}`, http.StatusBadRequest, "Invalid request"},
		{"unknown mode", &stubProvider{}, `{"content":"hi","mode":"poem"}`, http.StatusBadRequest, "Invalid request"},
		{"provider failure", &stubProvider{err: errors.New("secret upstream detail")}, `{"content":"hi","mode":"standard"}`, http.StatusBadGateway, "The AI provider failed to respond"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.provider, 10)
			resp := srv.do(t, http.MethodPost, "/api/chat/message", tt.body, nil)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			body := decode(t, resp)
			assert.Contains(t, body["detail"], tt.wantDetail)
			assert.NotContains(t, body["detail"], "secret upstream detail")
			assert.Equal(t, resp.Header.Get(middleware.CorrelationIDHeader), body["correlation_id"])
		})
	}
}

func TestHandleMessage_LocalizedErrors(t *testing.T) {
	srv := newTestServer(t, &stubProvider{}, 10)

	resp := srv.do(t, http.MethodPost, "/api/chat/stop/unknown", "", http.Header{"Accept-Language": {"zh-CN,zh;q=0.9"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEqual(t, "Stream not found", decode(t, resp)["detail"])
}

func TestAdmission(t *testing.T) {
	srv := newTestServer(t, &stubProvider{reply: "ok"}, 2)
	body := `{"content":"hi","mode":"standard"}`

	for i := 0; i < 2; i++ {
		resp := srv.do(t, http.MethodPost, "/api/chat/message", body, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := srv.do(t, http.MethodPost, "/api/chat/message", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))

	health := srv.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, health.StatusCode, "health is exempt")
}

func readEvents(t *testing.T, r io.Reader) []map[string]interface{} {
	t.Helper()
	var events []map[string]interface{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}

func TestHandleStream(t *testing.T) {
	srv := newTestServer(t, &stubProvider{fragments: []string{"Hello ", "```go\nx := 1\n```"}}, 10)

	resp := srv.do(t, http.MethodPost, "/api/chat/message/stream", `{"content":"hi","mode":"standard"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	events := readEvents(t, resp.Body)
	var types []string
	for _, ev := range events {
		types = append(types, ev["type"].(string))
	}
	assert.Equal(t, []string{"start", "content", "code_block", "end", "done"}, types)
	assert.NotEmpty(t, events[0]["request_id"])
	assert.Equal(t, "go", events[2]["language"])
}

func TestHandleStream_Stop(t *testing.T) {
	srv := newTestServer(t, &stubProvider{fragments: []string{"partial "}, block: true}, 10)

	resp := srv.do(t, http.MethodPost, "/api/chat/message/stream", `{"content":"hi","mode":"standard"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	var start map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &start))
	requestID := start["request_id"].(string)

	require.Eventually(t, func() bool { return srv.orchestrator.ActiveStreams() == 1 }, time.Second, 5*time.Millisecond)

	stop := srv.do(t, http.MethodPost, "/api/chat/stop/"+requestID, "", nil)
	assert.Equal(t, http.StatusOK, stop.StatusCode)

	rest := readEvents(t, reader)
	require.NotEmpty(t, rest)
	assert.Equal(t, "stopped", rest[len(rest)-1]["type"])
	for _, ev := range rest[:len(rest)-1] {
		assert.Equal(t, "content", ev["type"])
	}

	again := srv.do(t, http.MethodPost, "/api/chat/stop/"+requestID, "", nil)
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
}

func TestSessions(t *testing.T) {
	srv := newTestServer(t, &stubProvider{reply: "stored answer"}, 20)

	token, err := srv.auth.IssueToken("user-1", "u1@example.com")
	require.NoError(t, err)
	owner := http.Header{"Authorization": {"Bearer " + token}}

	created := srv.do(t, http.MethodPost, "/api/chat/sessions", "", owner)
	require.Equal(t, http.StatusCreated, created.StatusCode)
	sessionID := decode(t, created)["session_id"].(string)

	msg := srv.do(t, http.MethodPost, "/api/chat/message", `{"content":"remember me","mode":"standard","session_id":"`+sessionID+`"}`, owner)
	require.Equal(t, http.StatusOK, msg.StatusCode)
	require.NoError(t, srv.orchestrator.Wait(context.Background()))

	got := srv.do(t, http.MethodGet, "/api/chat/sessions/"+sessionID, "", owner)
	require.Equal(t, http.StatusOK, got.StatusCode)
	turns := decode(t, got)["turns"].([]interface{})
	require.Len(t, turns, 2)
	assert.Equal(t, "stored answer", turns[1].(map[string]interface{})["content"])

	anonymous := srv.do(t, http.MethodGet, "/api/chat/sessions/"+sessionID, "", nil)
	assert.Equal(t, http.StatusNotFound, anonymous.StatusCode, "sessions are private to their owner")

	deleted := srv.do(t, http.MethodDelete, "/api/chat/sessions/"+sessionID, "", owner)
	assert.Equal(t, http.StatusOK, deleted.StatusCode)

	missing := srv.do(t, http.MethodDelete, "/api/chat/sessions/"+sessionID, "", owner)
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestWriteError_Statuses(t *testing.T) {
	localizer, err := i18n.NewLocalizer(&config.I18nConfig{DefaultLanguage: "en", Languages: []string{"en"}})
	require.NoError(t, err)
	h := NewHandler(nil, nil, localizer, logger.NewNop())

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{"client went away", chat.ErrCancelled, statusClientClosedRequest, "Request cancelled"},
		{"deadline", chat.ErrTimeout, http.StatusRequestTimeout, "Request timed out"},
		{"foreign session", storage.ErrSessionNotFound, http.StatusNotFound, "Session not found"},
		{"unclassified", errors.New("dial tcp 10.0.0.3:6379: refused"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/chat/message", nil)
			req = req.WithContext(middleware.WithCorrelationID(req.Context(), "corr-1"))
			rec := httptest.NewRecorder()

			h.writeError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, `{"detail":"`+tt.wantDetail+`","correlation_id":"corr-1"}`, rec.Body.String())
		})
	}
}

func TestChat_ForeignSessionIsHidden(t *testing.T) {
	srv := newTestServer(t, &stubProvider{reply: "private answer", fragments: []string{"x"}}, 20)

	aliceToken, err := srv.auth.IssueToken("alice", "")
	require.NoError(t, err)
	bobToken, err := srv.auth.IssueToken("bob", "")
	require.NoError(t, err)
	alice := http.Header{"Authorization": {"Bearer " + aliceToken}}
	bob := http.Header{"Authorization": {"Bearer " + bobToken}}

	created := srv.do(t, http.MethodPost, "/api/chat/sessions", "", alice)
	require.Equal(t, http.StatusCreated, created.StatusCode)
	sessionID := decode(t, created)["session_id"].(string)

	body := `{"content":"what did alice say","mode":"standard","session_id":"` + sessionID + `"}`

	resp := srv.do(t, http.MethodPost, "/api/chat/message", body, bob)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Session not found", decode(t, resp)["detail"])

	anonymous := srv.do(t, http.MethodPost, "/api/chat/message", body, nil)
	assert.Equal(t, http.StatusNotFound, anonymous.StatusCode)

	stream := srv.do(t, http.MethodPost, "/api/chat/message/stream", body, bob)
	assert.Equal(t, http.StatusNotFound, stream.StatusCode)
	assert.Equal(t, 0, srv.orchestrator.ActiveStreams())

	resp = srv.do(t, http.MethodPost, "/api/chat/message", body, alice)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
