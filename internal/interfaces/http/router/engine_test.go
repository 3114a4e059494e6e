package router

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/critique/backend/internal/application/critique"
	"github.com/critique/backend/internal/domain/feedback"
	"github.com/critique/backend/internal/domain/persona"
	"github.com/critique/backend/internal/infrastructure/config"
	"github.com/critique/backend/internal/infrastructure/llm"
	"github.com/critique/backend/internal/infrastructure/ratelimit"
	"github.com/critique/backend/internal/interfaces/http/dto"
)

const flowBody = `{
	"frames": [
		{"image": "aGVsbG8=", "metadata": {"frame_name": "Login", "dimensions": {"width": 375, "height": 812}, "text_content": ["Sign in"]}},
		{"image": "aGVsbG8=", "metadata": {"frame_name": "Dashboard", "dimensions": {"width": 375, "height": 812}}}
	],
	"personas": ["first_time_user"],
	"context": "Onboarding flow"
}`

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "critique-test"},
		HTTP: config.HTTPConfig{
			MaxBodySize:      1 << 20,
			CORSAllowOrigins: []string{"*"},
		},
		LLM: config.LLMConfig{Provider: "stub", Model: "stub"},
	}
}

func newTestEngine(t *testing.T, cfg *config.Config, deps Dependencies) http.Handler {
	t.Helper()
	log := zaptest.NewLogger(t)
	deps.Config = cfg
	deps.Logger = log
	if deps.Orchestrator == nil {
		deps.Orchestrator = critique.NewOrchestrator(persona.DefaultRegistry(), llm.NewStubGateway(0), critique.WithLogger(log))
	}
	engine, err := NewEngine(deps)
	require.NoError(t, err)
	return engine
}

func do(h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type sseEvent struct {
	Event string
	Data  string
}

func parseSSE(t *testing.T, body []byte) []sseEvent {
	t.Helper()
	var (
		events []sseEvent
		cur    sseEvent
	)
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.Data != "" || cur.Event != "" {
				events = append(events, cur)
			}
			cur = sseEvent{}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			cur.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.Data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestEngine_Health(t *testing.T) {
	cfg := testConfig()
	h := newTestEngine(t, cfg, Dependencies{})

	w := do(h, http.MethodGet, HealthPath, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","auth_required":false}`, w.Body.String())

	cfg = testConfig()
	cfg.Auth.APIKey = "secret"
	h = newTestEngine(t, cfg, Dependencies{})

	w = do(h, http.MethodGet, HealthPath, "", nil)
	require.Equal(t, http.StatusOK, w.Code, "health never requires credentials")
	assert.JSONEq(t, `{"status":"ok","auth_required":true}`, w.Body.String())
}

func TestEngine_BatchFlow(t *testing.T) {
	h := newTestEngine(t, testConfig(), Dependencies{})

	w := do(h, http.MethodPost, "/api/feedback", flowBody, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp struct {
		Feedback []feedback.Feedback `json:"feedback"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Feedback, 1)

	fb := resp.Feedback[0]
	assert.Equal(t, "first_time_user", fb.Persona)
	assert.Equal(t, "First-Time User", fb.PersonaLabel)
	require.Len(t, fb.Annotations, 2)
	for i, a := range fb.Annotations {
		assert.Equal(t, i, a.FrameIndex)
		assert.NoError(t, a.Validate())
	}
	assert.Equal(t, "Login", fb.Issues[0].Area)
	assert.Equal(t, "Dashboard", fb.Issues[1].Area)
}

func TestEngine_BatchSingleFrame(t *testing.T) {
	h := newTestEngine(t, testConfig(), Dependencies{})

	body := `{"image":"aGVsbG8=","metadata":{"frame_name":"Home"},"personas":["power_user","brand_manager"]}`
	w := do(h, http.MethodPost, "/api/feedback", body, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.FeedbackResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Feedback, 2)
	assert.Equal(t, "power_user", resp.Feedback[0].Persona)
	assert.Equal(t, "brand_manager", resp.Feedback[1].Persona)
}

func TestEngine_Rejections(t *testing.T) {
	h := newTestEngine(t, testConfig(), Dependencies{})

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"unknown persona", `{"image":"aGVsbG8=","metadata":{},"personas":["nobody"]}`, dto.ErrCodeUnknownPersona},
		{"no frames", `{"personas":["power_user"]}`, dto.ErrCodeValidationRequired},
		{"image without metadata", `{"image":"aGVsbG8=","personas":["power_user"]}`, dto.ErrCodeValidationRequired},
		{"empty personas", `{"image":"aGVsbG8=","metadata":{},"personas":[]}`, dto.ErrCodeValidation},
		{"malformed json", `{"personas":`, dto.ErrCodeInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(h, http.MethodPost, "/api/feedback", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			var resp dto.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}
}

func TestEngine_StreamFlow(t *testing.T) {
	h := newTestEngine(t, testConfig(), Dependencies{})

	body := strings.Replace(flowBody, `["first_time_user"]`, `["first_time_user","power_user"]`, 1)
	w := do(h, http.MethodPost, "/api/feedback/stream", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := parseSSE(t, w.Body.Bytes())
	require.Len(t, events, 5, w.Body.String())

	for i, id := range []string{"first_time_user", "power_user"} {
		assert.Equal(t, "persona-start", events[i].Event)
		var start dto.PersonaStartPayload
		require.NoError(t, json.Unmarshal([]byte(events[i].Data), &start))
		assert.Equal(t, id, start.PersonaID)
	}

	seen := map[string]bool{}
	for _, ev := range events[2:4] {
		assert.Empty(t, ev.Event, "results are data-only messages")
		var fb feedback.Feedback
		require.NoError(t, json.Unmarshal([]byte(ev.Data), &fb))
		assert.Len(t, fb.Annotations, 2)
		seen[fb.Persona] = true
	}
	assert.True(t, seen["first_time_user"])
	assert.True(t, seen["power_user"])

	assert.Equal(t, "done", events[4].Event)
	assert.Equal(t, "{}", events[4].Data)
}

func TestEngine_StreamRejectsBeforeStreaming(t *testing.T) {
	h := newTestEngine(t, testConfig(), Dependencies{})

	w := do(h, http.MethodPost, "/api/feedback/stream", `{"personas":["ghost"],"image":"aGVsbG8=","metadata":{}}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

func TestEngine_Personas(t *testing.T) {
	h := newTestEngine(t, testConfig(), Dependencies{})

	w := do(h, http.MethodGet, "/api/personas", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "system_prompt")

	var resp dto.PersonaListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Personas, len(persona.DefaultPersonas()))
	assert.Equal(t, "first_time_user", resp.Personas[0].ID)
	assert.Equal(t, "First-Time User", resp.Personas[0].Label)
}

func TestEngine_Authentication(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.APIKey = "secret"
	h := newTestEngine(t, cfg, Dependencies{})

	w := do(h, http.MethodGet, "/api/personas", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(h, http.MethodGet, "/api/personas", "", http.Header{"X-Api-Key": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(h, http.MethodGet, "/api/personas", "", http.Header{"X-Api-Key": {"secret"}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEngine_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.RateLimitEnabled = true
	limiter := ratelimit.NewMemoryLimiter(2, time.Minute)
	t.Cleanup(limiter.Stop)
	h := newTestEngine(t, cfg, Dependencies{Limiter: limiter})

	for i := 0; i < 2; i++ {
		w := do(h, http.MethodGet, "/api/system/ping", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := do(h, http.MethodGet, "/api/system/ping", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = do(h, http.MethodGet, HealthPath, "", nil)
	assert.Equal(t, http.StatusOK, w.Code, "health is outside the limited group")
}

func TestEngine_BodyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.MaxBodySize = 64
	h := newTestEngine(t, cfg, Dependencies{})

	w := do(h, http.MethodPost, "/api/feedback", flowBody, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestEngine_CORSPreflight(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.APIKey = "secret"
	h := newTestEngine(t, cfg, Dependencies{})

	w := do(h, http.MethodOptions, "/api/feedback", "", http.Header{
		"Origin":                        {"https://www.figma.com"},
		"Access-Control-Request-Method": {"POST"},
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
