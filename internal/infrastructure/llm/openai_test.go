package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"

	"github.com/critique/backend/internal/domain/feedback"
	domainshared "github.com/critique/backend/internal/domain/shared"
	"github.com/critique/backend/internal/infrastructure/imaging"
)

func pngFrame(t *testing.T, name string, w, h int) feedback.Frame {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return feedback.Frame{
		Image:    base64.StdEncoding.EncodeToString(buf.Bytes()),
		Metadata: feedback.DesignMetadata{FrameName: name, Dimensions: feedback.Dimensions{Width: w, Height: h}},
	}
}

func completionBody(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 1200, "completion_tokens": 300, "total_tokens": 1500},
	})
	return string(body)
}

type capturedRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

func newGatewayServer(t *testing.T, status int, body string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		if captured != nil {
			_ = json.Unmarshal(raw, captured)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGateway(t *testing.T, srv *httptest.Server) *OpenAIGateway {
	return NewOpenAIGateway(OpenAIConfig{
		BaseURL:   srv.URL + "/",
		APIKey:    "test-key",
		Model:     "gpt-4o",
		Timeout:   5 * time.Second,
		MaxTokens: 2048,
	}, imaging.NewNormalizer(100, 85), zaptest.NewLogger(t))
}

func TestOpenAIGateway_Invoke(t *testing.T) {
	var captured capturedRequest
	srv := newGatewayServer(t, http.StatusOK, completionBody(validCompletion), &captured)
	g := newTestGateway(t, srv)

	frames := []feedback.Frame{pngFrame(t, "Login", 400, 200), pngFrame(t, "Dashboard", 50, 50)}
	fb, err := g.Invoke(context.Background(), powerUser, frames, "first run")
	require.NoError(t, err)

	assert.Equal(t, "power_user", fb.Persona)
	assert.Equal(t, 6, fb.Score)

	assert.Equal(t, "gpt-4o", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "user", captured.Messages[1].Role)

	var parts []map[string]any
	require.NoError(t, json.Unmarshal(captured.Messages[1].Content, &parts))
	require.Len(t, parts, 3, "two images then the text prompt")
	for _, p := range parts[:2] {
		assert.Equal(t, "image_url", p["type"])
		url := p["image_url"].(map[string]any)["url"].(string)
		assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))
	}
	assert.Equal(t, "text", parts[2]["type"])
	assert.Contains(t, parts[2]["text"], `Frame 2: "Dashboard" (50x50)`)
}

func TestOpenAIGateway_UpstreamErrors(t *testing.T) {
	srv := newGatewayServer(t, http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit"}}`, nil)
	g := newTestGateway(t, srv)

	_, err := g.Invoke(context.Background(), powerUser, []feedback.Frame{pngFrame(t, "Login", 10, 10)}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domainshared.ErrUnavailable))
}

func TestOpenAIGateway_InvalidOutput(t *testing.T) {
	srv := newGatewayServer(t, http.StatusOK, completionBody(`{"score": 42}`), nil)
	g := newTestGateway(t, srv)

	_, err := g.Invoke(context.Background(), powerUser, []feedback.Frame{pngFrame(t, "Login", 10, 10)}, "")
	assert.True(t, errors.Is(err, feedback.ErrInvalidFeedback))
}

func TestOpenAIGateway_BadImage(t *testing.T) {
	srv := newGatewayServer(t, http.StatusOK, completionBody(validCompletion), nil)
	g := newTestGateway(t, srv)

	_, err := g.Invoke(context.Background(), powerUser, []feedback.Frame{{Image: "!!!"}}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 0")
}

func TestOpenAIGateway_ClientSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	srv := newGatewayServer(t, http.StatusOK, completionBody(validCompletion), nil)
	g := newTestGateway(t, srv)

	_, err := g.Invoke(context.Background(), powerUser, []feedback.Frame{pngFrame(t, "Login", 10, 10)}, "")
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "llm.chat_completion", spans[0].Name())
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())
}

func TestOpenAIGateway_OversizedImage(t *testing.T) {
	var captured capturedRequest
	srv := newGatewayServer(t, http.StatusOK, completionBody(validCompletion), &captured)
	normalizer := imaging.NewNormalizer(100, 85)
	normalizer.MaxPixels = 50
	g := NewOpenAIGateway(OpenAIConfig{
		BaseURL: srv.URL + "/",
		APIKey:  "test-key",
		Model:   "gpt-4o",
		Timeout: 5 * time.Second,
	}, normalizer, zaptest.NewLogger(t))

	_, err := g.Invoke(context.Background(), powerUser, []feedback.Frame{pngFrame(t, "Login", 10, 10)}, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, imaging.ErrImageTooLarge)
	assert.Contains(t, err.Error(), "frame 0")
	assert.Empty(t, captured.Model, "no request is sent for a rejected image")
}

func TestOpenAIGateway_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server watches the connection and cancels
		// r.Context() when the client disconnects.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	g := newTestGateway(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := g.Invoke(ctx, powerUser, []feedback.Frame{pngFrame(t, "Login", 10, 10)}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestStubGateway(t *testing.T) {
	g := NewStubGateway(0)
	frames := []feedback.Frame{pngFrame(t, "Login", 10, 10), pngFrame(t, "Dashboard", 10, 10)}

	fb, err := g.Invoke(context.Background(), powerUser, frames, "")
	require.NoError(t, err)
	require.NoError(t, fb.Validate())
	require.Len(t, fb.Annotations, 2)
	assert.Equal(t, 0, fb.Annotations[0].FrameIndex)
	assert.Equal(t, 1, fb.Annotations[1].FrameIndex)

	_, err = g.Invoke(context.Background(), powerUser, nil, "")
	assert.ErrorIs(t, err, feedback.ErrNoFrames)

	slow := NewStubGateway(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = slow.Invoke(ctx, powerUser, frames, "")
	assert.ErrorIs(t, err, context.Canceled)
}
