package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/critique/backend/internal/domain/feedback"
	"github.com/critique/backend/internal/domain/persona"
	domainshared "github.com/critique/backend/internal/domain/shared"
	"github.com/critique/backend/internal/infrastructure/imaging"
	"github.com/critique/backend/internal/infrastructure/logger"
	"github.com/critique/backend/internal/infrastructure/telemetry"
)

// OpenAIConfig configures OpenAIGateway.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int64
	Temperature float64
	HTTPClient  *http.Client
}

// OpenAIGateway calls an OpenAI-compatible chat completions endpoint with the
// screenshots inlined as data URLs.
type OpenAIGateway struct {
	client     openai.Client
	cfg        OpenAIConfig
	normalizer *imaging.Normalizer
	logger     *zap.Logger
}

var _ feedback.Gateway = (*OpenAIGateway)(nil)

// NewOpenAIGateway creates a gateway. The client never retries: a failed
// call is reported to the orchestrator as that persona's failure.
func NewOpenAIGateway(cfg OpenAIConfig, normalizer *imaging.Normalizer, log *zap.Logger) *OpenAIGateway {
	if log == nil {
		log = zap.NewNop()
	}
	if normalizer == nil {
		normalizer = imaging.NewNormalizer(0, 0)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAIGateway{
		client:     openai.NewClient(opts...),
		cfg:        cfg,
		normalizer: normalizer,
		logger:     log.Named("llm"),
	}
}

// Invoke asks the model for p's critique of frames.
func (g *OpenAIGateway) Invoke(ctx context.Context, p persona.Persona, frames []feedback.Frame, contextText string) (*feedback.Feedback, error) {
	if len(frames) == 0 {
		return nil, feedback.ErrNoFrames
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "llm", "chat_completion",
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.SpanAttrModel, g.cfg.Model),
		telemetry.WithAttribute(telemetry.SpanAttrPersonaID, p.ID),
	)
	defer span.End()
	log := logger.WithLogger(ctx, g.logger).With(zap.String("persona_id", p.ID))

	parts, err := g.imageParts(log, frames)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	parts = append(parts, openai.TextContentPart(UserPrompt(p, frames, contextText)))

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt(p, len(frames) > 1)),
			openai.UserMessage(parts),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	if g.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(g.cfg.MaxTokens)
	}
	if g.cfg.Temperature > 0 {
		params.Temperature = openai.Float(g.cfg.Temperature)
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		err = classify(err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttribute(span, telemetry.SpanAttrPromptTokens, resp.Usage.PromptTokens)
	telemetry.SetAttribute(span, telemetry.SpanAttrOutputTokens, resp.Usage.CompletionTokens)
	log.Debug("Model call finished",
		zap.Duration("latency", time.Since(start)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)

	if len(resp.Choices) == 0 {
		telemetry.RecordError(span, ErrEmptyCompletion)
		return nil, ErrEmptyCompletion
	}

	fb, err := ParseFeedback(resp.Choices[0].Message.Content, p, len(frames))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return fb, nil
}

func (g *OpenAIGateway) imageParts(log *logger.ContextLogger, frames []feedback.Frame) ([]openai.ChatCompletionContentPartUnionParam, error) {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(frames)+1)
	for i, f := range frames {
		raw, err := imaging.DecodeBase64(f.Image)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		img, err := g.normalizer.Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if img.Downscaled() {
			log.Info("Downscaled image",
				zap.Int("frame_index", i),
				zap.String("from", fmt.Sprintf("%dx%d", img.OriginalWidth, img.OriginalHeight)),
				zap.String("to", fmt.Sprintf("%dx%d", img.Width, img.Height)),
			)
		}
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img.Data),
		}))
	}
	return parts, nil
}

// classify wraps API errors so that upstream unavailability can be told
// apart from bad output.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: model endpoint returned %d: %w", domainshared.ErrUnavailable, apiErr.StatusCode, err)
		}
		return fmt.Errorf("model endpoint returned %d: %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("model call: %w", err)
}
