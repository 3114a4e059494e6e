package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/critique/backend/internal/application/critique"
	"github.com/critique/backend/internal/domain/feedback"
	"github.com/critique/backend/internal/infrastructure/logger"
	"github.com/critique/backend/internal/interfaces/http/dto"
	"github.com/critique/backend/internal/interfaces/http/middleware"
)

// FeedbackHandler serves the batch and streaming critique endpoints.
type FeedbackHandler struct {
	BaseHandler
	orchestrator *critique.Orchestrator
	heartbeat    time.Duration
}

// FeedbackOption is a functional option for configuring the handler
type FeedbackOption func(*FeedbackHandler)

// WithHeartbeat sets the keep-alive interval of the event stream. Zero
// disables keep-alives.
func WithHeartbeat(interval time.Duration) FeedbackOption {
	return func(h *FeedbackHandler) {
		h.heartbeat = interval
	}
}

// NewFeedbackHandler creates a new FeedbackHandler
func NewFeedbackHandler(orchestrator *critique.Orchestrator, opts ...FeedbackOption) *FeedbackHandler {
	h := &FeedbackHandler{
		orchestrator: orchestrator,
		heartbeat:    15 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// bind decodes and checks a FeedbackRequest. It writes the error response
// and returns false when the request cannot be served.
func (h *FeedbackHandler) bind(c *gin.Context) (feedback.Request, bool) {
	var req dto.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return feedback.Request{}, false
	}

	if unknown := h.orchestrator.Registry().Unknown(req.Personas); len(unknown) > 0 {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeUnknownPersona, fmt.Sprintf("Unknown personas: %v", unknown))
		return feedback.Request{}, false
	}

	out, err := req.ToDomain()
	if err != nil {
		h.HandleError(c, err)
		return feedback.Request{}, false
	}
	return out, true
}

// Batch runs every requested persona and answers once all have finished.
// Personas that fail are left out of the response.
//
//	POST /api/feedback
func (h *FeedbackHandler) Batch(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	results := h.orchestrator.RunBatch(c.Request.Context(), req)
	c.JSON(http.StatusOK, dto.FeedbackResponse{Feedback: results})
}

// Stream runs every requested persona and reports progress as server-sent
// events. The run is cancelled when the client goes away.
//
//	POST /api/feedback/stream
func (h *FeedbackHandler) Stream(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	log := logger.GetGinLogger(c)

	ctx := c.Request.Context()
	stream := h.orchestrator.RunStream(ctx, req)
	defer stream.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	var heartbeat <-chan time.Time
	if h.heartbeat > 0 {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("Client disconnected, cancelling stream", zap.String("run_id", stream.ID))
			return
		case <-heartbeat:
			if err := sendComment(c.Writer, "keep-alive"); err != nil {
				return
			}
			c.Writer.Flush()
		case ev, ok := <-stream.Events():
			if !ok {
				return
			}
			msg, err := toSSE(ev)
			if err != nil {
				log.Error("Failed to encode stream event", zap.Error(err), zap.String("kind", string(ev.Kind)))
				continue
			}
			if err := sendEvent(c.Writer, msg); err != nil {
				log.Warn("Failed to write stream event", zap.Error(err))
				return
			}
			c.Writer.Flush()
		}
	}
}

// toSSE maps a stream event to its wire form. Results are data-only
// messages carrying the feedback JSON.
func toSSE(ev feedback.StreamEvent) (SSEMessage, error) {
	var (
		payload any
		name    string
	)
	switch ev.Kind {
	case feedback.KindPersonaStart:
		name = string(feedback.KindPersonaStart)
		payload = dto.PersonaStartPayload{Event: name, PersonaID: ev.PersonaID, PersonaLabel: ev.PersonaLabel}
	case feedback.KindPersonaResult:
		payload = ev.Feedback
	case feedback.KindPersonaError:
		name = string(feedback.KindPersonaError)
		payload = dto.PersonaErrorPayload{Error: true, Persona: ev.PersonaID, Detail: ev.Detail}
	case feedback.KindDone:
		return SSEMessage{Event: string(feedback.KindDone), Data: "{}"}, nil
	default:
		return SSEMessage{}, fmt.Errorf("unknown event kind %q", ev.Kind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return SSEMessage{}, err
	}
	return SSEMessage{Event: name, Data: string(data)}, nil
}

// PersonaHandler lists the persona catalogue.
type PersonaHandler struct {
	BaseHandler
	orchestrator *critique.Orchestrator
}

// NewPersonaHandler creates a new PersonaHandler
func NewPersonaHandler(orchestrator *critique.Orchestrator) *PersonaHandler {
	return &PersonaHandler{orchestrator: orchestrator}
}

// List returns every registered persona without its system prompt.
//
//	GET /api/personas
func (h *PersonaHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewPersonaListResponse(h.orchestrator.Registry().List()))
}
