package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/critique/backend/internal/infrastructure/telemetry"
	"github.com/critique/backend/internal/interfaces/http/dto"
)

// SystemInfo is the static part of the system info response.
type SystemInfo struct {
	Name         string
	Provider     string
	Model        string
	PersonaCount int
	AuthRequired bool
}

// SystemHandler handles health and system endpoints
type SystemHandler struct {
	BaseHandler
	info      SystemInfo
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(info SystemInfo) *SystemHandler {
	return &SystemHandler{
		info:      info,
		startTime: time.Now(),
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	AuthRequired bool   `json:"auth_required"`
}

// Health reports liveness and whether clients must send credentials.
//
//	GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", AuthRequired: h.info.AuthRequired})
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	GoVersion    string `json:"go_version"`
	Uptime       string `json:"uptime"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	PersonaCount int    `json:"persona_count"`
}

// GetSystemInfo returns version, uptime and model settings.
//
//	GET /api/system/info
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(SystemInfoResponse{
		Name:         h.info.Name,
		Version:      telemetry.ServiceVersion,
		GoVersion:    runtime.Version(),
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Provider:     h.info.Provider,
		Model:        h.info.Model,
		PersonaCount: h.info.PersonaCount,
	}))
}

// PingResponse represents the ping response
type PingResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Ping is a cheap authenticated round trip.
//
//	GET /api/system/ping
func (h *SystemHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(PingResponse{
		Message:   "pong",
		Timestamp: time.Now().Format(time.RFC3339),
	}))
}
