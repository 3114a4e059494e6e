package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/critique/backend/internal/interfaces/http/dto"
)

func bindRouter(limit int64) *gin.Engine {
	SetupValidator()
	router := gin.New()
	if limit > 0 {
		router.Use(BodyLimit(limit))
	}
	router.POST("/bind", func(c *gin.Context) {
		var req dto.FeedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	return router
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestHandleValidationError(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
		field    string
		message  string
	}{
		{
			name:     "missing personas",
			body:     `{"image":"x","metadata":{"frame_name":"a"}}`,
			wantCode: dto.ErrCodeValidation,
			field:    "personas",
			message:  "This field is required",
		},
		{
			name:     "empty personas",
			body:     `{"image":"x","personas":[]}`,
			wantCode: dto.ErrCodeValidation,
			field:    "personas",
			message:  "Must contain at least 1 item(s)",
		},
		{
			name:     "frame without image",
			body:     `{"frames":[{"metadata":{"frame_name":"a"}}],"personas":["a"]}`,
			wantCode: dto.ErrCodeValidation,
			field:    "frames[0].image",
			message:  "This field is required",
		},
		{
			name:     "malformed json",
			body:     `{"personas":`,
			wantCode: dto.ErrCodeInvalidJSON,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			bindRouter(0).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/bind", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			errInfo := decodeError(t, w)
			assert.Equal(t, tt.wantCode, errInfo.Code)
			if tt.field != "" {
				require.NotEmpty(t, errInfo.Details)
				assert.Equal(t, tt.field, errInfo.Details[0].Field)
				assert.Equal(t, tt.message, errInfo.Details[0].Message)
			}
		})
	}
}

func TestHandleValidationError_StreamedBodyTooLarge(t *testing.T) {
	body := `{"image":"` + strings.Repeat("A", 500) + `","personas":["a"]}`
	req := httptest.NewRequest(http.MethodPost, "/bind", strings.NewReader(body))
	req.ContentLength = -1

	w := httptest.NewRecorder()
	bindRouter(100).ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, dto.ErrCodePayloadTooLarge, decodeError(t, w).Code)
}
