package response

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	apperrors "github.com/smileagent/autoreply-engine/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestSuccess(t *testing.T) {
	c, rec := newTestContext()

	err := Success(c, map[string]string{"key": "value"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Contains(t, rec.Body.String(), `"key":"value"`)
}

func TestAccepted(t *testing.T) {
	c, rec := newTestContext()

	err := Accepted(c, nil, "tick triggered")
	require.NoError(t, err)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "tick triggered")
}

func TestBadRequest(t *testing.T) {
	c, rec := newTestContext()

	err := BadRequest(c, "invalid tenant ID")
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Contains(t, rec.Body.String(), apperrors.CodeInvalidInput)
}

func TestNotFound(t *testing.T) {
	c, rec := newTestContext()

	err := NotFound(c, "thread not found")
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), apperrors.CodeNotFound)
}

func TestError_StatusMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{apperrors.ErrNotFound, http.StatusNotFound, apperrors.CodeNotFound},
		{apperrors.ErrInvalidInput, http.StatusBadRequest, apperrors.CodeInvalidInput},
		{apperrors.ErrQuotaExceeded, http.StatusTooManyRequests, apperrors.CodeQuotaExceeded},
		{apperrors.ErrAuthExpired, http.StatusConflict, apperrors.CodeAuthExpired},
		{apperrors.ErrUnauthorized, http.StatusUnauthorized, apperrors.CodeUnauthorized},
		{apperrors.ErrTransient, http.StatusBadGateway, apperrors.CodeTransient},
		{apperrors.ErrInternal, http.StatusInternalServerError, apperrors.CodeInternalError},
	}

	for _, tt := range tests {
		c, rec := newTestContext()

		err := Error(c, fmt.Errorf("wrapped: %w", tt.err))
		require.NoError(t, err)

		assert.Equal(t, tt.wantStatus, rec.Code, "error %v", tt.err)
		assert.Contains(t, rec.Body.String(), tt.wantCode)
	}
}

func TestError_GenerationFailureIs500(t *testing.T) {
	c, rec := newTestContext()

	err := Error(c, apperrors.ErrGenerationFailed)
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), apperrors.CodeGenerationFailed)
}
