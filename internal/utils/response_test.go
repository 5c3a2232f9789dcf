package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "NOT_FOUND", errorCode(http.StatusNotFound))
	assert.Equal(t, "SERVICE_UNAVAILABLE", errorCode(http.StatusServiceUnavailable))
	assert.Equal(t, "INTERNAL_SERVER_ERROR", errorCode(http.StatusInternalServerError))
	assert.Equal(t, "UNKNOWN_ERROR", errorCode(799))
}

func TestNewPage(t *testing.T) {
	assert.True(t, NewPage(120, 50, 0, 50).HasMore)
	assert.True(t, NewPage(120, 50, 50, 50).HasMore)
	assert.False(t, NewPage(120, 50, 100, 20).HasMore)
	assert.False(t, NewPage(0, 50, 0, 0).HasMore)
}

func TestErrorResponse_CarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(RequestIDKey, "req-1")

	ErrorResponse(c, http.StatusNotFound, "Scanner not found", errors.New("scanner not found: front"))

	var body APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, body.Success)
	assert.Equal(t, "req-1", body.RequestID)
	require.NotNil(t, body.Error)
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.Equal(t, "scanner not found: front", body.Error.Details)
}
