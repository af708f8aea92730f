package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "ragcore/internal/errors"
)

func TestStatusForMapsErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", apperrors.Validation("BAD_INPUT", "bad input"), http.StatusBadRequest},
		{"not found", apperrors.NotFound("kb", "kb-1"), http.StatusNotFound},
		{"exhaustion", apperrors.Exhaustion("STEP_BUDGET", "out of steps"), http.StatusTooManyRequests},
		{"transient", apperrors.Transient("LLM_TIMEOUT", "provider timeout", nil), http.StatusServiceUnavailable},
		{"degraded", apperrors.Degraded("KEYWORD_DOWN", "keyword plane down", nil), http.StatusServiceUnavailable},
		{"foreign", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestWriteErrorExposesAppErrorDetails(t *testing.T) {
	rec := httptest.NewRecorder()

	writeError(rec, zap.NewNop(), apperrors.NotFound("kb", "kb-9"))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":true,"code":"NOT_FOUND","message":"kb not found"}`, rec.Body.String())
}

func TestWriteErrorHidesForeignErrors(t *testing.T) {
	rec := httptest.NewRecorder()

	writeError(rec, zap.NewNop(), errors.New("pq: connection reset by peer"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":true,"code":"INTERNAL","message":"internal server error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestDecodeBodyRejectsMalformedJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)

	var v struct{}
	err := decodeBody(req, &v)

	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "BAD_JSON", apperrors.CodeOf(err))
}
