package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rr, http.StatusOK, map[string]string{"key": "value"}))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"key":"value"}`, rr.Body.String())
}

func TestWriteErrorMessage(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteErrorMessage(rr, http.StatusBadRequest, "bad input")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"bad input"}`, rr.Body.String())
}

func TestWriteInternalError_HidesCause(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteInternalError(rr)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body["error"])
}

func TestStatusHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "x") }, http.StatusBadRequest},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "x") }, http.StatusForbidden},
		{"not found", func(w http.ResponseWriter) { WriteNotFoundError(w, "x") }, http.StatusNotFound},
		{"created", func(w http.ResponseWriter) { WriteCreated(w, struct{}{}) }, http.StatusCreated},
		{"success", func(w http.ResponseWriter) { WriteSuccess(w, struct{}{}) }, http.StatusOK},
		{"no content", WriteNoContent, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.write(rr)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}
