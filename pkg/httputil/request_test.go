package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	var dest struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"doc"}`))
	require.NoError(t, ParseJSON(req, &dest))
	assert.Equal(t, "doc", dest.Name)

	for name, body := range map[string]string{
		"truncated":     `{`,
		"unknown field": `{"name":"doc","nmae":"x"}`,
		"trailing data": `{"name":"doc"} {"name":"other"}`,
	} {
		req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		assert.Error(t, ParseJSON(req, &dest), name)
	}
}

func TestParseJSONOrError(t *testing.T) {
	var dest map[string]interface{}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`))
	rr := httptest.NewRecorder()

	assert.False(t, ParseJSONOrError(rr, req, &dest))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestParsePathInt64(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		want    int64
		wantErr bool
	}{
		{"valid", map[string]string{"org_id": "12"}, 12, false},
		{"missing", map[string]string{}, 0, true},
		{"invalid", map[string]string{"org_id": "abc"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), tt.vars)
			got, err := ParsePathInt64(req, "org_id")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePathInt64OrError(t *testing.T) {
	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"org_id": "x"})
	rr := httptest.NewRecorder()

	_, ok := ParsePathInt64OrError(rr, req, "org_id")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestParseOptionalPathInt64(t *testing.T) {
	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{})
	got, err := ParseOptionalPathInt64(req, "item_id")
	require.NoError(t, err)
	assert.Nil(t, got)

	req = mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"item_id": "9"})
	got, err = ParseOptionalPathInt64(req, "item_id")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(9), *got)
}

func TestParseOptionalQueryInt64(t *testing.T) {
	got, err := ParseOptionalQueryInt64(httptest.NewRequest(http.MethodGet, "/", nil), "item_id")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseOptionalQueryInt64(httptest.NewRequest(http.MethodGet, "/?item_id=99", nil), "item_id")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(99), *got)

	_, err = ParseOptionalQueryInt64(httptest.NewRequest(http.MethodGet, "/?item_id=nope", nil), "item_id")
	assert.Error(t, err)
}

func TestRequestIDMiddleware(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	var seen string
	handler := RequestIDMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = LoggerFromRequest(r).Data["request_id"].(string)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", seen)
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
