package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorWithDebug(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondErrorWithDebug(rec, http.StatusBadGateway, "boom", []string{"a"})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]any{"error": "boom", "debug": []any{"a"}}, body)

	rec = httptest.NewRecorder()
	RespondErrorWithDebug(rec, http.StatusNotFound, "missing", nil)
	assert.JSONEq(t, `{"error":"missing"}`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Empty(t, dst.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"eva"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "eva", dst.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.Error(t, DecodeJSON(req, &dst))
}
