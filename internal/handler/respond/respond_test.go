package respond

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/jarvik/webclient/internal/service/backend"
	"github.com/zhouzirui/jarvik/webclient/internal/service/blob"
	"github.com/zhouzirui/jarvik/webclient/internal/service/env"
	"github.com/zhouzirui/jarvik/webclient/internal/service/transport"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: model failed on required", backend.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("%w: https://files.example.com/a.txt", transport.ErrUntrustedHost), http.StatusBadRequest},
		{blob.ErrNotFound, http.StatusNotFound},
		{env.ErrDevlabUnavailable, http.StatusConflict},
		{transport.NewStatusError(http.StatusUnauthorized, "", nil), http.StatusUnauthorized},
		{transport.NewStatusError(http.StatusNotFound, "not found", nil), http.StatusNotFound},
		{transport.NewTransportError(errors.New("refused")), http.StatusBadGateway},
		{transport.NewProtocolError(http.StatusOK, errors.New("eof")), http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Status(tc.err), tc.err.Error())
	}
}

func TestErrorCarriesDebug(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, transport.NewStatusError(http.StatusInternalServerError, "ollama down", []string{"trace"}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"ollama down","debug":["trace"]}`, rec.Body.String())
}
