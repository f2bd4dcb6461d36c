// Package respond maps client errors to companion server responses.
package respond

import (
	"errors"
	"net/http"

	"github.com/zhouzirui/jarvik/webclient/internal/service/backend"
	"github.com/zhouzirui/jarvik/webclient/internal/service/blob"
	"github.com/zhouzirui/jarvik/webclient/internal/service/env"
	"github.com/zhouzirui/jarvik/webclient/internal/service/transport"
	"github.com/zhouzirui/jarvik/webclient/pkg/utils"
)

// Status returns the status the companion server answers with for err.
// Backend failures keep their status; unreachable or unreadable backends
// become 502.
func Status(err error) int {
	var te *transport.Error
	switch {
	case errors.Is(err, backend.ErrInvalidRequest), errors.Is(err, transport.ErrUntrustedHost):
		return http.StatusBadRequest
	case errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, env.ErrDevlabUnavailable):
		return http.StatusConflict
	case errors.As(err, &te):
		switch te.Kind {
		case transport.KindAuth:
			return http.StatusUnauthorized
		case transport.KindServer:
			if te.Status >= 400 {
				return te.Status
			}
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as {"error": ..., "debug": [...]}.
func Error(w http.ResponseWriter, err error) {
	var debug []string
	var te *transport.Error
	if errors.As(err, &te) {
		debug = te.Debug
	}
	utils.RespondErrorWithDebug(w, Status(err), transport.Message(err), debug)
}
