package credentials

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/zhouzirui/jarvik/webclient/internal/model/session"
)

// Header names sent to the backend.
const (
	HeaderAuthorization = "Authorization"
	HeaderAPIKey        = "X-API-Key"
)

// Attacher adds the stored credentials to outgoing requests. The store is
// read on every call so a login or logout applies to the next request.
type Attacher struct {
	store session.Store
	log   *zap.Logger
}

// NewAttacher returns an Attacher reading from store.
func NewAttacher(store session.Store, log *zap.Logger) *Attacher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Attacher{store: store, log: log.With(zap.String("component", "credentials"))}
}

// HeadersFor returns the credential headers for the next request. An
// unreadable store is treated as anonymous.
func (a *Attacher) HeadersFor() map[string]string {
	headers := make(map[string]string, 2)

	sess, err := a.store.Load()
	if err != nil {
		a.log.Warn("session unreadable, sending anonymous request", zap.Error(err))
		return headers
	}

	if sess.Token != "" {
		headers[HeaderAuthorization] = "Bearer " + sess.Token
	}
	if sess.APIKey != "" {
		headers[HeaderAPIKey] = sess.APIKey
	}
	return headers
}

// Apply sets the credential headers on req.
func (a *Attacher) Apply(req *http.Request) {
	for name, value := range a.HeadersFor() {
		req.Header.Set(name, value)
	}
}
