package env

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Target names.
const (
	Local  = "local"
	Devlab = "devlab"
)

// maxConfigSize caps the discovery document.
const maxConfigSize = 64 << 10

// ErrDevlabUnavailable is returned when devlab is selected but was never
// discovered.
var ErrDevlabUnavailable = errors.New("devlab target not available")

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Target is a backend the client can talk to. The local target has an empty
// base URL: paths stay relative to the configured origin.
type Target struct {
	Name    string `json:"name"`
	BaseURL string `json:"baseUrl"`
}

// Resolver decides which backend a request goes to.
type Resolver struct {
	origin     string
	configPath string
	client     HTTPDoer
	log        *zap.Logger

	once   sync.Once
	mu     sync.RWMutex
	devlab *Target
	active string
}

// NewResolver returns a resolver with only the local target. origin is the
// local backend, configPath the discovery resource on it.
func NewResolver(origin, configPath string, client HTTPDoer, log *zap.Logger) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		origin:     strings.TrimRight(origin, "/"),
		configPath: configPath,
		client:     client,
		log:        log.With(zap.String("component", "env")),
		active:     Local,
	}
}

// Origin returns the local backend origin.
func (r *Resolver) Origin() string {
	return r.origin
}

// Discover fetches the configuration resource and registers the devlab
// target when it carries a url. Failures leave only the local target and are
// never reported to the caller. Only the first call does any work.
func (r *Resolver) Discover(ctx context.Context) {
	r.once.Do(func() {
		base, err := r.fetchDevlabURL(ctx)
		if err != nil {
			r.log.Debug("devlab discovery skipped", zap.Error(err))
			return
		}

		r.mu.Lock()
		r.devlab = &Target{Name: Devlab, BaseURL: base}
		r.mu.Unlock()
		r.log.Info("devlab target discovered", zap.String("url", base))
	})
}

func (r *Resolver) fetchDevlabURL(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.origin+r.configPath, nil)
	if err != nil {
		return "", fmt.Errorf("build discovery request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", r.configPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: status %d", r.configPath, resp.StatusCode)
	}

	var doc struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxConfigSize)).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode %s: %w", r.configPath, err)
	}

	base := strings.TrimSpace(doc.URL)
	if base == "" {
		return "", fmt.Errorf("%s has no url", r.configPath)
	}
	return base, nil
}

// Resolve turns an application path into the URL to request. Under devlab
// the devlab base (without trailing slash) is prefixed; under local the path
// is returned unchanged.
func (r *Resolver) Resolve(path string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active == Devlab && r.devlab != nil {
		return strings.TrimRight(r.devlab.BaseURL, "/") + path
	}
	return path
}

// Trusts reports whether rawURL points at the local origin or at the
// discovered devlab backend (same scheme and host, no userinfo).
func (r *Resolver) Trusts(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || u.User != nil {
		return false
	}
	if sameHost(u, r.origin) {
		return true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devlab != nil && sameHost(u, r.devlab.BaseURL)
}

func sameHost(u *url.URL, base string) bool {
	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		return false
	}
	return strings.EqualFold(u.Scheme, b.Scheme) && strings.EqualFold(u.Host, b.Host)
}

// Toggle flips between local and devlab and returns the active target. It
// does nothing when devlab was never discovered.
func (r *Resolver) Toggle() Target {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.devlab != nil {
		if r.active == Devlab {
			r.active = Local
		} else {
			r.active = Devlab
		}
	}
	return r.activeLocked()
}

// Use selects a target by name.
func (r *Resolver) Use(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch name {
	case Local:
		r.active = Local
	case Devlab:
		if r.devlab == nil {
			return ErrDevlabUnavailable
		}
		r.active = Devlab
	default:
		return fmt.Errorf("unknown environment %q", name)
	}
	return nil
}

// Active returns the target requests currently go to.
func (r *Resolver) Active() Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked()
}

// DevlabAvailable reports whether discovery found a devlab URL.
func (r *Resolver) DevlabAvailable() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devlab != nil
}

// Label is the display text for the active target.
func (r *Resolver) Label() string {
	t := r.Active()
	if t.Name == Devlab {
		return fmt.Sprintf("devlab (%s)", t.BaseURL)
	}
	return Local
}

func (r *Resolver) activeLocked() Target {
	if r.active == Devlab && r.devlab != nil {
		return *r.devlab
	}
	return Target{Name: Local}
}
