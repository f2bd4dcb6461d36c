package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// maxResponseSize limits decoded JSON bodies.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// ErrUntrustedHost is returned for a target outside the known backends.
// Credentials are never sent to such a host.
var ErrUntrustedHost = errors.New("target is not a known backend")

// Resolver maps an application path to the URL of the active backend.
type Resolver interface {
	Resolve(path string) string
	Origin() string
	// Trusts reports whether rawURL belongs to the local or devlab backend.
	Trusts(rawURL string) bool
}

// Credentials supplies the headers that authenticate a request.
type Credentials interface {
	Apply(req *http.Request)
}

// Client sends authenticated requests to whichever backend is active. It
// never retries.
type Client struct {
	resolver Resolver
	creds    Credentials
	http     *http.Client
	log      *zap.Logger
}

// NewClient wires the resolver and credentials to an HTTP client.
func NewClient(resolver Resolver, creds Credentials, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		resolver: resolver,
		creds:    creds,
		http:     httpClient,
		log:      log.With(zap.String("component", "transport")),
	}
}

// URL returns the absolute URL for path on the active backend. Relative
// results (local target) are joined with the local origin. Absolute paths
// are used as given.
func (c *Client) URL(path string) string {
	if isAbsolute(path) {
		return path
	}
	resolved := c.resolver.Resolve(path)
	if isAbsolute(resolved) {
		return resolved
	}
	return strings.TrimRight(c.resolver.Origin(), "/") + resolved
}

func isAbsolute(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// Do sends one request with credentials attached. The caller owns the
// response body. Failures to complete the request are *Error{Kind: transport};
// a target on any other host than the known backends is ErrUntrustedHost.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	target := c.URL(path)
	if !c.resolver.Trusts(target) {
		c.log.Warn("refusing request to unknown host", zap.String("method", method), zap.String("url", target))
		return nil, fmt.Errorf("%w: %s", ErrUntrustedHost, target)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, NewTransportError(fmt.Errorf("build request: %w", err))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.creds.Apply(req)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("method", method), zap.String("url", target), zap.Error(err))
		return nil, NewTransportError(err)
	}

	c.log.Debug("request completed",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
	)
	return resp, nil
}

// DoJSON sends in (when non-nil) as JSON and decodes a 2xx body into out
// (when non-nil). Non-2xx statuses become server or auth errors carrying the
// body's error and debug fields.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var (
		body        io.Reader
		contentType string
	)
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.Do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return DecodeJSON(resp, out)
}

// DecodeJSON checks the status of resp and decodes its body into out.
func DecodeJSON(resp *http.Response, out any) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return NewTransportError(fmt.Errorf("read body: %w", err))
	}

	if !IsSuccess(resp.StatusCode) {
		payload := ParseErrorPayload(data)
		return NewStatusError(resp.StatusCode, payload.Error, payload.Debug)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return NewProtocolError(resp.StatusCode, err)
	}
	return nil
}

// IsSuccess reports a 2xx status.
func IsSuccess(status int) bool {
	return status >= 200 && status <= 299
}

// IsJSON reports whether the Content-Type header declares JSON.
func IsJSON(header http.Header) bool {
	raw := header.Get("Content-Type")
	if raw == "" {
		return false
	}
	if mediaType, _, err := mime.ParseMediaType(raw); err == nil {
		return strings.Contains(mediaType, "application/json")
	}
	return strings.Contains(strings.ToLower(raw), "application/json")
}

// ErrorPayload is the error body shape used across the backend.
type ErrorPayload struct {
	Error string   `json:"error"`
	Debug []string `json:"debug"`
}

// ParseErrorPayload extracts error and debug from a JSON body. Non-JSON
// bodies yield an empty payload; fields of an unexpected type are skipped.
func ParseErrorPayload(data []byte) ErrorPayload {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return ErrorPayload{}
	}

	var payload ErrorPayload
	if raw, ok := fields["error"]; ok {
		if err := json.Unmarshal(raw, &payload.Error); err != nil {
			payload.Error = strings.TrimSpace(string(raw))
		}
	}
	if raw, ok := fields["debug"]; ok {
		payload.Debug = DebugLines(raw)
	}
	return payload
}

// DebugLines decodes a JSON array into display lines. Non-string items are
// rendered with their JSON text; anything that is not an array yields nil.
func DebugLines(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		var line string
		if err := json.Unmarshal(item, &line); err != nil {
			line = string(item)
		}
		lines = append(lines, line)
	}
	return lines
}
