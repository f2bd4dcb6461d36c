package router

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/zhouzirui/jarvik/webclient/internal/model/account"
	"github.com/zhouzirui/jarvik/webclient/internal/model/ask"
	"github.com/zhouzirui/jarvik/webclient/internal/model/knowledge"
	"github.com/zhouzirui/jarvik/webclient/internal/model/session"
	"github.com/zhouzirui/jarvik/webclient/internal/service/activity"
	askservice "github.com/zhouzirui/jarvik/webclient/internal/service/ask"
	"github.com/zhouzirui/jarvik/webclient/internal/service/backend"
	"github.com/zhouzirui/jarvik/webclient/internal/service/blob"
	"github.com/zhouzirui/jarvik/webclient/internal/service/credentials"
	"github.com/zhouzirui/jarvik/webclient/internal/service/env"
	"github.com/zhouzirui/jarvik/webclient/internal/service/transport"
)

// Operation names carried by activity events.
const (
	OpAsk         = "ask"
	OpLogin       = "login"
	OpSwitchModel = "switch_model"
	OpUpload      = "upload"
	OpReload      = "reload"
)

// Options 配置 Router 的各个协作者。零值字段使用默认实现。
type Options struct {
	// Origin is the local backend, e.g. http://127.0.0.1:8010.
	Origin           string
	DevlabConfigPath string
	AskRouting       string
	HTTPClient       *http.Client
	Store            session.Store
	Blobs            *blob.Store
	Hub              *activity.Hub
	Log              *zap.Logger
}

// Router is the single entry point of the client: it resolves the target
// backend, attaches credentials, sends requests and hands results back as
// plain data. It renders nothing.
type Router struct {
	resolver   *env.Resolver
	creds      *credentials.Attacher
	client     *transport.Client
	dispatcher *askservice.Dispatcher
	backend    *backend.Client
	store      session.Store
	blobs      *blob.Store
	hub        *activity.Hub
	log        *zap.Logger

	// sessMu guards session read-modify-write.
	sessMu sync.Mutex
}

// New wires a Router.
func New(opts Options) *Router {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	store := opts.Store
	if store == nil {
		store = session.NewMemoryStore(session.Session{})
	}
	blobs := opts.Blobs
	if blobs == nil {
		blobs = blob.NewStore("blob:", 0)
	}
	hub := opts.Hub
	if hub == nil {
		hub = activity.NewHub()
	}

	resolver := env.NewResolver(opts.Origin, opts.DevlabConfigPath, httpClient, log)
	creds := credentials.NewAttacher(store, log)
	client := transport.NewClient(resolver, creds, httpClient, log)

	return &Router{
		resolver:   resolver,
		creds:      creds,
		client:     client,
		dispatcher: askservice.NewDispatcher(client, blobs, opts.AskRouting, log),
		backend:    backend.NewClient(client, log),
		store:      store,
		blobs:      blobs,
		hub:        hub,
		log:        log.With(zap.String("component", "router")),
	}
}

// Discover looks up the devlab backend once. Failures are silent.
func (r *Router) Discover(ctx context.Context) {
	r.resolver.Discover(ctx)
}

// Activity returns the hub busy indicators subscribe to.
func (r *Router) Activity() *activity.Hub {
	return r.hub
}

// EnvState describes the active backend.
type EnvState struct {
	Active          env.Target `json:"active"`
	Label           string     `json:"label"`
	DevlabAvailable bool       `json:"devlabAvailable"`
}

// Environment returns the active target.
func (r *Router) Environment() EnvState {
	return EnvState{
		Active:          r.resolver.Active(),
		Label:           r.resolver.Label(),
		DevlabAvailable: r.resolver.DevlabAvailable(),
	}
}

// ToggleEnvironment flips between local and devlab. Without devlab nothing
// changes.
func (r *Router) ToggleEnvironment() EnvState {
	t := r.resolver.Toggle()
	r.log.Info("environment toggled", zap.String("target", t.Name))
	return r.Environment()
}

// UseEnvironment selects a target by name.
func (r *Router) UseEnvironment(name string) (EnvState, error) {
	if err := r.resolver.Use(strings.ToLower(strings.TrimSpace(name))); err != nil {
		return r.Environment(), err
	}
	return r.Environment(), nil
}

// URL returns the absolute URL of path on the active backend.
func (r *Router) URL(path string) string {
	return r.client.URL(path)
}

// SessionState 是会话的对外视图，不暴露凭证本身。
type SessionState struct {
	LoggedIn  bool `json:"loggedIn"`
	HasAPIKey bool `json:"hasApiKey"`
}

// Session reports which credentials are stored.
func (r *Router) Session() (SessionState, error) {
	sess, err := r.store.Load()
	if err != nil {
		return SessionState{}, err
	}
	return SessionState{LoggedIn: sess.Token != "", HasAPIKey: sess.APIKey != ""}, nil
}

// HeadersFor returns the credential headers the next request carries.
func (r *Router) HeadersFor() map[string]string {
	return r.creds.HeadersFor()
}

// Login exchanges credentials for a token and stores it next to any API key
// already present.
func (r *Router) Login(ctx context.Context, nick, password string) (err error) {
	id := r.hub.Start(OpLogin)
	defer func() { r.finish(id, OpLogin, err) }()

	token, err := r.backend.Login(ctx, account.LoginRequest{Nick: strings.TrimSpace(nick), Password: password})
	if err != nil {
		return err
	}
	return r.update(func(s *session.Session) { s.Token = token })
}

// Logout destroys the session.
func (r *Router) Logout() error {
	r.sessMu.Lock()
	defer r.sessMu.Unlock()

	if err := r.store.Clear(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	r.log.Info("logged out")
	return nil
}

// SetAPIKey stores key for the X-API-Key header. An empty key removes it.
func (r *Router) SetAPIKey(key string) error {
	return r.update(func(s *session.Session) { s.APIKey = strings.TrimSpace(key) })
}

func (r *Router) update(fn func(*session.Session)) error {
	r.sessMu.Lock()
	defer r.sessMu.Unlock()

	sess, err := r.store.Load()
	if err != nil {
		r.log.Warn("session unreadable, starting a new one", zap.Error(err))
		sess = session.Session{}
	}
	fn(&sess)
	if err := r.store.Save(sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Ask sends a question and returns exactly one result. A 401 destroys the
// session.
func (r *Router) Ask(ctx context.Context, req ask.Request) ask.Result {
	id := r.hub.Start(OpAsk)

	result := r.dispatcher.Dispatch(ctx, req)
	if result.ErrorKind == ask.ErrorAuth {
		r.dropSession()
	}

	r.hub.Finish(id, OpAsk, result.Error)
	return result
}

// Blob returns the content behind a binary answer's reference.
func (r *Router) Blob(ref string) (*blob.Blob, error) {
	return r.blobs.Get(ref)
}

// RevokeBlob releases a binary answer's reference.
func (r *Router) RevokeBlob(ref string) {
	if ref == "" {
		return
	}
	r.blobs.Revoke(ref)
}

// Model returns the model the backend is running.
func (r *Router) Model(ctx context.Context) (account.ModelState, error) {
	state, err := r.backend.Model(ctx)
	return state, r.check(err)
}

// SwitchModel restarts the backend with another model.
func (r *Router) SwitchModel(ctx context.Context, model string) (state account.ModelState, err error) {
	id := r.hub.Start(OpSwitchModel)
	defer func() { r.finish(id, OpSwitchModel, err) }()

	state, err = r.backend.SwitchModel(ctx, model)
	return state, r.check(err)
}

// SendFeedback rates an answer.
func (r *Router) SendFeedback(ctx context.Context, fb account.Feedback) error {
	return r.check(r.backend.SendFeedback(ctx, fb))
}

// Topics lists knowledge base topics.
func (r *Router) Topics(ctx context.Context) ([]string, error) {
	topics, err := r.backend.Topics(ctx)
	return topics, r.check(err)
}

// UploadKnowledge sends a document to the knowledge base.
func (r *Router) UploadKnowledge(ctx context.Context, req knowledge.UploadRequest) (resp knowledge.UploadResponse, err error) {
	id := r.hub.Start(OpUpload)
	defer func() { r.finish(id, OpUpload, err) }()

	resp, err = r.backend.UploadKnowledge(ctx, req)
	return resp, r.check(err)
}

// Pending lists uploads awaiting approval.
func (r *Router) Pending(ctx context.Context) ([]knowledge.PendingItem, error) {
	items, err := r.backend.Pending(ctx)
	return items, r.check(err)
}

// Approve accepts a pending upload.
func (r *Router) Approve(ctx context.Context, file string) error {
	return r.check(r.backend.Approve(ctx, file))
}

// Reject discards a pending upload.
func (r *Router) Reject(ctx context.Context, file string) error {
	return r.check(r.backend.Reject(ctx, file))
}

// DeleteMemory removes remembered exchanges.
func (r *Router) DeleteMemory(ctx context.Context, req account.MemoryDeleteRequest) (string, error) {
	msg, err := r.backend.DeleteMemory(ctx, req)
	return msg, r.check(err)
}

// AddMemory stores one exchange in the conversation memory.
func (r *Router) AddMemory(ctx context.Context, req account.MemoryAddRequest) error {
	return r.check(r.backend.AddMemory(ctx, req))
}

// SearchMemory looks up remembered exchanges.
func (r *Router) SearchMemory(ctx context.Context, query string) ([]account.MemoryEntry, error) {
	entries, err := r.backend.SearchMemory(ctx, query)
	return entries, r.check(err)
}

// SearchKnowledge looks up knowledge chunks.
func (r *Router) SearchKnowledge(ctx context.Context, q knowledge.SearchQuery) ([]string, error) {
	chunks, err := r.backend.SearchKnowledge(ctx, q)
	return chunks, r.check(err)
}

// ReloadKnowledge re-indexes the knowledge base.
func (r *Router) ReloadKnowledge(ctx context.Context) (resp knowledge.ReloadResponse, err error) {
	id := r.hub.Start(OpReload)
	defer func() { r.finish(id, OpReload, err) }()

	resp, err = r.backend.ReloadKnowledge(ctx)
	return resp, r.check(err)
}

// Download fetches the file behind a structured answer's download_url.
func (r *Router) Download(ctx context.Context, downloadURL string) (*backend.File, error) {
	f, err := r.backend.Download(ctx, downloadURL)
	return f, r.check(err)
}

// check destroys the session when err is a 401 and passes err through.
func (r *Router) check(err error) error {
	if transport.IsAuth(err) {
		r.dropSession()
	}
	return err
}

func (r *Router) dropSession() {
	r.sessMu.Lock()
	defer r.sessMu.Unlock()

	if err := r.store.Clear(); err != nil {
		r.log.Error("failed to clear session after 401", zap.Error(err))
		return
	}
	r.log.Info("session cleared after 401")
}

func (r *Router) finish(id, op string, err error) {
	msg := ""
	if err != nil {
		msg = transport.Message(err)
	}
	r.hub.Finish(id, op, msg)
}
